package worker

import (
	"context"
	"errors"
	"log"

	"ticketbot/internal/broker"
	"ticketbot/internal/service"
	"ticketbot/internal/store"
	"ticketbot/internal/util"

	"go.uber.org/zap"
)

// WebhookFinalizer finalizes a verified gateway webhook body
type WebhookFinalizer interface {
	HandleWebhook(ctx context.Context, body []byte) (service.Outcome, error)
}

// FulfillmentWorker runs the finalizer for gateway events queued on the payment topic
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	finalizer    WebhookFinalizer
	logger       *zap.Logger
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(consumer *broker.Consumer, finalizer WebhookFinalizer) *FulfillmentWorker {
	w := &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		finalizer:    finalizer,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnPaymentEvent(w.process)
	return w
}

// Start starts the worker
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	log.Println("Starting fulfillment worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	log.Println("Stopping fulfillment worker...")
	return w.consumer.Close()
}

// process returns an error only when the event should be retried.
// Missing catalog rows will not appear on retry, so they are reported as permanent.
func (w *FulfillmentWorker) process(ctx context.Context, payload []byte) error {
	outcome, err := w.finalizer.HandleWebhook(ctx, payload)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.Error("Fulfillment failed permanently", zap.Error(err))
		return broker.Permanent(err)
	}
	if err != nil {
		w.logger.Warn("Fulfillment attempt failed", zap.Error(err))
		return err
	}
	w.logger.Info("Payment event processed", zap.String("outcome", string(outcome)))
	return nil
}
