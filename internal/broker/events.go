package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ticketbot/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	orders   *Producer
	payments *Producer
}

// NewEventPublisher creates a new event publisher.
// orders receives domain events; payments receives queued gateway webhooks.
func NewEventPublisher(orders, payments *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, payments: payments}
}

// NewBaseEvent stamps a fresh event envelope
func NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderPaid publishes OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderFailed publishes OrderFailed event
func (ep *EventPublisher) PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishTicketsIssued publishes TicketsIssued event
func (ep *EventPublisher) PublishTicketsIssued(ctx context.Context, event *models.TicketsIssuedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EnqueuePaymentEvent queues a verified gateway webhook body for the fulfillment worker
func (ep *EventPublisher) EnqueuePaymentEvent(ctx context.Context, reference string, payload []byte) error {
	event := &models.PaymentGatewayEvent{
		BaseEvent: NewBaseEvent(models.EventTypePaymentEvent),
		Reference: reference,
		Payload:   payload,
	}
	return ep.payments.PublishEvent(ctx, "payment-"+reference, event)
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// EventHandler handles incoming events
type EventHandler struct {
	onPaymentEvent func(context.Context, []byte) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentEvent registers a handler for queued gateway webhooks
func (eh *EventHandler) OnPaymentEvent(handler func(context.Context, []byte) error) {
	eh.onPaymentEvent = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return Permanent(fmt.Errorf("failed to unmarshal base event: %w", err))
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypePaymentEvent:
		if eh.onPaymentEvent != nil {
			var event models.PaymentGatewayEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return Permanent(fmt.Errorf("failed to unmarshal payment event: %w", err))
			}
			return eh.onPaymentEvent(ctx, event.Payload)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
