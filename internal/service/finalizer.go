package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketbot/internal/broker"
	"ticketbot/internal/models"
	"ticketbot/internal/payment"
	"ticketbot/internal/redisclient"
	"ticketbot/internal/store"
	"ticketbot/internal/util"

	"go.uber.org/zap"
)

// ErrFinalizeInProgress is returned when another delivery holds the order's finalize lock.
// Callers should retry the event later.
var ErrFinalizeInProgress = errors.New("finalize already in progress")

// Outcome is the result of processing one gateway event
type Outcome string

const (
	OutcomeFulfilled Outcome = "fulfilled"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// FinalizerStore is the persistence the finalizer needs
type FinalizerStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetTicketType(ctx context.Context, id string) (*models.TicketType, error)
	FulfillOrder(ctx context.Context, f *store.Fulfillment) error
	MarkOrderFailed(ctx context.Context, id, reason string) (bool, error)
	GetTicketsByOrderID(ctx context.Context, orderID string) ([]models.Ticket, error)
	CompleteSession(ctx context.Context, id, orderID string) (bool, error)
}

// Locker provides short-lived distributed locks
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (*redisclient.Lock, error)
	ExtendLock(ctx context.Context, lock *redisclient.Lock, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lock *redisclient.Lock) error
}

// Notifier delivers messages to a buyer's chat identity
type Notifier interface {
	SendText(ctx context.Context, to, body string, previewURL bool) error
	SendImage(ctx context.Context, to, imageURL, caption string) error
}

// FinalizerOptions tunes finalizer behaviour
type FinalizerOptions struct {
	LockTTL                  time.Duration
	ResendReceiptOnDuplicate bool
}

// Finalizer turns successful gateway events into paid orders with issued tickets
type Finalizer struct {
	store    FinalizerStore
	locker   Locker
	notifier Notifier
	issuer   *TicketIssuer
	events   OrderEvents
	opts     FinalizerOptions
	logger   *zap.Logger
}

// NewFinalizer creates a new finalizer. events may be nil.
func NewFinalizer(store FinalizerStore, locker Locker, notifier Notifier, issuer *TicketIssuer, events OrderEvents, opts FinalizerOptions) *Finalizer {
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Minute
	}
	return &Finalizer{
		store:    store,
		locker:   locker,
		notifier: notifier,
		issuer:   issuer,
		events:   events,
		opts:     opts,
		logger:   util.GetLogger(),
	}
}

// HandleWebhook decodes and finalizes a verified gateway webhook body.
// Undecodable bodies are dropped.
func (f *Finalizer) HandleWebhook(ctx context.Context, body []byte) (Outcome, error) {
	event, err := payment.ParseWebhook(body)
	if err != nil {
		f.ignore("malformed", zap.Error(err))
		return OutcomeIgnored, nil
	}
	return f.Finalize(ctx, event, body)
}

// Finalize processes one gateway event. A nil error with OutcomeIgnored or OutcomeDuplicate means
// the event needs no retry; a non-nil error means nothing was committed and the event may be redelivered.
func (f *Finalizer) Finalize(ctx context.Context, event *payment.WebhookEvent, raw []byte) (Outcome, error) {
	ctx, span := util.StartSpan(ctx, "Finalizer.Finalize")
	defer span.End()

	start := time.Now()
	meta := event.Data.Metadata

	if !event.IsSuccess() {
		f.ignore("not_success", zap.String("event", event.Event), zap.String("status", event.Data.Status))
		return OutcomeIgnored, nil
	}
	if missing := meta.Missing(); len(missing) > 0 {
		f.ignore("missing_metadata", zap.String("reference", event.Data.Reference), zap.Strings("missing", missing))
		return OutcomeIgnored, nil
	}
	if meta.Channel != models.ChannelWhatsApp {
		f.ignore("foreign_channel", zap.String("reference", event.Data.Reference), zap.String("channel", meta.Channel))
		return OutcomeIgnored, nil
	}

	lock, err := f.locker.AcquireLock(ctx, "finalize:"+meta.OrderID, f.opts.LockTTL)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return "", ErrFinalizeInProgress
	}
	if err != nil {
		return "", fmt.Errorf("failed to acquire finalize lock: %w", err)
	}
	defer func() {
		if err := f.locker.ReleaseLock(context.Background(), lock); err != nil {
			f.logger.Warn("Failed to release finalize lock", zap.String("order_id", meta.OrderID), zap.Error(err))
		}
	}()

	order, err := f.store.GetOrderByID(ctx, meta.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		f.ignore("order_not_found", zap.String("order_id", meta.OrderID))
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get order: %w", err)
	}

	if order.PaymentReference != "" && event.Data.Reference != order.PaymentReference {
		f.ignore("reference_mismatch",
			zap.String("order_id", order.ID),
			zap.String("reference", event.Data.Reference),
			zap.String("expected", order.PaymentReference))
		return OutcomeIgnored, nil
	}

	switch order.Status {
	case models.OrderStatusPaid:
		return f.duplicate(ctx, order)
	case models.OrderStatusFailed:
		f.ignore("order_failed", zap.String("order_id", order.ID))
		return OutcomeIgnored, nil
	}

	// The order row is authoritative for what was bought; metadata only fills gaps.
	ticketTypeID := order.Metadata.TicketTypeID
	if ticketTypeID == "" {
		ticketTypeID = meta.TicketTypeID
	}
	quantity := order.Metadata.Quantity
	if quantity <= 0 {
		quantity = int(meta.Quantity)
	}

	paidAmount := order.TotalAmount
	if event.Data.Amount > 0 {
		paidAmount = util.FromMinorUnits(event.Data.Amount)
	}
	currency := order.Currency
	if event.Data.Currency != "" {
		currency = event.Data.Currency
	}

	tt, err := f.store.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return "", fmt.Errorf("failed to get ticket type: %w", err)
	}
	ev, err := f.store.GetEvent(ctx, order.EventID)
	if err != nil {
		return "", fmt.Errorf("failed to get event: %w", err)
	}

	if tt.Available() < quantity {
		return f.fail(ctx, order, "insufficient_inventory")
	}

	tickets, err := f.issuer.Issue(order, tt, quantity)
	if err != nil {
		return "", err
	}

	// Refresh the lock before committing; losing it means another delivery may be running.
	held, err := f.locker.ExtendLock(ctx, lock, f.opts.LockTTL)
	if err != nil {
		return "", fmt.Errorf("failed to extend finalize lock: %w", err)
	}
	if !held {
		return "", ErrFinalizeInProgress
	}

	err = f.store.FulfillOrder(ctx, &store.Fulfillment{
		OrderID:      order.ID,
		TicketTypeID: tt.ID,
		Quantity:     quantity,
		PaidAmount:   paidAmount,
		Currency:     currency,
		GatewayEvent: raw,
		Tickets:      tickets,
	})
	switch {
	case errors.Is(err, store.ErrOrderNotPending):
		// Lost a race against a delivery that did not hold the lock.
		f.logger.Info("Order left pending before fulfillment", zap.String("order_id", order.ID))
		return OutcomeDuplicate, nil
	case errors.Is(err, store.ErrInsufficientInventory):
		return f.fail(ctx, order, "insufficient_inventory")
	case err != nil:
		return "", fmt.Errorf("failed to fulfill order %s: %w", order.ID, err)
	}

	order.Status = models.OrderStatusPaid
	order.TotalAmount = paidAmount
	order.Currency = currency

	util.OrdersPaidTotal.Inc()
	util.TicketsIssuedTotal.Add(float64(len(tickets)))
	util.FulfillmentLatency.Observe(time.Since(start).Seconds())

	f.logger.Info("Order fulfilled",
		zap.String("order_id", order.ID),
		zap.String("reference", order.PaymentReference),
		zap.Int("tickets", len(tickets)))

	f.publishFulfilled(ctx, order, tickets)

	// A buyer who restarted after checkout keeps the newer purchase; only the receipt goes out.
	completed, err := f.store.CompleteSession(ctx, meta.SessionID, order.ID)
	switch {
	case err != nil:
		f.logger.Warn("Failed to complete session",
			zap.String("session_id", meta.SessionID),
			zap.Error(err))
	case !completed:
		f.logger.Info("Session moved on before payment, leaving it as is",
			zap.String("session_id", meta.SessionID),
			zap.String("order_id", order.ID))
	}

	f.sendReceipt(ctx, meta.BuyerPhone, ev, order, tt.Name, tickets)
	return OutcomeFulfilled, nil
}

func (f *Finalizer) duplicate(ctx context.Context, order *models.Order) (Outcome, error) {
	f.logger.Info("Duplicate payment webhook", zap.String("order_id", order.ID))
	util.WebhooksIgnoredTotal.WithLabelValues("duplicate").Inc()

	if !f.opts.ResendReceiptOnDuplicate {
		return OutcomeDuplicate, nil
	}

	tickets, err := f.store.GetTicketsByOrderID(ctx, order.ID)
	if err != nil {
		f.logger.Error("Failed to load tickets for receipt resend", zap.String("order_id", order.ID), zap.Error(err))
		return OutcomeDuplicate, nil
	}
	ev, err := f.store.GetEvent(ctx, order.EventID)
	if err != nil {
		f.logger.Error("Failed to load event for receipt resend", zap.String("order_id", order.ID), zap.Error(err))
		return OutcomeDuplicate, nil
	}
	name := order.Metadata.TicketTypeID
	if tt, err := f.store.GetTicketType(ctx, order.Metadata.TicketTypeID); err == nil {
		name = tt.Name
	}

	f.sendReceipt(ctx, order.BuyerPhone, ev, order, name, tickets)
	return OutcomeDuplicate, nil
}

func (f *Finalizer) fail(ctx context.Context, order *models.Order, reason string) (Outcome, error) {
	changed, err := f.store.MarkOrderFailed(ctx, order.ID, reason)
	if err != nil {
		return "", err
	}
	if !changed {
		return OutcomeDuplicate, nil
	}

	util.OrdersFailedTotal.WithLabelValues(reason).Inc()
	f.logger.Error("Paid order could not be fulfilled",
		zap.String("order_id", order.ID),
		zap.String("reason", reason))

	if f.events != nil {
		event := &models.OrderFailedEvent{
			BaseEvent: broker.NewBaseEvent(models.EventTypeOrderFailed),
			OrderID:   order.ID,
			Reason:    reason,
		}
		if err := f.events.PublishOrderFailed(ctx, event); err != nil {
			f.logger.Error("Failed to publish OrderFailed event", zap.Error(err))
		}
	}

	if err := f.notifier.SendText(ctx, order.BuyerPhone, FulfillmentFailedText(order), false); err != nil {
		f.logger.Error("Failed to send fulfillment apology", zap.String("order_id", order.ID), zap.Error(err))
	}
	return OutcomeFailed, nil
}

func (f *Finalizer) publishFulfilled(ctx context.Context, order *models.Order, tickets []models.Ticket) {
	if f.events == nil {
		return
	}

	paid := &models.OrderPaidEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeOrderPaid),
		OrderID:   order.ID,
		Reference: order.PaymentReference,
		Amount:    order.TotalAmount.String(),
		Currency:  order.Currency,
	}
	if err := f.events.PublishOrderPaid(ctx, paid); err != nil {
		f.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}

	data := make([]models.TicketData, len(tickets))
	for i, t := range tickets {
		data[i] = models.TicketData{TicketID: t.ID, Code: t.Code, QRURL: t.QRURL}
	}
	issued := &models.TicketsIssuedEvent{
		BaseEvent:  broker.NewBaseEvent(models.EventTypeTicketsIssued),
		OrderID:    order.ID,
		BuyerEmail: order.BuyerEmail,
		BuyerPhone: order.BuyerPhone,
		Tickets:    data,
	}
	if err := f.events.PublishTicketsIssued(ctx, issued); err != nil {
		f.logger.Error("Failed to publish TicketsIssued event", zap.Error(err))
	}
}

// sendReceipt delivers one text receipt and one QR image per ticket. Failures are logged only.
func (f *Finalizer) sendReceipt(ctx context.Context, to string, ev *models.Event, order *models.Order, ticketTypeName string, tickets []models.Ticket) {
	if err := f.notifier.SendText(ctx, to, ReceiptText(ev.Title, order, ticketTypeName, tickets), false); err != nil {
		f.logger.Error("Failed to send receipt", zap.String("order_id", order.ID), zap.Error(err))
	}
	for i, t := range tickets {
		caption := TicketCaption(ev.Title, i+1, len(tickets), t.Code)
		if err := f.notifier.SendImage(ctx, to, t.QRURL, caption); err != nil {
			f.logger.Error("Failed to send ticket image",
				zap.String("order_id", order.ID),
				zap.String("ticket_id", t.ID),
				zap.Error(err))
		}
	}
}

func (f *Finalizer) ignore(reason string, fields ...zap.Field) {
	util.WebhooksIgnoredTotal.WithLabelValues(reason).Inc()
	f.logger.Warn("Payment webhook ignored", append([]zap.Field{zap.String("reason", reason)}, fields...)...)
}
