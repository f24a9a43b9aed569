package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ticketbot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type finalizerFixture struct {
	store    *memStore
	locker   *memLocker
	notifier *recordingNotifier
	events   *recordingEvents
	order    *models.Order
}

func newFinalizerFixture(t *testing.T, quantity, sold int) *finalizerFixture {
	t.Helper()
	st := newMemStore()
	st.seedEvent("ev-1", models.EventStatusPublished, ticketType("tt-vip", "VIP", 20000, quantity, sold))

	order := &models.Order{
		ID:               "order-1",
		EventID:          "ev-1",
		BuyerEmail:       "ada@example.com",
		BuyerPhone:       "2348012345678",
		Currency:         "NGN",
		TotalAmount:      decimal.NewFromInt(60000),
		Status:           models.OrderStatusPending,
		PaymentReference: "wa-order-1",
		Metadata: models.OrderMetadata{
			TicketTypeID: "tt-vip",
			Quantity:     3,
			Channel:      models.ChannelWhatsApp,
			SessionID:    "sess-1",
		},
	}
	require.NoError(t, st.CreateOrder(context.Background(), order))
	st.sessionOrders["sess-1"] = order.ID

	return &finalizerFixture{
		store:    st,
		locker:   newMemLocker(),
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		order:    order,
	}
}

func (fx *finalizerFixture) finalizer(opts FinalizerOptions) *Finalizer {
	issuer := NewTicketIssuer("https://tickets.example.com/validate", "https://qr.example.com/")
	return NewFinalizer(fx.store, fx.locker, fx.notifier, issuer, fx.events, opts)
}

func webhookBody(t *testing.T, mutate func(map[string]interface{})) []byte {
	t.Helper()
	meta := map[string]interface{}{
		"order_id":       "order-1",
		"session_id":     "sess-1",
		"event_id":       "ev-1",
		"ticket_type_id": "tt-vip",
		"quantity":       "3",
		"buyer_phone":    "2348012345678",
		"channel":        models.ChannelWhatsApp,
	}
	if mutate != nil {
		mutate(meta)
	}
	body, err := json.Marshal(map[string]interface{}{
		"event": "charge.success",
		"data": map[string]interface{}{
			"id":        123,
			"status":    "success",
			"reference": "wa-order-1",
			"amount":    6000000,
			"currency":  "NGN",
			"metadata":  meta,
		},
	})
	require.NoError(t, err)
	return body
}

func TestFinalizeIssuesTickets(t *testing.T) {
	fx := newFinalizerFixture(t, 10, 2)
	f := fx.finalizer(FinalizerOptions{})

	outcome, err := f.HandleWebhook(context.Background(), webhookBody(t, nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFulfilled, outcome)

	order, _ := fx.store.GetOrderByID(context.Background(), "order-1")
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.True(t, decimal.NewFromInt(60000).Equal(order.TotalAmount))
	assert.NotEmpty(t, order.GatewayEvent)

	tickets, _ := fx.store.GetTicketsByOrderID(context.Background(), "order-1")
	require.Len(t, tickets, 3)
	codes := map[string]bool{}
	for _, tk := range tickets {
		codes[tk.Code] = true
	}
	assert.Len(t, codes, 3)

	tt, _ := fx.store.GetTicketType(context.Background(), "tt-vip")
	assert.Equal(t, 5, tt.Sold)

	assert.Equal(t, []string{"sess-1"}, fx.store.completed)

	texts, images := fx.notifier.counts()
	assert.Equal(t, 1, texts)
	assert.Equal(t, 3, images)
	assert.Equal(t, "2348012345678", fx.notifier.sent[0].to)
	assert.Contains(t, fx.notifier.sent[0].text, "Lagos Jazz Night")

	require.Len(t, fx.events.paid, 1)
	require.Len(t, fx.events.issued, 1)
	assert.Len(t, fx.events.issued[0].Tickets, 3)
}

func TestFinalizeDuplicateDeliveryIsNoop(t *testing.T) {
	fx := newFinalizerFixture(t, 10, 2)
	f := fx.finalizer(FinalizerOptions{})
	body := webhookBody(t, nil)

	_, err := f.HandleWebhook(context.Background(), body)
	require.NoError(t, err)

	outcome, err := f.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	tickets, _ := fx.store.GetTicketsByOrderID(context.Background(), "order-1")
	assert.Len(t, tickets, 3)
	tt, _ := fx.store.GetTicketType(context.Background(), "tt-vip")
	assert.Equal(t, 5, tt.Sold)

	texts, images := fx.notifier.counts()
	assert.Equal(t, 1, texts)
	assert.Equal(t, 3, images)
}

func TestFinalizeDuplicateResendsReceiptWhenEnabled(t *testing.T) {
	fx := newFinalizerFixture(t, 10, 2)
	f := fx.finalizer(FinalizerOptions{ResendReceiptOnDuplicate: true})
	body := webhookBody(t, nil)

	_, err := f.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	outcome, err := f.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	tt, _ := fx.store.GetTicketType(context.Background(), "tt-vip")
	assert.Equal(t, 5, tt.Sold)

	texts, images := fx.notifier.counts()
	assert.Equal(t, 2, texts)
	assert.Equal(t, 6, images)
}

func TestFinalizeIgnoresForeignOrIncompleteEvents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"missing order id", func(m map[string]interface{}) { delete(m, "order_id") }},
		{"missing quantity", func(m map[string]interface{}) { delete(m, "quantity") }},
		{"missing buyer phone", func(m map[string]interface{}) { m["buyer_phone"] = "" }},
		{"web channel", func(m map[string]interface{}) { m["channel"] = "web" }},
		{"unknown order", func(m map[string]interface{}) { m["order_id"] = "order-404" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFinalizerFixture(t, 10, 2)
			f := fx.finalizer(FinalizerOptions{})

			outcome, err := f.HandleWebhook(context.Background(), webhookBody(t, tt.mutate))
			require.NoError(t, err)
			assert.Equal(t, OutcomeIgnored, outcome)

			order, _ := fx.store.GetOrderByID(context.Background(), "order-1")
			assert.Equal(t, models.OrderStatusPending, order.Status)
			assert.Empty(t, fx.notifier.sent)
		})
	}
}

func TestFinalizeIgnoresNonSuccessAndGarbage(t *testing.T) {
	fx := newFinalizerFixture(t, 10, 2)
	f := fx.finalizer(FinalizerOptions{})

	outcome, err := f.HandleWebhook(context.Background(), []byte(`{"event":"charge.failed","data":{"status":"failed"}}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	outcome, err = f.HandleWebhook(context.Background(), []byte(`not json`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestFinalizeReferenceMismatch(t *testing.T) {
	fx := newFinalizerFixture(t, 10, 2)
	f := fx.finalizer(FinalizerOptions{})

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(webhookBody(t, nil), &payload))
	payload["data"].(map[string]interface{})["reference"] = "web-order-1"
	body, _ := json.Marshal(payload)

	outcome, err := f.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestFinalizeLateWebhookLeavesNewerPurchase(t *testing.T) {
	fx := newFinalizerFixture(t, 10, 2)
	// the buyer restarted and checked out again before the first payment landed
	fx.store.sessionOrders["sess-1"] = "order-2"
	f := fx.finalizer(FinalizerOptions{})

	outcome, err := f.HandleWebhook(context.Background(), webhookBody(t, nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFulfilled, outcome)

	order, _ := fx.store.GetOrderByID(context.Background(), "order-1")
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Empty(t, fx.store.completed)
	assert.Equal(t, "order-2", fx.store.sessionOrders["sess-1"])

	texts, images := fx.notifier.counts()
	assert.Equal(t, 1, texts)
	assert.Equal(t, 3, images)
	assert.Equal(t, "2348012345678", fx.notifier.sent[0].to)
}

func TestFinalizeInsufficientInventoryFailsOrder(t *testing.T) {
	fx := newFinalizerFixture(t, 10, 9)
	f := fx.finalizer(FinalizerOptions{})

	outcome, err := f.HandleWebhook(context.Background(), webhookBody(t, nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	order, _ := fx.store.GetOrderByID(context.Background(), "order-1")
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	tickets, _ := fx.store.GetTicketsByOrderID(context.Background(), "order-1")
	assert.Empty(t, tickets)
	tt, _ := fx.store.GetTicketType(context.Background(), "tt-vip")
	assert.Equal(t, 9, tt.Sold)

	require.Len(t, fx.notifier.sent, 1)
	assert.Contains(t, fx.notifier.sent[0].text, "refund")
	require.Len(t, fx.events.failed, 1)
	assert.Empty(t, fx.store.completed)
}

func TestFinalizeBusyLock(t *testing.T) {
	fx := newFinalizerFixture(t, 10, 2)
	f := fx.finalizer(FinalizerOptions{})

	_, err := fx.locker.AcquireLock(context.Background(), "finalize:order-1", time.Minute)
	require.NoError(t, err)

	_, err = f.HandleWebhook(context.Background(), webhookBody(t, nil))
	assert.ErrorIs(t, err, ErrFinalizeInProgress)

	order, _ := fx.store.GetOrderByID(context.Background(), "order-1")
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestFinalizeStoreFailureLeavesOrderPending(t *testing.T) {
	fx := newFinalizerFixture(t, 10, 2)
	fx.store.failWrites = errors.New("connection reset")
	f := fx.finalizer(FinalizerOptions{})

	_, err := f.HandleWebhook(context.Background(), webhookBody(t, nil))
	assert.Error(t, err)

	order, _ := fx.store.GetOrderByID(context.Background(), "order-1")
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Empty(t, fx.notifier.sent)

	// The lock is released so a redelivery can finish the job.
	fx.store.failWrites = nil
	outcome, err := f.HandleWebhook(context.Background(), webhookBody(t, nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFulfilled, outcome)
}
