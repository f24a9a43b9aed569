package models

import "time"

// Event types
const (
	EventTypeOrderCreated  = "ORDER_CREATED"
	EventTypeOrderPaid     = "ORDER_PAID"
	EventTypeOrderFailed   = "ORDER_FAILED"
	EventTypeTicketsIssued = "TICKETS_ISSUED"
	EventTypePaymentEvent  = "PAYMENT_GATEWAY_EVENT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a chat checkout creates a pending order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      string `json:"order_id"`
	EventRef     string `json:"event_ref"`
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
	TotalAmount  string `json:"total_amount"`
	Currency     string `json:"currency"`
	Channel      string `json:"channel"`
}

// OrderPaidEvent published once the order transitions to paid
type OrderPaidEvent struct {
	BaseEvent
	OrderID   string `json:"order_id"`
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// OrderFailedEvent published when a paid order cannot be fulfilled
type OrderFailedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// TicketsIssuedEvent published after tickets are committed
type TicketsIssuedEvent struct {
	BaseEvent
	OrderID    string       `json:"order_id"`
	BuyerEmail string       `json:"buyer_email"`
	BuyerPhone string       `json:"buyer_phone"`
	Tickets    []TicketData `json:"tickets"`
}

// TicketData represents a ticket in events
type TicketData struct {
	TicketID string `json:"ticket_id"`
	Code     string `json:"code"`
	QRURL    string `json:"qr_url"`
}

// PaymentGatewayEvent wraps a verified gateway webhook body queued for fulfillment
type PaymentGatewayEvent struct {
	BaseEvent
	Reference string `json:"reference"`
	Payload   []byte `json:"payload"`
}
