package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Event represents a ticketed event
type Event struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Venue     string    `db:"venue" json:"venue"`
	Currency  string    `db:"currency" json:"currency"`
	Status    string    `db:"status" json:"status"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Sellable reports whether buyers may purchase tickets for the event
func (e *Event) Sellable() bool {
	return e.Status == EventStatusPublished || e.Status == EventStatusPublic
}

// TicketType is a priced admission category of an event
type TicketType struct {
	ID        string          `db:"id" json:"id"`
	EventID   string          `db:"event_id" json:"event_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Sold      int             `db:"sold" json:"sold"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Available returns the number of unsold tickets
func (t *TicketType) Available() int {
	if t.Sold >= t.Quantity {
		return 0
	}
	return t.Quantity - t.Sold
}

// Order represents a purchase awaiting or having completed payment
type Order struct {
	ID               string          `db:"id" json:"id"`
	EventID          string          `db:"event_id" json:"event_id"`
	BuyerEmail       string          `db:"buyer_email" json:"buyer_email"`
	BuyerPhone       string          `db:"buyer_phone" json:"buyer_phone"`
	Currency         string          `db:"currency" json:"currency"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status           string          `db:"status" json:"status"`
	PaymentReference string          `db:"payment_reference" json:"payment_reference"`
	Metadata         OrderMetadata   `db:"metadata" json:"metadata"`
	GatewayEvent     json.RawMessage `db:"gateway_event" json:"-"`
	FailureReason    string          `db:"failure_reason" json:"failure_reason,omitempty"`
	PaidAt           *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Ticket is one issued admission
type Ticket struct {
	ID               string          `db:"id" json:"id"`
	OrderID          string          `db:"order_id" json:"order_id"`
	EventID          string          `db:"event_id" json:"event_id"`
	TicketTypeID     string          `db:"ticket_type_id" json:"ticket_type_id"`
	Code             string          `db:"code" json:"code"`
	QRURL            string          `db:"qr_url" json:"qr_url"`
	AttendeeName     string          `db:"attendee_name" json:"attendee_name"`
	AttendeeEmail    string          `db:"attendee_email" json:"attendee_email"`
	Price            decimal.Decimal `db:"price" json:"price"`
	Currency         string          `db:"currency" json:"currency"`
	ValidationStatus string          `db:"validation_status" json:"validation_status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// Session is the durable conversation record of one sender
type Session struct {
	ID                 string          `db:"id" json:"id"`
	Sender             string          `db:"sender" json:"sender"`
	Stage              Stage           `db:"stage" json:"stage"`
	EventID            string          `db:"event_id" json:"event_id"`
	TicketTypeID       string          `db:"ticket_type_id" json:"ticket_type_id"`
	Quantity           int             `db:"quantity" json:"quantity"`
	BuyerEmail         string          `db:"buyer_email" json:"buyer_email"`
	OrderID            string          `db:"order_id" json:"order_id"`
	PaymentReference   string          `db:"payment_reference" json:"payment_reference"`
	PaymentAccessToken string          `db:"payment_access_token" json:"-"`
	Metadata           SessionMetadata `db:"metadata" json:"metadata"`
	LastMessage        string          `db:"last_message" json:"last_message"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// Reset clears every selection field and returns the session to the initial stage
func (s *Session) Reset() {
	s.Stage = StageInitial
	s.EventID = ""
	s.TicketTypeID = ""
	s.Quantity = 0
	s.BuyerEmail = ""
	s.OrderID = ""
	s.PaymentReference = ""
	s.PaymentAccessToken = ""
	s.Metadata = SessionMetadata{}
}

// Event statuses
const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusPublic    = "public"
)

// Order statuses
const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

// TicketStatusValid is the validation status of a freshly issued ticket
const TicketStatusValid = "valid"

// ChannelWhatsApp marks orders and gateway metadata originating from the chat flow
const ChannelWhatsApp = "whatsapp"
