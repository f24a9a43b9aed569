package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Stage is the position of a conversation in the purchase flow
type Stage string

// Conversation stages, in order of normal progression
const (
	StageInitial              Stage = "initial"
	StageAwaitingTicketChoice Stage = "awaiting_ticket_choice"
	StageAwaitingQuantity     Stage = "awaiting_quantity"
	StageAwaitingEmail        Stage = "awaiting_email"
	StageAwaitingPayment      Stage = "awaiting_payment"
	StageCompleted            Stage = "completed"
)

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	switch s {
	case StageInitial, StageAwaitingTicketChoice, StageAwaitingQuantity,
		StageAwaitingEmail, StageAwaitingPayment, StageCompleted:
		return true
	}
	return false
}

// TicketOption is a ticket type as it was offered to the buyer.
// Options are snapshotted at offer time so numbered replies resolve against
// the list the buyer actually saw.
type TicketOption struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available int             `json:"available"`
}

// SessionMetadata holds the values collected alongside the session columns.
type SessionMetadata struct {
	EventTitle       string           `json:"event_title,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	Options          []TicketOption   `json:"options,omitempty"`
	UnitPrice        *decimal.Decimal `json:"unit_price,omitempty"`
	Total            *decimal.Decimal `json:"total,omitempty"`
	AuthorizationURL string           `json:"authorization_url,omitempty"`
}

// Value implements driver.Valuer
func (m SessionMetadata) Value() (driver.Value, error) {
	return jsonValue(m)
}

// Scan implements sql.Scanner
func (m *SessionMetadata) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// OrderMetadata records what the order is for and where it came from
type OrderMetadata struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
	Channel      string `json:"channel"`
	SessionID    string `json:"session_id,omitempty"`
}

// Value implements driver.Valuer
func (m OrderMetadata) Value() (driver.Value, error) {
	return jsonValue(m)
}

// Scan implements sql.Scanner
func (m *OrderMetadata) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// jsonb parameters go over the wire as text; lib/pq would escape []byte as bytea
func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
}
