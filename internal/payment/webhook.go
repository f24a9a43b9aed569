package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Gateway event names and statuses the finalizer acts on
const (
	EventChargeSuccess = "charge.success"
	StatusSuccess      = "success"
)

var (
	// ErrInvalidSignature is returned when a webhook body does not match its signature
	ErrInvalidSignature = errors.New("invalid payment webhook signature")
	// ErrMissingSecret is returned when no gateway secret is configured to verify against
	ErrMissingSecret = errors.New("payment webhook secret not configured")
)

// Metadata travels with the transaction and comes back on the webhook
type Metadata struct {
	OrderID      string  `json:"order_id"`
	SessionID    string  `json:"session_id"`
	EventID      string  `json:"event_id"`
	TicketTypeID string  `json:"ticket_type_id"`
	Quantity     FlexInt `json:"quantity"`
	BuyerPhone   string  `json:"buyer_phone"`
	Channel      string  `json:"channel"`
}

// Missing lists the required metadata fields that are absent
func (m Metadata) Missing() []string {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("order_id", m.OrderID)
	check("session_id", m.SessionID)
	check("event_id", m.EventID)
	check("ticket_type_id", m.TicketTypeID)
	check("buyer_phone", m.BuyerPhone)
	check("channel", m.Channel)
	if m.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	return missing
}

// FlexInt accepts both JSON numbers and numeric strings
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*f = FlexInt(n)
	return nil
}

// WebhookEvent is the gateway's asynchronous transaction notification
type WebhookEvent struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

type WebhookData struct {
	ID        int64    `json:"id"`
	Status    string   `json:"status"`
	Reference string   `json:"reference"`
	Amount    int64    `json:"amount"`
	Currency  string   `json:"currency"`
	PaidAt    string   `json:"paid_at"`
	Metadata  Metadata `json:"metadata"`
}

// IsSuccess reports whether the event reports a successful charge
func (e *WebhookEvent) IsSuccess() bool {
	return e.Event == EventChargeSuccess && strings.EqualFold(e.Data.Status, StatusSuccess)
}

// ParseWebhook decodes a webhook body
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode payment webhook: %w", err)
	}
	return &event, nil
}

// Sign computes the hex HMAC-SHA512 of body with the gateway secret
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the gateway signature header against the raw body
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(expected) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}
