package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageTypeText is the only inbound message type the purchase flow reacts to
const MessageTypeText = "text"

// ErrInvalidSignature is returned when a webhook body does not match its signature header
var ErrInvalidSignature = errors.New("invalid webhook signature")

// InboundMessage is one normalized message received from the channel
type InboundMessage struct {
	ID          string
	From        string
	ProfileName string
	Type        string
	Text        string
	Timestamp   string
}

// WebhookPayload is the body the channel posts for inbound activity
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []Contact        `json:"contacts"`
	Messages         []WebhookMessage `json:"messages"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type WebhookMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

// ParseWebhook decodes a webhook body into inbound messages.
// Status callbacks and other non-message changes yield no messages.
func ParseWebhook(body []byte, defaultCountryCode string) ([]InboundMessage, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	var out []InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}

			for _, m := range change.Value.Messages {
				msg := InboundMessage{
					ID:          m.ID,
					From:        NormalizePhone(m.From, defaultCountryCode),
					ProfileName: names[m.From],
					Type:        strings.ToLower(m.Type),
					Timestamp:   m.Timestamp,
				}
				if m.Text != nil {
					msg.Text = m.Text.Body
				}
				if msg.From == "" {
					continue
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

// VerifySignature checks an "sha256=<hex>" HMAC header against the raw body
func VerifySignature(body []byte, header, secret string) error {
	sig := strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	expected, err := hex.DecodeString(sig)
	if err != nil || len(expected) == 0 {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}
