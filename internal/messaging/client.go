package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ticketbot/internal/util"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// TypingState is the state of the typing indicator
type TypingState string

const (
	TypingOn  TypingState = "typing_on"
	TypingOff TypingState = "typing_off"
)

// Client sends outbound messages over the chat channel's HTTP API
type Client struct {
	http          *resty.Client
	phoneNumberID string
	logger        *zap.Logger
}

// NewClient creates a channel client
func NewClient(baseURL, phoneNumberID, accessToken string) *Client {
	hc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	return &Client{
		http:          hc,
		phoneNumberID: phoneNumberID,
		logger:        util.GetLogger(),
	}
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type imageBody struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type typingIndicator struct {
	Type string `json:"type"`
}

type sendRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type,omitempty"`
	To               string           `json:"to,omitempty"`
	Type             string           `json:"type,omitempty"`
	Text             *textBody        `json:"text,omitempty"`
	Image            *imageBody       `json:"image,omitempty"`
	Status           string           `json:"status,omitempty"`
	MessageID        string           `json:"message_id,omitempty"`
	TypingIndicator  *typingIndicator `json:"typing_indicator,omitempty"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a text message
func (c *Client) SendText(ctx context.Context, to, body string, previewURL bool) error {
	return c.send(ctx, "text", &sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body, PreviewURL: previewURL},
	})
}

// SendImage sends an image by URL with an optional caption
func (c *Client) SendImage(ctx context.Context, to, imageURL, caption string) error {
	return c.send(ctx, "image", &sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "image",
		Image:            &imageBody{Link: imageURL, Caption: caption},
	})
}

// SetTyping shows the typing indicator in reply to an inbound message.
// The channel clears the indicator on the next reply, so TypingOff is a no-op.
func (c *Client) SetTyping(ctx context.Context, to, inboundMessageID string, state TypingState) error {
	if state != TypingOn || inboundMessageID == "" {
		return nil
	}
	return c.send(ctx, "typing", &sendRequest{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        inboundMessageID,
		TypingIndicator:  &typingIndicator{Type: "text"},
	})
}

func (c *Client) send(ctx context.Context, kind string, req *sendRequest) error {
	ctx, span := util.StartSpan(ctx, "MessagingClient.Send")
	defer span.End()

	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetError(&apiErr).
		Post(fmt.Sprintf("/%s/messages", c.phoneNumberID))
	if err != nil {
		util.MessagesSentTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("failed to send %s message: %w", kind, err)
	}
	if resp.IsError() {
		util.MessagesSentTotal.WithLabelValues(kind, "rejected").Inc()
		return fmt.Errorf("channel rejected %s message: status=%d, message=%s",
			kind, resp.StatusCode(), apiErr.Error.Message)
	}

	util.MessagesSentTotal.WithLabelValues(kind, "ok").Inc()
	c.logger.Debug("Message sent", zap.String("kind", kind), zap.String("to", req.To))
	return nil
}
