package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketbot/internal/util"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// InitializeRequest asks the gateway to open a transaction
type InitializeRequest struct {
	Email       string   `json:"email"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency"`
	Reference   string   `json:"reference"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Metadata    Metadata `json:"metadata"`
}

// Transaction is the gateway's answer to an initialize request
type Transaction struct {
	Reference        string `json:"reference"`
	AccessCode       string `json:"access_code"`
	AuthorizationURL string `json:"authorization_url"`
}

type envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    Transaction `json:"data"`
}

// Gateway is an HTTP client for the payment gateway (Paystack-compatible API)
type Gateway struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewGateway creates a gateway client authenticated with the secret key
func NewGateway(baseURL, secretKey string) *Gateway {
	hc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(secretKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &Gateway{http: hc, logger: util.GetLogger()}
}

// Initialize opens a transaction and returns the authorization URL the buyer must visit
func (g *Gateway) Initialize(ctx context.Context, req *InitializeRequest) (*Transaction, error) {
	ctx, span := util.StartSpan(ctx, "Gateway.Initialize")
	defer span.End()

	if req.Amount <= 0 {
		return nil, fmt.Errorf("invalid amount %d", req.Amount)
	}

	var out envelope
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/transaction/initialize")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize transaction: %w", err)
	}
	if resp.IsError() || !out.Status {
		return nil, fmt.Errorf("gateway rejected transaction %s: status=%d, message=%s",
			req.Reference, resp.StatusCode(), out.Message)
	}
	if out.Data.AuthorizationURL == "" {
		return nil, errors.New("gateway returned no authorization url")
	}
	if out.Data.Reference == "" {
		out.Data.Reference = req.Reference
	}

	g.logger.Info("Transaction initialized",
		zap.String("reference", out.Data.Reference),
		zap.Int64("amount", req.Amount),
		zap.String("currency", req.Currency))
	return &out.Data, nil
}
