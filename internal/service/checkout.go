package service

import (
	"context"
	"fmt"

	"ticketbot/internal/broker"
	"ticketbot/internal/models"
	"ticketbot/internal/payment"
	"ticketbot/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderWriter persists new orders
type OrderWriter interface {
	CreateOrder(ctx context.Context, order *models.Order) error
}

// PaymentInitializer opens gateway transactions
type PaymentInitializer interface {
	Initialize(ctx context.Context, req *payment.InitializeRequest) (*payment.Transaction, error)
}

// OrderEvents publishes order lifecycle events
type OrderEvents interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishTicketsIssued(ctx context.Context, event *models.TicketsIssuedEvent) error
}

// CheckoutRequest describes a confirmed chat selection
type CheckoutRequest struct {
	SessionID    string
	BuyerPhone   string
	BuyerEmail   string
	EventID      string
	TicketTypeID string
	Quantity     int
	Total        decimal.Decimal
	Currency     string
}

// CheckoutResult is what the buyer needs to pay
type CheckoutResult struct {
	OrderID          string
	Reference        string
	AccessToken      string
	AuthorizationURL string
}

// CheckoutService creates pending orders and opens the matching gateway transaction
type CheckoutService struct {
	orders      OrderWriter
	gateway     PaymentInitializer
	events      OrderEvents
	callbackURL string
	logger      *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(orders OrderWriter, gateway PaymentInitializer, events OrderEvents, callbackURL string) *CheckoutService {
	return &CheckoutService{
		orders:      orders,
		gateway:     gateway,
		events:      events,
		callbackURL: callbackURL,
		logger:      util.GetLogger(),
	}
}

// PaymentReference derives the gateway reference of an order
func PaymentReference(orderID string) string {
	return "wa-" + orderID
}

// StartCheckout writes a pending order and initializes payment for it.
// When the gateway call fails the pending order is kept.
func (s *CheckoutService) StartCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.StartCheckout")
	defer span.End()

	order := &models.Order{
		ID:          uuid.New().String(),
		EventID:     req.EventID,
		BuyerEmail:  req.BuyerEmail,
		BuyerPhone:  req.BuyerPhone,
		Currency:    req.Currency,
		TotalAmount: req.Total,
		Status:      models.OrderStatusPending,
		Metadata: models.OrderMetadata{
			TicketTypeID: req.TicketTypeID,
			Quantity:     req.Quantity,
			Channel:      models.ChannelWhatsApp,
			SessionID:    req.SessionID,
		},
	}
	order.PaymentReference = PaymentReference(order.ID)

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("event_id", order.EventID),
		zap.Int("quantity", req.Quantity),
		zap.String("total", order.TotalAmount.String()))

	if s.events != nil {
		event := &models.OrderCreatedEvent{
			BaseEvent:    broker.NewBaseEvent(models.EventTypeOrderCreated),
			OrderID:      order.ID,
			EventRef:     order.EventID,
			TicketTypeID: req.TicketTypeID,
			Quantity:     req.Quantity,
			TotalAmount:  order.TotalAmount.String(),
			Currency:     order.Currency,
			Channel:      models.ChannelWhatsApp,
		}
		if err := s.events.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	tx, err := s.gateway.Initialize(ctx, &payment.InitializeRequest{
		Email:       req.BuyerEmail,
		Amount:      util.ToMinorUnits(req.Total),
		Currency:    req.Currency,
		Reference:   order.PaymentReference,
		CallbackURL: s.callbackURL,
		Metadata: payment.Metadata{
			OrderID:      order.ID,
			SessionID:    req.SessionID,
			EventID:      req.EventID,
			TicketTypeID: req.TicketTypeID,
			Quantity:     payment.FlexInt(req.Quantity),
			BuyerPhone:   req.BuyerPhone,
			Channel:      models.ChannelWhatsApp,
		},
	})
	if err != nil {
		util.PaymentInitFailedTotal.Inc()
		return nil, fmt.Errorf("failed to initialize payment for order %s: %w", order.ID, err)
	}

	return &CheckoutResult{
		OrderID:          order.ID,
		Reference:        tx.Reference,
		AccessToken:      tx.AccessCode,
		AuthorizationURL: tx.AuthorizationURL,
	}, nil
}
