package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ticketbot/internal/messaging"
	"ticketbot/internal/models"
	"ticketbot/internal/payment"
	"ticketbot/internal/service"
	"ticketbot/internal/store"
	"ticketbot/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const paymentSignatureHeader = "X-Paystack-Signature"

// MessageHandler processes one inbound chat message
type MessageHandler interface {
	Handle(ctx context.Context, msg messaging.InboundMessage) error
}

// PaymentFinalizer processes a verified gateway webhook inline
type PaymentFinalizer interface {
	HandleWebhook(ctx context.Context, body []byte) (service.Outcome, error)
}

// PaymentQueue hands verified gateway webhooks to the fulfillment worker
type PaymentQueue interface {
	EnqueuePaymentEvent(ctx context.Context, reference string, payload []byte) error
}

// OrderQueries reads orders for the status endpoint
type OrderQueries interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetTicketsByOrderID(ctx context.Context, orderID string) ([]models.Ticket, error)
}

// Pinger is a dependency the readiness check pings
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the webhook secrets and routing switches
type Config struct {
	VerifyToken        string
	AppSecret          string
	PaymentSecret      string
	DefaultCountryCode string
	AsyncFulfillment   bool
}

// Handler contains HTTP handlers
type Handler struct {
	conversations MessageHandler
	finalizer     PaymentFinalizer
	queue         PaymentQueue
	orders        OrderQueries
	checks        map[string]Pinger
	cfg           Config
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler. queue may be nil when fulfillment runs inline.
func NewHandler(conversations MessageHandler, finalizer PaymentFinalizer, queue PaymentQueue, orders OrderQueries, cfg Config) *Handler {
	return &Handler{
		conversations: conversations,
		finalizer:     finalizer,
		queue:         queue,
		orders:        orders,
		checks:        map[string]Pinger{},
		cfg:           cfg,
		logger:        util.GetLogger(),
	}
}

// AddReadinessCheck registers a dependency for GET /ready
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.checks[name] = p
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := router.Group("/webhooks")
	{
		webhooks.GET("/messaging", h.verifyMessagingWebhook)
		webhooks.POST("/messaging", h.receiveMessages)
		webhooks.POST("/payment", h.receivePayment)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/orders/:id", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// verifyMessagingWebhook answers the channel's subscription handshake
func (h *Handler) verifyMessagingWebhook(c *gin.Context) {
	if c.Query("hub.mode") != "subscribe" || h.cfg.VerifyToken == "" || c.Query("hub.verify_token") != h.cfg.VerifyToken {
		c.JSON(http.StatusForbidden, gin.H{"error": "Verification failed"})
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// receiveMessages runs every inbound message in the payload through the conversation engine
func (h *Handler) receiveMessages(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if h.cfg.AppSecret != "" {
		if err := messaging.VerifySignature(body, c.GetHeader("X-Hub-Signature-256"), h.cfg.AppSecret); err != nil {
			h.logger.Warn("Rejected messaging webhook", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
	}

	messages, err := messaging.ParseWebhook(body, h.cfg.DefaultCountryCode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid webhook payload",
			"details": err.Error(),
		})
		return
	}

	failed := 0
	for _, msg := range messages {
		if err := h.conversations.Handle(c.Request.Context(), msg); err != nil {
			failed++
			h.logger.Error("Failed to handle inbound message",
				zap.String("message_id", msg.ID),
				zap.String("sender", msg.From),
				zap.Error(err))
		}
	}

	// A non-2xx makes the channel redeliver; already-processed messages are deduplicated.
	if failed > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Retry later"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": len(messages)})
}

// receivePayment verifies a gateway webhook and fulfills it inline or queues it
func (h *Handler) receivePayment(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	err = payment.VerifySignature(body, c.GetHeader(paymentSignatureHeader), h.cfg.PaymentSecret)
	if errors.Is(err, payment.ErrMissingSecret) {
		h.logger.Error("Refusing payment webhook", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment webhooks not configured"})
		return
	}
	if err != nil {
		h.logger.Warn("Rejected payment webhook", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	if h.cfg.AsyncFulfillment && h.queue != nil {
		event, err := payment.ParseWebhook(body)
		if err != nil {
			h.logger.Warn("Dropping undecodable payment webhook", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"status": string(service.OutcomeIgnored)})
			return
		}
		if err := h.queue.EnqueuePaymentEvent(c.Request.Context(), event.Data.Reference, body); err != nil {
			h.logger.Error("Failed to queue payment webhook",
				zap.String("reference", event.Data.Reference),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue event"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "queued"})
		return
	}

	outcome, err := h.finalizer.HandleWebhook(c.Request.Context(), body)
	if err != nil {
		h.logger.Error("Payment webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}

// getOrder returns an order with its issued tickets
func (h *Handler) getOrder(c *gin.Context) {
	orderID := c.Param("id")

	order, err := h.orders.GetOrderByID(c.Request.Context(), orderID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order",
			"details": err.Error(),
		})
		return
	}

	tickets, err := h.orders.GetTicketsByOrderID(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load tickets",
			"details": err.Error(),
		})
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"tickets": tickets,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
