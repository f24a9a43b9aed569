package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_received_total",
		Help: "Inbound chat messages by outcome",
	}, []string{"outcome"})

	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Outbound chat messages by kind and result",
	}, []string{"kind", "result"})

	StageTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_stage_transitions_total",
		Help: "Conversation stage transitions",
	}, []string{"from", "to"})

	ConversationStepLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_step_latency_seconds",
		Help:    "Latency of handling one inbound message",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of pending orders created from chat checkouts",
	})

	PaymentInitFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_initialize_failed_total",
		Help: "Total number of failed payment initializations",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders finalized as paid",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of orders that could not be fulfilled",
	}, []string{"reason"})

	TicketsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_issued_total",
		Help: "Total number of tickets issued",
	})

	WebhooksIgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_ignored_total",
		Help: "Payment webhooks dropped without fulfillment",
	}, []string{"reason"})

	FulfillmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fulfillment_latency_seconds",
		Help:    "Latency of order fulfillment",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
