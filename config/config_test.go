package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ASYNC_FULFILLMENT", "")
	t.Setenv("RESEND_RECEIPT_ON_DUPLICATE", "")
	t.Setenv("FULFILLMENT_MAX_BACKOFF_SECONDS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Business.AsyncFulfillment)
	assert.Equal(t, 30, cfg.Business.FulfillmentMaxBackoff)
	assert.False(t, cfg.Business.ResendReceiptOnDuplicate)
	assert.Equal(t, 15, cfg.Business.ConversationLockSeconds)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ASYNC_FULFILLMENT", "true")
	t.Setenv("RESEND_RECEIPT_ON_DUPLICATE", "true")
	t.Setenv("CONVERSATION_LOCK_SECONDS", "not-a-number")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Business.AsyncFulfillment)
	assert.True(t, cfg.Business.ResendReceiptOnDuplicate)
	assert.Equal(t, 15, cfg.Business.ConversationLockSeconds)
}
