package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "waba-1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "contacts": [{"wa_id": "2348012345678", "profile": {"name": "Ada"}}],
        "messages": [
          {"id": "wamid.1", "from": "2348012345678", "timestamp": "1700000000", "type": "text", "text": {"body": "buy-event-abc123"}},
          {"id": "wamid.2", "from": "2348012345678", "timestamp": "1700000001", "type": "image"}
        ]
      }
    }]
  }]
}`

func TestParseWebhook(t *testing.T) {
	msgs, err := ParseWebhook([]byte(samplePayload), "234")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "wamid.1", msgs[0].ID)
	assert.Equal(t, "2348012345678", msgs[0].From)
	assert.Equal(t, "Ada", msgs[0].ProfileName)
	assert.Equal(t, MessageTypeText, msgs[0].Type)
	assert.Equal(t, "buy-event-abc123", msgs[0].Text)

	assert.Equal(t, "image", msgs[1].Type)
	assert.Empty(t, msgs[1].Text)
}

func TestParseWebhook_StatusOnly(t *testing.T) {
	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"statuses":[{"id":"wamid.9"}]}}]}]}`
	msgs, err := ParseWebhook([]byte(body), "234")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestParseWebhook_Malformed(t *testing.T) {
	_, err := ParseWebhook([]byte("not json"), "234")
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(samplePayload)
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.NoError(t, VerifySignature(body, header, "app-secret"))
	assert.ErrorIs(t, VerifySignature(body, header, "other-secret"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, "sha256=zz", "app-secret"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, "", "app-secret"), ErrInvalidSignature)
}
