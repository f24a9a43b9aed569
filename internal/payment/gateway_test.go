package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	var got InitializeRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{
			"authorization_url":"https://checkout.example/abc","access_code":"abc","reference":"wa-order-1"}}`))
	}))
	defer srv.Close()

	gw := NewGateway(srv.URL, "sk_test_1")
	tx, err := gw.Initialize(context.Background(), &InitializeRequest{
		Email:     "a@b.com",
		Amount:    1500000,
		Currency:  "NGN",
		Reference: "wa-order-1",
		Metadata:  Metadata{OrderID: "order-1", Quantity: 3, Channel: "whatsapp"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk_test_1", auth)
	assert.Equal(t, int64(1500000), got.Amount)
	assert.Equal(t, FlexInt(3), got.Metadata.Quantity)
	assert.Equal(t, "https://checkout.example/abc", tx.AuthorizationURL)
	assert.Equal(t, "abc", tx.AccessCode)
	assert.Equal(t, "wa-order-1", tx.Reference)
}

func TestInitialize_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Duplicate Transaction Reference"}`))
	}))
	defer srv.Close()

	_, err := NewGateway(srv.URL, "sk").Initialize(context.Background(), &InitializeRequest{
		Email: "a@b.com", Amount: 100, Currency: "NGN", Reference: "wa-1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Duplicate Transaction Reference")
}

func TestInitialize_InvalidAmount(t *testing.T) {
	_, err := NewGateway("http://127.0.0.1:0", "sk").Initialize(context.Background(), &InitializeRequest{Amount: 0})
	assert.Error(t, err)
}
