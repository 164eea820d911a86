package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewaySMSSender_PostsMessage(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewGatewaySMSSender(GatewaySMSConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		FromNumber: "+15550009999",
	}, nil)
	require.NotNil(t, sender)

	err := sender.SendSMS(context.Background(), "+15550102030", "Your appointment is confirmed.")
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "+15550009999", gotPayload["from"])
	assert.Equal(t, "+15550102030", gotPayload["to"])
	assert.Equal(t, "Your appointment is confirmed.", gotPayload["text"])
}

func TestGatewaySMSSender_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"errors":[{"title":"invalid number"}]}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	sender := NewGatewaySMSSender(GatewaySMSConfig{BaseURL: srv.URL, APIKey: "test-key"}, nil)
	require.NotNil(t, sender)

	err := sender.SendSMS(context.Background(), "+15550102030", "hi")
	assert.ErrorContains(t, err, "422")
}

func TestGatewaySMSSender_NilWithoutAPIKey(t *testing.T) {
	assert.Nil(t, NewGatewaySMSSender(GatewaySMSConfig{BaseURL: "https://example.test"}, nil))
	assert.Nil(t, NewGatewaySMSSender(GatewaySMSConfig{APIKey: "   "}, nil))
}

func TestStubSMSSender_NeverFails(t *testing.T) {
	sender := NewStubSMSSender(nil)
	assert.NoError(t, sender.SendSMS(context.Background(), "+15550102030", "anything"))
}
