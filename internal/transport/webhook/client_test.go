package webhook_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestline/intake-bot/internal/transport/webhook"
)

func TestClient_Send(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := webhook.NewClient(srv.URL, "relay-token", nil)

	err := client.Send(t.Context(), "chat-123", "searching for Inception")
	require.NoError(t, err)

	assert.Equal(t, "Bearer relay-token", gotAuth)
	assert.Equal(t, "chat-123", gotBody["recipient_id"])
	assert.Equal(t, "searching for Inception", gotBody["text"])
}

func TestClient_Send_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "relay unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := webhook.NewClient(srv.URL, "", nil)

	err := client.Send(t.Context(), "chat-123", "hello")
	assert.Error(t, err)
}
