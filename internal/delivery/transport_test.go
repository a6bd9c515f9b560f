package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookTransportSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	transport := NewWebhookTransport(srv.URL, srv.Client())
	require.NoError(t, transport.Send(context.Background(), "contact-1", "hola"))
	assert.Equal(t, "contact-1", got["target"])
	assert.Equal(t, "hola", got["body"])
}

func TestWebhookTransportErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	transport := NewWebhookTransport(srv.URL, srv.Client())
	err := transport.Send(context.Background(), "contact-1", "hola")
	assert.ErrorContains(t, err, "status 502")
}

func TestLogTransportAlwaysSucceeds(t *testing.T) {
	transport := NewLogTransport(nil)
	assert.NoError(t, transport.Send(context.Background(), "contact-1", "hola"))
}
