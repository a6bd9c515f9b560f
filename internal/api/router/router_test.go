package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarin/chatrelay/internal/delivery"
	"github.com/dmarin/chatrelay/internal/generator"
	"github.com/dmarin/chatrelay/internal/relay"
	"github.com/dmarin/chatrelay/internal/session"
)

type nullTransport struct{}

func (nullTransport) Send(ctx context.Context, target, body string) error { return nil }

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, message string, history []session.Turn, senderName string) string {
	return "eco: " + message
}

type fakeProbe struct {
	result generator.ProbeResult
}

func (f *fakeProbe) TestConnection(ctx context.Context) generator.ProbeResult {
	return f.result
}

func newTestServer(t *testing.T, probe generator.ConnectionTester) (*httptest.Server, *session.Store) {
	t.Helper()
	store := session.NewStore(context.Background(), nil, nil)
	queue := delivery.NewQueue(nullTransport{}, nil).WithMessageDelay(time.Millisecond)
	rly := relay.New(store, echoGenerator{}, queue, nil).WithGeneratorName("pattern")

	handler := New(&Config{
		Status: NewStatusHandler(store, queue, rly, probe, nil),
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, store
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var body map[string]any
	resp := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "pattern", body["generator"])
}

func TestStats(t *testing.T) {
	srv, store := newTestServer(t, nil)
	store.RecordTurn(context.Background(), "c1", session.RoleUser, "hola", "Ana")

	var body struct {
		Sessions session.AggregateStats `json:"sessions"`
		Queue    delivery.Stats         `json:"queue"`
	}
	resp := getJSON(t, srv.URL+"/api/stats", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, body.Sessions.TotalSessions)
	assert.Equal(t, 1, body.Sessions.TotalMessages)
}

func TestSearch(t *testing.T) {
	srv, store := newTestServer(t, nil)
	store.RecordTurn(context.Background(), "c1", session.RoleUser, "me gusta la tecnologia", "Ana")

	resp, err := http.Get(srv.URL + "/api/search")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Count   int                    `json:"count"`
		Results []session.SearchResult `json:"results"`
	}
	resp = getJSON(t, srv.URL+"/api/search?q=tecnologia", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "c1", body.Results[0].ContactID)
}

func TestExport(t *testing.T) {
	srv, store := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/sessions/desconocido/export")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	store.RecordTurn(context.Background(), "c1", session.RoleUser, "hola", "Ana")

	var export session.Export
	resp = getJSON(t, srv.URL+"/api/sessions/c1/export", &export)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "c1", export.ContactID)
	assert.Len(t, export.Turns, 1)
}

func TestInboundWebhook(t *testing.T) {
	srv, store := newTestServer(t, nil)

	var body map[string]string
	resp, err := http.Post(srv.URL+"/webhooks/inbound", "application/json",
		strings.NewReader(`{"contact_id":"c1","text":"hola","sender_name":"Ana"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "eco: hola", body["reply"])
	assert.Len(t, store.History("c1"), 2)

	resp, err = http.Post(srv.URL+"/webhooks/inbound", "application/json",
		strings.NewReader(`{"text":"hola"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSend(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/send", "application/json",
		strings.NewReader(`{"target":"c1","body":"hola","priority":"high"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/send", "application/json",
		strings.NewReader(`{"target":"c1","body":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/send", "application/json",
		strings.NewReader(`{"body":"hola"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBroadcast(t *testing.T) {
	srv, store := newTestServer(t, nil)
	store.RecordTurn(context.Background(), "c1", session.RoleUser, "hola", "Ana")
	store.RecordTurn(context.Background(), "c2", session.RoleUser, "hola", "Luis")

	var body map[string]any
	resp, err := http.Post(srv.URL+"/api/broadcast", "application/json",
		strings.NewReader(`{"body":"aviso"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, float64(2), body["contacts"])
}

func TestProbe(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/probe")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	srv, _ = newTestServer(t, &fakeProbe{result: generator.ProbeResult{Success: true, Provider: "ollama", Response: "OK"}})
	var probe generator.ProbeResult
	resp = getJSON(t, srv.URL+"/api/probe", &probe)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, probe.Success)

	srv, _ = newTestServer(t, &fakeProbe{result: generator.ProbeResult{Success: false, Provider: "ollama", Error: "down"}})
	resp, err = http.Get(srv.URL + "/api/probe")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
