package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmarin/chatrelay/internal/delivery"
	"github.com/dmarin/chatrelay/internal/generator"
	"github.com/dmarin/chatrelay/internal/relay"
	"github.com/dmarin/chatrelay/internal/session"
	"github.com/dmarin/chatrelay/pkg/logging"
)

// StatusHandler serves the operational API for the relay.
type StatusHandler struct {
	store        *session.Store
	queue        *delivery.Queue
	relay        *relay.Relay
	probe        generator.ConnectionTester
	logger       *logging.Logger
	activeWindow time.Duration
	startedAt    time.Time
}

// NewStatusHandler wires the operational API. probe may be nil when the
// active generator has no remote backend.
func NewStatusHandler(store *session.Store, queue *delivery.Queue, rly *relay.Relay, probe generator.ConnectionTester, logger *logging.Logger) *StatusHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatusHandler{
		store:        store,
		queue:        queue,
		relay:        rly,
		probe:        probe,
		logger:       logger,
		activeWindow: time.Hour,
		startedAt:    time.Now().UTC(),
	}
}

// GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime_s":  int(time.Since(h.startedAt).Seconds()),
		"generator": h.relay.GeneratorName(),
	})
}

// GET /api/stats
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":  h.store.AllStats(h.activeWindow),
		"queue":     h.queue.Stats(),
		"generator": h.relay.GeneratorName(),
	})
}

// GET /api/search?q=
func (h *StatusHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing query parameter q", http.StatusBadRequest)
		return
	}
	results := h.store.Search(query)
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// GET /api/sessions/{contactID}/export
func (h *StatusHandler) Export(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")
	export, ok := h.store.ExportSession(contactID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

type inboundRequest struct {
	ContactID  string `json:"contact_id"`
	Text       string `json:"text"`
	SenderName string `json:"sender_name"`
	IsGroup    bool   `json:"is_group"`
}

// POST /webhooks/inbound receives transport events and runs them through the
// relay pipeline.
func (h *StatusHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ContactID == "" {
		http.Error(w, "missing contact_id", http.StatusBadRequest)
		return
	}
	reply, err := h.relay.HandleInbound(r.Context(), relay.InboundMessage{
		ContactID:  req.ContactID,
		Text:       req.Text,
		SenderName: req.SenderName,
		IsGroup:    req.IsGroup,
	})
	if err != nil {
		h.logger.Error("inbound webhook failed", "contact_id", req.ContactID, "error", err)
		http.Error(w, "failed to process message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed", "reply": reply})
}

type sendRequest struct {
	Target   string `json:"target"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
}

// POST /api/send
func (h *StatusHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Target == "" {
		http.Error(w, "missing target", http.StatusBadRequest)
		return
	}
	priority := delivery.PriorityNormal
	if req.Priority == string(delivery.PriorityHigh) {
		priority = delivery.PriorityHigh
	}
	if err := h.queue.Enqueue(req.Target, req.Body, priority); err != nil {
		if errors.Is(err, delivery.ErrInvalidMessage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type broadcastRequest struct {
	Body string `json:"body"`
}

// POST /api/broadcast
func (h *StatusHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	queued, err := h.relay.Broadcast(r.Context(), req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "contacts": queued})
}

// GET /api/probe
func (h *StatusHandler) Probe(w http.ResponseWriter, r *http.Request) {
	if h.probe == nil {
		http.Error(w, "active generator has no remote backend", http.StatusNotFound)
		return
	}
	result := h.probe.TestConnection(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
