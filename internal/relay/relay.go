// Package relay wires inbound transport events through the session store,
// the response generator, and the delivery queue.
package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmarin/chatrelay/internal/delivery"
	"github.com/dmarin/chatrelay/internal/generator"
	"github.com/dmarin/chatrelay/internal/observability/metrics"
	"github.com/dmarin/chatrelay/internal/session"
	"github.com/dmarin/chatrelay/pkg/logging"
)

// InboundMessage is one event received from the transport.
type InboundMessage struct {
	ContactID  string
	Text       string
	SenderName string
	IsGroup    bool
}

// Event is a relay activity record published to subscribers.
type Event struct {
	Kind      string    `json:"kind"`
	ContactID string    `json:"contact_id,omitempty"`
	Body      string    `json:"body,omitempty"`
	At        time.Time `json:"at"`
}

const (
	EventInbound = "inbound"
	EventReply   = "reply"
	EventDropped = "dropped"
)

// EventSink receives relay activity events. Publish must not block.
type EventSink interface {
	Publish(event Event)
}

// Relay is the inbound message pipeline.
type Relay struct {
	store         *session.Store
	gen           generator.Generator
	queue         *delivery.Queue
	logger        *logging.Logger
	metrics       *metrics.RelayMetrics
	events        EventSink
	generatorName string
	botName       string
}

// New creates the pipeline. generatorName labels replies in metrics and the
// status API ("pattern", "ollama", "gemini", ...).
func New(store *session.Store, gen generator.Generator, queue *delivery.Queue, logger *logging.Logger) *Relay {
	if logger == nil {
		logger = logging.Default()
	}
	return &Relay{
		store:         store,
		gen:           gen,
		queue:         queue,
		logger:        logger,
		generatorName: "pattern",
		botName:       "Bot",
	}
}

// WithGeneratorName sets the reply source label.
func (r *Relay) WithGeneratorName(name string) *Relay {
	if name != "" {
		r.generatorName = name
	}
	return r
}

// WithBotName sets the display name recorded on assistant turns.
func (r *Relay) WithBotName(name string) *Relay {
	if name != "" {
		r.botName = name
	}
	return r
}

// WithMetrics attaches relay metrics.
func (r *Relay) WithMetrics(m *metrics.RelayMetrics) *Relay {
	r.metrics = m
	return r
}

// WithEvents attaches an activity event sink.
func (r *Relay) WithEvents(sink EventSink) *Relay {
	r.events = sink
	return r
}

// HandleInbound runs one message through the pipeline and returns the reply
// text that was enqueued, or "" when the message was filtered out.
func (r *Relay) HandleInbound(ctx context.Context, msg InboundMessage) (string, error) {
	if msg.IsGroup {
		r.metrics.ObserveInbound("group")
		r.logger.Debug("ignoring group message", "contact_id", msg.ContactID)
		return "", nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		r.metrics.ObserveInbound("empty")
		return "", nil
	}

	r.publish(Event{Kind: EventInbound, ContactID: msg.ContactID, Body: text, At: time.Now().UTC()})

	if strings.HasPrefix(text, "/") {
		return r.handleCommand(ctx, msg.ContactID, text)
	}

	r.metrics.ObserveInbound("message")

	// History is captured before the user turn is recorded so the generator
	// sees only prior turns alongside the current message.
	history := r.store.History(msg.ContactID)
	r.store.RecordTurn(ctx, msg.ContactID, session.RoleUser, text, msg.SenderName)

	reply := r.gen.Generate(ctx, text, history, msg.SenderName)
	r.metrics.ObserveReply(r.generatorName)

	r.store.RecordTurn(ctx, msg.ContactID, session.RoleAssistant, reply, r.botName)

	if err := r.queue.Enqueue(msg.ContactID, reply, delivery.PriorityNormal); err != nil {
		r.logger.Error("failed to enqueue reply", "contact_id", msg.ContactID, "error", err)
		return "", fmt.Errorf("relay: enqueue reply: %w", err)
	}

	r.publish(Event{Kind: EventReply, ContactID: msg.ContactID, Body: reply, At: time.Now().UTC()})
	return reply, nil
}

// handleCommand answers operational commands directly, bypassing generation.
// Command replies go out high priority and are not recorded in the session.
func (r *Relay) handleCommand(ctx context.Context, contactID, text string) (string, error) {
	r.metrics.ObserveInbound("command")

	var reply string
	switch strings.ToLower(strings.Fields(text)[0]) {
	case "/status":
		stats, ok := r.store.SessionStats(contactID)
		if !ok {
			reply = "Aún no tenemos una conversación registrada."
			break
		}
		reply = fmt.Sprintf(
			"Conversación activa desde %s. Mensajes: %d (en memoria: %d). Estado de ánimo: %s. Temas: %s.",
			stats.CreatedAt.Format("02/01/2006"),
			stats.TotalMessages,
			stats.TurnsInMemory,
			stats.Mood,
			formatList(stats.Topics),
		)
	case "/contacts":
		contacts := r.store.Contacts()
		reply = fmt.Sprintf("Contactos con sesión activa: %d. %s", len(contacts), formatList(contacts))
	case "/clear":
		if r.store.Clear(ctx, contactID) {
			reply = "Listo, borré nuestro historial de conversación."
		} else {
			reply = "No había historial que borrar."
		}
	default:
		reply = "Comandos disponibles: /status, /contacts, /clear"
	}

	if err := r.queue.Enqueue(contactID, reply, delivery.PriorityHigh); err != nil {
		return "", fmt.Errorf("relay: enqueue command reply: %w", err)
	}
	return reply, nil
}

// Broadcast enqueues text for every known contact and returns how many
// messages were queued.
func (r *Relay) Broadcast(ctx context.Context, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, delivery.ErrInvalidMessage
	}
	queued := 0
	for _, contactID := range r.store.Contacts() {
		if err := r.queue.Enqueue(contactID, text, delivery.PriorityNormal); err != nil {
			r.logger.Error("broadcast enqueue failed", "contact_id", contactID, "error", err)
			continue
		}
		queued++
	}
	r.logger.Info("broadcast queued", "contacts", queued)
	return queued, nil
}

// ReportDrop publishes a delivery-failure event. Wire it as the queue's drop
// handler.
func (r *Relay) ReportDrop(msg delivery.OutboundMessage, err error) {
	r.publish(Event{Kind: EventDropped, ContactID: msg.Target, Body: msg.Body, At: time.Now().UTC()})
}

// GeneratorName reports the reply source label.
func (r *Relay) GeneratorName() string {
	return r.generatorName
}

func (r *Relay) publish(event Event) {
	if r.events != nil {
		r.events.Publish(event)
	}
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "ninguno"
	}
	return strings.Join(items, ", ")
}
