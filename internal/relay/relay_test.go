package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarin/chatrelay/internal/delivery"
	"github.com/dmarin/chatrelay/internal/session"
)

type fixedGenerator struct {
	reply string

	mu          sync.Mutex
	lastMessage string
	lastHistory []session.Turn
}

func (g *fixedGenerator) Generate(ctx context.Context, message string, history []session.Turn, senderName string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastMessage = message
	g.lastHistory = history
	return g.reply
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []string
}

func (t *recordingTransport) Send(ctx context.Context, target, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, body)
	return nil
}

func (t *recordingTransport) sentBodies() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func newTestRelay(t *testing.T, gen *fixedGenerator) (*Relay, *session.Store, *recordingTransport) {
	t.Helper()
	store := session.NewStore(context.Background(), nil, nil)
	transport := &recordingTransport{}
	queue := delivery.NewQueue(transport, nil).
		WithMessageDelay(time.Millisecond).
		WithRetryDelay(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go queue.Run(ctx)

	return New(store, gen, queue, nil), store, transport
}

func TestHandleInboundRecordsAndReplies(t *testing.T) {
	gen := &fixedGenerator{reply: "¡Hola Ana!"}
	r, store, transport := newTestRelay(t, gen)

	reply, err := r.HandleInbound(context.Background(), InboundMessage{
		ContactID:  "contact-1",
		Text:       "hola",
		SenderName: "Ana",
	})
	require.NoError(t, err)
	assert.Equal(t, "¡Hola Ana!", reply)

	turns := store.History("contact-1")
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "hola", turns[0].Content)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, "¡Hola Ana!", turns[1].Content)
	assert.Equal(t, "Bot", turns[1].SenderName)

	require.Eventually(t, func() bool {
		return len(transport.sentBodies()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"¡Hola Ana!"}, transport.sentBodies())
}

func TestHandleInboundPassesPriorHistoryOnly(t *testing.T) {
	gen := &fixedGenerator{reply: "respuesta"}
	r, _, _ := newTestRelay(t, gen)
	ctx := context.Background()

	_, err := r.HandleInbound(ctx, InboundMessage{ContactID: "c", Text: "primero", SenderName: "Ana"})
	require.NoError(t, err)
	assert.Empty(t, gen.lastHistory, "first message sees no history")

	_, err = r.HandleInbound(ctx, InboundMessage{ContactID: "c", Text: "segundo", SenderName: "Ana"})
	require.NoError(t, err)
	require.Len(t, gen.lastHistory, 2)
	assert.Equal(t, "primero", gen.lastHistory[0].Content)
	assert.Equal(t, "segundo", gen.lastMessage)
}

func TestHandleInboundFiltersGroupsAndEmpty(t *testing.T) {
	gen := &fixedGenerator{reply: "respuesta"}
	r, store, _ := newTestRelay(t, gen)
	ctx := context.Background()

	reply, err := r.HandleInbound(ctx, InboundMessage{ContactID: "g", Text: "hola", IsGroup: true})
	require.NoError(t, err)
	assert.Empty(t, reply)

	reply, err = r.HandleInbound(ctx, InboundMessage{ContactID: "c", Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, reply)

	assert.Empty(t, store.Contacts())
}

func TestCommandsBypassGeneration(t *testing.T) {
	gen := &fixedGenerator{reply: "no debería usarse"}
	r, store, transport := newTestRelay(t, gen)
	ctx := context.Background()

	_, err := r.HandleInbound(ctx, InboundMessage{ContactID: "c", Text: "hola", SenderName: "Ana"})
	require.NoError(t, err)

	reply, err := r.HandleInbound(ctx, InboundMessage{ContactID: "c", Text: "/status", SenderName: "Ana"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Mensajes: 2")

	reply, err = r.HandleInbound(ctx, InboundMessage{ContactID: "c", Text: "/contacts", SenderName: "Ana"})
	require.NoError(t, err)
	assert.Contains(t, reply, "1")
	assert.Contains(t, reply, "c")

	reply, err = r.HandleInbound(ctx, InboundMessage{ContactID: "c", Text: "/clear", SenderName: "Ana"})
	require.NoError(t, err)
	assert.Contains(t, reply, "borré")
	assert.Empty(t, store.History("c"))

	reply, err = r.HandleInbound(ctx, InboundMessage{ContactID: "c", Text: "/status", SenderName: "Ana"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Aún no tenemos")

	reply, err = r.HandleInbound(ctx, InboundMessage{ContactID: "c", Text: "/desconocido", SenderName: "Ana"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Comandos disponibles")

	// Command replies are delivered but never recorded as turns.
	assert.Empty(t, store.History("c"))
	require.Eventually(t, func() bool {
		return len(transport.sentBodies()) >= 5
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcast(t *testing.T) {
	gen := &fixedGenerator{reply: "respuesta"}
	r, _, transport := newTestRelay(t, gen)
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := r.HandleInbound(ctx, InboundMessage{ContactID: id, Text: "hola", SenderName: "Ana"})
		require.NoError(t, err)
	}

	queued, err := r.Broadcast(ctx, "aviso para todos")
	require.NoError(t, err)
	assert.Equal(t, 3, queued)

	require.Eventually(t, func() bool {
		count := 0
		for _, body := range transport.sentBodies() {
			if body == "aviso para todos" {
				count++
			}
		}
		return count == 3
	}, time.Second, 5*time.Millisecond)

	_, err = r.Broadcast(ctx, "  ")
	assert.ErrorIs(t, err, delivery.ErrInvalidMessage)
}

func TestEventsPublished(t *testing.T) {
	gen := &fixedGenerator{reply: "respuesta"}
	r, _, _ := newTestRelay(t, gen)
	sink := &recordingSink{}
	r.WithEvents(sink)

	_, err := r.HandleInbound(context.Background(), InboundMessage{ContactID: "c", Text: "hola", SenderName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, []string{EventInbound, EventReply}, sink.kinds())

	r.ReportDrop(delivery.OutboundMessage{Target: "c", Body: "perdido"}, assert.AnError)
	assert.Equal(t, []string{EventInbound, EventReply, EventDropped}, sink.kinds())
}
