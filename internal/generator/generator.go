// Package generator produces replies for inbound messages, either from a
// local pattern matcher or from a remote generation backend. Generation
// never fails: any internal error degrades to a canned apology so the
// pipeline always has a deliverable reply.
package generator

import (
	"context"
	"errors"
	"math/rand"

	"github.com/dmarin/chatrelay/internal/session"
)

// Generation failure conditions. All of them are recovered locally into a
// fallback reply and never reach the transport layer.
var (
	ErrBackendDisabled     = errors.New("generator: backend is disabled")
	ErrBackendUnconfigured = errors.New("generator: backend is not configured")
	ErrBackendTimeout      = errors.New("generator: backend timed out")
)

// Generator produces a reply for an inbound message.
type Generator interface {
	Generate(ctx context.Context, message string, history []session.Turn, senderName string) string
}

// ConnectionTester is implemented by generators that can probe their backend.
type ConnectionTester interface {
	TestConnection(ctx context.Context) ProbeResult
}

// ProbeResult reports a backend self-test.
type ProbeResult struct {
	Success  bool   `json:"success"`
	Provider string `json:"provider"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

var fallbackPool = []string{
	"Disculpa, tengo problemas para procesar tu mensaje en este momento. ¿Podrías intentar de nuevo?",
	"Lo siento, mi sistema está experimentando dificultades. ¿Puedes reformular tu pregunta?",
	"Ups, algo salió mal con mi respuesta automática. ¿Podrías intentar nuevamente?",
	"Disculpa la demora, estoy teniendo problemas técnicos. ¿Puedes repetir tu consulta?",
}

// fallbackReply picks a canned apology pseudo-randomly from the fixed pool.
func fallbackReply() string {
	return fallbackPool[rand.Intn(len(fallbackPool))]
}
