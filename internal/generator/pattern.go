package generator

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dmarin/chatrelay/internal/session"
	"github.com/dmarin/chatrelay/pkg/logging"
)

const defaultSenderName = "Usuario"

// category is one classification bucket with its trigger and reply templates.
type category struct {
	name      string
	pattern   *regexp.Regexp
	templates []string
}

// Ordered: first match wins; "general" is the fallback when nothing matches.
var categories = []category{
	{
		name:    "greeting",
		pattern: regexp.MustCompile(`(?i)\b(hola|hello|hi|buenas|saludos|que tal)\b`),
		templates: []string{
			"¡Hola! ¿Cómo puedo ayudarte hoy?",
			"¡Hola! ¿En qué te puedo asistir?",
			"¡Saludos! ¿Qué necesitas?",
			"¡Hola! ¿Cómo estás? ¿En qué te puedo ayudar?",
		},
	},
	{
		name:    "question",
		pattern: regexp.MustCompile(`(?i)\b(qué|que|como|cómo|cuando|cuándo|donde|dónde|por qué|porque)\b`),
		templates: []string{
			"Esa es una buena pregunta. Déjame pensarlo...",
			"Interesante pregunta. Mi opinión es que...",
			"Hmm, sobre eso puedo decirte que...",
			"Es un tema complejo, pero creo que...",
		},
	},
	{
		name:    "thanks",
		pattern: regexp.MustCompile(`(?i)\b(gracias|thank you|thanks|muchas gracias)\b`),
		templates: []string{
			"¡De nada! Siempre es un placer ayudar.",
			"¡No hay problema! Estoy aquí para ayudarte.",
			"¡Con gusto! ¿Necesitas algo más?",
			"¡Perfecto! Me alegra poder ayudarte.",
		},
	},
	{
		name:    "farewell",
		pattern: regexp.MustCompile(`(?i)\b(adiós|adios|bye|nos vemos|hasta luego|chao)\b`),
		templates: []string{
			"¡Hasta pronto! Que tengas un buen día.",
			"¡Nos vemos! Cuídate mucho.",
			"¡Adiós! Siempre puedes escribirme cuando necesites ayuda.",
			"¡Hasta la vista! Que todo te vaya muy bien.",
		},
	},
	{
		name: "general",
		templates: []string{
			"Entiendo lo que me dices. ¿Podrías darme más detalles?",
			"Eso suena interesante. Cuéntame más al respecto.",
			"Comprendo. ¿Hay algo específico en lo que te pueda ayudar?",
			"Me parece bien. ¿Necesitas ayuda con algo más?",
		},
	},
}

// override is a keyword-triggered canned answer checked before classification.
type override struct {
	keywords []string
	response string
}

var defaultOverrides = []override{
	{
		keywords: []string{"programacion", "programación", "código", "codigo", "programming"},
		response: "¡Me encanta la programación! ¿En qué lenguaje estás trabajando? Puedo ayudarte con dudas sobre desarrollo.",
	},
	{
		keywords: []string{"whatsapp", "bot"},
		response: "¡Exacto! Soy un bot creado para ayudarte. Puedo mantener conversaciones y responder a tus preguntas.",
	},
	{
		keywords: []string{"tiempo", "clima"},
		response: "No tengo acceso a datos del tiempo en tiempo real, pero te recomiendo revisar una app del clima local.",
	},
	{
		keywords: []string{"ayuda", "help"},
		response: "¡Por supuesto que te ayudo! Puedes preguntarme lo que necesites. También puedes usar comandos como /status para ver información del bot.",
	},
	{
		keywords: []string{"nombre", "como te llamas"},
		response: "Soy tu asistente virtual. ¡Es un placer conocerte!",
	},
}

// PatternGenerator is the dependency-free generation backend: it classifies
// inbound text with ordered regex categories and answers from fixed templates.
type PatternGenerator struct {
	overrides []override
	logger    *logging.Logger

	mu          sync.Mutex
	rng         *rand.Rand
	lastReplies map[string]string // sender name -> previous reply
}

// PatternOption customizes a PatternGenerator.
type PatternOption func(*PatternGenerator)

// WithRand injects a deterministic random source.
func WithRand(rng *rand.Rand) PatternOption {
	return func(g *PatternGenerator) {
		g.rng = rng
	}
}

// WithOverride registers an extra keyword-triggered canned answer.
func WithOverride(keywords []string, response string) PatternOption {
	return func(g *PatternGenerator) {
		g.overrides = append(g.overrides, override{keywords: keywords, response: response})
	}
}

// NewPatternGenerator creates the pattern-matcher variant.
func NewPatternGenerator(logger *logging.Logger, opts ...PatternOption) *PatternGenerator {
	if logger == nil {
		logger = logging.Default()
	}
	g := &PatternGenerator{
		overrides:   append([]override(nil), defaultOverrides...),
		logger:      logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		lastReplies: make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate classifies the message and picks a reply template, personalizing
// with the sender's name about 30% of the time. It never returns the same
// literal reply to a sender twice in a row.
func (g *PatternGenerator) Generate(_ context.Context, message string, history []session.Turn, senderName string) string {
	text := strings.ToLower(strings.TrimSpace(message))

	g.mu.Lock()
	defer g.mu.Unlock()

	if reply, ok := g.contextualReply(text, history); ok {
		g.lastReplies[senderName] = reply
		return reply
	}

	cat := classify(text)
	idx := g.rng.Intn(len(cat.templates))
	reply := g.personalize(cat.templates[idx], senderName)

	if reply == g.lastReplies[senderName] {
		// Reselect uniformly from the remaining templates of the category.
		alt := g.rng.Intn(len(cat.templates) - 1)
		if alt >= idx {
			alt++
		}
		reply = g.personalize(cat.templates[alt], senderName)
	}

	g.lastReplies[senderName] = reply
	return reply
}

// contextualReply handles keyword overrides and short yes/no follow-ups.
func (g *PatternGenerator) contextualReply(text string, history []session.Turn) (string, bool) {
	for _, ov := range g.overrides {
		for _, kw := range ov.keywords {
			if strings.Contains(text, kw) {
				return ov.response, true
			}
		}
	}

	if len(history) > 0 && history[len(history)-1].Role == session.RoleAssistant {
		switch {
		case text == "si" || text == "sí" || text == "ok":
			return "¡Perfecto! ¿En qué más te puedo ayudar?", true
		case text == "no":
			return "Entiendo. ¿Hay algo más en lo que pueda asistirte?", true
		}
	}
	return "", false
}

func classify(text string) category {
	for _, cat := range categories {
		if cat.pattern != nil && cat.pattern.MatchString(text) {
			return cat
		}
	}
	return categories[len(categories)-1]
}

// personalize appends the sender's name at a sentence boundary with ~30%
// probability. Callers must hold g.mu.
func (g *PatternGenerator) personalize(reply, senderName string) string {
	if g.rng.Float64() >= 0.3 || senderName == "" || senderName == defaultSenderName {
		return reply
	}

	insertions := []string{
		fmt.Sprintf(", %s", senderName),
		fmt.Sprintf(" %s", senderName),
		fmt.Sprintf(". ¿Verdad, %s?", senderName),
	}
	insertion := insertions[g.rng.Intn(len(insertions))]

	if strings.HasSuffix(reply, ".") || strings.HasSuffix(reply, "!") || strings.HasSuffix(reply, "?") {
		return reply[:len(reply)-1] + insertion + reply[len(reply)-1:]
	}
	return reply + insertion
}
