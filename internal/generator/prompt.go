package generator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dmarin/chatrelay/internal/session"
)

const transcriptHistoryDepth = 6

// Personality names accepted by WithPersonality.
const (
	PersonalityHelpful      = "helpful"
	PersonalityCasual       = "casual"
	PersonalityProfessional = "professional"
	PersonalityFunny        = "funny"
)

var personalities = map[string]string{
	PersonalityHelpful:      "Eres un asistente inteligente y útil. Responde de manera clara, concisa y servicial.",
	PersonalityCasual:       "Eres un amigo virtual relajado y casual. Usa un lenguaje informal y natural. Sé amigable pero no demasiado efusivo.",
	PersonalityProfessional: "Eres un asistente profesional y cortés. Mantén un tono formal pero cálido. Proporciona respuestas precisas y bien estructuradas.",
	PersonalityFunny:        "Eres un asistente con buen sentido del humor. Incluye humor apropiado en tus respuestas cuando sea natural hacerlo.",
}

// buildSystemPrompt assembles the fixed instruction template for the selected
// personality. Unknown personalities fall back to helpful.
func buildSystemPrompt(personality, senderName string) string {
	base, ok := personalities[personality]
	if !ok {
		base = personalities[PersonalityHelpful]
	}

	return fmt.Sprintf(`%s

Instrucciones importantes:
- Responde siempre en español
- Mantén las respuestas cortas (máximo 2-3 párrafos)
- Sé natural y conversacional
- Si no sabes algo, admítelo honestamente
- No generes contenido inapropiado o dañino
- El usuario se llama %s
- Estás conversando por un chat de mensajería, así que adapta tu estilo`, base, senderName)
}

// buildUserPrompt serializes the recent history as a transcript followed by
// the new inbound message.
func buildUserPrompt(message string, history []session.Turn, senderName string) string {
	var b strings.Builder

	start := len(history) - transcriptHistoryDepth
	if start < 0 {
		start = 0
	}
	if len(history) > 0 {
		b.WriteString("Historial de conversación:\n")
		for _, turn := range history[start:] {
			name := "Bot"
			if turn.Role == session.RoleUser {
				name = turn.SenderName
				if name == "" {
					name = defaultSenderName
				}
			}
			fmt.Fprintf(&b, "%s: %s\n", name, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s: %s", senderName, message)
	return b.String()
}

var (
	leadingRoleLabel = regexp.MustCompile(`^(?i)(bot|asistente|assistant):\s*`)
	repeatedNewlines = regexp.MustCompile(`\n{2,}`)
)

const truncationMarker = "..."

// postProcess normalizes a raw backend response: trims whitespace, strips an
// echoed role label, collapses blank lines, and truncates to maxLen runes.
func postProcess(response string, maxLen int) string {
	response = strings.TrimSpace(response)
	response = leadingRoleLabel.ReplaceAllString(response, "")
	response = repeatedNewlines.ReplaceAllString(response, "\n")

	if maxLen > 0 {
		runes := []rune(response)
		if len(runes) > maxLen {
			response = string(runes[:maxLen-len(truncationMarker)]) + truncationMarker
		}
	}
	return response
}
