package session

import "strings"

var (
	positiveCues = []string{"gracias", "excelente", "perfecto", "genial", "bueno"}
	negativeCues = []string{"problema", "error", "mal", "terrible", "queja"}
)

// topicKeywords maps a topic tag to the cue words that signal it.
var topicKeywords = map[string][]string{
	"tecnologia":      {"programar", "código", "codigo", "software", "app", "web", "tecnología", "tecnologia"},
	"salud":           {"medicina", "doctor", "salud", "enfermedad", "tratamiento"},
	"negocio":         {"empresa", "negocio", "trabajo", "dinero", "vender"},
	"educacion":       {"estudiar", "aprender", "curso", "educación", "educacion", "escuela"},
	"entretenimiento": {"juego", "película", "pelicula", "música", "musica", "diversión", "diversion"},
}

// analyzeMood classifies a single turn's content. Last write wins at the
// session level, so only the newest turn matters.
func analyzeMood(content string) Mood {
	content = strings.ToLower(content)
	for _, cue := range positiveCues {
		if strings.Contains(content, cue) {
			return MoodPositive
		}
	}
	for _, cue := range negativeCues {
		if strings.Contains(content, cue) {
			return MoodNegative
		}
	}
	return MoodNeutral
}

// extractTopics returns every topic whose keywords appear in the content.
func extractTopics(content string) []string {
	content = strings.ToLower(content)
	var topics []string
	for topic, words := range topicKeywords {
		for _, word := range words {
			if strings.Contains(content, word) {
				topics = append(topics, topic)
				break
			}
		}
	}
	return topics
}

// mergeTopics unions new topics into the existing list, most recent last,
// keeping at most max entries by dropping the oldest.
func mergeTopics(existing, incoming []string, max int) []string {
	merged := existing
	for _, topic := range incoming {
		found := false
		for i, t := range merged {
			if t == topic {
				// Re-seen topics move to the most-recent position.
				merged = append(append(merged[:i:i], merged[i+1:]...), topic)
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, topic)
		}
	}
	if len(merged) > max {
		merged = merged[len(merged)-max:]
	}
	return merged
}
