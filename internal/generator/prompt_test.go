package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmarin/chatrelay/internal/session"
)

func TestBuildSystemPromptPersonalities(t *testing.T) {
	casual := buildSystemPrompt(PersonalityCasual, "Ana")
	assert.Contains(t, casual, "relajado")
	assert.Contains(t, casual, "Ana")

	unknown := buildSystemPrompt("piratesco", "Ana")
	assert.Contains(t, unknown, "útil", "unknown personality falls back to helpful")
}

func TestBuildUserPromptIncludesLastSixTurns(t *testing.T) {
	var history []session.Turn
	for _, content := range []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7"} {
		history = append(history, session.Turn{Role: session.RoleUser, Content: content, SenderName: "Ana"})
	}

	prompt := buildUserPrompt("nuevo", history, "Ana")
	assert.NotContains(t, prompt, "t1", "only the last six turns are serialized")
	assert.Contains(t, prompt, "t2")
	assert.Contains(t, prompt, "t7")
	assert.True(t, strings.HasSuffix(prompt, "Ana: nuevo"))
}

func TestBuildUserPromptLabelsRoles(t *testing.T) {
	history := []session.Turn{
		{Role: session.RoleUser, Content: "hola", SenderName: "Ana"},
		{Role: session.RoleAssistant, Content: "buenas", SenderName: "Bot"},
	}

	prompt := buildUserPrompt("sigues ahí?", history, "Ana")
	assert.Contains(t, prompt, "Ana: hola")
	assert.Contains(t, prompt, "Bot: buenas")
}

func TestBuildUserPromptNoHistory(t *testing.T) {
	prompt := buildUserPrompt("hola", nil, "Ana")
	assert.Equal(t, "Ana: hola", prompt)
}

func TestPostProcess(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"trims whitespace", "  hola  \n", 100, "hola"},
		{"strips role label", "Bot: hola", 100, "hola"},
		{"strips role label case-insensitive", "bot:   hola", 100, "hola"},
		{"collapses newlines", "a\n\n\nb", 100, "a\nb"},
		{"keeps single newlines", "a\nb", 100, "a\nb"},
		{"no truncation under limit", "corto", 100, "corto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, postProcess(tt.in, tt.maxLen))
		})
	}
}

func TestPostProcessTruncates(t *testing.T) {
	long := strings.Repeat("á", 50)
	got := postProcess(long, 20)

	assert.True(t, strings.HasSuffix(got, truncationMarker))
	assert.Len(t, []rune(got), 20)
}
