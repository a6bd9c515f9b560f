package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiBackend implements Backend using Google's Gemini API. Unlike the
// HTTP providers it speaks through the official SDK, but it plugs into the
// same provider selection and post-processing path.
type GeminiBackend struct {
	client  *genai.Client
	modelID string
}

// NewGeminiBackend creates a Gemini-backed invoker.
func NewGeminiBackend(ctx context.Context, apiKey, modelID string) (*GeminiBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("generator: gemini api key is required: %w", ErrBackendUnconfigured)
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("generator: failed to create gemini client: %w", err)
	}

	return &GeminiBackend{
		client:  client,
		modelID: modelID,
	}, nil
}

func (b *GeminiBackend) Name() string {
	return "gemini"
}

// Invoke sends one generation request to Gemini.
func (b *GeminiBackend) Invoke(ctx context.Context, systemPrompt, userPrompt string, opts InvokeOptions) (string, error) {
	model := b.client.GenerativeModel(b.modelID)

	if opts.Temperature >= 0 {
		model.SetTemperature(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if strings.TrimSpace(systemPrompt) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("generator: gemini call: %w", ErrBackendTimeout)
		}
		return "", fmt.Errorf("generator: gemini call failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("generator: gemini returned no candidates")
	}

	var b2 strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b2.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b2.String()), nil
}

// Close releases the underlying client.
func (b *GeminiBackend) Close() error {
	return b.client.Close()
}
