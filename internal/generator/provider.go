package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmarin/chatrelay/internal/observability/metrics"
	"github.com/dmarin/chatrelay/internal/session"
	"github.com/dmarin/chatrelay/pkg/logging"
)

// InvokeOptions tune a single backend call.
type InvokeOptions struct {
	Temperature float64
	MaxTokens   int
}

// Backend invokes a remote generation model. Implementations must surface
// timeouts as ErrBackendTimeout so callers can distinguish them.
type Backend interface {
	Name() string
	Invoke(ctx context.Context, systemPrompt, userPrompt string, opts InvokeOptions) (string, error)
}

// RequestShape selects how an HTTP provider expects its payload.
type RequestShape string

const (
	// ShapeOllama posts to /api/generate with a flattened prompt.
	ShapeOllama RequestShape = "ollama"
	// ShapeOpenAIChat posts to /v1/chat/completions with role messages.
	// Used by OpenAI and by OpenAI-compatible local servers (LM Studio).
	ShapeOpenAIChat RequestShape = "openai-chat"
)

// ProviderConfig is one entry of the provider table: a small configuration
// record consumed by the generic HTTP invocation routine. Adding a provider
// is a table edit, not new request-building code.
type ProviderConfig struct {
	Name        string
	Enabled     bool
	BaseURL     string
	Model       string
	APIKey      string
	Shape       RequestShape
	RequiresKey bool
}

// ProviderTable maps provider names to their configuration records.
type ProviderTable map[string]ProviderConfig

// Backend selects a provider by name and returns an invoker for it. The
// returned error wraps ErrBackendDisabled or ErrBackendUnconfigured so the
// caller can report why no backend is available.
func (t ProviderTable) Backend(name string, client *http.Client) (Backend, error) {
	cfg, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("generator: unknown provider %q: %w", name, ErrBackendUnconfigured)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("generator: provider %q: %w", name, ErrBackendDisabled)
	}
	if cfg.RequiresKey && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("generator: provider %q missing credential: %w", name, ErrBackendUnconfigured)
	}
	return NewHTTPBackend(cfg, client), nil
}

// HTTPBackend is the generic invocation routine shared by every HTTP
// provider; the request and response wire shapes come from the table entry.
type HTTPBackend struct {
	cfg    ProviderConfig
	client *http.Client
}

// NewHTTPBackend creates an invoker for one provider table entry.
func NewHTTPBackend(cfg ProviderConfig, client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{cfg: cfg, client: client}
}

func (b *HTTPBackend) Name() string {
	return b.cfg.Name
}

// Invoke performs one generation call against the provider.
func (b *HTTPBackend) Invoke(ctx context.Context, systemPrompt, userPrompt string, opts InvokeOptions) (string, error) {
	url, payload, err := b.buildRequest(systemPrompt, userPrompt, opts)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("generator: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("generator: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("generator: %s call: %w", b.cfg.Name, ErrBackendTimeout)
		}
		return "", fmt.Errorf("generator: %s call failed: %w", b.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generator: %s API error: status %d", b.cfg.Name, resp.StatusCode)
	}

	return b.decodeResponse(resp)
}

func (b *HTTPBackend) buildRequest(systemPrompt, userPrompt string, opts InvokeOptions) (string, any, error) {
	switch b.cfg.Shape {
	case ShapeOllama:
		return b.cfg.BaseURL + "/api/generate", map[string]any{
			"model":  b.cfg.Model,
			"prompt": fmt.Sprintf("%s\n\n%s\n\nBot:", systemPrompt, userPrompt),
			"stream": false,
			"options": map[string]any{
				"temperature": opts.Temperature,
				"num_predict": opts.MaxTokens,
			},
		}, nil
	case ShapeOpenAIChat:
		return b.cfg.BaseURL + "/v1/chat/completions", map[string]any{
			"model": b.cfg.Model,
			"messages": []map[string]string{
				{"role": "system", "content": systemPrompt},
				{"role": "user", "content": userPrompt},
			},
			"temperature": opts.Temperature,
			"max_tokens":  opts.MaxTokens,
		}, nil
	default:
		return "", nil, fmt.Errorf("generator: provider %q has unsupported shape %q: %w", b.cfg.Name, b.cfg.Shape, ErrBackendUnconfigured)
	}
}

func (b *HTTPBackend) decodeResponse(resp *http.Response) (string, error) {
	switch b.cfg.Shape {
	case ShapeOllama:
		var out struct {
			Response string `json:"response"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("generator: failed to decode %s response: %w", b.cfg.Name, err)
		}
		return strings.TrimSpace(out.Response), nil
	case ShapeOpenAIChat:
		var out struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("generator: failed to decode %s response: %w", b.cfg.Name, err)
		}
		if len(out.Choices) == 0 {
			return "", fmt.Errorf("generator: %s returned no choices", b.cfg.Name)
		}
		return strings.TrimSpace(out.Choices[0].Message.Content), nil
	default:
		return "", fmt.Errorf("generator: provider %q has unsupported shape %q", b.cfg.Name, b.cfg.Shape)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ProviderGenerator produces replies through a remote backend with response
// caching and local failure recovery.
type ProviderGenerator struct {
	backend        Backend
	personality    string
	cache          *responseCache
	cacheEnabled   bool
	timeout        time.Duration
	maxResponseLen int
	temperature    float64
	maxTokens      int
	logger         *logging.Logger
	metrics        *metrics.RelayMetrics
	tracer         trace.Tracer
}

// ProviderOption customizes a ProviderGenerator.
type ProviderOption func(*ProviderGenerator)

// WithPersonality selects the system-prompt personality.
func WithPersonality(name string) ProviderOption {
	return func(g *ProviderGenerator) {
		g.personality = name
	}
}

// WithCacheTTL sets the response cache TTL. A non-positive value keeps the
// default; use WithoutCache to disable caching.
func WithCacheTTL(ttl time.Duration) ProviderOption {
	return func(g *ProviderGenerator) {
		g.cache = newResponseCache(ttl)
	}
}

// WithoutCache disables response caching.
func WithoutCache() ProviderOption {
	return func(g *ProviderGenerator) {
		g.cacheEnabled = false
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) ProviderOption {
	return func(g *ProviderGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxResponseLength truncates post-processed replies beyond n runes.
func WithMaxResponseLength(n int) ProviderOption {
	return func(g *ProviderGenerator) {
		if n > 0 {
			g.maxResponseLen = n
		}
	}
}

// WithSampling sets the temperature and output token bound passed to the backend.
func WithSampling(temperature float64, maxTokens int) ProviderOption {
	return func(g *ProviderGenerator) {
		g.temperature = temperature
		if maxTokens > 0 {
			g.maxTokens = maxTokens
		}
	}
}

// WithMetrics attaches relay metrics.
func WithMetrics(m *metrics.RelayMetrics) ProviderOption {
	return func(g *ProviderGenerator) {
		g.metrics = m
	}
}

// NewProviderGenerator creates the remote-provider variant.
func NewProviderGenerator(backend Backend, logger *logging.Logger, opts ...ProviderOption) *ProviderGenerator {
	if backend == nil {
		panic("generator: backend cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	g := &ProviderGenerator{
		backend:        backend,
		personality:    PersonalityHelpful,
		cache:          newResponseCache(5 * time.Minute),
		cacheEnabled:   true,
		timeout:        30 * time.Second,
		maxResponseLen: 1000,
		temperature:    0.7,
		maxTokens:      500,
		logger:         logger,
		tracer:         otel.Tracer("chatrelay.internal.generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the backend's reply for the message, serving unexpired
// cached responses without a network call. Any backend failure is recovered
// into a fallback reply; the caller always receives deliverable text.
func (g *ProviderGenerator) Generate(ctx context.Context, message string, history []session.Turn, senderName string) string {
	key := fingerprint(message, history)
	if g.cacheEnabled {
		if cached, ok := g.cache.Get(key); ok {
			g.metrics.ObserveCache(true)
			g.logger.Debug("response served from cache", "backend", g.backend.Name())
			return cached
		}
		g.metrics.ObserveCache(false)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "generator.generate")
	span.SetAttributes(attribute.String("chatrelay.backend", g.backend.Name()))
	defer span.End()

	start := time.Now()
	raw, err := g.backend.Invoke(ctx,
		buildSystemPrompt(g.personality, senderName),
		buildUserPrompt(message, history, senderName),
		InvokeOptions{Temperature: g.temperature, MaxTokens: g.maxTokens},
	)
	g.metrics.ObserveGenerateLatency(g.backend.Name(), time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		g.logger.Warn("generation failed, using fallback",
			"backend", g.backend.Name(),
			"error", err,
		)
		return fallbackReply()
	}

	reply := postProcess(raw, g.maxResponseLen)
	if reply == "" {
		g.logger.Warn("backend returned empty response, using fallback", "backend", g.backend.Name())
		return fallbackReply()
	}

	if g.cacheEnabled {
		g.cache.Put(key, reply)
	}
	return reply
}

// TestConnection probes the backend with a trivial prompt.
func (g *ProviderGenerator) TestConnection(ctx context.Context) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	response, err := g.backend.Invoke(ctx,
		buildSystemPrompt(g.personality, "Test"),
		"Hola, responde solo con 'OK' si funcionas correctamente",
		InvokeOptions{Temperature: 0, MaxTokens: 10},
	)
	if err != nil {
		return ProbeResult{Success: false, Provider: g.backend.Name(), Error: err.Error()}
	}
	if len(response) > 100 {
		response = response[:100]
	}
	return ProbeResult{Success: true, Provider: g.backend.Name(), Response: response}
}

// RunCacheSweeper proactively removes expired cache entries until ctx is done.
func (g *ProviderGenerator) RunCacheSweeper(ctx context.Context, interval time.Duration) {
	if !g.cacheEnabled {
		return
	}
	g.cache.RunSweeper(ctx, interval)
}
