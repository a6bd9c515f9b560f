package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/dmarin/chatrelay/internal/api/router"
	"github.com/dmarin/chatrelay/internal/config"
	"github.com/dmarin/chatrelay/internal/delivery"
	"github.com/dmarin/chatrelay/internal/generator"
	"github.com/dmarin/chatrelay/internal/live"
	"github.com/dmarin/chatrelay/internal/observability/metrics"
	"github.com/dmarin/chatrelay/internal/relay"
	"github.com/dmarin/chatrelay/internal/session"
	"github.com/dmarin/chatrelay/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting chatrelay",
		"env", cfg.Env,
		"port", cfg.Port,
		"provider", cfg.AIProvider,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relayMetrics := metrics.NewRelayMetrics(nil)

	persister := buildPersister(cfg, logger)
	store := session.NewStore(ctx, persister, logger, session.WithMaxTurns(cfg.MaxTurns))
	go store.RunJanitor(ctx, cfg.SweepInterval, cfg.IdleTimeout)

	gen, probe, err := buildGenerator(ctx, cfg, logger, relayMetrics)
	if err != nil {
		logger.Error("failed to initialize generator", "provider", cfg.AIProvider, "error", err)
		os.Exit(1)
	}

	var transport delivery.Transport
	if cfg.OutboundWebhookURL != "" {
		transport = delivery.NewWebhookTransport(cfg.OutboundWebhookURL, nil)
	} else {
		logger.Warn("no outbound webhook configured, replies will only be logged")
		transport = delivery.NewLogTransport(logger)
	}

	queue := delivery.NewQueue(transport, logger).
		WithMessageDelay(cfg.MessageDelay).
		WithRetryDelay(cfg.RetryDelay).
		WithMaxAttempts(cfg.MaxSendAttempts).
		WithMaxBodyLength(cfg.MaxMessageLength).
		WithMetrics(relayMetrics)

	hub := live.NewHub(logger)
	rly := relay.New(store, gen, queue, logger).
		WithGeneratorName(cfg.AIProvider).
		WithBotName(cfg.BotName).
		WithMetrics(relayMetrics).
		WithEvents(hub)
	queue.WithDropHandler(rly.ReportDrop)

	queueDone := make(chan struct{})
	go func() {
		queue.Run(ctx)
		close(queueDone)
	}()

	handler := router.New(&router.Config{
		Logger:         logger,
		Status:         router.NewStatusHandler(store, queue, rly, probe, logger),
		MetricsHandler: promhttp.Handler(),
		LiveHandler:    hub.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	// Stops the janitor and closes the queue; the queue finishes delivering
	// what is already enqueued before Run returns.
	cancel()
	select {
	case <-queueDone:
	case <-time.After(30 * time.Second):
		logger.Warn("queue did not drain in time")
	}
	logger.Info("shutdown complete")
}

func buildPersister(cfg *config.Config, logger *logging.Logger) session.Persister {
	if cfg.RedisAddr == "" {
		logger.Info("using file persistence", "path", cfg.SessionFile)
		return session.NewFilePersister(cfg.SessionFile)
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	logger.Info("using redis persistence", "addr", cfg.RedisAddr)
	client := redis.NewClient(opts)
	return session.NewRedisPersister(client, cfg.IdleTimeout, otel.Tracer("chatrelay.internal.session"))
}

// buildGenerator returns the configured generator and, for remote providers,
// a connection prober for the status API.
func buildGenerator(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.RelayMetrics) (generator.Generator, generator.ConnectionTester, error) {
	if cfg.AIProvider == "pattern" {
		return generator.NewPatternGenerator(logger), nil, nil
	}

	var backend generator.Backend
	var err error
	if cfg.AIProvider == "gemini" {
		backend, err = generator.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	} else {
		backend, err = providerTable(cfg).Backend(cfg.AIProvider, nil)
	}
	if err != nil {
		return nil, nil, err
	}

	opts := []generator.ProviderOption{
		generator.WithPersonality(cfg.AIPersonality),
		generator.WithTimeout(cfg.ProviderTimeout),
		generator.WithSampling(cfg.AITemperature, cfg.AIMaxTokens),
		generator.WithMaxResponseLength(cfg.MaxResponseLength),
		generator.WithMetrics(m),
	}
	if cfg.CacheEnabled {
		opts = append(opts, generator.WithCacheTTL(cfg.CacheTTL))
	} else {
		opts = append(opts, generator.WithoutCache())
	}

	g := generator.NewProviderGenerator(backend, logger, opts...)
	if cfg.CacheEnabled {
		go g.RunCacheSweeper(ctx, cfg.CacheSweep)
	}
	return g, g, nil
}

func providerTable(cfg *config.Config) generator.ProviderTable {
	return generator.ProviderTable{
		"ollama": {
			Name:    "ollama",
			Enabled: true,
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
			Shape:   generator.ShapeOllama,
		},
		"lmstudio": {
			Name:    "lmstudio",
			Enabled: true,
			BaseURL: cfg.LMStudioURL,
			Model:   cfg.LMStudioModel,
			Shape:   generator.ShapeOpenAIChat,
		},
		"openai": {
			Name:        "openai",
			Enabled:     true,
			BaseURL:     "https://api.openai.com",
			Model:       cfg.OpenAIModel,
			APIKey:      cfg.OpenAIAPIKey,
			Shape:       generator.ShapeOpenAIChat,
			RequiresKey: true,
		},
	}
}
