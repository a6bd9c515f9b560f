package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
	BotName   string

	// Session store
	SessionFile   string
	MaxTurns      int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	ActiveWindow  time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Response generation
	AIProvider        string
	AIPersonality     string
	AITemperature     float64
	AIMaxTokens       int
	MaxResponseLength int
	ProviderTimeout   time.Duration
	CacheEnabled      bool
	CacheTTL          time.Duration
	CacheSweep        time.Duration
	OllamaURL         string
	OllamaModel       string
	LMStudioURL       string
	LMStudioModel     string
	OpenAIAPIKey      string
	OpenAIModel       string
	GeminiAPIKey      string
	GeminiModel       string

	// Outbound delivery
	MessageDelay       time.Duration
	RetryDelay         time.Duration
	MaxSendAttempts    int
	MaxMessageLength   int
	OutboundWebhookURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		BotName:   getEnv("BOT_NAME", "Chat Relay"),

		SessionFile:   getEnv("SESSION_FILE", "conversations.json"),
		MaxTurns:      getEnvAsInt("MAX_TURNS", 20),
		IdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 24*time.Hour),
		SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		ActiveWindow:  getEnvAsDuration("SESSION_ACTIVE_WINDOW", time.Hour),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AIProvider:        strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "pattern"))),
		AIPersonality:     strings.ToLower(strings.TrimSpace(getEnv("AI_PERSONALITY", "helpful"))),
		AITemperature:     getEnvAsFloat("AI_TEMPERATURE", 0.7),
		AIMaxTokens:       getEnvAsInt("AI_MAX_TOKENS", 500),
		MaxResponseLength: getEnvAsInt("AI_MAX_RESPONSE_LENGTH", 1000),
		ProviderTimeout:   getEnvAsDuration("AI_PROVIDER_TIMEOUT", 30*time.Second),
		CacheEnabled:      getEnvAsBool("AI_CACHE_ENABLED", true),
		CacheTTL:          getEnvAsDuration("AI_CACHE_TTL", 5*time.Minute),
		CacheSweep:        getEnvAsDuration("AI_CACHE_SWEEP_INTERVAL", time.Minute),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llama2"),
		LMStudioURL:       getEnv("LMSTUDIO_URL", "http://localhost:1234"),
		LMStudioModel:     getEnv("LMSTUDIO_MODEL", "local-model"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-pro"),

		MessageDelay:       getEnvAsDuration("MESSAGE_DELAY", time.Second),
		RetryDelay:         getEnvAsDuration("MESSAGE_RETRY_DELAY", 5*time.Second),
		MaxSendAttempts:    getEnvAsInt("MESSAGE_MAX_ATTEMPTS", 3),
		MaxMessageLength:   getEnvAsInt("MESSAGE_MAX_LENGTH", 4096),
		OutboundWebhookURL: getEnv("OUTBOUND_WEBHOOK_URL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
