package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the MedQuill pipeline server.
type Config struct {
	Port      int
	Version   string
	Pipeline  PipelineConfig
	Providers ProviderConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Audit     AuditConfig
}

type AuthConfig struct {
	// APIKeys empty leaves the API open.
	APIKeys []string
}

type AuditConfig struct {
	Capacity      int
	Retention     time.Duration
	PruneInterval time.Duration
}

type PipelineConfig struct {
	// Governance is the platform policy regime: demo, identified, production.
	Governance          string
	DefaultTier         string
	MaxAttempts         int
	MaxEscalations      int
	EscalationThreshold int
	ProviderTimeout     time.Duration
	ProviderRetries     int
}

type ProviderConfig struct {
	OpenAIAPIKey      string
	OpenAIEndpoint    string
	AnthropicAPIKey   string
	AnthropicEndpoint string
	OllamaEndpoint    string
}

type CacheConfig struct {
	// RedisAddr empty selects the in-memory cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	EventQueue   int
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is applied first, if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:    envInt("MEDQUILL_PORT", 8080),
		Version: envStr("MEDQUILL_VERSION", "0.4.0"),
		Pipeline: PipelineConfig{
			Governance:          envStr("MEDQUILL_GOVERNANCE_MODE", "production"),
			DefaultTier:         envStr("MEDQUILL_DEFAULT_TIER", "mini"),
			MaxAttempts:         envInt("MEDQUILL_MAX_ATTEMPTS", 3),
			MaxEscalations:      envInt("MEDQUILL_MAX_ESCALATIONS", 1),
			EscalationThreshold: envInt("MEDQUILL_ESCALATION_THRESHOLD", 2),
			ProviderTimeout:     envDuration("MEDQUILL_PROVIDER_TIMEOUT", 60*time.Second),
			ProviderRetries:     envInt("MEDQUILL_PROVIDER_RETRIES", 3),
		},
		Providers: ProviderConfig{
			OpenAIAPIKey:      envStr("OPENAI_API_KEY", ""),
			OpenAIEndpoint:    envStr("OPENAI_ENDPOINT", ""),
			AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),
			AnthropicEndpoint: envStr("ANTHROPIC_ENDPOINT", ""),
			OllamaEndpoint:    envStr("OLLAMA_ENDPOINT", ""),
		},
		Cache: CacheConfig{
			RedisAddr:     envStr("MEDQUILL_REDIS_ADDR", ""),
			RedisPassword: envStr("MEDQUILL_REDIS_PASSWORD", ""),
			RedisDB:       envInt("MEDQUILL_REDIS_DB", 0),
			TTL:           envDuration("MEDQUILL_CACHE_TTL", 15*time.Minute),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "medquill-pipeline"),
			EventQueue:   envInt("MEDQUILL_EVENT_QUEUE", 256),
		},
		Auth: AuthConfig{
			APIKeys: envList("MEDQUILL_API_KEYS"),
		},
		Audit: AuditConfig{
			Capacity:      envInt("MEDQUILL_AUDIT_CAPACITY", 1024),
			Retention:     envDuration("MEDQUILL_AUDIT_RETENTION", 24*time.Hour),
			PruneInterval: envDuration("MEDQUILL_AUDIT_PRUNE_INTERVAL", time.Hour),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
