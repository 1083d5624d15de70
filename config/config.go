package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Providers     ProvidersConfig
	Jobs          JobsConfig
	Pricing       PricingConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// ProvidersConfig holds LLM provider configurations. Hosted provider
// credentials are supplied per call, never configured here.
type ProvidersConfig struct {
	Ollama    OllamaConfig
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
}

// OllamaConfig holds local Ollama provider configuration
type OllamaConfig struct {
	Enabled      bool
	BaseURL      string
	DefaultModel string
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	BaseURL      string
	Timeout      time.Duration
	DefaultModel string
}

// AnthropicConfig holds Anthropic provider configuration
type AnthropicConfig struct {
	BaseURL      string
	Timeout      time.Duration
	DefaultModel string
	Version      string
}

// JobsConfig holds job manager configuration
type JobsConfig struct {
	Retention       time.Duration
	SweepInterval   time.Duration
	MaxConcurrent   int
	DefaultProvider string
	NodeID          int64
}

// PricingConfig points at an optional YAML rate catalog
type PricingConfig struct {
	File string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel          string
	LogFormat         string // json or console
	LogFile           string
	LogMaxSizeMB      int
	LogMaxBackups     int
	MetricsEnabled    bool
	TracingEnabled    bool
	TracingEndpoint   string
	TracingInsecure   bool
	TracingSampleRate float64
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
		},
		Providers: ProvidersConfig{
			Ollama: OllamaConfig{
				Enabled:      getEnvAsBool("OLLAMA_ENABLED", true),
				BaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
				DefaultModel: getEnv("OLLAMA_DEFAULT_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				BaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Timeout:      getEnvAsDuration("OPENAI_TIMEOUT", 120*time.Second),
				DefaultModel: getEnv("OPENAI_DEFAULT_MODEL", ""),
			},
			Anthropic: AnthropicConfig{
				BaseURL:      getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				Timeout:      getEnvAsDuration("ANTHROPIC_TIMEOUT", 120*time.Second),
				DefaultModel: getEnv("ANTHROPIC_DEFAULT_MODEL", ""),
				Version:      getEnv("ANTHROPIC_VERSION", "2023-06-01"),
			},
		},
		Jobs: JobsConfig{
			Retention:       getEnvAsDuration("JOB_RETENTION", time.Hour),
			SweepInterval:   getEnvAsDuration("JOB_SWEEP_INTERVAL", time.Minute),
			MaxConcurrent:   getEnvAsInt("JOB_MAX_CONCURRENT", 0),
			DefaultProvider: getEnv("JOB_DEFAULT_PROVIDER", "ollama"),
			NodeID:          int64(getEnvAsInt("SNOWFLAKE_NODE_ID", 1)),
		},
		Pricing: PricingConfig{
			File: getEnv("PRICING_FILE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			LogFormat:         getEnv("LOG_FORMAT", "json"),
			LogFile:           getEnv("LOG_FILE", ""),
			LogMaxSizeMB:      getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			LogMaxBackups:     getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MetricsEnabled:    getEnvAsBool("METRICS_ENABLED", true),
			TracingEnabled:    getEnvAsBool("TRACING_ENABLED", false),
			TracingEndpoint:   getEnv("TRACING_ENDPOINT", "localhost:4318"),
			TracingInsecure:   getEnvAsBool("TRACING_INSECURE", true),
			TracingSampleRate: getEnvAsFloat("TRACING_SAMPLE_RATE", 0.1),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that every configured value is usable
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	// Provider validation
	if c.Providers.OpenAI.Timeout <= 0 {
		return fmt.Errorf("openai timeout must be positive")
	}
	if c.Providers.Anthropic.Timeout <= 0 {
		return fmt.Errorf("anthropic timeout must be positive")
	}
	if c.Providers.Ollama.Enabled && c.Providers.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama base URL is required when ollama is enabled")
	}

	// Job validation
	if c.Jobs.Retention <= 0 {
		return fmt.Errorf("job retention must be positive")
	}
	if c.Jobs.MaxConcurrent < 0 {
		return fmt.Errorf("job max concurrency cannot be negative")
	}
	if c.Jobs.NodeID < 0 || c.Jobs.NodeID > 1023 {
		return fmt.Errorf("snowflake node id must be between 0 and 1023")
	}
	if c.Jobs.DefaultProvider == "" {
		return fmt.Errorf("job default provider is required")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return fmt.Errorf("tracing sample rate must be between 0 and 1")
	}
	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
