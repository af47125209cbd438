package common

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration, loaded from the environment.
type Config struct {
	App        AppConfig
	Server     ServerConfig
	NATS       NATSConfig
	ContentAPI ContentAPIConfig
	Engine     EngineConfig
	Database   DatabaseConfig
	Processing ProcessingConfig
}

// AppConfig holds application identity and logging settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"simple-ocr"`
	Version     string `envconfig:"APP_VERSION" default:"0.1.0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8000"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// NATSConfig holds the JetStream worker settings.
type NATSConfig struct {
	URL           string        `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	Subject       string        `envconfig:"NATS_SUBJECT" default:"ocr.jobs"`
	Stream        string        `envconfig:"NATS_STREAM" default:"OCR_JOBS"`
	Consumer      string        `envconfig:"NATS_CONSUMER" default:"ocr-worker"`
	MaxConcurrent int           `envconfig:"NATS_MAX_CONCURRENT" default:"5"`
	AckWait       time.Duration `envconfig:"NATS_ACK_WAIT" default:"300s"`
	FetchWait     time.Duration `envconfig:"NATS_FETCH_WAIT" default:"5s"`
}

// ContentAPIConfig holds the simple-content client settings.
type ContentAPIConfig struct {
	URL     string        `envconfig:"CONTENT_API_URL" default:"http://localhost:8080"`
	Timeout time.Duration `envconfig:"CONTENT_API_TIMEOUT" default:"30s"`
}

// EngineConfig holds OCR engine selection and tuning.
type EngineConfig struct {
	Name        string        `envconfig:"OCR_ENGINE" default:"vllm"`
	ModelName   string        `envconfig:"MODEL_NAME" default:"deepseek-ai/deepseek-ocr"`
	BaseURL     string        `envconfig:"VLLM_URL" default:"http://localhost:8001"`
	APIKey      string        `envconfig:"VLLM_API_KEY" default:""`
	Temperature float64       `envconfig:"VLLM_TEMPERATURE" default:"0.0"`
	MaxTokens   int           `envconfig:"VLLM_MAX_TOKENS" default:"2048"`
	Timeout     time.Duration `envconfig:"VLLM_TIMEOUT" default:"120s"`

	// Mock engine tuning, used only when Name == "mock".
	MockDelay    time.Duration `envconfig:"MOCK_DELAY" default:"100ms"`
	MockFailRate float64       `envconfig:"MOCK_FAIL_RATE" default:"0.0"`
}

// DatabaseConfig holds the optional job-result store settings. An empty DSN
// disables persistence entirely.
type DatabaseConfig struct {
	DSN             string        `envconfig:"DB_URL" default:""`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	MaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	DialTimeout     time.Duration `envconfig:"DB_DIAL_TIMEOUT" default:"3s"`
}

// ProcessingConfig holds pipeline-level settings.
type ProcessingConfig struct {
	TempDir          string `envconfig:"TEMP_DIR" default:"/tmp/simple-ocr"`
	CleanupTempFiles bool   `envconfig:"CLEANUP_TEMP_FILES" default:"true"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no sensible zero value.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return NewAppError("CONFIG_ERROR", "NATS_URL is required", ErrInvalidInput)
	}
	if c.NATS.MaxConcurrent < 1 {
		return NewAppError("CONFIG_ERROR", "NATS_MAX_CONCURRENT must be >= 1", ErrInvalidInput)
	}
	if c.ContentAPI.URL == "" {
		return NewAppError("CONFIG_ERROR", "CONTENT_API_URL is required", ErrInvalidInput)
	}
	if c.Engine.Name == "" {
		return NewAppError("CONFIG_ERROR", "OCR_ENGINE is required", ErrInvalidInput)
	}
	return nil
}
