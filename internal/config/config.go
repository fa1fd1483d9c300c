package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MySQLConfig holds the relational store connection settings.
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
}

// RedisConfig holds the session store connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MilvusConfig holds the vector index settings.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
	Dim        int    `yaml:"dim"`
}

// MinIOConfig holds the object store used to archive uploaded files.
type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// KafkaConfig holds the event bus used for ingestion notifications.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DatabaseConfigs groups all backing store configurations.
type DatabaseConfigs struct {
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Milvus MilvusConfig `yaml:"milvus"`
	MinIO  MinIOConfig  `yaml:"minio"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

// GeminiConfig configures the Google Gemini provider.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// OllamaConfig configures a local Ollama instance.
type OllamaConfig struct {
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

// LLMConfig selects and configures the generation provider.
type LLMConfig struct {
	Provider string       `yaml:"provider"` // "gemini", "openai" or "ollama"
	Gemini   GeminiConfig `yaml:"gemini"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Ollama   OllamaConfig `yaml:"ollama"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string       `yaml:"provider"`
	Gemini   GeminiConfig `yaml:"gemini"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Ollama   OllamaConfig `yaml:"ollama"`
}

// RetryConfig bounds the composer's backoff loop.
type RetryConfig struct {
	MaxAttempts int    `yaml:"maxAttempts"`
	BaseDelay   string `yaml:"baseDelay"` // e.g. "2s"
	MaxDelay    string `yaml:"maxDelay"`  // e.g. "30s"
}

// ChatConfig tunes the answering pipeline.
type ChatConfig struct {
	TopK            int         `yaml:"topK"`
	HistoryWindow   int         `yaml:"historyWindow"`
	UpstreamTimeout string      `yaml:"upstreamTimeout"` // e.g. "90s"
	Retry           RetryConfig `yaml:"retry"`
}

// AuthConfig configures token issuance and sessions.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwtSecret"`
	TokenTTL   int    `yaml:"tokenTTL"`   // seconds
	SessionTTL int    `yaml:"sessionTTL"` // seconds
}

// RateLimiterConfig configures per-client request limiting.
type RateLimiterConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Algorithm string  `yaml:"algorithm"` // "tokenBucket" or "fixedWindow"
	Rate      float64 `yaml:"rate"`
	Capacity  int     `yaml:"capacity"`
	Limit     int     `yaml:"limit"`
	Window    string  `yaml:"window"`
}

// CircuitBreakerConfig configures the breaker around the generation call.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"`
}

// MiddlewareConfig groups the resilience middleware settings.
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// LoggerConfig sets the log level.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// AppInfo names the application.
type AppInfo struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"` // "development" or "production"
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chat       ChatConfig       `yaml:"chat"`
	Logger     LoggerConfig     `yaml:"logger"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LoadConfig reads and parses the YAML configuration at path. Secrets
// left empty in the file fall back to environment variables so they stay
// out of version control.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.LLM.Gemini.APIKey == "" {
		cfg.LLM.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Embedding.Gemini.APIKey == "" {
		cfg.Embedding.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.LLM.OpenAI.APIKey == "" {
		cfg.LLM.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.OpenAI.APIKey == "" {
		cfg.Embedding.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}

	return &cfg, nil
}

// Duration parses a config duration string, returning fallback when the
// field is empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
