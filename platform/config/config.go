// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseConnectTimeout() time.Duration
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides the connection settings shared by the stream bus and asynq.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq client, worker and outbox dispatcher.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetOutboxPollInterval() time.Duration
	GetOutboxBatchSize() int
	GetOutboxMaxAttempts() int
	GetOutboxStaleAfter() time.Duration
}

// ConsumerConfig provides settings for stream consumers.
type ConsumerConfig interface {
	GetServiceName() string
	GetConsumerPolicy() ConsumerPolicy
	GetTopicPolicies() map[string]ConsumerPolicy
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	ServiceName            string
	HTTPAddr               string
	DatabaseURL            string
	DatabaseConnectTimeout time.Duration
	JWTAccessSecret        string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxAttempts      int
	OutboxStaleAfter       time.Duration
	ConsumerPolicy         ConsumerPolicy
	TopicPolicies          map[string]ConsumerPolicy
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string                   { return c.DatabaseURL }
func (c *Config) GetDatabaseConnectTimeout() time.Duration { return c.DatabaseConnectTimeout }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string            { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int             { return c.AsynqConcurrency }
func (c *Config) GetOutboxPollInterval() time.Duration { return c.OutboxPollInterval }
func (c *Config) GetOutboxBatchSize() int              { return c.OutboxBatchSize }
func (c *Config) GetOutboxMaxAttempts() int            { return c.OutboxMaxAttempts }
func (c *Config) GetOutboxStaleAfter() time.Duration   { return c.OutboxStaleAfter }

// ConsumerConfig implementation
func (c *Config) GetServiceName() string                      { return c.ServiceName }
func (c *Config) GetConsumerPolicy() ConsumerPolicy           { return c.ConsumerPolicy }
func (c *Config) GetTopicPolicies() map[string]ConsumerPolicy { return c.TopicPolicies }

// Load reads configuration from environment variables.
// defaultService names the binary's service when SERVICE_NAME is unset.
func Load(defaultService string) (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		ServiceName:            getEnv("SERVICE_NAME", defaultService),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		DatabaseConnectTimeout: mustDuration(getEnv("DATABASE_CONNECT_TIMEOUT", "5s")),
		JWTAccessSecret:        getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		CORSAllowCreds:         strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:       mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		OutboxPollInterval:     mustDuration(getEnv("OUTBOX_POLL_INTERVAL", "2s")),
		OutboxBatchSize:        mustInt(getEnv("OUTBOX_BATCH_SIZE", "50")),
		OutboxMaxAttempts:      mustInt(getEnv("OUTBOX_MAX_ATTEMPTS", "8")),
		OutboxStaleAfter:       mustDuration(getEnv("OUTBOX_STALE_AFTER", "10m")),
		ConsumerPolicy: ConsumerPolicy{
			MaxAttempts:    mustInt(getEnv("CONSUMER_MAX_ATTEMPTS", "5")),
			HandlerTimeout: mustDuration(getEnv("CONSUMER_HANDLER_TIMEOUT", "30s")),
			BaseBackoff:    mustDuration(getEnv("CONSUMER_BASE_BACKOFF", "200ms")),
			MaxBackoff:     mustDuration(getEnv("CONSUMER_MAX_BACKOFF", "10s")),
		},
	}

	if path := getEnv("CONSUMER_POLICY_FILE", ""); path != "" {
		file, err := LoadPolicyFile(path)
		if err != nil {
			return nil, err
		}
		cfg.ConsumerPolicy = file.Default.Merge(cfg.ConsumerPolicy)
		cfg.TopicPolicies = file.Topics
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("SERVICE_NAME is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.ConsumerPolicy.MaxAttempts < 1 {
		return nil, fmt.Errorf("CONSUMER_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
