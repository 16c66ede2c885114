package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Event transports.
const (
	TransportMemory = "memory"
	TransportRedis  = "redis"
	TransportAMQP   = "amqp"
)

// Config holds all application configuration
type Config struct {
	ServiceName    string
	HTTPAddr       string
	IdentityHeader string
	Log            LogConfig
	Store          StoreConfig
	Events         EventsConfig
	Redis          RedisConfig
	RabbitMQ       RabbitMQConfig
	Validation     ValidationConfig
}

// LogConfig selects level and encoding
type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects and locates the database
type StoreConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// EventsConfig sizes the publisher and picks its transport
type EventsConfig struct {
	Transport        string
	PublisherWorkers int
	QueueSize        int
	PublishTimeout   time.Duration
	SubscriberBuffer int
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RabbitMQConfig holds RabbitMQ connection, event exchange and ingest queue settings
type RabbitMQConfig struct {
	URL              string
	EventsExchange   string
	IngestEnabled    bool
	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	DLQQueue         string
	PrefetchCount    int
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	RecordedAtToleranceMinutes int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:    getEnv("SERVICE_NAME", "prenatal-vitals"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		IdentityHeader: getEnv("IDENTITY_HEADER", "X-User-ID"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
			DatabaseURL: getEnv("DATABASE_URL", ""),
			SQLitePath:  getEnv("SQLITE_PATH", "vitals.db"),
		},
		Events: EventsConfig{
			Transport:        strings.ToLower(getEnv("EVENT_TRANSPORT", TransportMemory)),
			PublisherWorkers: getEnvAsInt("PUBLISHER_WORKERS", 4),
			QueueSize:        getEnvAsInt("PUBLISHER_QUEUE_SIZE", 256),
			PublishTimeout:   getEnvAsDuration("PUBLISH_TIMEOUT", 5*time.Second),
			SubscriberBuffer: getEnvAsInt("SUBSCRIBER_BUFFER", 64),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			EventsExchange:   getEnv("RABBITMQ_EVENTS_EXCHANGE", "vitals.events"),
			IngestEnabled:    getEnvAsBool("RABBITMQ_INGEST_ENABLED", false),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "vitals.ingest.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "vitals.ingest.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "vital.reading.raw"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "vitals.ingest.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Validation: ValidationConfig{
			RecordedAtToleranceMinutes: getEnvAsInt("VALIDATION_RECORDED_AT_TOLERANCE_MINUTES", 10080),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NeedsAMQP reports whether any component uses RabbitMQ.
func (c *Config) NeedsAMQP() bool {
	return c.Events.Transport == TransportAMQP || c.RabbitMQ.IngestEnabled
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required but not set in environment variables")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required but not set in environment variables")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Store.Driver)
	}

	switch c.Events.Transport {
	case TransportMemory, TransportAMQP:
	case TransportRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required but not set in environment variables")
		}
	default:
		return fmt.Errorf("EVENT_TRANSPORT must be one of %q, %q, %q, got %q",
			TransportMemory, TransportRedis, TransportAMQP, c.Events.Transport)
	}

	if c.NeedsAMQP() && c.RabbitMQ.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if c.IdentityHeader == "" {
		return fmt.Errorf("IDENTITY_HEADER must not be empty")
	}
	return nil
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
