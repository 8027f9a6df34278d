package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tkanos/gonfig"
)

// Config is loaded from an optional JSON file and then overridden by environment
// variables of the same name. Durations are expressed in milliseconds.
type Config struct {
	// Application settings
	AppName  string `json:"APP_NAME" env:"APP_NAME"`
	AppEnv   string `json:"APP_ENV" env:"APP_ENV"`
	LogLevel string `json:"LOG_LEVEL" env:"LOG_LEVEL"`
	DevMode  bool   `json:"DEV_MODE" env:"DEV_MODE"`

	// Server settings
	HTTPPort       string `json:"HTTP_PORT" env:"HTTP_PORT"`
	GRPCHealthPort string `json:"GRPC_HEALTH_PORT" env:"GRPC_HEALTH_PORT"`

	// Store settings
	StoreDriver        string `json:"STORE_DRIVER" env:"STORE_DRIVER"`
	DBHost             string `json:"DB_HOST" env:"DB_HOST"`
	DBPort             string `json:"DB_PORT" env:"DB_PORT"`
	DBDatabase         string `json:"DB_DATABASE" env:"DB_DATABASE"`
	DBUser             string `json:"DB_USER" env:"DB_USER"`
	DBPassword         string `json:"DB_PASSWORD" env:"DB_PASSWORD"`
	DBElevatedUser     string `json:"DB_ELEVATED_USER" env:"DB_ELEVATED_USER"`
	DBElevatedPassword string `json:"DB_ELEVATED_PASSWORD" env:"DB_ELEVATED_PASSWORD"`
	DBTable            string `json:"DB_TABLE" env:"DB_TABLE"`

	// Store timeout profiles
	ShortTimeoutMs   int `json:"SHORT_TIMEOUT_MS" env:"SHORT_TIMEOUT_MS"`
	MediumTimeoutMs  int `json:"MEDIUM_TIMEOUT_MS" env:"MEDIUM_TIMEOUT_MS"`
	DefaultTimeoutMs int `json:"DEFAULT_TIMEOUT_MS" env:"DEFAULT_TIMEOUT_MS"`

	// Completion settings
	ProcessingDelayMs   int    `json:"PROCESSING_DELAY_MS" env:"PROCESSING_DELAY_MS"`
	ExternalCallDelayMs int    `json:"EXTERNAL_CALL_DELAY_MS" env:"EXTERNAL_CALL_DELAY_MS"`
	MaxStatusRetries    int    `json:"MAX_STATUS_RETRIES" env:"MAX_STATUS_RETRIES"`
	WorkerCount         int    `json:"WORKER_COUNT" env:"WORKER_COUNT"`
	QueueSize           int    `json:"QUEUE_SIZE" env:"QUEUE_SIZE"`
	QueueBackend        string `json:"QUEUE_BACKEND" env:"QUEUE_BACKEND"`

	// Kafka settings
	KafkaBrokers         string `json:"KAFKA_BROKERS" env:"KAFKA_BROKERS"`
	KafkaCompletionTopic string `json:"KAFKA_COMPLETION_TOPIC" env:"KAFKA_COMPLETION_TOPIC"`
	KafkaEventsTopic     string `json:"KAFKA_EVENTS_TOPIC" env:"KAFKA_EVENTS_TOPIC"`
	KafkaGroupID         string `json:"KAFKA_GROUP_ID" env:"KAFKA_GROUP_ID"`

	// Redis settings
	RedisAddr string `json:"REDIS_ADDR" env:"REDIS_ADDR"`

	// Rate limiting settings
	RateLimitRPS   int `json:"RATE_LIMIT_RPS" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `json:"RATE_LIMIT_BURST" env:"RATE_LIMIT_BURST"`

	// JWT settings
	JWTSecret   string `json:"JWT_SECRET" env:"JWT_SECRET"`
	AuthEnabled bool   `json:"AUTH_ENABLED" env:"AUTH_ENABLED"`

	// Tracing
	ZipkinEndpoint string `json:"ZIPKIN_ENDPOINT" env:"ZIPKIN_ENDPOINT"`

	// Retry sweep
	SweepIntervalMs   int `json:"SWEEP_INTERVAL_MS" env:"SWEEP_INTERVAL_MS"`
	SweepStaleAfterMs int `json:"SWEEP_STALE_AFTER_MS" env:"SWEEP_STALE_AFTER_MS"`
	SweepBatchSize    int `json:"SWEEP_BATCH_SIZE" env:"SWEEP_BATCH_SIZE"`

	// Audit projection
	ESURL    string `json:"ES_URL" env:"ES_URL"`
	ESIndex  string `json:"ES_INDEX" env:"ES_INDEX"`
	DLQTopic string `json:"DLQ_TOPIC" env:"DLQ_TOPIC"`
}

// Default returns the configuration used when neither file nor environment set a value
func Default() Config {
	return Config{
		AppName:              "TXN-WEBHOOK",
		AppEnv:               "DEV",
		LogLevel:             "INFO",
		HTTPPort:             "8080",
		StoreDriver:          "mysql",
		DBHost:               "localhost",
		DBPort:               "3306",
		DBDatabase:           "payments",
		DBTable:              "transactions",
		ShortTimeoutMs:       1000,
		MediumTimeoutMs:      5000,
		DefaultTimeoutMs:     0,
		ProcessingDelayMs:    30000,
		ExternalCallDelayMs:  1000,
		MaxStatusRetries:     3,
		WorkerCount:          8,
		QueueSize:            1024,
		QueueBackend:         "memory",
		KafkaCompletionTopic: "transaction-completions",
		KafkaEventsTopic:     "transaction-events",
		KafkaGroupID:         "txn-webhook-workers",
		RedisAddr:            "localhost:6379",
		RateLimitRPS:         50,
		RateLimitBurst:       100,
		JWTSecret:            "dev-secret-key",
		SweepIntervalMs:      60000,
		SweepStaleAfterMs:    300000,
		SweepBatchSize:       100,
		ESURL:                "http://localhost:9200",
		ESIndex:              "transactions-audit",
		DLQTopic:             "transaction-events-dlq",
	}
}

// Load reads configFile (when not empty) over the defaults and applies environment overrides
func Load(configFile string) (*Config, error) {
	cfg := Default()
	if err := gonfig.GetConf(configFile, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration %q: %w", configFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the service cannot run with
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.QueueBackend {
	case "memory":
	case "kafka":
		if len(c.Brokers()) == 0 {
			return fmt.Errorf("QUEUE_BACKEND=kafka requires KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unsupported QUEUE_BACKEND %q", c.QueueBackend)
	}
	if c.ShortTimeoutMs <= 0 {
		return fmt.Errorf("SHORT_TIMEOUT_MS must be positive")
	}
	if c.MaxStatusRetries <= 0 {
		return fmt.Errorf("MAX_STATUS_RETRIES must be positive")
	}
	if c.DBTable == "" {
		return fmt.Errorf("DB_TABLE cannot be empty")
	}
	return nil
}

// Brokers splits KAFKA_BROKERS into addresses
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c *Config) ShortTimeout() time.Duration      { return millis(c.ShortTimeoutMs) }
func (c *Config) MediumTimeout() time.Duration     { return millis(c.MediumTimeoutMs) }
func (c *Config) DefaultTimeout() time.Duration    { return millis(c.DefaultTimeoutMs) }
func (c *Config) ProcessingDelay() time.Duration   { return millis(c.ProcessingDelayMs) }
func (c *Config) ExternalCallDelay() time.Duration { return millis(c.ExternalCallDelayMs) }
func (c *Config) SweepInterval() time.Duration     { return millis(c.SweepIntervalMs) }
func (c *Config) SweepStaleAfter() time.Duration   { return millis(c.SweepStaleAfterMs) }

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
