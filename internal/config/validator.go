package config

import (
	"fmt"
	"net/url"
	"strings"

	"campaignd/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateBroker(c.Broker) },
		func(c *Config) error { return validateIngest(c.Ingest) },
		func(c *Config) error { return validateDatabase(c.Database) },
		func(c *Config) error { return validateAggregator(c.Aggregator) },
		func(c *Config) error { return validateNotifier(c.Notifier) },
		func(c *Config) error { return validateReconcile(c.Reconcile) },
	}

	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case constants.BrokerRabbitMQ:
		return validateRabbitMQ(cfg.RabbitMQ)
	case constants.BrokerKafka:
		return validateKafka(cfg.Kafka)
	case "":
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: rabbitmq, kafka)", cfg.Type),
		}
	}
}

func validateRabbitMQ(cfg RabbitMQConfig) error {
	if cfg.Queue == "" {
		return &ValidationError{
			Field:   "broker.rabbitmq.queue",
			Message: "queue name is required",
		}
	}

	if cfg.URL != "" {
		if !strings.HasPrefix(cfg.URL, "amqp://") && !strings.HasPrefix(cfg.URL, "amqps://") {
			return &ValidationError{
				Field:   "broker.rabbitmq.url",
				Message: "RabbitMQ URL must start with amqp:// or amqps://",
			}
		}
		return nil
	}

	if cfg.Host == "" {
		return &ValidationError{
			Field:   "broker.rabbitmq.host",
			Message: "RabbitMQ host is required when url is not set",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "broker.rabbitmq.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Topic == "" {
		return &ValidationError{
			Field:   "broker.kafka.topic",
			Message: "Kafka topic is required",
		}
	}

	return nil
}

func validateIngest(cfg IngestConfig) error {
	if cfg.Workers < 1 {
		return &ValidationError{
			Field:   "ingest.workers",
			Message: fmt.Sprintf("workers must be at least 1, got %d", cfg.Workers),
		}
	}

	if cfg.Retry.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "ingest.retry.max_attempts",
			Message: "max_attempts must be at least 1",
		}
	}

	if cfg.Retry.InitialInterval < 0 || cfg.Retry.MaxInterval < 0 {
		return &ValidationError{
			Field:   "ingest.retry",
			Message: "retry intervals must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > cfg.Retry.MaxInterval {
		return &ValidationError{
			Field:   "ingest.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "ingest.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if err := validateRedis(cfg.Redis); err != nil {
		return err
	}

	switch cfg.MessageStore {
	case constants.MessageStoreMongoDB:
		return validateMongoDB(cfg.MongoDB)
	case constants.MessageStorePostgres:
		return validatePostgres(cfg.Postgres)
	default:
		return &ValidationError{
			Field:   "database.message_store",
			Message: fmt.Sprintf("unknown message store: %q (supported: mongodb, postgres)", cfg.MessageStore),
		}
	}
}

func validateRedis(cfg RedisConfig) error {
	if cfg.URL != "" {
		if !strings.HasPrefix(cfg.URL, "redis://") && !strings.HasPrefix(cfg.URL, "rediss://") {
			return &ValidationError{
				Field:   "database.redis.url",
				Message: "Redis URL must start with redis:// or rediss://",
			}
		}
		return nil
	}

	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required when url is not set",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	if cfg.Collection == "" {
		return &ValidationError{
			Field:   "database.mongodb.collection",
			Message: "MongoDB collection name is required",
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateAggregator(cfg AggregatorConfig) error {
	switch cfg.CounterMode {
	case constants.CounterModeCount, constants.CounterModeDistinct:
	default:
		return &ValidationError{
			Field:   "aggregator.counter_mode",
			Message: fmt.Sprintf("invalid counter mode: %q (valid: count, distinct)", cfg.CounterMode),
		}
	}

	if cfg.StageTimeout <= 0 {
		return &ValidationError{
			Field:   "aggregator.stage_timeout",
			Message: "stage timeout must be positive",
		}
	}

	return nil
}

func validateNotifier(cfg NotifierConfig) error {
	if cfg.BaseURL == "" {
		return &ValidationError{
			Field:   "notifier.base_url",
			Message: "notification API base URL is required",
		}
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{
			Field:   "notifier.base_url",
			Message: fmt.Sprintf("invalid base URL %q (must be an http or https URL)", cfg.BaseURL),
		}
	}

	if cfg.APIKey != "" && cfg.APIKeyHeader == "" {
		return &ValidationError{
			Field:   "notifier.api_key_header",
			Message: "header name is required when an API key is set",
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "notifier.timeout",
			Message: "timeout must be positive",
		}
	}

	return nil
}

func validateReconcile(cfg ReconcileConfig) error {
	if cfg.Interval < 0 {
		return &ValidationError{
			Field:   "reconcile.interval",
			Message: "interval must be non-negative (0 disables the sweep)",
		}
	}
	return nil
}
