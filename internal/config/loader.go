package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"campaignd/internal/constants"
)

// LoadConfig reads configFile (optional) and layers environment variables on
// top. A .env file in the working directory is loaded first if present.
func LoadConfig(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 10*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("broker.type", constants.BrokerRabbitMQ)
	viper.SetDefault("broker.rabbitmq.url", "")
	viper.SetDefault("broker.rabbitmq.host", "localhost")
	viper.SetDefault("broker.rabbitmq.port", 5672)
	viper.SetDefault("broker.rabbitmq.user", "guest")
	viper.SetDefault("broker.rabbitmq.password", "guest")
	viper.SetDefault("broker.rabbitmq.vhost", "")
	viper.SetDefault("broker.rabbitmq.queue", constants.DefaultQueueName)
	viper.SetDefault("broker.rabbitmq.consumer_tag", "")
	viper.SetDefault("broker.kafka.brokers", []string{})
	viper.SetDefault("broker.kafka.group_id", constants.ServiceName)
	viper.SetDefault("broker.kafka.topic", constants.DefaultQueueName)
	viper.SetDefault("broker.kafka.dlq_topic", "")

	viper.SetDefault("ingest.workers", constants.DefaultWorkers)
	viper.SetDefault("ingest.retry.max_attempts", 3)
	viper.SetDefault("ingest.retry.initial_interval", 500*time.Millisecond)
	viper.SetDefault("ingest.retry.max_interval", 10*time.Second)
	viper.SetDefault("ingest.retry.multiplier", 2.0)
	viper.SetDefault("ingest.retry.max_elapsed_time", time.Minute)

	viper.SetDefault("database.message_store", constants.MessageStoreMongoDB)
	viper.SetDefault("database.run_migrations", true)
	viper.SetDefault("database.redis.url", "")
	viper.SetDefault("database.redis.host", "localhost")
	viper.SetDefault("database.redis.port", 6379)
	viper.SetDefault("database.redis.password", "")
	viper.SetDefault("database.redis.db", 0)
	viper.SetDefault("database.mongodb.uri", "")
	viper.SetDefault("database.mongodb.database", constants.DefaultMongoDBName)
	viper.SetDefault("database.mongodb.collection", constants.DefaultCollectionName)
	viper.SetDefault("database.postgres.host", "")
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.user", "")
	viper.SetDefault("database.postgres.password", "")
	viper.SetDefault("database.postgres.dbname", "")
	viper.SetDefault("database.postgres.sslmode", "disable")
	viper.SetDefault("database.postgres.migrations_path", "migrations/postgres")

	viper.SetDefault("aggregator.counter_mode", constants.CounterModeCount)
	viper.SetDefault("aggregator.stage_timeout", constants.DefaultStageTimeout)

	viper.SetDefault("notifier.base_url", "")
	viper.SetDefault("notifier.api_key", "")
	viper.SetDefault("notifier.api_key_header", constants.DefaultAPIKeyHeader)
	viper.SetDefault("notifier.timeout", constants.DefaultHTTPTimeout)

	viper.SetDefault("reconcile.interval", constants.DefaultReconcilePeriod)

	viper.SetDefault("admin.rate_limit.enabled", true)
	viper.SetDefault("admin.rate_limit.rps", 10.0)
	viper.SetDefault("admin.rate_limit.burst", 20)
	viper.SetDefault("admin.rate_limit.cleanup_interval", 5*time.Minute)
	viper.SetDefault("admin.rate_limit.max_age", 10*time.Minute)

	viper.SetDefault("circuit_breaker.enabled", false)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", constants.ServiceName)
}

// bindEnvVariables maps the legacy deployment variables onto config keys.
// When several names are given, the first one set wins.
func bindEnvVariables() {
	viper.BindEnv("broker.rabbitmq.url", "BROKER_RABBITMQ_URL", "RABBITMQ_URL")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.topic", "BROKER_KAFKA_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.redis.url", "DATABASE_REDIS_URL", "REDIS_URL")
	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI", "MONGODB_URL")

	viper.BindEnv("notifier.base_url", "NOTIFIER_BASE_URL", "M2C_DIGITAL_API_URL")
	viper.BindEnv("notifier.api_key", "NOTIFIER_API_KEY", "M2C_DIGITAL_API_KEY")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
}

func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
