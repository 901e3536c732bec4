package broker

import (
	"fmt"

	"campaignd/internal/config"
	"campaignd/internal/constants"
	"campaignd/internal/logger"
)

func NewConsumer(cfg config.BrokerConfig, log logger.Logger, prefetch int) (Consumer, error) {
	switch cfg.Type {
	case constants.BrokerRabbitMQ:
		return NewRabbitMQConsumer(cfg.RabbitMQ, log, prefetch), nil
	case constants.BrokerKafka:
		return NewKafkaConsumer(cfg.Kafka, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
