package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"campaignd/internal/config"
	"campaignd/internal/constants"
	"campaignd/internal/logger"
	"campaignd/pkg/metrics"
)

type KafkaProducer struct {
	writer      *kafka.Writer
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaProducer{writer: w, logger: log, serviceName: constants.ServiceName}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, body []byte, headers map[string]string) error {
	err := p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   topic,
			Key:     key,
			Value:   body,
			Headers: toKafkaHeaders(headers),
			Time:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(p.serviceName, topic)
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer settles a message on Ack and on dead-lettering Nack. Workers
// finish out of order, so the committed position per partition only moves
// past offsets that are all settled; a crash redelivers whatever was still in
// flight, never skips it.
type KafkaConsumer struct {
	cfg         config.KafkaConfig
	logger      logger.Logger
	serviceName string
	offsets     *offsetTracker

	mu          sync.Mutex
	reader      MessageReader
	dlqProducer Producer
	wg          sync.WaitGroup
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: constants.ServiceName,
		offsets:     newOffsetTracker(),
	}

	if cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, log)
	}

	return consumer
}

func newKafkaConsumerWithReader(cfg config.KafkaConfig, log logger.Logger, reader MessageReader, dlq Producer) *KafkaConsumer {
	return &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: constants.ServiceName,
		offsets:     newOffsetTracker(),
		reader:      reader,
		dlqProducer: dlq,
	}
}

func (c *KafkaConsumer) Name() string {
	return constants.BrokerKafka
}

func (c *KafkaConsumer) Deliveries(ctx context.Context) (<-chan Delivery, error) {
	c.mu.Lock()
	if c.reader == nil {
		c.logger.Infow("Creating Kafka reader",
			"topic", c.cfg.Topic,
			"brokers", c.cfg.Brokers,
			"group_id", c.cfg.GroupID,
		)
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    c.cfg.Topic,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		})
	}
	reader := c.reader
	c.mu.Unlock()

	out := make(chan Delivery)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(out)

		c.logger.Infow("Started consuming", "broker", c.Name(), "topic", c.cfg.Topic)

		for {
			start := time.Now()
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					c.logger.Infow("Stopped consuming",
						"topic", c.cfg.Topic,
						"reason", "reader closed",
					)
					return
				}
				c.logger.Errorw("Error fetching kafka message",
					"error", err,
					"topic", c.cfg.Topic,
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			metrics.IncKafkaMessagesRead(c.serviceName, m.Topic)
			metrics.ObserveKafkaReadDuration(c.serviceName, m.Topic, time.Since(start))
			c.offsets.fetched(m)

			select {
			case out <- &kafkaDelivery{msg: m, consumer: c}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	c.wg.Wait()
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (c *KafkaConsumer) settle(ctx context.Context, m kafka.Message) error {
	return c.offsets.settle(m, func(last kafka.Message) error {
		return c.commit(ctx, last)
	})
}

func (c *KafkaConsumer) commit(ctx context.Context, m kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("failed to commit offset %d on %s/%d: %w", m.Offset, m.Topic, m.Partition, err)
	}
	return nil
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, m kafka.Message, reason error) error {
	headers := fromKafkaHeaders(m.Headers)
	if headers == nil {
		headers = make(map[string]string)
	}
	reasonText := "rejected"
	if reason != nil {
		reasonText = reason.Error()
	}
	headers["dlq_reason"] = reasonText
	headers["dlq_source_topic"] = m.Topic
	headers["dlq_source_partition"] = strconv.Itoa(m.Partition)
	headers["dlq_source_offset"] = strconv.FormatInt(m.Offset, 10)
	headers["dlq_timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)

	if err := c.dlqProducer.Publish(ctx, c.cfg.DLQTopic, m.Key, m.Value, headers); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, m.Topic, "rejected").Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"source_topic", m.Topic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", reasonText,
	)
	return nil
}

type kafkaDelivery struct {
	msg      kafka.Message
	consumer *KafkaConsumer
}

func (k *kafkaDelivery) ID() string {
	return fmt.Sprintf("%s/%d/%d", k.msg.Topic, k.msg.Partition, k.msg.Offset)
}

func (k *kafkaDelivery) Body() []byte {
	return k.msg.Value
}

func (k *kafkaDelivery) Headers() map[string]string {
	return fromKafkaHeaders(k.msg.Headers)
}

func (k *kafkaDelivery) Ack(ctx context.Context) error {
	return k.consumer.settle(ctx, k.msg)
}

// Nack with requeue leaves the offset unsettled so the message is fetched
// again after a restart or rebalance. Without requeue the message goes to the
// DLQ topic when one is configured and is then settled. A failed DLQ publish
// leaves it unsettled and returns the error.
func (k *kafkaDelivery) Nack(ctx context.Context, requeue bool, reason error) error {
	if requeue {
		return nil
	}

	c := k.consumer
	if c.dlqProducer != nil && c.cfg.DLQTopic != "" {
		if err := c.sendToDLQ(ctx, k.msg, reason); err != nil {
			return fmt.Errorf("message %s kept uncommitted: %w", k.ID(), err)
		}
	} else {
		c.logger.WarnwCtx(ctx, "No DLQ configured, committing rejected message",
			"topic", k.msg.Topic,
			"offset", k.msg.Offset,
		)
	}
	return c.settle(ctx, k.msg)
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func fromKafkaHeaders(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
