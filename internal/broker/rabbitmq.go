package broker

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"campaignd/internal/config"
	"campaignd/internal/constants"
	"campaignd/internal/logger"
)

// AMQPChannel is the subset of *amqp.Channel the consumer needs.
type AMQPChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

type RabbitMQConsumer struct {
	cfg      config.RabbitMQConfig
	logger   logger.Logger
	prefetch int

	mu      sync.Mutex
	conn    *amqp.Connection
	channel AMQPChannel
	tag     string
	wg      sync.WaitGroup
}

func NewRabbitMQConsumer(cfg config.RabbitMQConfig, log logger.Logger, prefetch int) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	tag := cfg.ConsumerTag
	if tag == "" {
		tag = constants.ServiceName + "-" + uuid.NewString()
	}
	return &RabbitMQConsumer{
		cfg:      cfg,
		logger:   log,
		prefetch: prefetch,
		tag:      tag,
	}
}

// newRabbitMQConsumerWithChannel skips dialing; used by tests.
func newRabbitMQConsumerWithChannel(cfg config.RabbitMQConfig, log logger.Logger, prefetch int, ch AMQPChannel) *RabbitMQConsumer {
	c := NewRabbitMQConsumer(cfg, log, prefetch)
	c.channel = ch
	return c
}

func (c *RabbitMQConsumer) Name() string {
	return constants.BrokerRabbitMQ
}

func (c *RabbitMQConsumer) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		return nil
	}

	conn, err := amqp.Dial(c.cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	c.conn = conn
	c.channel = ch
	return nil
}

func (c *RabbitMQConsumer) Deliveries(ctx context.Context) (<-chan Delivery, error) {
	if err := c.connect(); err != nil {
		return nil, err
	}

	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	q, err := c.channel.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", c.cfg.Queue, err)
	}

	msgs, err := c.channel.Consume(
		q.Name,
		c.tag,
		false, // autoAck: acknowledgment follows processing
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Infow("Started consuming",
		"broker", c.Name(),
		"queue", q.Name,
		"consumer_tag", c.tag,
		"prefetch", c.prefetch,
	)

	out := make(chan Delivery)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					c.logger.Warnw("RabbitMQ delivery channel closed", "queue", q.Name)
					return
				}
				select {
				case out <- &rabbitDelivery{d: d}:
				case <-ctx.Done():
					// Unacked deliveries are returned to the queue when the channel closes.
					return
				}
			}
		}
	}()

	return out, nil
}

func (c *RabbitMQConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.channel != nil {
		_ = c.channel.Cancel(c.tag, false)
		err = c.channel.Close()
	}
	c.wg.Wait()
	if c.conn != nil {
		if closeErr := c.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

type rabbitDelivery struct {
	d amqp.Delivery
}

func (r *rabbitDelivery) ID() string {
	if r.d.MessageId != "" {
		return r.d.MessageId
	}
	return strconv.FormatUint(r.d.DeliveryTag, 10)
}

func (r *rabbitDelivery) Body() []byte {
	return r.d.Body
}

func (r *rabbitDelivery) Headers() map[string]string {
	if len(r.d.Headers) == 0 {
		return nil
	}
	headers := make(map[string]string, len(r.d.Headers))
	for k, v := range r.d.Headers {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case []byte:
			headers[k] = string(val)
		}
	}
	return headers
}

func (r *rabbitDelivery) Ack(ctx context.Context) error {
	return r.d.Ack(false)
}

// Nack ignores reason: the queue's dead-letter exchange, if any, receives the
// original message.
func (r *rabbitDelivery) Nack(ctx context.Context, requeue bool, reason error) error {
	return r.d.Nack(false, requeue)
}
