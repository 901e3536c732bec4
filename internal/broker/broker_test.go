package broker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignd/internal/config"
	"campaignd/internal/logger"
)

type fakeAcknowledger struct {
	mu     sync.Mutex
	acked  []uint64
	nacked map[uint64]bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.nacked == nil {
		a.nacked = make(map[uint64]bool)
	}
	a.nacked[tag] = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeChannel struct {
	msgs     chan amqp.Delivery
	prefetch int
	durable  bool
	autoAck  bool
	closed   bool
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.durable = durable
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.autoAck = autoAck
	return f.msgs, nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error { return nil }

func (f *fakeChannel) Close() error {
	if !f.closed {
		f.closed = true
		close(f.msgs)
	}
	return nil
}

func TestRabbitMQConsumer_DeliversAndAcknowledges(t *testing.T) {
	ack := &fakeAcknowledger{}
	ch := &fakeChannel{msgs: make(chan amqp.Delivery, 2)}
	ch.msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{"data":{}}`),
		Headers: amqp.Table{"traceparent": "00-abc-def-01", "x-retry": int32(1)}}
	ch.msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, MessageId: "m-2", Body: []byte(`x`)}

	cfg := config.RabbitMQConfig{Queue: "m2c_digital_messages_queue"}
	c := newRabbitMQConsumerWithChannel(cfg, logger.NopLogger(), 4, ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := c.Deliveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, ch.prefetch)
	assert.True(t, ch.durable)
	assert.False(t, ch.autoAck)

	first := <-deliveries
	assert.Equal(t, "1", first.ID())
	assert.Equal(t, map[string]string{"traceparent": "00-abc-def-01"}, first.Headers())
	require.NoError(t, first.Ack(ctx))

	second := <-deliveries
	assert.Equal(t, "m-2", second.ID())
	require.NoError(t, second.Nack(ctx, false, errors.New("bad")))

	require.NoError(t, c.Close())
	_, open := <-deliveries
	assert.False(t, open)

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Equal(t, map[uint64]bool{2: false}, ack.nacked)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      chan kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m, ok := <-r.msgs:
		if !ok {
			return kafka.Message{}, io.EOF
		}
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.msgs)
	}
	return nil
}

type fakeProducer struct {
	mu        sync.Mutex
	published []map[string]string
	topics    []string
	err       error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, body []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.published = append(p.published, headers)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func TestKafkaConsumer_AckCommitsAndNackDeadLetters(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 3)}
	reader.msgs <- kafka.Message{Topic: "messages", Partition: 0, Offset: 10, Value: []byte("a"),
		Headers: []kafka.Header{{Key: "traceparent", Value: []byte("tp")}}}
	reader.msgs <- kafka.Message{Topic: "messages", Partition: 0, Offset: 11, Value: []byte("b")}
	reader.msgs <- kafka.Message{Topic: "messages", Partition: 0, Offset: 12, Value: []byte("c")}

	dlq := &fakeProducer{}
	cfg := config.KafkaConfig{Topic: "messages", DLQTopic: "messages-dlq"}
	c := newKafkaConsumerWithReader(cfg, logger.NopLogger(), reader, dlq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := c.Deliveries(ctx)
	require.NoError(t, err)

	first := <-deliveries
	assert.Equal(t, "messages/0/10", first.ID())
	assert.Equal(t, "tp", first.Headers()["traceparent"])
	require.NoError(t, first.Ack(ctx))

	second := <-deliveries
	require.NoError(t, second.Nack(ctx, false, errors.New("COUNTER_ERROR")))

	third := <-deliveries
	require.NoError(t, third.Nack(ctx, true, nil))

	require.NoError(t, c.Close())

	assert.Equal(t, []int64{10, 11}, reader.committed)
	require.Len(t, dlq.published, 1)
	assert.Equal(t, "messages-dlq", dlq.topics[0])
	assert.Equal(t, "COUNTER_ERROR", dlq.published[0]["dlq_reason"])
	assert.Equal(t, "11", dlq.published[0]["dlq_source_offset"])
}

func TestKafkaConsumer_CommitsOnlyContiguousOffsets(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 4)}
	for _, off := range []int64{0, 1, 2} {
		reader.msgs <- kafka.Message{Topic: "messages", Partition: 0, Offset: off}
	}
	reader.msgs <- kafka.Message{Topic: "messages", Partition: 1, Offset: 0}
	c := newKafkaConsumerWithReader(config.KafkaConfig{Topic: "messages"}, logger.NopLogger(), reader, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := c.Deliveries(ctx)
	require.NoError(t, err)
	d0, d1, d2, other := <-deliveries, <-deliveries, <-deliveries, <-deliveries

	require.NoError(t, d1.Ack(ctx))
	require.NoError(t, d2.Ack(ctx))
	assert.Empty(t, reader.commits(), "offset 0 is still in flight")

	require.NoError(t, other.Ack(ctx))
	assert.Equal(t, []int64{0}, reader.commits(), "partitions advance independently")

	require.NoError(t, d0.Ack(ctx))
	assert.Equal(t, []int64{0, 2}, reader.commits())

	require.NoError(t, c.Close())
}

func TestKafkaConsumer_RequeuedOffsetHoldsCommits(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 2)}
	reader.msgs <- kafka.Message{Topic: "messages", Offset: 5}
	reader.msgs <- kafka.Message{Topic: "messages", Offset: 6}
	c := newKafkaConsumerWithReader(config.KafkaConfig{Topic: "messages"}, logger.NopLogger(), reader, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := c.Deliveries(ctx)
	require.NoError(t, err)
	first, second := <-deliveries, <-deliveries

	require.NoError(t, first.Nack(ctx, true, nil))
	require.NoError(t, second.Ack(ctx))
	assert.Empty(t, reader.commits())

	require.NoError(t, c.Close())
}

func TestKafkaConsumer_FailedDeadLetterKeepsOffset(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 1)}
	reader.msgs <- kafka.Message{Topic: "messages", Offset: 7, Value: []byte("x")}
	dlq := &fakeProducer{err: errors.New("dlq down")}
	cfg := config.KafkaConfig{Topic: "messages", DLQTopic: "messages-dlq"}
	c := newKafkaConsumerWithReader(cfg, logger.NopLogger(), reader, dlq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := c.Deliveries(ctx)
	require.NoError(t, err)

	d := <-deliveries
	err = d.Nack(ctx, false, errors.New("COUNTER_ERROR"))
	require.Error(t, err)
	assert.ErrorIs(t, err, dlq.err)
	assert.Empty(t, reader.commits())

	require.NoError(t, c.Close())
}

func TestKafkaConsumer_StopsOnContextCancel(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message)}
	c := newKafkaConsumerWithReader(config.KafkaConfig{Topic: "messages"}, logger.NopLogger(), reader, nil)

	ctx, cancel := context.WithCancel(context.Background())
	deliveries, err := c.Deliveries(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-deliveries:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery channel was not closed")
	}
	require.NoError(t, c.Close())
}

func TestNewConsumer_UnknownType(t *testing.T) {
	_, err := NewConsumer(config.BrokerConfig{Type: "nats"}, logger.NopLogger(), 1)
	assert.Error(t, err)
}
