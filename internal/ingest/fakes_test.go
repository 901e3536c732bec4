package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"campaignd/internal/aggregator"
	"campaignd/internal/broker"
)

type fakeDelivery struct {
	id      string
	body    []byte
	headers map[string]string

	mu        sync.Mutex
	acked     int
	nacked    int
	requeued  bool
	nackCause error
}

func newDelivery(id string, body string) *fakeDelivery {
	return &fakeDelivery{id: id, body: []byte(body)}
}

func (d *fakeDelivery) ID() string                 { return d.id }
func (d *fakeDelivery) Body() []byte               { return d.body }
func (d *fakeDelivery) Headers() map[string]string { return d.headers }

func (d *fakeDelivery) Ack(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acked++
	return nil
}

func (d *fakeDelivery) Nack(ctx context.Context, requeue bool, reason error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nacked++
	d.requeued = requeue
	d.nackCause = reason
	return nil
}

func (d *fakeDelivery) settled() (acked, nacked int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acked, d.nacked
}

type fakeConsumer struct {
	ch     chan broker.Delivery
	err    error
	closed atomic.Bool
}

func newConsumer(buffer int) *fakeConsumer {
	return &fakeConsumer{ch: make(chan broker.Delivery, buffer)}
}

func (c *fakeConsumer) Deliveries(ctx context.Context) (<-chan broker.Delivery, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.ch, nil
}

func (c *fakeConsumer) Name() string { return "fake" }

func (c *fakeConsumer) Close() error {
	c.closed.Store(true)
	return nil
}

// scriptedProcessor returns errors from script keyed by payload, one per
// call, then succeeds.
type scriptedProcessor struct {
	mu      sync.Mutex
	script  map[string][]error
	calls   map[string]int
	panicOn string
	active  atomic.Int32
	peak    atomic.Int32
	gate    chan struct{}
}

func newProcessor() *scriptedProcessor {
	return &scriptedProcessor{
		script: make(map[string][]error),
		calls:  make(map[string]int),
	}
}

func (p *scriptedProcessor) Process(ctx context.Context, raw []byte) (aggregator.Result, error) {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if p.gate != nil {
		<-p.gate
	}

	key := string(raw)
	if key == p.panicOn {
		panic(fmt.Sprintf("boom on %s", key))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[key]++
	if errs := p.script[key]; len(errs) > 0 {
		err := errs[0]
		p.script[key] = errs[1:]
		return aggregator.Result{}, err
	}
	return aggregator.Result{}, nil
}

func (p *scriptedProcessor) callsFor(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[key]
}
