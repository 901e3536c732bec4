package broker

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type topicPartition struct {
	topic     string
	partition int
}

// partitionOffsets tracks fetched offsets of one partition that are not yet
// covered by a commit. Offsets arrive from the reader in ascending order.
type partitionOffsets struct {
	mu      sync.Mutex
	pending []int64
	settled map[int64]kafka.Message
}

// offsetTracker lets deliveries settle in any order while the committed
// position only advances over a contiguous run of settled offsets.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[topicPartition]*partitionOffsets
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: make(map[topicPartition]*partitionOffsets)}
}

func (t *offsetTracker) partition(m kafka.Message) *partitionOffsets {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := topicPartition{topic: m.Topic, partition: m.Partition}
	p, ok := t.parts[key]
	if !ok {
		p = &partitionOffsets{settled: make(map[int64]kafka.Message)}
		t.parts[key] = p
	}
	return p
}

func (t *offsetTracker) fetched(m kafka.Message) {
	p := t.partition(m)
	p.mu.Lock()
	p.pending = append(p.pending, m.Offset)
	p.mu.Unlock()
}

// settle marks m finished and calls commit with the highest message whose
// offset and every earlier pending offset are settled. commit runs under the
// partition lock so commits for one partition never go backwards. Nothing is
// committed while an earlier offset is still in flight.
func (t *offsetTracker) settle(m kafka.Message, commit func(kafka.Message) error) error {
	p := t.partition(m)
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settled[m.Offset] = m

	var (
		last     kafka.Message
		advanced bool
	)
	for len(p.pending) > 0 {
		head, ok := p.settled[p.pending[0]]
		if !ok {
			break
		}
		delete(p.settled, p.pending[0])
		p.pending = p.pending[1:]
		last, advanced = head, true
	}
	if !advanced {
		return nil
	}
	return commit(last)
}
