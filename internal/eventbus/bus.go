// Package eventbus is a small partitioned in-memory pub/sub onto which
// Coordinators publish their progress events; no control-surface operation
// subscribes to it. Partitioning is keyed by session_id so a single job's
// events are always observed in publish order.
package eventbus

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Bus is the generic publish/subscribe event bus.
type Bus interface {
	Publish(event *Event) error
	Subscribe(topic string, handler Handler) error
	Close() error
	Stats() Stats
}

// Stats reports bus-wide counters.
type Stats struct {
	Published      int64
	Processed      int64
	PartitionCount int
	QueueDepths    []int
}

// InMemoryBus is the default Bus implementation: events are hashed onto one
// of a fixed number of partitions, each drained by its own goroutine, so
// events sharing a key are processed strictly in publish order while
// different keys process concurrently.
type InMemoryBus struct {
	partitions     []*partition
	partitionCount int
	queueSize      int
	subscribers    map[string]Handler
	mu             sync.RWMutex
	closed         int32

	published int64
	processed int64
}

// NewInMemoryBus creates a Bus with partitionCount goroutines, each with a
// queueSize-deep buffered channel.
func NewInMemoryBus(partitionCount, queueSize int) *InMemoryBus {
	if partitionCount < 1 {
		partitionCount = 1
	}
	b := &InMemoryBus{
		partitionCount: partitionCount,
		queueSize:      queueSize,
		subscribers:    make(map[string]Handler),
		partitions:     make([]*partition, partitionCount),
	}

	for i := 0; i < partitionCount; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		b.partitions[i] = &partition{
			id:     i,
			queue:  make(chan *Event, queueSize),
			ctx:    ctx,
			cancel: cancel,
		}
		go b.runPartition(b.partitions[i])
	}

	return b
}

// Publish routes event to the partition selected by hashing event.Key.
func (b *InMemoryBus) Publish(event *Event) error {
	if atomic.LoadInt32(&b.closed) == 1 {
		return fmt.Errorf("eventbus: closed")
	}

	p := b.partitions[b.partitionFor(event.Key)]
	select {
	case p.queue <- event:
		atomic.AddInt64(&b.published, 1)
		return nil
	default:
		return fmt.Errorf("eventbus: partition %d queue full", p.id)
	}
}

// Subscribe registers handler for topic. Only one handler per topic; a
// second call replaces the first.
func (b *InMemoryBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if atomic.LoadInt32(&b.closed) == 1 {
		return fmt.Errorf("eventbus: closed")
	}

	b.subscribers[topic] = handler
	for _, p := range b.partitions {
		p.handler = b.dispatch
	}
	return nil
}

// Close stops every partition goroutine. Idempotent.
func (b *InMemoryBus) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}
	for _, p := range b.partitions {
		p.cancel()
		close(p.queue)
	}
	return nil
}

// Stats returns a point-in-time snapshot of bus counters.
func (b *InMemoryBus) Stats() Stats {
	s := Stats{
		Published:      atomic.LoadInt64(&b.published),
		Processed:      atomic.LoadInt64(&b.processed),
		PartitionCount: b.partitionCount,
		QueueDepths:    make([]int, b.partitionCount),
	}
	for i, p := range b.partitions {
		s.QueueDepths[i] = len(p.queue)
	}
	return s
}

func (b *InMemoryBus) partitionFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % b.partitionCount
}

func (b *InMemoryBus) dispatch(event *Event) error {
	b.mu.RLock()
	handler, ok := b.subscribers[event.Topic]
	b.mu.RUnlock()

	if !ok {
		return nil
	}
	return handler(event)
}

func (b *InMemoryBus) runPartition(p *partition) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case event, ok := <-p.queue:
			if !ok {
				return
			}
			if p.handler != nil {
				if err := p.handler(event); err != nil {
					slog.Error("eventbus handler failed", "partition", p.id, "topic", event.Topic, "error", err)
				} else {
					atomic.AddInt64(&b.processed, 1)
				}
			}
		}
	}
}
