// Package channel carries firings from the trigger registry to the
// dispatch pool. The bus is a priority queue, not a FIFO: when several
// firings are pending at once, lower priority values are handed to workers
// first, and equal priorities preserve emission order.
package channel

import (
	"container/heap"
	"context"
	"sync"

	"github.com/ralpioxxcs/vtlr/internal/domain"
)

// MetricsSink records bus metrics. Implementations must be non-blocking.
type MetricsSink interface {
	QueueDepthUpdate(depth int)
	QueueCapacitySet(capacity int)
}

// Option configures a FiringBus.
type Option func(*FiringBus)

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(sink MetricsSink) Option {
	return func(b *FiringBus) {
		b.metrics = sink
	}
}

// FiringBus is a bounded, priority-ordered firing queue. Emit blocks while
// the bus is full; Next blocks while it is empty. Both respect context
// cancellation.
type FiringBus struct {
	mu       sync.Mutex
	items    firingHeap
	seq      uint64
	capacity int
	metrics  MetricsSink

	// notify wakes consumers after a push, space wakes producers after a
	// pop. Both are capacity-1 signal channels; receivers re-check state
	// in a loop, so a coalesced signal is never a lost wakeup.
	notify chan struct{}
	space  chan struct{}
}

func NewFiringBus(capacity int, opts ...Option) *FiringBus {
	if capacity <= 0 {
		capacity = 1
	}
	b := &FiringBus{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.QueueCapacitySet(capacity)
	}
	return b
}

// Emit enqueues a firing, blocking while the bus is full.
func (b *FiringBus) Emit(ctx context.Context, firing domain.Firing) error {
	for {
		b.mu.Lock()
		if b.items.Len() < b.capacity {
			b.seq++
			heap.Push(&b.items, queued{firing: firing, seq: b.seq})
			depth := b.items.Len()
			b.mu.Unlock()

			b.signal(b.notify)
			b.reportDepth(depth)
			return nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.space:
		}
	}
}

// Next returns the highest-priority pending firing, blocking while the bus
// is empty.
func (b *FiringBus) Next(ctx context.Context) (domain.Firing, error) {
	for {
		b.mu.Lock()
		if b.items.Len() > 0 {
			item := heap.Pop(&b.items).(queued)
			depth := b.items.Len()
			b.mu.Unlock()

			b.signal(b.space)
			if depth > 0 {
				// More items pending: cascade the wakeup so sibling
				// consumers are not left sleeping.
				b.signal(b.notify)
			}
			b.reportDepth(depth)
			return item.firing, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Firing{}, ctx.Err()
		case <-b.notify:
		}
	}
}

// Len returns the number of pending firings.
func (b *FiringBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items.Len()
}

func (b *FiringBus) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (b *FiringBus) reportDepth(depth int) {
	if b.metrics != nil {
		b.metrics.QueueDepthUpdate(depth)
	}
}

type queued struct {
	firing domain.Firing
	seq    uint64
}

type firingHeap []queued

func (h firingHeap) Len() int { return len(h) }

func (h firingHeap) Less(i, j int) bool {
	if h[i].firing.Priority != h[j].firing.Priority {
		return h[i].firing.Priority < h[j].firing.Priority
	}
	return h[i].seq < h[j].seq
}

func (h firingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *firingHeap) Push(x any) {
	*h = append(*h, x.(queued))
}

func (h *firingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
