package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultBufferSize bounds the outbound channel. The consumer is a UI
// loop; a burst beyond this means it stopped draining and dropping is
// better than stalling fetch workers.
const DefaultBufferSize = 256

type BusConfig struct {
	BufferSize int
	Logger     *zap.Logger
	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
}

// Bus is a many-producer single-consumer event channel. Publish never
// blocks: when the consumer falls behind, events are counted and
// dropped.
type Bus struct {
	ch      chan Event
	logger  *zap.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool

	delivered atomic.Uint64
	dropped   atomic.Uint64

	countMu   sync.Mutex
	published map[EventType]uint64
}

func NewBus(cfg BusConfig) *Bus {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		ch:        make(chan Event, size),
		logger:    logger.Named("bus"),
		metrics:   cfg.Metrics,
		published: make(map[EventType]uint64),
	}
}

// Events returns the consumer channel. It is closed by Close; a ranged
// read terminates cleanly on shutdown.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Publish delivers an event without blocking. It reports false when the
// event was dropped or the bus is closed.
func (b *Bus) Publish(event Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}

	eventType := event.Type()
	b.countMu.Lock()
	b.published[eventType]++
	b.countMu.Unlock()
	if b.metrics != nil {
		b.metrics.Published.WithLabelValues(string(eventType)).Inc()
	}

	select {
	case b.ch <- event:
		b.delivered.Add(1)
		if b.metrics != nil {
			b.metrics.ChannelDepth.Set(float64(len(b.ch)))
		}
		return true
	default:
		b.dropped.Add(1)
		if b.metrics != nil {
			b.metrics.Dropped.WithLabelValues(string(eventType)).Inc()
		}
		b.logger.Warn("event dropped, consumer not draining",
			zap.String("event_type", string(eventType)))
		return false
	}
}

// Close shuts the bus down. Publish calls after Close are no-ops; the
// consumer channel is closed so range loops end.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}

// Stats returns the delivered and dropped totals.
func (b *Bus) Stats() (delivered, dropped uint64) {
	return b.delivered.Load(), b.dropped.Load()
}

// PublishedByType returns a copy of the per-type publish counters.
func (b *Bus) PublishedByType() map[EventType]uint64 {
	b.countMu.Lock()
	defer b.countMu.Unlock()
	counts := make(map[EventType]uint64, len(b.published))
	for eventType, count := range b.published {
		counts[eventType] = count
	}
	return counts
}
