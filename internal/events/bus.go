// Package events fans message store changes out to live in-process consumers.
// Delivery is best effort: a slow subscriber loses events, the writer never waits.
package events

import (
	"sync"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
)

type Type string

const (
	TypeNewMessage   Type = "new_message"
	TypeStatusUpdate Type = "status_update"
)

const defaultBuffer = 64

type Event struct {
	Type          Type
	Message       domain.Message
	CorrelationID string
	OccurredAt    time.Time
}

type subscriber struct {
	name string
	ch   chan Event
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	metrics     *observability.Metrics
}

func NewBus(metrics *observability.Metrics) *Bus {
	return &Bus{
		subscribers: make(map[*subscriber]struct{}),
		metrics:     metrics,
	}
}

// Subscribe registers a consumer. The returned cancel func closes the channel
// and must be called once the consumer stops reading.
func (b *Bus) Subscribe(name string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &subscriber{name: name, ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish hands evt to every subscriber with room in its buffer and returns
// the number of subscribers that dropped it.
func (b *Bus) Publish(evt Event) int {
	if b == nil {
		return 0
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for sub := range b.subscribers {
		select {
		case sub.ch <- evt:
		default:
			dropped++
			b.metrics.IncLiveEventDropped(sub.name)
		}
	}
	return dropped
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
