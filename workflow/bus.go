package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/com-junkawasaki/kotoba-sub011/graph"
	"github.com/com-junkawasaki/kotoba-sub011/pkg/timestamp"
)

// Topic separates domain events from control signals on the bus.
type Topic string

const (
	// TopicEvent carries typed domain and execution events.
	TopicEvent Topic = "events"
	// TopicSignal carries named control signals aimed at waiting runs.
	TopicSignal Topic = "signals"
)

// Message is one publication on the event bus. Type is the event type or
// signal name; Attrs carry the payload.
type Message struct {
	Topic Topic          `json:"topic"`
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
	// Time is milliseconds since the Unix epoch.
	Time int64 `json:"time"`
}

// EventBus moves messages between workflow runs and the outside world.
// Implementations must allow concurrent publishers and subscribers.
type EventBus interface {
	// Publish delivers the message to every matching subscriber.
	Publish(ctx context.Context, msg Message) error
	// Subscribe returns a channel delivering messages of the topic whose
	// type equals typ (empty matches every type) and whose attributes
	// contain every filter entry. The cancel function releases the
	// subscription and closes the channel.
	Subscribe(topic Topic, typ string, filter map[string]any) (<-chan Message, func(), error)
}

// MatchesFilter reports whether attrs contains every filter entry with an
// equal value. An empty filter matches anything.
func MatchesFilter(attrs, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := attrs[k]
		if !ok || !graph.ValueEqual(got, want) {
			return false
		}
	}
	return true
}

// subscriberBuffer is the per-subscription channel capacity. A subscriber
// that falls further behind loses messages rather than blocking publishers.
const subscriberBuffer = 16

type busSub struct {
	topic  Topic
	typ    string
	filter map[string]any
	ch     chan Message
	once   sync.Once
}

// InProcBus is the embedded EventBus for tests and single-process
// deployments. Delivery is fan-out with per-subscriber buffers; a full
// buffer drops the message for that subscriber with a warning.
type InProcBus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[int]*busSub
	nextID int
}

var _ EventBus = (*InProcBus)(nil)

// NewInProcBus builds an empty bus. A nil logger falls back to
// slog.Default().
func NewInProcBus(logger *slog.Logger) *InProcBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcBus{
		logger: logger,
		subs:   make(map[int]*busSub),
	}
}

// Publish delivers the message to every matching subscriber without
// blocking. A zero Time is stamped with the current time.
func (b *InProcBus) Publish(_ context.Context, msg Message) error {
	if msg.Time == 0 {
		msg.Time = timestamp.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.topic != msg.Topic {
			continue
		}
		if sub.typ != "" && sub.typ != msg.Type {
			continue
		}
		if !MatchesFilter(msg.Attrs, sub.filter) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			b.logger.Warn("bus subscriber buffer full, dropping message",
				"topic", msg.Topic, "type", msg.Type)
		}
	}
	return nil
}

// Subscribe registers a subscriber for the topic, type and filter.
func (b *InProcBus) Subscribe(topic Topic, typ string, filter map[string]any) (<-chan Message, func(), error) {
	sub := &busSub{
		topic:  topic,
		typ:    typ,
		filter: filter,
		ch:     make(chan Message, subscriberBuffer),
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(sub.ch)
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel, nil
}

// SubscriberCount returns the number of live subscriptions.
func (b *InProcBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
