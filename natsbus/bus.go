package natsbus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/pkg/timestamp"
	"github.com/com-junkawasaki/kotoba-sub011/workflow"
)

// DefaultSubjectPrefix is the first token of every bus subject.
const DefaultSubjectPrefix = "kotoba"

// defaultSubscriberBuffer is the per-subscription channel capacity. A
// subscriber that falls further behind loses messages rather than blocking
// the NATS dispatch goroutine.
const defaultSubscriberBuffer = 16

// Bus carries workflow events and signals over NATS subjects. Events of
// type T travel on "<prefix>.events.<T>", signals named S on
// "<prefix>.signals.<S>"; payloads are the JSON encoding of
// workflow.Message. Attribute filters are evaluated on the subscriber side,
// NATS only narrows by subject.
type Bus struct {
	client  *Client
	logger  *slog.Logger
	prefix  string
	buffer  int
	metrics *busMetrics

	mu     sync.Mutex
	subs   map[int]*busSubscription
	nextID int
	closed bool
}

var _ workflow.EventBus = (*Bus)(nil)

// BusOption is a functional option for configuring the Bus.
type BusOption func(*Bus)

// WithSubjectPrefix replaces the default "kotoba" subject prefix. The
// prefix must be valid NATS subject tokens, for example "acme.staging".
func WithSubjectPrefix(prefix string) BusOption {
	return func(b *Bus) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithSubscriberBuffer sets the per-subscription channel capacity.
func WithSubscriberBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewBus builds a bus over a client. The client does not have to be
// connected yet; operations before Connect fail with
// errors.ErrNoConnection. A nil logger falls back to slog.Default().
func NewBus(client *Client, logger *slog.Logger, opts ...BusOption) (*Bus, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Bus", "NewBus",
			"build bus without client")
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bus{
		client:  client,
		logger:  logger,
		prefix:  DefaultSubjectPrefix,
		buffer:  defaultSubscriberBuffer,
		metrics: client.metrics,
		subs:    make(map[int]*busSubscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Subject returns the NATS subject carrying messages of the given topic
// and type, for example "kotoba.signals.approval".
func (b *Bus) Subject(topic workflow.Topic, typ string) string {
	return b.prefix + "." + string(topic) + "." + sanitizeToken(typ)
}

// Publish encodes the message and sends it on its subject. A zero Time is
// stamped with the current time.
func (b *Bus) Publish(ctx context.Context, msg workflow.Message) error {
	if msg.Topic == "" || msg.Type == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Bus", "Publish",
			"publish message without topic or type")
	}
	if msg.Time == 0 {
		msg.Time = timestamp.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "Bus", "Publish", "encode message")
	}

	if err := b.client.Publish(ctx, b.Subject(msg.Topic, msg.Type), data); err != nil {
		b.metrics.recordError("publish")
		return errors.WrapTransient(err, "Bus", "Publish",
			fmt.Sprintf("publish %s/%s", msg.Topic, msg.Type))
	}

	b.metrics.recordPublished(string(msg.Topic))
	return nil
}

// Subscribe subscribes to the subject derived from topic and type. An
// empty type subscribes to the topic's wildcard subject. The cancel
// function unsubscribes from NATS and closes the channel.
func (b *Bus) Subscribe(topic workflow.Topic, typ string, filter map[string]any) (<-chan workflow.Message, func(), error) {
	subject := b.prefix + "." + string(topic) + ".*"
	if typ != "" {
		subject = b.Subject(topic, typ)
	}

	entry := &busSubscription{ch: make(chan workflow.Message, b.buffer)}

	handler := func(data []byte) {
		var msg workflow.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			b.metrics.recordError("decode")
			b.logger.Warn("drop undecodable bus message",
				"subject", subject, "error", err)
			return
		}
		// Sanitized subject tokens can collide, so the type from the
		// envelope is authoritative.
		if typ != "" && msg.Type != typ {
			return
		}
		if !workflow.MatchesFilter(msg.Attrs, filter) {
			return
		}
		if entry.deliver(msg) {
			b.metrics.recordDelivered(string(topic))
		} else {
			b.metrics.recordDropped(string(topic))
			b.logger.Warn("bus subscriber buffer full, dropping message",
				"topic", topic, "type", msg.Type)
		}
	}

	sub, err := b.client.Subscribe(subject, handler)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Bus", "Subscribe",
			fmt.Sprintf("subscribe %s", subject))
	}
	entry.sub = sub

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		entry.teardown(b.logger)
		return nil, nil, errors.WrapInvalid(errors.ErrShuttingDown, "Bus", "Subscribe",
			fmt.Sprintf("subscribe %s on closed bus", subject))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = entry
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		entry.teardown(b.logger)
	}
	return entry.ch, cancel, nil
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close cancels every live subscription. The underlying client stays open.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	entries := make([]*busSubscription, 0, len(b.subs))
	for _, entry := range b.subs {
		entries = append(entries, entry)
	}
	b.subs = make(map[int]*busSubscription)
	b.mu.Unlock()

	for _, entry := range entries {
		entry.teardown(b.logger)
	}
	return nil
}

// busSubscription pairs a NATS subscription with its delivery channel. The
// mutex serializes delivery against shutdown: a NATS callback may still be
// in flight when the subscription is cancelled, and the channel must not
// be closed under it.
type busSubscription struct {
	sub *nats.Subscription

	mu     sync.Mutex
	ch     chan workflow.Message
	closed bool
	once   sync.Once
}

// deliver hands the message to the subscriber without blocking. It reports
// false when the buffer is full or the subscription is already closed.
func (s *busSubscription) deliver(msg workflow.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

// teardown unsubscribes from NATS and closes the delivery channel exactly
// once.
func (s *busSubscription) teardown(logger *slog.Logger) {
	s.once.Do(func() {
		if s.sub != nil {
			if err := s.sub.Unsubscribe(); err != nil &&
				!stderrors.Is(err, nats.ErrConnectionClosed) &&
				!stderrors.Is(err, nats.ErrBadSubscription) {
				logger.Warn("unsubscribe bus subscription", "error", err)
			}
		}
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// sanitizeToken maps an event type or signal name onto a single valid NATS
// subject token. Letters, digits, '-' and '_' pass through; everything
// else, including '.', '*' and '>', becomes '_'. Empty input yields "_".
func sanitizeToken(s string) string {
	if s == "" {
		return "_"
	}
	out := []byte(s)
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
