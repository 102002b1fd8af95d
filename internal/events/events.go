// Package events fans worker state changes out to interested listeners.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// Notifier receives state change events. Notify must not block the caller
// for long; slow consumers are dropped rather than waited on.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event)
}

// Multi forwards every event to each notifier in order
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event domain.Event) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}

// Hub broadcasts events to in-process subscribers such as SSE streams
type Hub struct {
	buffer int

	mu   sync.RWMutex
	subs map[chan domain.Event]struct{}
}

// NewHub creates a hub whose subscriber channels hold buffer events
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[chan domain.Event]struct{}),
	}
}

// Subscribe registers a listener; call the returned func to unsubscribe
func (h *Hub) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, h.buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Notify delivers event to every subscriber with room in its buffer
func (h *Hub) Notify(_ context.Context, event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publisher is the part of the RabbitMQ client the notifier needs
type Publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// AMQPNotifier publishes events to a RabbitMQ exchange under
// "<prefix>.<event type>" routing keys
type AMQPNotifier struct {
	publisher Publisher
	prefix    string
	logger    *slog.Logger
}

// NewAMQPNotifier creates a notifier publishing through p
func NewAMQPNotifier(p Publisher, prefix string, logger *slog.Logger) *AMQPNotifier {
	if prefix == "" {
		prefix = "worker"
	}
	return &AMQPNotifier{publisher: p, prefix: prefix, logger: logger}
}

func (n *AMQPNotifier) Notify(ctx context.Context, event domain.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Failed to encode event", slog.Any("error", err))
		return
	}

	key := n.prefix + "." + string(event.Type)
	if err := n.publisher.PublishWithRetry(ctx, key, body, "application/json"); err != nil {
		n.logger.Warn("Failed to publish event",
			slog.String("routing_key", key),
			slog.Any("error", err),
		)
	}
}
