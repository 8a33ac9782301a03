package pool

import (
	"log/slog"
	"sync"

	"firestige.xyz/lowpan/internal/core"
	"firestige.xyz/lowpan/internal/metrics"
)

// DefaultConsumers is the registry capacity when the config leaves it zero.
const DefaultConsumers = 4

// ConsumerID is an opaque consumer identifier.
type ConsumerID string

// consumer pairs an identifier with its injected delivery capability.
type consumer struct {
	id    ConsumerID
	inbox chan<- core.Frame
}

// Registry is a bounded set of registered consumers. Delivery is push
// based: each consumer gets its own copy of the frame on its inbox
// channel, and a full inbox loses the frame for that consumer only.
type Registry struct {
	mu        sync.Mutex
	capacity  int
	consumers []consumer
}

// NewRegistry creates a registry with the given capacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultConsumers
	}
	return &Registry{capacity: capacity}
}

// Register adds a consumer. Registering an already-known id is
// idempotent; registering beyond capacity fails without mutating state.
func (r *Registry) Register(id ConsumerID, inbox chan<- core.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.consumers {
		if c.id == id {
			return nil
		}
	}
	if len(r.consumers) >= r.capacity {
		return core.ErrRegistryFull
	}
	r.consumers = append(r.consumers, consumer{id: id, inbox: inbox})
	metrics.ConsumersRegistered.Set(float64(len(r.consumers)))
	return nil
}

// Unregister removes a consumer. Unknown ids are a no-op.
func (r *Registry) Unregister(id ConsumerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.consumers {
		if c.id == id {
			r.consumers = append(r.consumers[:i], r.consumers[i+1:]...)
			metrics.ConsumersRegistered.Set(float64(len(r.consumers)))
			return
		}
	}
}

// DeliverAll enqueues a copy of the frame to every consumer's inbox and
// returns how many accepted it. A consumer whose inbox is full is
// skipped; delivery to the others proceeds. No registered consumers is
// a no-op, not an error.
func (r *Registry) DeliverAll(data []byte) int {
	r.mu.Lock()
	consumers := make([]consumer, len(r.consumers))
	copy(consumers, r.consumers)
	r.mu.Unlock()

	delivered := 0
	for _, c := range consumers {
		buf := make([]byte, len(data))
		copy(buf, data)
		select {
		case c.inbox <- core.Frame{Len: len(buf), Data: buf}:
			delivered++
		default:
			metrics.ConsumerDropsTotal.WithLabelValues(string(c.id)).Inc()
			slog.Debug("consumer inbox full, frame lost", "consumer", string(c.id))
		}
	}
	return delivered
}

// Len returns the number of registered consumers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consumers)
}

// IDs returns the registered consumer identifiers in registration order.
func (r *Registry) IDs() []ConsumerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]ConsumerID, len(r.consumers))
	for i, c := range r.consumers {
		ids[i] = c.id
	}
	return ids
}
