package events

import (
	"context"
	"sync"
)

// Stream carries every contract workflow event.
const Stream = "events:contracts"

// Event types
const (
	EventContractCreated   = "contract_created"
	EventContractAccepted  = "contract_accepted"
	EventContractRejected  = "contract_rejected"
	EventContractCancelled = "contract_cancelled"
	EventContractCompleted = "contract_completed"

	EventMilestoneCreated       = "milestone_created"
	EventMilestoneUpdated       = "milestone_updated"
	EventMilestoneDeleted       = "milestone_deleted"
	EventMilestoneStatusChanged = "milestone_status_changed"
	EventMilestoneCompleted     = "milestone_completed"

	EventPaymentRequested = "payment_requested"
	EventPaymentApproved  = "payment_approved"
	EventPaymentRejected  = "payment_rejected"
	EventPaymentProcessed = "payment_processed"
)

// Every payload carries contract_id, client_id and freelancer_id so
// consumers can route to the parties without a lookup.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Recipients returns the party ids found in the payload.
func (e Event) Recipients() []string {
	out := make([]string, 0, 2)
	for _, key := range []string{"client_id", "freelancer_id"} {
		if id, ok := e.Payload[key].(string); ok && id != "" {
			out = append(out, id)
		}
	}
	return out
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

// Handler consumes one event. A non-nil error asks brokers that support
// it to deliver the event again.
type Handler func(Event) error

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler Handler) error
}

// MemoryBus delivers events in-process. Used in tests and when no broker
// is configured.
type MemoryBus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	sent     []Event
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

func (b *MemoryBus) Publish(_ context.Context, stream string, event Event) error {
	b.mu.Lock()
	b.sent = append(b.sent, event)
	handlers := append([]Handler{}, b.handlers[stream]...)
	b.mu.Unlock()

	// No redelivery in process; handler errors are dropped.
	for _, h := range handlers {
		_ = h(event)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, stream string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[stream] = append(b.handlers[stream], handler)
	return nil
}

// Sent returns a copy of every event published so far.
func (b *MemoryBus) Sent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event{}, b.sent...)
}

// Types returns the types of every event published so far, in order.
func (b *MemoryBus) Types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	for i, e := range b.sent {
		out[i] = e.Type
	}
	return out
}
