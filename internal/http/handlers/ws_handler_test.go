package handlers

import (
	"sync"
	"testing"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type recordingWriter struct {
	mu      sync.Mutex
	frames  [][]byte
	release chan struct{} // when set, writes block until closed
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	if w.release != nil {
		<-w.release
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, data)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

func partyEvent(client, freelancer uuid.UUID) events.Event {
	return events.Event{Type: events.EventPaymentApproved, Payload: map[string]any{
		"contract_id":   uuid.NewString(),
		"client_id":     client.String(),
		"freelancer_id": freelancer.String(),
	}}
}

func TestWSHubDispatchesOnlyToParties(t *testing.T) {
	hub := NewWSHub("secret", events.NewMemoryBus(), zap.NewNop())
	client, freelancer, outsider := uuid.New(), uuid.New(), uuid.New()

	writers := map[uuid.UUID]*recordingWriter{
		client:     {},
		freelancer: {},
		outsider:   {},
	}
	for id, w := range writers {
		hub.register(id, &wsConn{conn: w})
	}

	if err := hub.Dispatch(partyEvent(client, freelancer)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	tests := []struct {
		name string
		id   uuid.UUID
		want int
	}{
		{"client", client, 1},
		{"freelancer", freelancer, 1},
		{"outsider", outsider, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := writers[tt.id].count(); got != tt.want {
				t.Errorf("frames = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWSHubSlowClientDoesNotBlockRegistration(t *testing.T) {
	hub := NewWSHub("secret", events.NewMemoryBus(), zap.NewNop())
	client, freelancer := uuid.New(), uuid.New()

	slow := &recordingWriter{release: make(chan struct{})}
	hub.register(client, &wsConn{conn: slow})

	dispatched := make(chan struct{})
	go func() {
		_ = hub.Dispatch(partyEvent(client, freelancer))
		close(dispatched)
	}()

	registered := make(chan struct{})
	go func() {
		c := &wsConn{conn: &recordingWriter{}}
		hub.register(freelancer, c)
		hub.unregister(freelancer, c)
		close(registered)
	}()

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("register blocked behind a slow websocket write")
	}

	close(slow.release)
	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not finish after the write was released")
	}
	if slow.count() != 1 {
		t.Errorf("slow client frames = %d, want 1", slow.count())
	}
}
