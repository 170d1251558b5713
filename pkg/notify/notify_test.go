package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/northstar/pkg/bus"
	"github.com/odvcencio/northstar/pkg/gate"
)

type fakeAdapter struct {
	name string
	err  error

	mu     sync.Mutex
	events []*Event
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Send(_ context.Context, event *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeAdapter) Close() error { return nil }

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeAdapter) last() *Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return f.events[len(f.events)-1]
}

func TestManagerFanOut(t *testing.T) {
	a := &fakeAdapter{name: "a"}
	b := &fakeAdapter{name: "b"}
	m := NewManager(nil, a, b)

	err := m.Notify(context.Background(), &Event{Type: EventGateOpened, Title: "t", Message: "m"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", a.count(), b.count())
	}
}

func TestManagerFailedAdapterDoesNotBlockOthers(t *testing.T) {
	broken := &fakeAdapter{name: "broken", err: errors.New("webhook down")}
	healthy := &fakeAdapter{name: "healthy"}
	m := NewManager(nil, broken, healthy)

	err := m.Notify(context.Background(), &Event{Type: EventKill, Title: "t", Message: "m"})
	if err == nil {
		t.Error("expected delivery error to surface")
	}
	if healthy.count() != 1 {
		t.Error("healthy adapter must still receive the event")
	}
}

func TestManagerGateNotifier(t *testing.T) {
	a := &fakeAdapter{name: "a"}
	m := NewManager(nil, a)

	g := &gate.Gate{
		ID:           "g1",
		ExperimentID: "exp-1",
		Type:         gate.TypeLaunch,
		Assignee:     "u1",
		Question:     "Launch?",
		SLAHours:     24,
		Status:       gate.StatusPending,
		CreatedAt:    time.Now(),
	}

	ctx := context.Background()
	m.GateCreated(ctx, g)
	m.GateReminder(ctx, g)
	m.GateEscalated(ctx, g, "u0")
	m.GateTimedOut(ctx, g)
	m.ExperimentKilled(ctx, "exp-1", "guardrail constraint violated", nil)

	if a.count() != 5 {
		t.Fatalf("deliveries = %d, want 5", a.count())
	}
	if a.last().Type != EventKill {
		t.Errorf("last event = %q, want %q", a.last().Type, EventKill)
	}
}

func TestManagerGateNotifierSwallowsErrors(t *testing.T) {
	broken := &fakeAdapter{name: "broken", err: errors.New("down")}
	m := NewManager(nil, broken)

	// Must not panic or propagate: gate.Notifier callbacks are fire-and-forget.
	m.GateCreated(context.Background(), &gate.Gate{ID: "g1", Type: gate.TypeLaunch})
}

func TestBusAdapter(t *testing.T) {
	mb := bus.NewMemoryBus()
	defer mb.Close()

	received := make(chan *bus.Message, 1)
	sub, _ := mb.Subscribe(context.Background(), "northstar.notify.>", func(msg *bus.Message) []byte {
		received <- msg
		return nil
	})
	defer sub.Unsubscribe()

	adapter := NewBusAdapter(mb, "")
	event := &Event{ID: "evt-1", Type: EventGateOpened, GateID: "g1", Title: "t", Message: "m"}
	if err := adapter.Send(context.Background(), event); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Subject != "northstar.notify.gate_opened" {
			t.Errorf("subject = %q", msg.Subject)
		}
		parsed, err := ParseEvent(msg.Data)
		if err != nil {
			t.Fatalf("ParseEvent: %v", err)
		}
		if parsed.GateID != "g1" {
			t.Errorf("gate id = %q, want g1", parsed.GateID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for bus delivery")
	}
}
