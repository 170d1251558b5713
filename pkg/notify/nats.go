package notify

import (
	"context"
	"fmt"

	"github.com/odvcencio/northstar/pkg/bus"
)

// BusAdapter publishes notification events onto the coordination bus so
// external listeners (dashboards, chat bridges) can consume them.
type BusAdapter struct {
	bus     bus.MessageBus
	subject string
}

// NewBusAdapter creates a bus-backed adapter. subject is the base subject;
// the event type is appended, e.g. "northstar.notify.gate_opened".
func NewBusAdapter(b bus.MessageBus, subject string) *BusAdapter {
	if subject == "" {
		subject = "northstar.notify"
	}
	return &BusAdapter{bus: b, subject: subject}
}

// Name returns the adapter name.
func (a *BusAdapter) Name() string {
	return "bus"
}

// Send publishes the event.
func (a *BusAdapter) Send(ctx context.Context, event *Event) error {
	subject := fmt.Sprintf("%s.%s", a.subject, event.Type)
	return a.bus.Publish(ctx, subject, event.JSON())
}

// Close is a no-op; the bus is owned by the caller.
func (a *BusAdapter) Close() error {
	return nil
}
