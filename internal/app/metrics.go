package app

import (
	"github.com/pocketrb/core/internal/bus"
	"github.com/pocketrb/core/internal/observability"
	"github.com/pocketrb/core/pkg/models"
)

// attachMetrics subscribes m to the bus's inbound/outbound streams so
// message counters reflect real channel traffic, the same way
// attachAuditLogger hooks the tool-event/state-change streams.
func attachMetrics(b *bus.Bus, m *observability.Metrics) {
	_ = b.Subscribe(bus.StreamInbound, func(event any) {
		msg, ok := event.(models.InboundMessage)
		if !ok {
			return
		}
		m.MessageReceived(msg.Channel, "inbound")
	})

	_ = b.Subscribe(bus.StreamOutbound, func(event any) {
		msg, ok := event.(models.OutboundMessage)
		if !ok {
			return
		}
		m.MessageSent(msg.Channel)
	})

	_ = b.Subscribe(bus.StreamStateChanges, func(event any) {
		e, ok := event.(models.StateChangeEvent)
		if !ok {
			return
		}
		if e.To == models.StateFailed {
			m.RecordError("agent_loop", "state_failed")
		}
	})
}
