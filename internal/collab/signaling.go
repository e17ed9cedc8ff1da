package collab

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Relay delivers an opaque signaling payload to one target connection, tagged with the
// sender. Payloads for targets that are gone are dropped without telling the sender.
func (c *Coordinator) Relay(from, to ConnectionID, payload json.RawMessage) bool {
	if _, ok := c.registry.Lookup(from); !ok {
		return false
	}
	target, ok := c.registry.Lookup(to)
	if !ok {
		c.metrics.deliveryDropped(dropReasonTargetGone)
		c.logger.Debug("signal target gone",
			zap.String(fieldConnectionID, from.String()),
			zap.String("target_connection_id", to.String()))
		return false
	}
	return c.send(target, OutboundEvent{
		Event: EventSignal,
		Data: SignalMessage{
			From: from,
			Data: payload,
		},
	})
}
