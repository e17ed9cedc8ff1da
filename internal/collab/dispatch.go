package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Handle decodes one inbound event from a connection and applies it. Rejections are
// reported to that connection only.
func (c *Coordinator) Handle(ctx context.Context, connectionID ConnectionID, event InboundEvent) {
	connection, ok := c.registry.Lookup(connectionID)
	if !ok {
		return
	}
	if err := c.dispatch(ctx, connection, event); err != nil {
		c.logger.Debug("inbound event rejected",
			zap.String(fieldConnectionID, connectionID.String()),
			zap.String(fieldEvent, event.Event),
			zap.Error(err))
		c.sendError(connection, event.Event, err)
	}
}

func (c *Coordinator) dispatch(ctx context.Context, connection *Connection, event InboundEvent) error {
	connectionID := connection.ID()
	switch event.Event {
	case EventJoinDocument:
		c.metrics.eventHandled(event.Event)
		var payload documentPayload
		if err := decodePayload(event, &payload); err != nil {
			return err
		}
		_, err := c.JoinDocument(ctx, connectionID, payload.DocumentID)
		return err
	case EventLeaveDocument:
		c.metrics.eventHandled(event.Event)
		var payload documentPayload
		if err := decodePayload(event, &payload); err != nil {
			return err
		}
		return c.LeaveDocument(connectionID, payload.DocumentID)
	case EventEdit:
		c.metrics.eventHandled(event.Event)
		var payload editPayload
		if err := decodePayload(event, &payload); err != nil {
			return err
		}
		return c.ApplyEdit(connectionID, payload.DocumentID, payload.Content)
	case EventSave:
		c.metrics.eventHandled(event.Event)
		var payload savePayload
		if err := decodePayload(event, &payload); err != nil {
			return err
		}
		if _, err := parseDocumentID(payload.DocumentID); err != nil {
			return err
		}
		request := SaveRequest{
			ConnectionID: connectionID,
			DocumentID:   payload.DocumentID,
			Content:      payload.Content,
			EditorID:     payload.EditorID,
		}
		if payload.Timestamp > 0 {
			request.Timestamp = time.UnixMilli(payload.Timestamp)
		}
		c.SubmitSave(request)
		return nil
	case EventJoinCall:
		c.metrics.eventHandled(event.Event)
		var payload joinCallPayload
		if err := decodePayload(event, &payload); err != nil {
			return err
		}
		return c.JoinCall(connectionID, payload.DocumentID, payload.DisplayName)
	case EventLeaveCall:
		c.metrics.eventHandled(event.Event)
		var payload documentPayload
		if err := decodePayload(event, &payload); err != nil {
			return err
		}
		return c.LeaveCall(connectionID, payload.DocumentID)
	case EventSignal:
		c.metrics.eventHandled(event.Event)
		var payload signalPayload
		if err := decodePayload(event, &payload); err != nil {
			return err
		}
		c.Relay(connectionID, ConnectionID(normalize(payload.To)), payload.Data)
		return nil
	case EventSendChat:
		c.metrics.eventHandled(event.Event)
		var payload chatPayload
		if err := decodePayload(event, &payload); err != nil {
			return nil
		}
		return c.SendChat(connectionID, payload.DocumentID, payload.DisplayName, payload.Text)
	case EventGetParticipants:
		c.metrics.eventHandled(event.Event)
		var payload documentPayload
		if err := decodePayload(event, &payload); err != nil {
			return err
		}
		return c.SendParticipants(connectionID, payload.DocumentID)
	default:
		c.metrics.eventHandled("unknown")
		return fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, event.Event)
	}
}

func decodePayload(event InboundEvent, target any) error {
	if len(event.Data) == 0 {
		return fmt.Errorf("%w: missing data for %s", ErrInvalidEvent, event.Event)
	}
	if err := json.Unmarshal(event.Data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}
