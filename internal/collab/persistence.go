package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
	"go.uber.org/zap"
)

// SaveRequest carries the latest content a client wants persisted.
type SaveRequest struct {
	ConnectionID ConnectionID
	DocumentID   string
	Content      string
	EditorID     string
	// Timestamp is when the client produced Content. Zero means the time of receipt.
	Timestamp time.Time
}

// Save writes the content through to the store and then refreshes the room cache,
// unless the room has observed an edit newer than the request's timestamp. Failures are
// logged and returned; they are never retried here.
func (c *Coordinator) Save(ctx context.Context, request SaveRequest) error {
	documentID, err := parseDocumentID(request.DocumentID)
	if err != nil {
		return err
	}
	origin, _ := c.registry.Lookup(request.ConnectionID)

	rawEditorID := request.EditorID
	if normalize(rawEditorID) == "" && origin != nil {
		rawEditorID = origin.EditorID()
	}
	editorID, err := documents.NewEditorID(rawEditorID)
	if err != nil {
		return err
	}
	timestamp := request.Timestamp
	if timestamp.IsZero() {
		timestamp = c.clock()
	}

	storeErr := c.store.Save(ctx, documentID, request.Content, editorID)
	c.metrics.saveCompleted(storeErr)
	if storeErr != nil {
		c.logger.Error("document save failed",
			zap.String("operation", "collab.save"),
			zap.String(fieldDocumentID, documentID.String()),
			zap.String(fieldConnectionID, request.ConnectionID.String()),
			zap.String("editor_id", editorID.String()),
			zap.Error(storeErr))
		if errors.Is(storeErr, documents.ErrDocumentNotFound) || errors.Is(storeErr, documents.ErrNotTextDocument) {
			return storeErr
		}
		return fmt.Errorf("%w: %v", ErrSaveFailed, storeErr)
	}

	c.refreshCache(documentID, request.Content, timestamp)

	if origin != nil {
		c.send(origin, OutboundEvent{
			Event: EventDocumentSaved,
			Data: SavedMessage{
				DocumentID: documentID.String(),
				SavedAt:    c.clock().UTC(),
			},
		})
	}
	return nil
}

// SubmitSave runs Save on its own goroutine so store latency never holds up the caller.
// Failures are reported to the originating connection.
func (c *Coordinator) SubmitSave(request SaveRequest) {
	c.saves.Add(1)
	go func() {
		defer c.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
		defer cancel()
		if err := c.Save(ctx, request); err != nil {
			if origin, ok := c.registry.Lookup(request.ConnectionID); ok {
				c.sendError(origin, EventSave, err)
			}
		}
	}()
}

func (c *Coordinator) refreshCache(documentID documents.DocumentID, content string, timestamp time.Time) {
	room := c.rooms.acquire(documentID, false)
	if room == nil {
		return
	}
	defer c.rooms.release(room)
	if room.observedAt.After(timestamp) {
		c.logger.Debug("stale save left cache untouched",
			zap.String(fieldDocumentID, documentID.String()),
			zap.Time("save_timestamp", timestamp),
			zap.Time("observed_at", room.observedAt))
		return
	}
	room.content = content
	room.seeded = true
	room.observedAt = timestamp
}
