package collab

import (
	"errors"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
)

var (
	// ErrMissingStore indicates that the coordinator was built without a content store.
	ErrMissingStore = errors.New("collab: content store required")
	// ErrUnknownConnection indicates that the connection is not registered.
	ErrUnknownConnection = errors.New("collab: unknown connection")
	// ErrNotInRoom indicates that the connection has not joined the document room.
	ErrNotInRoom = errors.New("collab: connection has not joined the document")
	// ErrInvalidDisplayName indicates that no usable display name was supplied.
	ErrInvalidDisplayName = errors.New("collab: invalid display name")
	// ErrSaveFailed indicates a transient write-through failure.
	ErrSaveFailed = errors.New("collab: save failed")
	// ErrInvalidEvent indicates an unknown or undecodable inbound event.
	ErrInvalidEvent = errors.New("collab: invalid event")
)

const (
	codeInvalidDocumentID  = "invalid_document_id"
	codeInvalidEditorID    = "invalid_editor_id"
	codeInvalidDisplayName = "invalid_display_name"
	codeNotInRoom          = "not_in_room"
	codeDocumentNotFound   = "document_not_found"
	codeNotTextDocument    = "not_text_document"
	codeSaveFailed         = "save_failed"
	codeInvalidEvent       = "invalid_event"
	codeUnknownConnection  = "unknown_connection"
	codeInternal           = "internal"
)

// ErrorCode maps an operation error to the code reported to the originating connection.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, documents.ErrInvalidDocumentID):
		return codeInvalidDocumentID
	case errors.Is(err, documents.ErrInvalidEditorID):
		return codeInvalidEditorID
	case errors.Is(err, ErrInvalidDisplayName):
		return codeInvalidDisplayName
	case errors.Is(err, ErrNotInRoom):
		return codeNotInRoom
	case errors.Is(err, documents.ErrDocumentNotFound):
		return codeDocumentNotFound
	case errors.Is(err, documents.ErrNotTextDocument):
		return codeNotTextDocument
	case errors.Is(err, ErrSaveFailed):
		return codeSaveFailed
	case errors.Is(err, ErrInvalidEvent):
		return codeInvalidEvent
	case errors.Is(err, ErrUnknownConnection):
		return codeUnknownConnection
	default:
		return codeInternal
	}
}
