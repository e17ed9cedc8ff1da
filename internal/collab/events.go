package collab

import (
	"encoding/json"
	"time"
)

// Inbound event names.
const (
	EventJoinDocument    = "join-document"
	EventLeaveDocument   = "leave-document"
	EventEdit            = "edit"
	EventSave            = "save"
	EventJoinCall        = "join-call"
	EventLeaveCall       = "leave-call"
	EventSignal          = "signal"
	EventSendChat        = "send-chat"
	EventGetParticipants = "get-participants"
)

// Outbound event names. EventSignal is shared by both directions.
const (
	EventWelcome        = "welcome"
	EventContentLoaded  = "content-loaded"
	EventContentChanged = "content-changed"
	EventParticipants   = "participants"
	EventPeerJoined     = "peer-joined"
	EventPeerLeft       = "peer-left"
	EventChatMessage    = "chat-message"
	EventDocumentSaved  = "document-saved"
	EventError          = "error"
)

// InboundEvent is a frame received from a connection.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundEvent is a frame queued for delivery to a connection.
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Participant is one entry of a call presence snapshot.
type Participant struct {
	ConnectionID ConnectionID `json:"connectionId"`
	DisplayName  string       `json:"displayName"`
}

// WelcomeMessage tells a connection its own identity.
type WelcomeMessage struct {
	ConnectionID ConnectionID `json:"connectionId"`
	DisplayName  string       `json:"displayName"`
}

// ContentMessage carries whole document content for content-loaded and content-changed.
type ContentMessage struct {
	DocumentID   string       `json:"documentId"`
	Content      string       `json:"content"`
	ConnectionID ConnectionID `json:"connectionId,omitempty"`
}

// ParticipantsMessage carries a presence snapshot.
type ParticipantsMessage struct {
	DocumentID   string        `json:"documentId"`
	Participants []Participant `json:"participants"`
}

// PeerMessage announces a call member joining or leaving.
type PeerMessage struct {
	DocumentID   string       `json:"documentId"`
	ConnectionID ConnectionID `json:"connectionId"`
	DisplayName  string       `json:"displayName,omitempty"`
}

// SignalMessage relays an opaque signaling payload.
type SignalMessage struct {
	From ConnectionID    `json:"from"`
	Data json.RawMessage `json:"data"`
}

// ChatMessage is an ephemeral chat broadcast.
type ChatMessage struct {
	DocumentID  string    `json:"documentId"`
	DisplayName string    `json:"displayName"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// SavedMessage acknowledges a successful write-through.
type SavedMessage struct {
	DocumentID string    `json:"documentId"`
	SavedAt    time.Time `json:"savedAt"`
}

// ErrorMessage reports a rejected inbound event to its sender.
type ErrorMessage struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type documentPayload struct {
	DocumentID string `json:"documentId"`
}

type editPayload struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
}

type savePayload struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	EditorID   string `json:"editorId"`
	Timestamp  int64  `json:"timestamp"`
}

type joinCallPayload struct {
	DocumentID  string `json:"documentId"`
	DisplayName string `json:"displayName"`
}

type signalPayload struct {
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

type chatPayload struct {
	DocumentID  string `json:"documentId"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
}
