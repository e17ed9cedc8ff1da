package collab

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
	"go.uber.org/zap"
)

// JoinDocument subscribes the connection to the document room, seeding the room's
// content from the store on first use. The current content is pushed to the joiner only
// and also returned.
func (c *Coordinator) JoinDocument(ctx context.Context, connectionID ConnectionID, rawDocumentID string) (string, error) {
	documentID, err := parseDocumentID(rawDocumentID)
	if err != nil {
		return "", err
	}
	connection, err := c.lookup(connectionID)
	if err != nil {
		return "", err
	}

	room := c.rooms.acquire(documentID, true)
	defer c.rooms.release(room)

	if connection.isClosed() {
		return "", ErrUnknownConnection
	}
	if !room.seeded {
		content, loadErr := c.store.Load(ctx, documentID)
		if loadErr != nil {
			c.logLoadFailure(documentID, connectionID, loadErr)
			return "", loadErr
		}
		room.content = content
		room.seeded = true
	}

	room.members[connectionID] = connection
	connection.trackDocument(documentID, true)
	c.send(connection, OutboundEvent{
		Event: EventContentLoaded,
		Data: ContentMessage{
			DocumentID: documentID.String(),
			Content:    room.content,
		},
	})
	return room.content, nil
}

// LeaveDocument removes the connection from the document room, and from its call when
// present. The room and its cached content are discarded once empty.
func (c *Coordinator) LeaveDocument(connectionID ConnectionID, rawDocumentID string) error {
	documentID, err := parseDocumentID(rawDocumentID)
	if err != nil {
		return err
	}
	connection, err := c.lookup(connectionID)
	if err != nil {
		return err
	}
	c.leaveDocument(connection, documentID)
	return nil
}

// JoinCall adds the connection to the document's call. Joining a call implies joining the
// document room. Existing call members are told about the newcomer so they can start
// signaling towards it, and the presence snapshot is published to the whole room.
func (c *Coordinator) JoinCall(connectionID ConnectionID, rawDocumentID, displayName string) error {
	documentID, err := parseDocumentID(rawDocumentID)
	if err != nil {
		return err
	}
	connection, err := c.lookup(connectionID)
	if err != nil {
		return err
	}
	name := normalize(displayName)
	if name == "" {
		name = connection.DisplayName()
	}
	if name == "" {
		return ErrInvalidDisplayName
	}

	room := c.rooms.acquire(documentID, true)
	defer c.rooms.release(room)

	if connection.isClosed() {
		return ErrUnknownConnection
	}
	if !room.isMember(connectionID) {
		room.members[connectionID] = connection
		connection.trackDocument(documentID, true)
	}
	if room.inCall(connectionID) {
		c.send(connection, participantsEvent(room))
		return nil
	}
	if room.call == nil {
		room.call = newCallRoom()
	}

	existing := room.call.snapshot()
	room.call.add(connectionID, name)
	connection.trackCall(documentID, true)

	notice := OutboundEvent{
		Event: EventPeerJoined,
		Data: PeerMessage{
			DocumentID:   documentID.String(),
			ConnectionID: connectionID,
			DisplayName:  name,
		},
	}
	for _, participant := range existing {
		if peer, ok := room.members[participant.ConnectionID]; ok {
			c.send(peer, notice)
		}
	}
	c.publishPresenceLocked(room)
	return nil
}

// LeaveCall removes the connection from the document's call. Leaving a call the
// connection is not part of is a no-op.
func (c *Coordinator) LeaveCall(connectionID ConnectionID, rawDocumentID string) error {
	documentID, err := parseDocumentID(rawDocumentID)
	if err != nil {
		return err
	}
	connection, err := c.lookup(connectionID)
	if err != nil {
		return err
	}
	c.leaveCall(connection, documentID)
	return nil
}

// CurrentParticipants returns the call participants of a document in join order.
func (c *Coordinator) CurrentParticipants(rawDocumentID string) ([]Participant, error) {
	documentID, err := parseDocumentID(rawDocumentID)
	if err != nil {
		return nil, err
	}
	room := c.rooms.acquire(documentID, false)
	if room == nil {
		return []Participant{}, nil
	}
	defer c.rooms.release(room)
	return room.participants(), nil
}

func (c *Coordinator) leaveDocument(connection *Connection, documentID documents.DocumentID) {
	room := c.rooms.acquire(documentID, false)
	if room == nil {
		connection.trackDocument(documentID, false)
		connection.trackCall(documentID, false)
		return
	}
	defer c.rooms.release(room)

	delete(room.members, connection.ID())
	connection.trackDocument(documentID, false)
	if room.inCall(connection.ID()) {
		c.removeFromCallLocked(room, connection)
	}
}

func (c *Coordinator) leaveCall(connection *Connection, documentID documents.DocumentID) {
	room := c.rooms.acquire(documentID, false)
	if room == nil {
		connection.trackCall(documentID, false)
		return
	}
	defer c.rooms.release(room)

	if !room.inCall(connection.ID()) {
		connection.trackCall(documentID, false)
		return
	}
	c.removeFromCallLocked(room, connection)
}

func (c *Coordinator) removeFromCallLocked(room *documentRoom, connection *Connection) {
	room.call.remove(connection.ID())
	connection.trackCall(room.documentID, false)
	if room.call.size() == 0 {
		room.call = nil
	}

	if room.call != nil {
		notice := OutboundEvent{
			Event: EventPeerLeft,
			Data: PeerMessage{
				DocumentID:   room.documentID.String(),
				ConnectionID: connection.ID(),
			},
		}
		for _, participant := range room.call.snapshot() {
			if peer, ok := room.members[participant.ConnectionID]; ok {
				c.send(peer, notice)
			}
		}
	}
	c.publishPresenceLocked(room)
}

func (c *Coordinator) logLoadFailure(documentID documents.DocumentID, connectionID ConnectionID, err error) {
	fields := []zap.Field{
		zap.String(fieldDocumentID, documentID.String()),
		zap.String(fieldConnectionID, connectionID.String()),
		zap.Error(err),
	}
	if errors.Is(err, documents.ErrDocumentNotFound) || errors.Is(err, documents.ErrNotTextDocument) {
		c.logger.Info("document join rejected", fields...)
		return
	}
	c.logger.Error("document content load failed", fields...)
}
