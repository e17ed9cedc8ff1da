package collab

import "github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"

// ApplyEdit replaces the room's cached content and sends it to every other member.
// Edits carry whole content; the last edit observed by the room wins.
func (c *Coordinator) ApplyEdit(connectionID ConnectionID, rawDocumentID, content string) error {
	documentID, err := parseDocumentID(rawDocumentID)
	if err != nil {
		return err
	}
	if _, err := c.lookup(connectionID); err != nil {
		return err
	}

	room := c.rooms.acquire(documentID, false)
	if room == nil {
		return ErrNotInRoom
	}
	defer c.rooms.release(room)

	if !room.isMember(connectionID) {
		return ErrNotInRoom
	}
	room.content = content
	room.seeded = true
	room.observedAt = c.clock()

	event := OutboundEvent{
		Event: EventContentChanged,
		Data: ContentMessage{
			DocumentID:   documentID.String(),
			Content:      content,
			ConnectionID: connectionID,
		},
	}
	for memberID, member := range room.members {
		if memberID == connectionID {
			continue
		}
		c.send(member, event)
	}
	return nil
}

// CurrentContent returns the cached content of a document room. The second result is
// false when the room is not in memory or has not been seeded yet.
func (c *Coordinator) CurrentContent(documentID documents.DocumentID) (string, bool) {
	room := c.rooms.acquire(documentID, false)
	if room == nil {
		return "", false
	}
	defer c.rooms.release(room)
	if !room.seeded {
		return "", false
	}
	return room.content, true
}
