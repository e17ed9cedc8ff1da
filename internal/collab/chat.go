package collab

import "unicode/utf8"

// SendChat broadcasts a chat message to every member of the document room, the sender
// included. Messages with an empty name or text, text longer than the configured limit,
// senders outside the room and senders over their rate are dropped silently.
func (c *Coordinator) SendChat(connectionID ConnectionID, rawDocumentID, displayName, text string) error {
	documentID, err := parseDocumentID(rawDocumentID)
	if err != nil {
		return err
	}
	connection, err := c.lookup(connectionID)
	if err != nil {
		return err
	}
	name := normalize(displayName)
	if name == "" || normalize(text) == "" || utf8.RuneCountInString(text) > c.chatMaxLength {
		c.metrics.deliveryDropped(dropReasonChatRejected)
		return nil
	}
	if !connection.chatLimiter.Allow() {
		c.metrics.deliveryDropped(dropReasonChatRejected)
		return nil
	}

	room := c.rooms.acquire(documentID, false)
	if room == nil {
		c.metrics.deliveryDropped(dropReasonChatRejected)
		return nil
	}
	defer c.rooms.release(room)
	if !room.isMember(connectionID) {
		c.metrics.deliveryDropped(dropReasonChatRejected)
		return nil
	}

	event := OutboundEvent{
		Event: EventChatMessage,
		Data: ChatMessage{
			DocumentID:  documentID.String(),
			DisplayName: name,
			Text:        text,
			Timestamp:   c.clock().UTC(),
		},
	}
	for _, member := range room.members {
		c.send(member, event)
	}
	return nil
}
