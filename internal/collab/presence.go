package collab

// PublishPresence broadcasts the document's call participants to every member of the
// document room. Publishing an unchanged snapshot again is harmless.
func (c *Coordinator) PublishPresence(rawDocumentID string) error {
	documentID, err := parseDocumentID(rawDocumentID)
	if err != nil {
		return err
	}
	room := c.rooms.acquire(documentID, false)
	if room == nil {
		return nil
	}
	defer c.rooms.release(room)
	c.publishPresenceLocked(room)
	return nil
}

// SendParticipants answers a participants query point-to-point.
func (c *Coordinator) SendParticipants(connectionID ConnectionID, rawDocumentID string) error {
	documentID, err := parseDocumentID(rawDocumentID)
	if err != nil {
		return err
	}
	connection, err := c.lookup(connectionID)
	if err != nil {
		return err
	}
	participants, err := c.CurrentParticipants(documentID.String())
	if err != nil {
		return err
	}
	c.send(connection, OutboundEvent{
		Event: EventParticipants,
		Data: ParticipantsMessage{
			DocumentID:   documentID.String(),
			Participants: participants,
		},
	})
	return nil
}

func (c *Coordinator) publishPresenceLocked(room *documentRoom) {
	event := participantsEvent(room)
	for _, member := range room.members {
		c.send(member, event)
	}
}

func participantsEvent(room *documentRoom) OutboundEvent {
	return OutboundEvent{
		Event: EventParticipants,
		Data: ParticipantsMessage{
			DocumentID:   room.documentID.String(),
			Participants: room.participants(),
		},
	}
}
