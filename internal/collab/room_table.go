package collab

import (
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
)

// documentRoom is the per-document state. Every field below mu is guarded by it.
type documentRoom struct {
	documentID documents.DocumentID

	mu         sync.Mutex
	evicted    bool
	members    map[ConnectionID]*Connection
	content    string
	seeded     bool
	observedAt time.Time
	call       *callRoom
}

// callRoom keeps call participants in join order.
type callRoom struct {
	order []ConnectionID
	names map[ConnectionID]string
}

func newCallRoom() *callRoom {
	return &callRoom{names: make(map[ConnectionID]string)}
}

func (r *callRoom) contains(connectionID ConnectionID) bool {
	_, ok := r.names[connectionID]
	return ok
}

func (r *callRoom) add(connectionID ConnectionID, displayName string) {
	r.order = append(r.order, connectionID)
	r.names[connectionID] = displayName
}

func (r *callRoom) remove(connectionID ConnectionID) {
	if !r.contains(connectionID) {
		return
	}
	delete(r.names, connectionID)
	for index, candidate := range r.order {
		if candidate == connectionID {
			r.order = append(r.order[:index], r.order[index+1:]...)
			break
		}
	}
}

func (r *callRoom) size() int {
	return len(r.order)
}

func (r *callRoom) snapshot() []Participant {
	participants := make([]Participant, 0, len(r.order))
	for _, connectionID := range r.order {
		participants = append(participants, Participant{
			ConnectionID: connectionID,
			DisplayName:  r.names[connectionID],
		})
	}
	return participants
}

func (room *documentRoom) isMember(connectionID ConnectionID) bool {
	_, ok := room.members[connectionID]
	return ok
}

func (room *documentRoom) inCall(connectionID ConnectionID) bool {
	return room.call != nil && room.call.contains(connectionID)
}

func (room *documentRoom) participants() []Participant {
	if room.call == nil {
		return []Participant{}
	}
	return room.call.snapshot()
}

func (room *documentRoom) empty() bool {
	return len(room.members) == 0 && (room.call == nil || room.call.size() == 0)
}

// roomTable owns the document rooms. The table mutex only guards the map; room state is
// guarded by each room's own mutex so different documents never contend.
type roomTable struct {
	mu      sync.Mutex
	rooms   map[documents.DocumentID]*documentRoom
	metrics *Metrics
}

func newRoomTable(metrics *Metrics) *roomTable {
	return &roomTable{
		rooms:   make(map[documents.DocumentID]*documentRoom),
		metrics: metrics,
	}
}

// acquire returns the room locked, creating it when create is set. It returns nil when
// the room does not exist and create is false.
func (t *roomTable) acquire(documentID documents.DocumentID, create bool) *documentRoom {
	for {
		t.mu.Lock()
		room, ok := t.rooms[documentID]
		if !ok {
			if !create {
				t.mu.Unlock()
				return nil
			}
			room = &documentRoom{
				documentID: documentID,
				members:    make(map[ConnectionID]*Connection),
			}
			t.rooms[documentID] = room
			t.metrics.roomCreated()
		}
		t.mu.Unlock()

		room.mu.Lock()
		if !room.evicted {
			return room
		}
		// Evicted between lookup and lock; retry against the current table.
		room.mu.Unlock()
	}
}

// release unlocks the room, evicting it first when nobody is left in it.
func (t *roomTable) release(room *documentRoom) {
	if room.empty() {
		t.mu.Lock()
		if current, ok := t.rooms[room.documentID]; ok && current == room {
			delete(t.rooms, room.documentID)
			t.metrics.roomEvicted()
		}
		t.mu.Unlock()
		room.evicted = true
	}
	room.mu.Unlock()
}

func (t *roomTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms)
}

func (t *roomTable) contains(documentID documents.DocumentID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rooms[documentID]
	return ok
}
