package collab

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
	"go.uber.org/zap"
)

const (
	eventWaitTimeout = 500 * time.Millisecond
	silenceWindow    = 50 * time.Millisecond
)

type savedCall struct {
	documentID documents.DocumentID
	content    string
	editorID   documents.EditorID
}

type fakeStore struct {
	mu       sync.Mutex
	contents map[documents.DocumentID]string
	loads    map[documents.DocumentID]int
	saves    []savedCall
	saveErr  error
}

func newFakeStore(contents map[string]string) *fakeStore {
	store := &fakeStore{
		contents: make(map[documents.DocumentID]string),
		loads:    make(map[documents.DocumentID]int),
	}
	for id, content := range contents {
		store.contents[documents.DocumentID(id)] = content
	}
	return store
}

func (s *fakeStore) Load(_ context.Context, documentID documents.DocumentID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[documentID]++
	content, ok := s.contents[documentID]
	if !ok {
		return "", documents.ErrDocumentNotFound
	}
	return content, nil
}

func (s *fakeStore) Save(_ context.Context, documentID documents.DocumentID, content string, editorID documents.EditorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if _, ok := s.contents[documentID]; !ok {
		return documents.ErrDocumentNotFound
	}
	s.contents[documentID] = content
	s.saves = append(s.saves, savedCall{documentID: documentID, content: content, editorID: editorID})
	return nil
}

func (s *fakeStore) loadCount(documentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[documents.DocumentID(documentID)]
}

func (s *fakeStore) savedCalls() []savedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]savedCall(nil), s.saves...)
}

type sequentialIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("conn-%d", p.next), nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(step)
}

func newTestCoordinator(t *testing.T, store ContentStore, clock *testClock) *Coordinator {
	t.Helper()
	if clock == nil {
		clock = newTestClock()
	}
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:      store,
		Clock:      clock.Now,
		IDProvider: &sequentialIDProvider{},
		Logger:     zap.NewNop(),
		SendBuffer: 64,
	})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}
	return coordinator
}

// connect registers a connection and consumes its welcome event.
func connect(t *testing.T, coordinator *Coordinator, displayName string) *Connection {
	t.Helper()
	connection, err := coordinator.Connect(displayName, "user-"+displayName)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	expectEvent(t, connection, EventWelcome)
	return connection
}

func nextEvent(t *testing.T, connection *Connection) OutboundEvent {
	t.Helper()
	select {
	case event, ok := <-connection.Events():
		if !ok {
			t.Fatalf("stream of %s closed", connection.ID())
		}
		return event
	case <-time.After(eventWaitTimeout):
		t.Fatalf("expected event for %s within deadline", connection.ID())
	}
	return OutboundEvent{}
}

func expectEvent(t *testing.T, connection *Connection, name string) OutboundEvent {
	t.Helper()
	event := nextEvent(t, connection)
	if event.Event != name {
		t.Fatalf("expected %s event for %s, got %s (%#v)", name, connection.ID(), event.Event, event.Data)
	}
	return event
}

func expectSilence(t *testing.T, connection *Connection) {
	t.Helper()
	select {
	case event, ok := <-connection.Events():
		if ok {
			t.Fatalf("did not expect event for %s, got %s (%#v)", connection.ID(), event.Event, event.Data)
		}
	case <-time.After(silenceWindow):
	}
}

func joinDocument(t *testing.T, coordinator *Coordinator, connection *Connection, documentID string) string {
	t.Helper()
	content, err := coordinator.JoinDocument(context.Background(), connection.ID(), documentID)
	if err != nil {
		t.Fatalf("join document failed: %v", err)
	}
	expectEvent(t, connection, EventContentLoaded)
	return content
}

func participantNames(t *testing.T, event OutboundEvent) []string {
	t.Helper()
	message, ok := event.Data.(ParticipantsMessage)
	if !ok {
		t.Fatalf("expected ParticipantsMessage, got %T", event.Data)
	}
	names := make([]string, 0, len(message.Participants))
	for _, participant := range message.Participants {
		names = append(names, participant.DisplayName)
	}
	return names
}

func equalStrings(left, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for index := range left {
		if left[index] != right[index] {
			return false
		}
	}
	return true
}
