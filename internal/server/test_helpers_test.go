package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/collab"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const testReadTimeout = 2 * time.Second

type stubSessionValidator struct {
	claimsByToken map[string]auth.SessionClaims
	validateErr   error
}

func (s stubSessionValidator) ValidateRequest(r *http.Request) (auth.SessionClaims, error) {
	if s.validateErr != nil {
		return auth.SessionClaims{}, s.validateErr
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, ok := s.claimsByToken[token]
	if !ok {
		return auth.SessionClaims{}, auth.ErrInvalidSessionToken
	}
	return claims, nil
}

type stubUserResolver struct {
	resolveErr error
}

func (s stubUserResolver) ResolveProfile(claims auth.SessionClaims) (users.Profile, error) {
	if s.resolveErr != nil {
		return users.Profile{}, s.resolveErr
	}
	return users.Profile{UserID: claims.UserID, DisplayName: claims.DisplayName()}, nil
}

type memoryStore struct {
	mu       sync.Mutex
	contents map[string]string
	editors  map[string]string
}

func newMemoryStore(contents map[string]string) *memoryStore {
	copied := make(map[string]string, len(contents))
	for documentID, content := range contents {
		copied[documentID] = content
	}
	return &memoryStore{contents: copied, editors: make(map[string]string)}
}

func (s *memoryStore) Load(_ context.Context, documentID documents.DocumentID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.contents[documentID.String()]
	if !ok {
		return "", documents.ErrDocumentNotFound
	}
	return content, nil
}

func (s *memoryStore) Save(_ context.Context, documentID documents.DocumentID, content string, editorID documents.EditorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contents[documentID.String()]; !ok {
		return documents.ErrDocumentNotFound
	}
	s.contents[documentID.String()] = content
	s.editors[documentID.String()] = editorID.String()
	return nil
}

func (s *memoryStore) stored(documentID string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contents[documentID], s.editors[documentID]
}

type testServer struct {
	server      *httptest.Server
	coordinator *collab.Coordinator
	registry    *prometheus.Registry
}

var testClaims = map[string]auth.SessionClaims{
	"alice": {UserID: "user-alice", UserDisplayName: "Alice"},
	"bob":   {UserID: "user-bob", UserDisplayName: "Bob"},
	"carol": {UserID: "user-carol", UserDisplayName: "Carol"},
}

func newTestServer(t *testing.T, store collab.ContentStore, settings RealtimeSettings) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	metrics, err := collab.NewMetrics(registry)
	if err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}
	coordinator, err := collab.NewCoordinator(collab.CoordinatorConfig{
		Store:   store,
		Logger:  zap.NewNop(),
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: stubSessionValidator{claimsByToken: testClaims},
		UserResolver:     stubUserResolver{},
		Coordinator:      coordinator,
		MetricsGatherer:  registry,
		Realtime:         settings,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testServer{server: server, coordinator: coordinator, registry: registry}
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wireClient struct {
	socket       *websocket.Conn
	connectionID string
}

func dial(t *testing.T, server *testServer, token string) *wireClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.server.URL, "http") + "/ws"
	socket, response, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if response != nil && response.Body != nil {
		response.Body.Close()
	}
	t.Cleanup(func() { socket.Close() })

	client := &wireClient{socket: socket}
	var welcome collab.WelcomeMessage
	client.expect(t, collab.EventWelcome, &welcome)
	client.connectionID = string(welcome.ConnectionID)
	return client
}

func (c *wireClient) send(t *testing.T, event string, data any) {
	t.Helper()
	encoded, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	if err := c.socket.WriteJSON(wireEvent{Event: event, Data: encoded}); err != nil {
		t.Fatalf("failed to send %s: %v", event, err)
	}
}

func (c *wireClient) next(t *testing.T) wireEvent {
	t.Helper()
	if err := c.socket.SetReadDeadline(time.Now().Add(testReadTimeout)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	var event wireEvent
	if err := c.socket.ReadJSON(&event); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	return event
}

func (c *wireClient) expect(t *testing.T, name string, target any) {
	t.Helper()
	event := c.next(t)
	if event.Event != name {
		t.Fatalf("expected %s, got %s (%s)", name, event.Event, event.Data)
	}
	if target == nil {
		return
	}
	if err := json.Unmarshal(event.Data, target); err != nil {
		t.Fatalf("failed to decode %s: %v", name, err)
	}
}

func participantIDs(message collab.ParticipantsMessage) []string {
	ids := make([]string, 0, len(message.Participants))
	for _, participant := range message.Participants {
		ids = append(ids, string(participant.ConnectionID))
	}
	return ids
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(testReadTimeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}
