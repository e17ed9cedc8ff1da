package collab

import (
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
	"golang.org/x/time/rate"
)

// ConnectionID identifies a single transport session. It is not a user identity.
type ConnectionID string

// String returns the underlying identifier.
func (id ConnectionID) String() string {
	return string(id)
}

// Connection is a live transport session known to the coordinator.
type Connection struct {
	id          ConnectionID
	displayName string
	editorID    string
	chatLimiter *rate.Limiter

	mu        sync.Mutex
	closed    bool
	stream    chan OutboundEvent
	documents map[documents.DocumentID]struct{}
	calls     map[documents.DocumentID]struct{}
}

// ID returns the connection identifier.
func (c *Connection) ID() ConnectionID {
	return c.id
}

// DisplayName returns the name resolved for the connection at connect time.
func (c *Connection) DisplayName() string {
	return c.displayName
}

// EditorID returns the user identifier resolved for the connection at connect time.
func (c *Connection) EditorID() string {
	return c.editorID
}

// Events exposes the outbound stream. It is closed once the connection is forgotten.
func (c *Connection) Events() <-chan OutboundEvent {
	return c.stream
}

// deliver queues an event without blocking. It reports false when the connection is
// gone or its buffer is full.
func (c *Connection) deliver(event OutboundEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.stream <- event:
		return true
	default:
		return false
	}
}

func (c *Connection) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.stream)
	return true
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) trackDocument(documentID documents.DocumentID, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if joined {
		c.documents[documentID] = struct{}{}
		return
	}
	delete(c.documents, documentID)
}

func (c *Connection) trackCall(documentID documents.DocumentID, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if joined {
		c.calls[documentID] = struct{}{}
		return
	}
	delete(c.calls, documentID)
}

// JoinedDocuments returns a snapshot of the document rooms the connection belongs to.
func (c *Connection) JoinedDocuments() []documents.DocumentID {
	c.mu.Lock()
	defer c.mu.Unlock()
	joined := make([]documents.DocumentID, 0, len(c.documents))
	for documentID := range c.documents {
		joined = append(joined, documentID)
	}
	return joined
}

// JoinedCalls returns a snapshot of the call sub-rooms the connection belongs to.
func (c *Connection) JoinedCalls() []documents.DocumentID {
	c.mu.Lock()
	defer c.mu.Unlock()
	joined := make([]documents.DocumentID, 0, len(c.calls))
	for documentID := range c.calls {
		joined = append(joined, documentID)
	}
	return joined
}

// RegistryConfig describes how connections are created.
type RegistryConfig struct {
	IDProvider        documents.IDProvider
	BufferSize        int
	ChatRatePerSecond float64
	ChatBurst         int
}

// Registry tracks every live connection by identifier.
type Registry struct {
	mu          sync.RWMutex
	connections map[ConnectionID]*Connection
	idProvider  documents.IDProvider
	bufferSize  int
	chatRate    rate.Limit
	chatBurst   int
}

// NewRegistry constructs an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = documents.NewUUIDProvider()
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 64
	}
	chatRate := rate.Limit(cfg.ChatRatePerSecond)
	if cfg.ChatRatePerSecond <= 0 {
		chatRate = rate.Inf
	}
	chatBurst := cfg.ChatBurst
	if chatBurst <= 0 {
		chatBurst = 10
	}
	return &Registry{
		connections: make(map[ConnectionID]*Connection),
		idProvider:  idProvider,
		bufferSize:  bufferSize,
		chatRate:    chatRate,
		chatBurst:   chatBurst,
	}
}

// Register creates a connection with a fresh identifier.
func (r *Registry) Register(displayName, editorID string) (*Connection, error) {
	rawID, err := r.idProvider.NewID()
	if err != nil {
		return nil, err
	}
	connection := &Connection{
		id:          ConnectionID(rawID),
		displayName: strings.TrimSpace(displayName),
		editorID:    strings.TrimSpace(editorID),
		chatLimiter: rate.NewLimiter(r.chatRate, r.chatBurst),
		stream:      make(chan OutboundEvent, r.bufferSize),
		documents:   make(map[documents.DocumentID]struct{}),
		calls:       make(map[documents.DocumentID]struct{}),
	}
	r.mu.Lock()
	r.connections[connection.id] = connection
	r.mu.Unlock()
	return connection, nil
}

// Lookup returns the connection registered under id.
func (r *Registry) Lookup(id ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connection, ok := r.connections[id]
	return connection, ok
}

// Forget removes the connection and closes its stream. Unknown ids are ignored.
func (r *Registry) Forget(id ConnectionID) bool {
	r.mu.Lock()
	connection, ok := r.connections[id]
	if ok {
		delete(r.connections, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	return connection.close()
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
