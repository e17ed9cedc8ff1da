package collab

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
	"go.uber.org/zap"
)

const (
	defaultChatMaxLength = 2000
	defaultSaveTimeout   = 10 * time.Second

	fieldConnectionID = "connection_id"
	fieldDocumentID   = "document_id"
	fieldEvent        = "event"
)

// ContentStore is the document-content contract consumed by the coordinator.
type ContentStore interface {
	Load(ctx context.Context, documentID documents.DocumentID) (string, error)
	Save(ctx context.Context, documentID documents.DocumentID, content string, editorID documents.EditorID) error
}

// CoordinatorConfig describes the dependencies and limits of a Coordinator.
type CoordinatorConfig struct {
	Store             ContentStore
	Clock             func() time.Time
	IDProvider        documents.IDProvider
	Logger            *zap.Logger
	Metrics           *Metrics
	SendBuffer        int
	ChatMaxLength     int
	ChatRatePerSecond float64
	ChatBurst         int
	SaveTimeout       time.Duration
}

// Coordinator tracks presence per document and routes edits, chat, presence and
// signaling between connections.
type Coordinator struct {
	registry      *Registry
	rooms         *roomTable
	store         ContentStore
	clock         func() time.Time
	logger        *zap.Logger
	metrics       *Metrics
	chatMaxLength int
	saveTimeout   time.Duration
	saves         sync.WaitGroup
}

// NewCoordinator validates the configuration and constructs a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, ErrMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	chatMaxLength := cfg.ChatMaxLength
	if chatMaxLength <= 0 {
		chatMaxLength = defaultChatMaxLength
	}
	saveTimeout := cfg.SaveTimeout
	if saveTimeout <= 0 {
		saveTimeout = defaultSaveTimeout
	}
	return &Coordinator{
		registry: NewRegistry(RegistryConfig{
			IDProvider:        cfg.IDProvider,
			BufferSize:        cfg.SendBuffer,
			ChatRatePerSecond: cfg.ChatRatePerSecond,
			ChatBurst:         cfg.ChatBurst,
		}),
		rooms:         newRoomTable(cfg.Metrics),
		store:         cfg.Store,
		clock:         clock,
		logger:        logger,
		metrics:       cfg.Metrics,
		chatMaxLength: chatMaxLength,
		saveTimeout:   saveTimeout,
	}, nil
}

// Connect registers a new connection for an already authenticated user and greets it
// with its connection identifier.
func (c *Coordinator) Connect(displayName, editorID string) (*Connection, error) {
	connection, err := c.registry.Register(displayName, editorID)
	if err != nil {
		c.logger.Error("connection registration failed", zap.Error(err))
		return nil, err
	}
	c.metrics.connectionOpened()
	c.send(connection, OutboundEvent{
		Event: EventWelcome,
		Data: WelcomeMessage{
			ConnectionID: connection.ID(),
			DisplayName:  connection.DisplayName(),
		},
	})
	c.logger.Debug("connection registered", zap.String(fieldConnectionID, connection.ID().String()))
	return connection, nil
}

// Disconnect removes the connection from every room and call it belongs to, publishes
// presence to the affected rooms and forgets the connection. Repeated calls are no-ops.
func (c *Coordinator) Disconnect(connectionID ConnectionID) {
	connection, ok := c.registry.Lookup(connectionID)
	if !ok {
		return
	}
	for _, documentID := range connection.JoinedDocuments() {
		c.leaveDocument(connection, documentID)
	}
	for _, documentID := range connection.JoinedCalls() {
		c.leaveCall(connection, documentID)
	}
	if c.registry.Forget(connectionID) {
		c.metrics.connectionClosed()
		c.logger.Debug("connection forgotten", zap.String(fieldConnectionID, connectionID.String()))
	}
}

// Connection returns the registered connection for id.
func (c *Coordinator) Connection(connectionID ConnectionID) (*Connection, bool) {
	return c.registry.Lookup(connectionID)
}

// ConnectionCount returns the number of registered connections.
func (c *Coordinator) ConnectionCount() int {
	return c.registry.Count()
}

// RoomCount returns the number of document rooms held in memory.
func (c *Coordinator) RoomCount() int {
	return c.rooms.count()
}

// Wait blocks until every in-flight save has completed.
func (c *Coordinator) Wait() {
	c.saves.Wait()
}

func (c *Coordinator) lookup(connectionID ConnectionID) (*Connection, error) {
	connection, ok := c.registry.Lookup(connectionID)
	if !ok {
		return nil, ErrUnknownConnection
	}
	return connection, nil
}

func (c *Coordinator) send(connection *Connection, event OutboundEvent) bool {
	if connection.deliver(event) {
		return true
	}
	c.metrics.deliveryDropped(dropReasonBufferFull)
	c.logger.Debug("outbound event dropped",
		zap.String(fieldConnectionID, connection.ID().String()),
		zap.String(fieldEvent, event.Event))
	return false
}

func (c *Coordinator) sendError(connection *Connection, event string, err error) {
	c.send(connection, OutboundEvent{
		Event: EventError,
		Data: ErrorMessage{
			Event:   event,
			Code:    ErrorCode(err),
			Message: err.Error(),
		},
	})
}

func parseDocumentID(raw string) (documents.DocumentID, error) {
	return documents.NewDocumentID(raw)
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
