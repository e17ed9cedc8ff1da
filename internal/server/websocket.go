package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/collab"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultPingInterval    = 25 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultWriteWait       = 10 * time.Second
	defaultMaxMessageBytes = 1 << 20
)

// RealtimeSettings bounds the liveness and frame size of websocket sessions.
type RealtimeSettings struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
}

func (s RealtimeSettings) withDefaults() RealtimeSettings {
	if s.PingInterval <= 0 {
		s.PingInterval = defaultPingInterval
	}
	if s.PongWait <= s.PingInterval {
		s.PongWait = defaultPongWait
		if s.PongWait <= s.PingInterval {
			s.PongWait = s.PingInterval * 2
		}
	}
	if s.WriteWait <= 0 {
		s.WriteWait = defaultWriteWait
	}
	if s.MaxMessageBytes <= 0 {
		s.MaxMessageBytes = defaultMaxMessageBytes
	}
	return s
}

func (h *httpHandler) handleWebsocket(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	connection, err := h.coordinator.Connect(profile.DisplayName, profile.UserID)
	if err != nil {
		deadline := time.Now().Add(h.realtime.WriteWait)
		_ = socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "registration failed"), deadline)
		_ = socket.Close()
		return
	}

	session := &websocketSession{
		socket:      socket,
		connection:  connection,
		coordinator: h.coordinator,
		settings:    h.realtime,
		logger:      h.logger.With(zap.String("connection_id", connection.ID().String())),
	}
	session.run()
}

// websocketSession pumps frames between one socket and its coordinator connection.
// The read loop is the only reader and the write loop the only writer.
type websocketSession struct {
	socket      *websocket.Conn
	connection  *collab.Connection
	coordinator *collab.Coordinator
	settings    RealtimeSettings
	logger      *zap.Logger
	closeOnce   sync.Once
}

func (s *websocketSession) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	s.readLoop(ctx)
	cancel()
	s.coordinator.Disconnect(s.connection.ID())
	<-writerDone
	s.closeSocket()
	s.logger.Debug("websocket session closed")
}

func (s *websocketSession) readLoop(ctx context.Context) {
	s.socket.SetReadLimit(s.settings.MaxMessageBytes)
	_ = s.socket.SetReadDeadline(time.Now().Add(s.settings.PongWait))
	s.socket.SetPongHandler(func(string) error {
		return s.socket.SetReadDeadline(time.Now().Add(s.settings.PongWait))
	})

	for {
		_, payload, err := s.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("websocket read failed", zap.Error(err))
			}
			return
		}
		var event collab.InboundEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			event = collab.InboundEvent{}
		}
		if !s.handle(ctx, event) {
			return
		}
	}
}

func (s *websocketSession) handle(ctx context.Context, event collab.InboundEvent) (ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("websocket handler panicked",
				zap.String("event", event.Event),
				zap.Any("panic", recovered))
			ok = false
		}
	}()
	s.coordinator.Handle(ctx, s.connection.ID(), event)
	return true
}

// writeLoop drains the connection stream until the coordinator closes it. A failed
// write closes the socket so the read loop unblocks.
func (s *websocketSession) writeLoop() {
	ticker := time.NewTicker(s.settings.PingInterval)
	defer ticker.Stop()

	events := s.connection.Events()
	for {
		select {
		case event, ok := <-events:
			_ = s.socket.SetWriteDeadline(time.Now().Add(s.settings.WriteWait))
			if !ok {
				_ = s.socket.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.socket.WriteJSON(event); err != nil {
				s.logger.Info("websocket write failed", zap.String("event", event.Event), zap.Error(err))
				s.closeSocket()
				s.drain(events)
				return
			}
		case <-ticker.C:
			_ = s.socket.SetWriteDeadline(time.Now().Add(s.settings.WriteWait))
			if err := s.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.closeSocket()
				s.drain(events)
				return
			}
		}
	}
}

func (s *websocketSession) drain(events <-chan collab.OutboundEvent) {
	for range events {
	}
}

func (s *websocketSession) closeSocket() {
	s.closeOnce.Do(func() {
		_ = s.socket.Close()
	})
}
