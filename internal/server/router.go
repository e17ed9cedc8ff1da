package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/collab"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/cowrite/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	profileContextKey = "cowrite_profile"
	wildcardOrigin    = "*"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUserResolver     = errors.New("user resolver dependency required")
	errMissingCoordinator      = errors.New("coordinator dependency required")
)

// SessionValidator authenticates incoming requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// UserResolver turns validated claims into the profile attached to a connection.
type UserResolver interface {
	ResolveProfile(claims auth.SessionClaims) (users.Profile, error)
}

// Dependencies wires the HTTP surface to the rest of the service.
type Dependencies struct {
	SessionValidator SessionValidator
	UserResolver     UserResolver
	Coordinator      *collab.Coordinator
	MetricsGatherer  prometheus.Gatherer
	AllowedOrigins   []string
	Realtime         RealtimeSettings
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router serving health, metrics, the websocket endpoint
// and the participants lookup.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.UserResolver == nil {
		return nil, errMissingUserResolver
	}
	if deps.Coordinator == nil {
		return nil, errMissingCoordinator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:    deps.SessionValidator,
		users:       deps.UserResolver,
		coordinator: deps.Coordinator,
		realtime:    deps.Realtime.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(deps.AllowedOrigins),
		},
		logger: logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.MetricsGatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.MetricsGatherer, promhttp.HandlerOpts{})))
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/ws", handler.handleWebsocket)
	protected.GET("/documents/:id/participants", handler.handleParticipants)

	return router, nil
}

type httpHandler struct {
	sessions    SessionValidator
	users       UserResolver
	coordinator *collab.Coordinator
	realtime    RealtimeSettings
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

type participantsResponse struct {
	DocumentID   string               `json:"documentId"`
	Participants []collab.Participant `json:"participants"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleParticipants(c *gin.Context) {
	documentID := c.Param("id")
	participants, err := h.coordinator.CurrentParticipants(documentID)
	if err != nil {
		if errors.Is(err, documents.ErrInvalidDocumentID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": collab.ErrorCode(err)})
			return
		}
		h.logger.Error("participants lookup failed", zap.String("document_id", documentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": collab.ErrorCode(err)})
		return
	}
	c.JSON(http.StatusOK, participantsResponse{
		DocumentID:   documentID,
		Participants: participants,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	profile, err := h.users.ResolveProfile(claims)
	if err != nil {
		h.logger.Error("failed to resolve user profile", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user_resolution_failed"})
		return
	}
	c.Set(profileContextKey, profile)
	c.Next()
}

func profileFromContext(c *gin.Context) (users.Profile, bool) {
	value, ok := c.Get(profileContextKey)
	if !ok {
		return users.Profile{}, false
	}
	profile, ok := value.(users.Profile)
	return profile, ok
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-TAuth-Tenant"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowsAnyOrigin(allowedOrigins) {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func originChecker(allowedOrigins []string) func(*http.Request) bool {
	if allowsAnyOrigin(allowedOrigins) {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

func allowsAnyOrigin(allowedOrigins []string) bool {
	if len(allowedOrigins) == 0 {
		return true
	}
	for _, origin := range allowedOrigins {
		if origin == wildcardOrigin {
			return true
		}
	}
	return false
}
