package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/mcdev12/quizrooms/go/internal/respond"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles socket upgrade requests
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new socket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleConnection upgrades GET /ws. An identity may be supplied up front via
// X-User-ID or ?user_id=; otherwise the client sends auth:hello.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}

	var userID int64
	if raw = strings.TrimSpace(raw); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respond.Error(w, http.StatusBadRequest, "invalid_userId")
			return
		}
		userID = id
	}

	// The upgrader has already written an HTTP error on failure.
	if _, err := h.connectionManager.UpgradeConnection(w, r, userID); err != nil {
		log.Warn().
			Err(err).
			Int64("user_id", userID).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade socket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	respond.JSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers socket routes on the router
func (h *WebSocketHandler) RegisterRoutes(r *httprouter.Router) {
	r.GET("/ws", h.HandleConnection)
	r.GET("/ws/stats", h.HandleConnectionStats)
}
