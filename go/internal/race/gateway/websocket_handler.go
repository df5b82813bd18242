package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for race clients
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	handler           MessageHandler
}

func NewWebSocketHandler(cm *ConnectionManager, handler MessageHandler) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		handler:           handler,
	}
}

// HandleRaceConnection upgrades /ws/race?user_id=... for an authenticated user.
func (h *WebSocketHandler) HandleRaceConnection(w http.ResponseWriter, r *http.Request) {
	// Identity is established upstream; the gateway trusts user_id.
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	// Upgrade writes its own HTTP error on failure.
	if err := h.connectionManager.UpgradeConnection(w, r, userID, h.handler); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/race", h.HandleRaceConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
