package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// eventPollInterval is how often connected clients are checked for new
// session events
const eventPollInterval = time.Second

// WebSocketHandler streams a session's event log to connected clients.
// New entries appear as turns persist; the client replays them for the UI.
type WebSocketHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

func NewWebSocketHandler(storage interfaces.StorageManager, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		storage: storage,
		logger:  logger,
	}
}

// wsEvent is one pushed event frame
type wsEvent struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id"`
	Event     models.EventLogEntry `json:"event"`
}

// HandleWebSocket upgrades GET /ws?session_id= and streams event log
// entries until the client disconnects.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		WriteError(w, http.StatusBadRequest, "session_id query parameter is required")
		return
	}

	session, err := h.storage.SessionStorage().Get(r.Context(), sessionID)
	if err != nil {
		WriteError(w, StatusFromError(err), err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.Debug().
		Str("session_id", sessionID).
		Str("remote", r.RemoteAddr).
		Msg("WebSocket client connected")

	// Replay the existing log, then poll for new entries
	sent := 0
	if sent, err = h.sendNewEvents(conn, session, sent); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			h.logger.Debug().Str("session_id", sessionID).Msg("WebSocket client disconnected")
			return
		case <-ticker.C:
			session, err := h.storage.SessionStorage().Get(context.Background(), sessionID)
			if err != nil {
				h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Session gone, closing stream")
				return
			}
			if sent, err = h.sendNewEvents(conn, session, sent); err != nil {
				return
			}
		}
	}
}

// sendNewEvents pushes log entries past the already-sent watermark
func (h *WebSocketHandler) sendNewEvents(conn *websocket.Conn, session *models.Session, sent int) (int, error) {
	log := session.Metadata.EventLog
	if sent > len(log) {
		// Log was trimmed to its bound; resync from the start
		sent = 0
	}
	for _, entry := range log[sent:] {
		frame := wsEvent{
			Type:      "session_event",
			SessionID: session.ID,
			Event:     entry,
		}
		if err := conn.WriteJSON(frame); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
