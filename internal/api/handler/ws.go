package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pulselabs/pulsevote/internal/realtime"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// WSHandler upgrades HTTP requests to subscriber connections.
type WSHandler struct {
	registry *realtime.Registry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(registry *realtime.Registry, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks belong to the gateway in front of this service
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Subscribe upgrades the connection and registers it. The poll and user
// query parameters pre-subscribe the connection to their channels; anything
// else happens through subscribe messages on the socket.
func (h *WSHandler) Subscribe(w http.ResponseWriter, req bunrouter.Request) error {
	query := req.URL.Query()

	var pollID uuid.UUID

	if raw := query.Get("poll"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return writeError(w, http.StatusBadRequest, "invalid poll id")
		}

		pollID = parsed
	}

	ws, err := h.upgrader.Upgrade(w, req.Request, nil)
	if err != nil {
		// Upgrade already wrote the failure response
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return nil
	}

	conn := h.registry.NewConn(ws)

	if pollID != uuid.Nil {
		h.registry.Subscribe(conn, realtime.PollChannel(pollID))
	}

	if userID := query.Get("user"); userID != "" {
		h.registry.Subscribe(conn, realtime.UserChannel(userID))
	}

	go conn.Run()

	return nil
}
