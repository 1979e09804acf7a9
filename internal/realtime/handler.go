package realtime

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// Handler timing defaults.
const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// CloseSlowSubscriber is the close code sent when the hub drops a
// subscriber. Clients treat it like any other drop and resync.
const CloseSlowSubscriber = websocket.CloseTryAgainLater

// Handler upgrades a request to a WebSocket and streams the hub's events for
// one table as JSON frames {type, table, seq, id, record}.
//
// Query parameters: table (required) and events, a comma-separated list of
// INSERT, UPDATE, DELETE (default all). Authorization is left to middleware.
type Handler struct {
	hub          *Hub
	registry     *record.Registry
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
}

// NewHandler creates a handler over hub for the tables in registry.
func NewHandler(hub *Hub, registry *record.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:          hub,
		registry:     registry,
		writeTimeout: DefaultWriteTimeout,
		pingInterval: DefaultPingInterval,
		logger:       logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if _, ok := h.registry.Lookup(table); !ok {
		http.Error(w, "unknown table", http.StatusNotFound)
		return
	}
	mask, err := record.ParseEventMask(r.URL.Query().Get("events"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Subscribe before upgrading so no event committed after the handshake
	// is missed.
	stream, err := h.hub.Subscribe(r.Context(), table, mask)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer stream.Close()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	log := h.logger.With("table", table, "remote", r.RemoteAddr)
	log.Debug("websocket subscriber connected")

	// The read side only watches for the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				h.closeWith(ws, stream.Err())
				log.Debug("websocket subscriber ended", "error", stream.Err())
				return
			}
			ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				log.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(h.writeTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug("websocket ping failed", "error", err)
				return
			}
		case <-gone:
			log.Debug("websocket subscriber disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) closeWith(ws *websocket.Conn, err error) {
	code, reason := websocket.CloseNormalClosure, ""
	switch {
	case errors.Is(err, ErrSlowSubscriber):
		code, reason = CloseSlowSubscriber, err.Error()
	case errors.Is(err, ErrHubClosed):
		code, reason = websocket.CloseGoingAway, err.Error()
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
}
