package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/streaming"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler serves the research progress stream over WebSocket for clients
// that cannot consume SSE. Messages are the same JSON events.
type WSHandler struct {
	streams *streaming.Manager
	logger  *zap.Logger
}

func NewWSHandler(streams *streaming.Manager, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{streams: streams, logger: logger}
}

// RegisterRoutes registers the WebSocket route on mux.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stream/ws", h.handleWS)
}

func (h *WSHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	var since uint64
	if lei := r.URL.Query().Get("last_event_id"); lei != "" {
		since, _ = strconv.ParseUint(lei, 10, 64)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.streams.Subscribe(runID, 64)
	defer h.streams.Unsubscribe(runID, sub)

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	last := since
	for _, ev := range h.streams.ReplaySince(runID, since) {
		if err := writeWS(conn, ev); err != nil {
			return
		}
		last = ev.Seq
		if ev.Type == streaming.EventComplete || ev.Type == streaming.EventError {
			return
		}
	}

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, open := <-sub:
			if !open {
				return
			}
			if ev.Seq <= last {
				continue
			}
			if err := writeWS(conn, ev); err != nil {
				return
			}
			last = ev.Seq
			if ev.Type == streaming.EventComplete || ev.Type == streaming.EventError {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, ev streaming.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, ev.Marshal())
}
