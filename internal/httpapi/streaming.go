package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/streaming"
)

// StreamHandler serves the research progress stream over SSE. Clients follow
// a run by run_id and can resume after a disconnect with Last-Event-ID.
type StreamHandler struct {
	streams *streaming.Manager
	logger  *zap.Logger
}

func NewStreamHandler(streams *streaming.Manager, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{streams: streams, logger: logger}
}

// RegisterRoutes registers the SSE route on mux.
func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stream/sse", h.handleSSE)
}

func (h *StreamHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	// Replay position from header or query param, header wins.
	var since uint64
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		since, _ = strconv.ParseUint(lei, 10, 64)
	} else if lei := r.URL.Query().Get("last_event_id"); lei != "" {
		since, _ = strconv.ParseUint(lei, 10, 64)
	}
	include := typeFilter(r.URL.Query().Get("types"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before replaying so no event falls between replay and live.
	sub := h.streams.Subscribe(runID, 64)
	defer h.streams.Unsubscribe(runID, sub)

	fmt.Fprintf(w, ": connected to run %s\n\n", runID)
	flusher.Flush()

	last := since
	for _, ev := range h.streams.ReplaySince(runID, since) {
		if include(ev) {
			writeSSE(w, ev)
		}
		last = ev.Seq
		if ev.Type == streaming.EventComplete || ev.Type == streaming.EventError {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-sub:
			if !open {
				return
			}
			if ev.Seq <= last {
				continue
			}
			last = ev.Seq
			if include(ev) {
				writeSSE(w, ev)
				flusher.Flush()
			}
			if ev.Type == streaming.EventComplete || ev.Type == streaming.EventError {
				return
			}
		}
	}
}

// typeFilter builds the event predicate for a comma-separated types param.
// Terminal events always pass so a filtered stream still ends.
func typeFilter(param string) func(streaming.Event) bool {
	if param == "" {
		return func(streaming.Event) bool { return true }
	}
	allowed := make(map[string]struct{})
	for _, t := range strings.Split(param, ",") {
		if t = strings.TrimSpace(t); t != "" {
			allowed[t] = struct{}{}
		}
	}
	return func(ev streaming.Event) bool {
		if ev.Type == streaming.EventComplete || ev.Type == streaming.EventError {
			return true
		}
		_, ok := allowed[ev.Type]
		return ok
	}
}

func writeSSE(w http.ResponseWriter, ev streaming.Event) {
	fmt.Fprintf(w, "id: %d\n", ev.Seq)
	fmt.Fprintf(w, "event: %s\n", ev.Type)
	fmt.Fprintf(w, "data: %s\n\n", ev.Marshal())
}
