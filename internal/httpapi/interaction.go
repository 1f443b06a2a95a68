package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/activities"
	"github.com/jh941213/storm-orchestrator/internal/research"
	"github.com/jh941213/storm-orchestrator/internal/workflows"
)

// workflowSignaler is the slice of client.Client the decision handler needs.
type workflowSignaler interface {
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
}

// InteractionHandler accepts reviewer decisions and forwards them to the
// waiting workflow as signals. Decisions must name a currently pending
// interaction; stale or unknown IDs are rejected.
type InteractionHandler struct {
	temporal workflowSignaler
	registry *activities.InteractionRegistry
	logger   *zap.Logger
}

func NewInteractionHandler(temporal workflowSignaler, registry *activities.InteractionRegistry, logger *zap.Logger) *InteractionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InteractionHandler{temporal: temporal, registry: registry, logger: logger}
}

// RegisterRoutes registers the interaction routes on mux.
func (h *InteractionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/interactions", h.handleList)
	mux.HandleFunc("/interactions/decision", h.handleDecision)
}

func (h *InteractionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	pending := h.registry.PendingForRun(runID)
	if pending == nil {
		pending = []*research.Interaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": pending})
}

type decisionRequest struct {
	InteractionID string         `json:"interaction_id"`
	Action        string         `json:"action"`
	Feedback      string         `json:"feedback,omitempty"`
	Modifications map[string]any `json:"modifications,omitempty"`
}

func (h *InteractionHandler) handleDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req decisionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.InteractionID == "" {
		writeError(w, http.StatusBadRequest, "interaction_id is required")
		return
	}
	switch req.Action {
	case research.ActionApprove, research.ActionReject, research.ActionModify:
	default:
		writeError(w, http.StatusBadRequest, "action must be approve, reject or modify")
		return
	}

	pending := h.registry.Pending(req.InteractionID)
	if pending == nil {
		writeError(w, http.StatusNotFound, "no pending interaction with that id")
		return
	}

	payload := research.InteractionResponse{
		Action:        req.Action,
		Feedback:      req.Feedback,
		Modifications: req.Modifications,
		Timestamp:     time.Now(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), signalTimeout)
	defer cancel()
	signalName := workflows.DecisionSignalName(req.InteractionID)
	if err := h.temporal.SignalWorkflow(ctx, pending.RunID, "", signalName, payload); err != nil {
		h.logger.Error("signaling workflow failed",
			zap.String("run_id", pending.RunID),
			zap.String("signal", signalName),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to signal workflow")
		return
	}

	h.logger.Info("reviewer decision forwarded",
		zap.String("run_id", pending.RunID),
		zap.String("interaction_id", req.InteractionID),
		zap.String("action", req.Action))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "delivered",
		"interaction_id": req.InteractionID,
	})
}
