// Package httpapi exposes the service's HTTP surface: starting research runs,
// streaming progress over SSE and WebSocket, submitting reviewer decisions and
// the chat entrypoint.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/config"
	"github.com/jh941213/storm-orchestrator/internal/metrics"
	"github.com/jh941213/storm-orchestrator/internal/workflows"
)

// workflowStarter is the slice of client.Client the research handler needs.
type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// ResearchHandler starts research workflows and reports pipeline capabilities.
type ResearchHandler struct {
	temporal workflowStarter
	cfg      config.Config
	logger   *zap.Logger
}

func NewResearchHandler(temporal workflowStarter, cfg config.Config, logger *zap.Logger) *ResearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchHandler{temporal: temporal, cfg: cfg, logger: logger}
}

// RegisterRoutes registers the research routes on mux.
func (h *ResearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/research", h.handleStart)
	mux.HandleFunc("/research/capabilities", h.handleCapabilities)
}

type startResearchRequest struct {
	Topic                     string `json:"topic"`
	EditorCount               int    `json:"editor_count,omitempty"`
	EnableHumanLoop           bool   `json:"enable_human_loop,omitempty"`
	InteractionTimeoutSeconds int    `json:"interaction_timeout_seconds,omitempty"`
}

type startResearchResponse struct {
	RunID       string `json:"run_id"`
	EditorCount int    `json:"editor_count"`
}

func (h *ResearchHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req startResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	run, err := h.StartResearch(r.Context(), req)
	if err != nil {
		h.logger.Error("starting research workflow failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to start research")
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}

// StartResearch clamps the request against configured limits and starts the
// workflow. The chat handler reuses it for research-classified queries.
func (h *ResearchHandler) StartResearch(ctx context.Context, req startResearchRequest) (startResearchResponse, error) {
	editors := req.EditorCount
	if editors <= 0 {
		editors = h.cfg.Research.DefaultEditorCount
	}
	maxEditors := h.cfg.Research.MaxEditorCount
	if maxEditors <= 0 {
		maxEditors = workflows.MaxEditorCount
	}
	if editors > maxEditors {
		editors = maxEditors
	}

	timeout := req.InteractionTimeoutSeconds
	if timeout <= 0 {
		timeout = h.cfg.Research.InteractionTimeout
	}

	workflowID := "research-" + uuid.New().String()
	_, err := h.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.cfg.Temporal.TaskQueue,
	}, workflows.ResearchWorkflow, workflows.ResearchInput{
		Topic:                     req.Topic,
		EditorCount:               editors,
		MaxInterviewTurns:         h.cfg.Research.MaxInterviewTurns,
		EnableHumanLoop:           req.EnableHumanLoop,
		InteractionTimeoutSeconds: timeout,
	})
	if err != nil {
		return startResearchResponse{}, fmt.Errorf("start workflow: %w", err)
	}

	metrics.RunsStarted.Inc()
	h.logger.Info("research workflow started",
		zap.String("run_id", workflowID),
		zap.String("topic", req.Topic),
		zap.Int("editors", editors),
		zap.Bool("human_loop", req.EnableHumanLoop))
	return startResearchResponse{RunID: workflowID, EditorCount: editors}, nil
}

func (h *ResearchHandler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pipeline":             "storm",
		"total_steps":          workflows.TotalSteps,
		"default_editor_count": h.cfg.Research.DefaultEditorCount,
		"max_editor_count":     h.cfg.Research.MaxEditorCount,
		"max_interview_turns":  h.cfg.Research.MaxInterviewTurns,
		"human_loop":           true,
		"interaction_types":    []string{"editor_review", "outline_review", "section_review"},
		"event_types":          []string{"log", "storm_progress", "storm_complete", "storm_error"},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// signalTimeout bounds outbound Temporal signal calls from HTTP handlers.
const signalTimeout = 10 * time.Second
