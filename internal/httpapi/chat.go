package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/agents"
	"github.com/jh941213/storm-orchestrator/internal/session"
)

// ChatHandler is the conversational entrypoint. Simple queries are answered
// by a domain agent; research-grade queries start a research workflow and the
// client follows its progress on the event stream.
type ChatHandler struct {
	classifier *agents.Classifier
	registry   *agents.Registry
	sessions   *session.Manager
	research   *ResearchHandler
	logger     *zap.Logger
}

func NewChatHandler(
	classifier *agents.Classifier,
	registry *agents.Registry,
	sessions *session.Manager,
	research *ResearchHandler,
	logger *zap.Logger,
) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		classifier: classifier,
		registry:   registry,
		sessions:   sessions,
		research:   research,
		logger:     logger,
	}
}

// RegisterRoutes registers the chat route on mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat", h.handleChat)
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Agent     string `json:"agent,omitempty"`
	Answer    string `json:"answer,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	sess, err := h.resolveSession(r, req)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	_ = h.sessions.AddMessage(ctx, sess.ID, session.Message{Role: "user", Content: req.Message})

	cl := h.classifier.Classify(ctx, req.Message)
	if cl.Type == agents.QuerySimple {
		agent := h.registry.Lookup(cl.Agent)
		if agent == nil {
			writeError(w, http.StatusBadGateway, "no agent for query")
			return
		}
		answer, err := agent.Handle(ctx, req.Message)
		if err != nil {
			h.logger.Error("domain agent failed", zap.String("agent", cl.Agent), zap.Error(err))
			writeError(w, http.StatusBadGateway, "agent unavailable")
			return
		}
		_ = h.sessions.AddMessage(ctx, sess.ID, session.Message{Role: "assistant", Content: answer})
		writeJSON(w, http.StatusOK, chatResponse{
			SessionID: sess.ID, Type: agents.QuerySimple, Agent: cl.Agent, Answer: answer,
		})
		return
	}

	run, err := h.research.StartResearch(ctx, startResearchRequest{Topic: req.Message})
	if err != nil {
		h.logger.Error("starting research from chat failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to start research")
		return
	}
	_ = h.sessions.AttachResearchRun(ctx, sess.ID, run.RunID)
	writeJSON(w, http.StatusAccepted, chatResponse{
		SessionID: sess.ID, Type: agents.QueryComplex, RunID: run.RunID,
	})
}

func (h *ChatHandler) resolveSession(r *http.Request, req chatRequest) (*session.Session, error) {
	ctx := r.Context()
	if req.SessionID == "" {
		return h.sessions.Create(ctx, req.UserID)
	}
	sess, err := h.sessions.Get(ctx, req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		// Redis unavailable; a fresh in-flight session keeps chat usable.
		h.logger.Warn("session lookup failed, creating new session", zap.Error(err))
		return h.sessions.Create(ctx, req.UserID)
	}
	return sess, nil
}
