package activities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/metrics"
	"github.com/jh941213/storm-orchestrator/internal/research"
	"github.com/jh941213/storm-orchestrator/internal/streaming"
)

// InteractionRegistry tracks pending human review checkpoints. The workflow
// registers a checkpoint through the RequestInteraction activity, the HTTP
// decision handler looks the ID up here before signaling the workflow, and
// the workflow records the outcome through ResolveInteraction. Entries are
// in-memory only; they live exactly as long as the checkpoint.
type InteractionRegistry struct {
	mu      sync.RWMutex
	pending map[string]*research.Interaction
}

func NewInteractionRegistry() *InteractionRegistry {
	return &InteractionRegistry{pending: make(map[string]*research.Interaction)}
}

// Register stores a new pending interaction.
func (r *InteractionRegistry) Register(in *research.Interaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[in.ID] = in
}

// Pending returns the pending interaction for id, or nil if the id is unknown
// or already resolved.
func (r *InteractionRegistry) Pending(id string) *research.Interaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in := r.pending[id]
	if in == nil || in.Response != nil {
		return nil
	}
	return in
}

// PendingForRun lists the unresolved interactions for one run, for clients
// that reconnect and need to discover an open checkpoint.
func (r *InteractionRegistry) PendingForRun(runID string) []*research.Interaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*research.Interaction
	for _, in := range r.pending {
		if in.RunID == runID && in.Response == nil {
			out = append(out, in)
		}
	}
	return out
}

// Resolve marks an interaction decided and removes it from the pending set.
func (r *InteractionRegistry) Resolve(id string, resp research.InteractionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.pending[id]
	if !ok {
		return fmt.Errorf("interaction %s not found", id)
	}
	if in.Response != nil {
		return fmt.Errorf("interaction %s already resolved", id)
	}
	in.Response = &resp
	delete(r.pending, id)
	return nil
}

// InteractionInput asks a human reviewer to judge a pipeline artifact.
type InteractionInput struct {
	RunID   string   `json:"run_id"`
	Type    string   `json:"type"`
	Content string   `json:"content"`
	Options []string `json:"options"`
}

type InteractionResult struct {
	InteractionID string `json:"interaction_id"`
}

// RequestInteraction registers a review checkpoint and announces it on the
// event stream. The workflow then waits for the decision signal named after
// the returned ID, or times out into auto-approval.
func (a *Activities) RequestInteraction(ctx context.Context, in InteractionInput) (InteractionResult, error) {
	id := uuid.New().String()
	a.interactions.Register(&research.Interaction{
		ID:        id,
		RunID:     in.RunID,
		Type:      in.Type,
		Content:   in.Content,
		Options:   in.Options,
		CreatedAt: time.Now(),
	})
	metrics.InteractionsRequested.WithLabelValues(in.Type).Inc()

	a.publish(in.RunID, streaming.Event{
		Type:    streaming.EventLog,
		Level:   streaming.LevelInfo,
		Stage:   in.Type,
		Message: fmt.Sprintf("Waiting for review: %s (interaction %s)", in.Type, id),
		Content: in.Content,
	})
	a.logger.Info("interaction requested",
		zap.String("interaction_id", id), zap.String("type", in.Type), zap.String("run_id", in.RunID))
	return InteractionResult{InteractionID: id}, nil
}

// ResolveInteractionInput records the outcome of a checkpoint, whether a human
// decided or the wait timed out into auto-approval.
type ResolveInteractionInput struct {
	RunID         string                       `json:"run_id"`
	InteractionID string                       `json:"interaction_id"`
	Response      research.InteractionResponse `json:"response"`
	AutoApproved  bool                         `json:"auto_approved"`
}

// ResolveInteraction clears the pending entry and reports the decision on the
// event stream. An already-resolved or expired entry is not an error; the
// human decision path removes the entry before the workflow gets here.
func (a *Activities) ResolveInteraction(ctx context.Context, in ResolveInteractionInput) error {
	_ = a.interactions.Resolve(in.InteractionID, in.Response)

	auto := "false"
	level := streaming.LevelSuccess
	msg := fmt.Sprintf("Review decision: %s", in.Response.Action)
	if in.AutoApproved {
		auto = "true"
		level = streaming.LevelWarning
		msg = "Review timed out, proceeding with automatic approval"
	}
	metrics.InteractionsResolved.WithLabelValues(in.Response.Action, auto).Inc()

	a.publish(in.RunID, streaming.Event{
		Type:    streaming.EventLog,
		Level:   level,
		Message: msg,
	})
	return nil
}
