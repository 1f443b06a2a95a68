package activities

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/config"
	"github.com/jh941213/storm-orchestrator/internal/research"
	"github.com/jh941213/storm-orchestrator/internal/streaming"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewInteractionRegistry()
	r.Register(&research.Interaction{ID: "i1", RunID: "run-1", Type: research.InteractionOutlineReview})

	require.NotNil(t, r.Pending("i1"))
	assert.Nil(t, r.Pending("unknown"))

	err := r.Resolve("i1", research.InteractionResponse{Action: research.ActionApprove, Timestamp: time.Now()})
	require.NoError(t, err)

	assert.Nil(t, r.Pending("i1"), "resolved interactions are no longer pending")
	assert.Error(t, r.Resolve("i1", research.InteractionResponse{Action: research.ActionReject}))
}

func TestRegistryPendingForRun(t *testing.T) {
	r := NewInteractionRegistry()
	r.Register(&research.Interaction{ID: "a", RunID: "run-1"})
	r.Register(&research.Interaction{ID: "b", RunID: "run-2"})
	r.Register(&research.Interaction{ID: "c", RunID: "run-1"})

	require.NoError(t, r.Resolve("c", research.InteractionResponse{Action: research.ActionApprove}))

	pending := r.PendingForRun("run-1")
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)
}

func TestRequestInteractionRegistersAndAnnounces(t *testing.T) {
	streams := streaming.NewManager(16)
	registry := NewInteractionRegistry()
	a := NewActivities(staticLLM(""), nil, noSearch(), streams, registry, config.ResearchConfig{}, zap.NewNop())

	sub := streams.Subscribe("run-1", 4)
	defer streams.Unsubscribe("run-1", sub)

	res, err := a.RequestInteraction(context.Background(), InteractionInput{
		RunID:   "run-1",
		Type:    research.InteractionEditorReview,
		Content: "roster",
		Options: []string{research.ActionApprove, research.ActionReject},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.InteractionID)

	pending := registry.Pending(res.InteractionID)
	require.NotNil(t, pending)
	assert.Equal(t, research.InteractionEditorReview, pending.Type)

	select {
	case evt := <-sub:
		assert.Equal(t, streaming.EventLog, evt.Type)
		assert.Contains(t, evt.Message, res.InteractionID)
	case <-time.After(time.Second):
		t.Fatal("no announcement event published")
	}
}

func TestResolveInteractionClearsAndAnnounces(t *testing.T) {
	streams := streaming.NewManager(16)
	registry := NewInteractionRegistry()
	a := NewActivities(staticLLM(""), nil, noSearch(), streams, registry, config.ResearchConfig{}, zap.NewNop())

	res, err := a.RequestInteraction(context.Background(), InteractionInput{RunID: "run-1", Type: research.InteractionOutlineReview})
	require.NoError(t, err)

	sub := streams.Subscribe("run-1", 4)
	defer streams.Unsubscribe("run-1", sub)

	err = a.ResolveInteraction(context.Background(), ResolveInteractionInput{
		RunID:         "run-1",
		InteractionID: res.InteractionID,
		Response:      research.InteractionResponse{Action: research.ActionApprove, Timestamp: time.Now()},
		AutoApproved:  true,
	})
	require.NoError(t, err)
	assert.Nil(t, registry.Pending(res.InteractionID))

	select {
	case evt := <-sub:
		assert.Equal(t, streaming.LevelWarning, evt.Level)
		assert.Contains(t, evt.Message, "automatic approval")
	case <-time.After(time.Second):
		t.Fatal("no decision event published")
	}
}
