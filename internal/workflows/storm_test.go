package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/activities"
	"github.com/jh941213/storm-orchestrator/internal/config"
	"github.com/jh941213/storm-orchestrator/internal/llm"
	"github.com/jh941213/storm-orchestrator/internal/personas"
	"github.com/jh941213/storm-orchestrator/internal/research"
	"github.com/jh941213/storm-orchestrator/internal/search"
	"github.com/jh941213/storm-orchestrator/internal/streaming"
)

// testRunID is the workflow ID the Temporal test environment assigns.
const testRunID = "default-test-workflow-id"

// routerLLM answers each pipeline prompt with a canned response, dispatching
// on the persona system prompts. Interviews terminate immediately because the
// expert always opens with the summary phrase.
type routerLLM struct {
	mu               sync.Mutex
	editorNames      []string
	perspectiveCalls int
	failInterviewFor string
	failEverything   bool
}

func (r *routerLLM) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failEverything {
		return "", errors.New("provider unreachable")
	}

	sys := messages[0].Content
	user := messages[len(messages)-1].Content
	switch {
	case strings.Contains(sys, "editor teams"):
		r.perspectiveCalls++
		return r.editorsJSON(), nil
	case strings.Contains(sys, "Your persona:"):
		if r.failInterviewFor != "" && strings.Contains(sys, r.failInterviewFor) {
			return "", errors.New("interviewer model down")
		}
		return "Could you explain the fundamentals?", nil
	case strings.Contains(sys, "You are an expert"):
		return personas.SummaryOpening + ": the key points are covered above.", nil
	case strings.Contains(sys, "Complete a Wikipedia section"):
		return "Detailed section content grounded in the interviews.", nil
	case strings.Contains(sys, "Compose the complete wiki article"):
		return "# Final Article\n\nComplete text with all sections merged.", nil
	case strings.Contains(user, "Refine the Wikipedia outline"):
		return r.outlineJSON("Refined"), nil
	default:
		return r.outlineJSON("Draft"), nil
	}
}

func (r *routerLLM) editorsJSON() string {
	type ed struct {
		Name        string `json:"name"`
		Role        string `json:"role"`
		Affiliation string `json:"affiliation"`
		Description string `json:"description"`
	}
	var list []ed
	for _, n := range r.editorNames {
		list = append(list, ed{Name: n, Role: "Analyst", Affiliation: "Org", Description: "focus"})
	}
	b, _ := json.Marshal(map[string]any{"editors": list})
	return string(b)
}

func (r *routerLLM) outlineJSON(prefix string) string {
	o := research.Outline{
		PageTitle: prefix + " Title",
		Sections: []research.Section{
			{SectionTitle: prefix + " One", Description: "first"},
			{SectionTitle: prefix + " Two", Description: "second"},
		},
	}
	b, _ := json.Marshal(o)
	return string(b)
}

func (r *routerLLM) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perspectiveCalls
}

type workflowFixture struct {
	env      *testsuite.TestWorkflowEnvironment
	streams  *streaming.Manager
	registry *activities.InteractionRegistry
}

func newFixture(t *testing.T, provider llm.Provider) *workflowFixture {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	streams := streaming.NewManager(512)
	registry := activities.NewInteractionRegistry()
	searcher := search.SearchFunc(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		return nil, nil
	})
	acts := activities.NewActivities(provider, provider, searcher, streams, registry,
		config.ResearchConfig{MaxInterviewTurns: 6, OutputDir: t.TempDir()}, zap.NewNop())

	env.RegisterWorkflow(ResearchWorkflow)
	env.RegisterActivity(acts)
	return &workflowFixture{env: env, streams: streams, registry: registry}
}

func (f *workflowFixture) events() []streaming.Event {
	return f.streams.ReplaySince(testRunID, 0)
}

func TestResearchWorkflowHappyPath(t *testing.T) {
	provider := &routerLLM{editorNames: []string{"Alice", "Bob"}}
	f := newFixture(t, provider)

	f.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{Topic: "Remote work productivity", EditorCount: 2})
	require.True(t, f.env.IsWorkflowCompleted())
	require.NoError(t, f.env.GetWorkflowError())

	var res ResearchResult
	require.NoError(t, f.env.GetWorkflowResult(&res))
	assert.NotEmpty(t, res.Article)
	assert.Len(t, res.Editors, 2)
	assert.Zero(t, res.FailedInterviews)
	assert.False(t, res.Degraded)
	assert.NotEmpty(t, res.ArticlePath)

	events := f.events()
	require.NotEmpty(t, events)

	var steps []int
	terminals := 0
	for _, e := range events {
		if e.Type == streaming.EventProgress {
			steps = append(steps, e.Step)
			assert.Equal(t, TotalSteps, e.TotalSteps)
		}
		if e.Type == streaming.EventComplete || e.Type == streaming.EventError {
			terminals++
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, steps)
	assert.Equal(t, 1, terminals, "exactly one terminal event per run")

	last := events[len(events)-1]
	assert.Equal(t, streaming.EventComplete, last.Type)
	assert.Equal(t, res.Article, last.Content)
	assert.Greater(t, last.ProcessingTime, 0.0)
}

func TestResearchWorkflowUsesRequestedEditorCount(t *testing.T) {
	// Model proposes five editors, caller asked for three.
	provider := &routerLLM{editorNames: []string{"A1", "A2", "A3", "A4", "A5"}}
	f := newFixture(t, provider)

	f.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{Topic: "t", EditorCount: 3})
	require.NoError(t, f.env.GetWorkflowError())

	var res ResearchResult
	require.NoError(t, f.env.GetWorkflowResult(&res))
	assert.Len(t, res.Editors, 3)
}

func TestResearchWorkflowClampsEditorCount(t *testing.T) {
	provider := &routerLLM{editorNames: []string{"Solo"}}
	f := newFixture(t, provider)

	f.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{Topic: "t", EditorCount: 50})
	require.NoError(t, f.env.GetWorkflowError())

	var res ResearchResult
	require.NoError(t, f.env.GetWorkflowResult(&res))
	assert.Len(t, res.Editors, MaxEditorCount, "roster padded to the clamped count")
}

func TestResearchWorkflowFanOutResilience(t *testing.T) {
	provider := &routerLLM{
		editorNames:      []string{"Alice", "Bob", "Carol"},
		failInterviewFor: "Bob",
	}
	f := newFixture(t, provider)

	f.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{Topic: "t", EditorCount: 3})
	require.NoError(t, f.env.GetWorkflowError())

	var res ResearchResult
	require.NoError(t, f.env.GetWorkflowResult(&res))
	assert.Equal(t, 1, res.FailedInterviews, "one broken interview must not sink the batch")
	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.Article)
}

func TestResearchWorkflowRejectRegeneratesOnce(t *testing.T) {
	provider := &routerLLM{editorNames: []string{"Alice", "Bob"}}
	f := newFixture(t, provider)

	// Reject the editor roster as soon as the checkpoint opens. Later
	// checkpoints go unanswered and auto-approve on timeout.
	f.env.RegisterDelayedCallback(func() {
		pending := f.registry.PendingForRun(testRunID)
		require.Len(t, pending, 1)
		assert.Equal(t, research.InteractionEditorReview, pending[0].Type)
		f.env.SignalWorkflow(DecisionSignalName(pending[0].ID), research.InteractionResponse{
			Action:    research.ActionReject,
			Feedback:  "need more technical depth",
			Timestamp: time.Now(),
		})
	}, time.Second)

	f.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{
		Topic:           "t",
		EditorCount:     2,
		EnableHumanLoop: true,
	})
	require.NoError(t, f.env.GetWorkflowError())

	var res ResearchResult
	require.NoError(t, f.env.GetWorkflowResult(&res))
	assert.NotEmpty(t, res.Article)
	assert.Equal(t, 2, provider.calls(), "reject triggers exactly one regeneration")
}

func TestResearchWorkflowTimeoutAutoApproves(t *testing.T) {
	provider := &routerLLM{editorNames: []string{"Alice"}}
	f := newFixture(t, provider)

	f.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{
		Topic:                     "t",
		EditorCount:               1,
		EnableHumanLoop:           true,
		InteractionTimeoutSeconds: 30,
	})
	require.NoError(t, f.env.GetWorkflowError())

	var res ResearchResult
	require.NoError(t, f.env.GetWorkflowResult(&res))
	assert.NotEmpty(t, res.Article)
	assert.Equal(t, 1, provider.calls(), "auto-approval never regenerates")

	autoApprovals := 0
	for _, e := range f.events() {
		if strings.Contains(e.Message, "automatic approval") {
			autoApprovals++
		}
	}
	assert.Equal(t, 3, autoApprovals, "all three checkpoints time out")
}

func TestResearchWorkflowCatastrophicFailure(t *testing.T) {
	provider := &routerLLM{failEverything: true}
	f := newFixture(t, provider)

	f.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{Topic: "t", EditorCount: 2})
	require.True(t, f.env.IsWorkflowCompleted())
	require.Error(t, f.env.GetWorkflowError())

	events := f.events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, streaming.EventError, last.Type)
	assert.NotEmpty(t, last.Error)
	for _, e := range events {
		assert.NotEqual(t, streaming.EventComplete, e.Type, "failed runs never emit storm_complete")
	}
}

func TestResearchWorkflowRejectsEmptyTopic(t *testing.T) {
	provider := &routerLLM{editorNames: []string{"Alice"}}
	f := newFixture(t, provider)

	f.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{Topic: "   "})
	require.True(t, f.env.IsWorkflowCompleted())
	require.Error(t, f.env.GetWorkflowError())
}

func TestDecisionSignalName(t *testing.T) {
	assert.Equal(t, "human-interaction-abc", DecisionSignalName("abc"))
}
