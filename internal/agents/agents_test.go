package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/llm"
)

func TestClassifySimple(t *testing.T) {
	provider := llm.CompleteFunc(func(ctx context.Context, messages []llm.Message) (string, error) {
		return `{"type":"simple","agent":"hr"}`, nil
	})
	c := NewClassifier(provider, zap.NewNop())

	cl := c.Classify(context.Background(), "How many vacation days do I have?")
	assert.Equal(t, QuerySimple, cl.Type)
	assert.Equal(t, "hr", cl.Agent)
}

func TestClassifyDefaultsToComplex(t *testing.T) {
	cases := map[string]llm.Provider{
		"provider error": llm.CompleteFunc(func(ctx context.Context, m []llm.Message) (string, error) {
			return "", errors.New("down")
		}),
		"garbage output": llm.CompleteFunc(func(ctx context.Context, m []llm.Message) (string, error) {
			return "not json at all", nil
		}),
		"simple without agent": llm.CompleteFunc(func(ctx context.Context, m []llm.Message) (string, error) {
			return `{"type":"simple","agent":""}`, nil
		}),
	}
	for name, provider := range cases {
		t.Run(name, func(t *testing.T) {
			c := NewClassifier(provider, zap.NewNop())
			cl := c.Classify(context.Background(), "anything")
			assert.Equal(t, QueryComplex, cl.Type)
			assert.Empty(t, cl.Agent)
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(llm.CompleteFunc(func(ctx context.Context, m []llm.Message) (string, error) {
		return "answer", nil
	}))

	assert.Equal(t, []string{"hr", "bulletin", "project", "company"}, r.Names())
	require.NotNil(t, r.Lookup("project"))
	assert.Nil(t, r.Lookup("weather"))
}

func TestDomainAgentIncludesReferenceData(t *testing.T) {
	var seenSystem string
	provider := llm.CompleteFunc(func(ctx context.Context, messages []llm.Message) (string, error) {
		seenSystem = messages[0].Content
		return "You have 15 days of leave.", nil
	})
	r := NewRegistry(provider)

	answer, err := r.Lookup("hr").Handle(context.Background(), "vacation days?")
	require.NoError(t, err)
	assert.Contains(t, answer, "15 days")
	assert.True(t, strings.Contains(seenSystem, "Vacation policy"), "agent grounds answers in its dataset")
}

func TestDomainAgentPropagatesProviderError(t *testing.T) {
	r := NewRegistry(llm.CompleteFunc(func(ctx context.Context, m []llm.Message) (string, error) {
		return "", errors.New("unavailable")
	}))

	_, err := r.Lookup("company").Handle(context.Background(), "where is HQ?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "company agent")
}
