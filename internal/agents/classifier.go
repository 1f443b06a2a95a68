// Package agents routes chat queries to specialized domain agents or flags
// them for the deep-research pipeline. Simple lookups (HR policy, bulletin
// board, project status, company info) are answered directly; everything else
// is classified complex and handed to research.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/llm"
	"github.com/jh941213/storm-orchestrator/internal/research"
)

// Query complexity classes.
const (
	QuerySimple  = "simple"
	QueryComplex = "complex"
)

// Classification is the classifier's verdict. Agent is set only for simple
// queries and names one of the registered domain agents.
type Classification struct {
	Type  string `json:"type"`
	Agent string `json:"agent"`
}

const classifierSystem = `You route employee questions. Classify the user query:

- "simple": answerable from internal company data by one domain agent. Pick the agent:
  hr (vacation, payroll, HR policy), bulletin (notices, announcements),
  project (project status, schedules), company (company facts, org chart, locations).
- "complex": open-ended research questions needing a long-form researched answer.

Respond with JSON in exactly this shape:
{"type": "simple" or "complex", "agent": "hr"|"bulletin"|"project"|"company" or ""}`

// Classifier decides whether a query goes to a domain agent or to research.
type Classifier struct {
	llm    llm.Provider
	logger *zap.Logger
}

func NewClassifier(provider llm.Provider, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{llm: provider, logger: logger}
}

// Classify returns the routing verdict for query. Any model or parse failure
// defaults to complex, which is always a safe answer path.
func (c *Classifier) Classify(ctx context.Context, query string) Classification {
	raw, err := c.llm.Complete(ctx, []llm.Message{
		llm.System(classifierSystem),
		llm.User(fmt.Sprintf("Query: %s", query)),
	})
	if err != nil {
		c.logger.Warn("classification failed, defaulting to complex", zap.Error(err))
		return Classification{Type: QueryComplex}
	}

	var cl Classification
	if err := json.Unmarshal([]byte(research.ExtractJSON(raw)), &cl); err != nil {
		c.logger.Warn("classification unparseable, defaulting to complex", zap.Error(err))
		return Classification{Type: QueryComplex}
	}
	if cl.Type != QuerySimple || cl.Agent == "" {
		return Classification{Type: QueryComplex}
	}
	return cl
}
