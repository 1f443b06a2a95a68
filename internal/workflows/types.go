// Package workflows contains the Temporal workflow driving a research run.
// The workflow sequences the six pipeline stages, fans interviews and section
// writing out across activities, and pauses at review checkpoints when the
// human loop is enabled. All nondeterministic work lives in activities.
package workflows

import (
	"github.com/jh941213/storm-orchestrator/internal/research"
)

// SignalPrefix + interaction ID names the signal channel a reviewer decision
// arrives on. The HTTP decision handler builds the same name.
const SignalPrefix = "human-interaction-"

// DecisionSignalName returns the workflow signal channel for one interaction.
func DecisionSignalName(interactionID string) string {
	return SignalPrefix + interactionID
}

// TotalSteps is the number of pipeline stages reported in progress events.
const TotalSteps = 6

// ResearchInput starts one research run.
type ResearchInput struct {
	Topic string `json:"topic"`
	// EditorCount is clamped to [1, MaxEditorCount]; zero selects the default.
	EditorCount int `json:"editor_count,omitempty"`
	// MaxInterviewTurns of zero selects the configured default.
	MaxInterviewTurns int  `json:"max_interview_turns,omitempty"`
	EnableHumanLoop   bool `json:"enable_human_loop,omitempty"`
	// InteractionTimeoutSeconds bounds each review wait; zero selects the
	// 300-second default.
	InteractionTimeoutSeconds int `json:"interaction_timeout_seconds,omitempty"`
}

// ResearchResult is the workflow's return value. The same article is also
// delivered through the terminal storm_complete event and saved to disk.
type ResearchResult struct {
	Topic            string            `json:"topic"`
	Article          string            `json:"article"`
	ArticlePath      string            `json:"article_path,omitempty"`
	Outline          research.Outline  `json:"outline"`
	Editors          []research.Editor `json:"editors"`
	FailedInterviews int               `json:"failed_interviews"`
	FailedSections   int               `json:"failed_sections"`
	Degraded         bool              `json:"degraded"`
	ProcessingTime   float64           `json:"processing_time"`
}

// Defaults applied when the caller leaves input fields zero. The HTTP layer
// clamps from config as well; the workflow defends independently so direct
// Temporal starts behave the same.
const (
	DefaultEditorCount       = 3
	MaxEditorCount           = 8
	DefaultInteractionExpiry = 300
)
