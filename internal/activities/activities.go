// Package activities implements the research pipeline stages executed by
// Temporal workers. Every stage degrades to a deterministic fallback instead
// of failing the workflow; results carry a UsedFallback flag so the workflow
// can track how much of a run ran degraded.
package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/config"
	"github.com/jh941213/storm-orchestrator/internal/interview"
	"github.com/jh941213/storm-orchestrator/internal/llm"
	"github.com/jh941213/storm-orchestrator/internal/metrics"
	"github.com/jh941213/storm-orchestrator/internal/personas"
	"github.com/jh941213/storm-orchestrator/internal/research"
	"github.com/jh941213/storm-orchestrator/internal/search"
	"github.com/jh941213/storm-orchestrator/internal/streaming"
)

// Activities bundles the dependencies the research stages need. All fields are
// injected at worker startup; activities hold no global state.
type Activities struct {
	llm          llm.Provider
	longLLM      llm.Provider
	search       search.Provider
	streams      *streaming.Manager
	interactions *InteractionRegistry
	cfg          config.ResearchConfig
	logger       *zap.Logger
}

// NewActivities wires the stage activities. longProvider handles section and
// article writing where inputs are large; pass the same provider twice when a
// single model serves both.
func NewActivities(
	provider llm.Provider,
	longProvider llm.Provider,
	searcher search.Provider,
	streams *streaming.Manager,
	interactions *InteractionRegistry,
	cfg config.ResearchConfig,
	logger *zap.Logger,
) *Activities {
	if longProvider == nil {
		longProvider = provider
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{
		llm:          provider,
		longLLM:      longProvider,
		search:       searcher,
		streams:      streams,
		interactions: interactions,
		cfg:          cfg,
		logger:       logger,
	}
}

// OutlineInput starts stage 1. Feedback is non-empty only on regeneration
// after a reviewer rejected the previous draft.
type OutlineInput struct {
	Topic    string `json:"topic"`
	Feedback string `json:"feedback,omitempty"`
}

type OutlineResult struct {
	Outline      research.Outline `json:"outline"`
	UsedFallback bool             `json:"used_fallback"`
	Warning      string           `json:"warning,omitempty"`
}

// GenerateOutline produces the initial wiki-style outline for the topic. Model
// or parse failures yield the deterministic three-section default outline.
func (a *Activities) GenerateOutline(ctx context.Context, in OutlineInput) (OutlineResult, error) {
	start := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("outline").Observe(time.Since(start).Seconds()) }()

	raw, err := a.llm.Complete(ctx, personas.OutlinePrompt(in.Topic, in.Feedback))
	if err != nil {
		a.logger.Warn("outline generation failed, using default outline",
			zap.String("topic", in.Topic), zap.Error(err))
		metrics.StageFallbacks.WithLabelValues("outline").Inc()
		return OutlineResult{Outline: research.DefaultOutline(in.Topic), UsedFallback: true, Warning: err.Error()}, nil
	}
	outline, err := research.ParseOutline(raw)
	if err != nil {
		a.logger.Warn("outline response unparseable, using default outline",
			zap.String("topic", in.Topic), zap.Error(err))
		metrics.StageFallbacks.WithLabelValues("outline").Inc()
		return OutlineResult{Outline: research.DefaultOutline(in.Topic), UsedFallback: true, Warning: err.Error()}, nil
	}
	return OutlineResult{Outline: outline}, nil
}

// PerspectivesInput starts stage 2.
type PerspectivesInput struct {
	Topic    string `json:"topic"`
	Count    int    `json:"count"`
	Feedback string `json:"feedback,omitempty"`
}

type PerspectivesResult struct {
	Editors      []research.Editor `json:"editors"`
	UsedFallback bool              `json:"used_fallback"`
	Warning      string            `json:"warning,omitempty"`
}

// GeneratePerspectives produces the editor roster. The result always contains
// exactly in.Count editors with sanitized names; generation failures pad or
// replace with the deterministic fallback personas.
func (a *Activities) GeneratePerspectives(ctx context.Context, in PerspectivesInput) (PerspectivesResult, error) {
	start := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("perspectives").Observe(time.Since(start).Seconds()) }()

	raw, err := a.llm.Complete(ctx, personas.PerspectivesPrompt(in.Topic, in.Count, in.Feedback))
	if err != nil {
		a.logger.Warn("perspective generation failed, using fallback personas",
			zap.String("topic", in.Topic), zap.Error(err))
		metrics.StageFallbacks.WithLabelValues("perspectives").Inc()
		return PerspectivesResult{Editors: research.DefaultEditors(in.Count), UsedFallback: true, Warning: err.Error()}, nil
	}
	editors, err := research.ParseEditors(raw)
	if err != nil {
		a.logger.Warn("perspective response unparseable, using fallback personas",
			zap.String("topic", in.Topic), zap.Error(err))
		metrics.StageFallbacks.WithLabelValues("perspectives").Inc()
		return PerspectivesResult{Editors: research.DefaultEditors(in.Count), UsedFallback: true, Warning: err.Error()}, nil
	}
	return PerspectivesResult{Editors: research.NormalizeEditors(editors, in.Count)}, nil
}

// InterviewInput runs one editor's grounded interview.
type InterviewInput struct {
	Topic    string          `json:"topic"`
	Editor   research.Editor `json:"editor"`
	MaxTurns int             `json:"max_turns"`
}

type InterviewResult struct {
	EditorName string   `json:"editor_name"`
	Transcript []string `json:"transcript"`
	Failed     bool     `json:"failed"`
}

// ConductInterview runs the interviewer/expert dialogue for one editor. A
// provider breakdown mid-interview produces a short failure transcript rather
// than an activity error, so one broken interview never sinks the fan-out.
func (a *Activities) ConductInterview(ctx context.Context, in InterviewInput) (InterviewResult, error) {
	start := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("interview").Observe(time.Since(start).Seconds()) }()

	maxTurns := in.MaxTurns
	if maxTurns <= 0 {
		maxTurns = a.cfg.MaxInterviewTurns
	}
	runner := interview.NewRunner(a.llm, a.search, a.logger, interview.WithMaxTurns(maxTurns))
	runner.OnTurn = func(turn int) {
		if activity.IsActivity(ctx) {
			activity.RecordHeartbeat(ctx, turn)
		}
	}

	transcript := runner.Conduct(ctx, in.Editor, in.Topic)
	failed := interview.IsFailure(transcript)
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	metrics.InterviewsCompleted.WithLabelValues(outcome).Inc()
	metrics.InterviewTurns.Observe(float64(len(transcript)))

	return InterviewResult{
		EditorName: in.Editor.Name,
		Transcript: transcript,
		Failed:     failed,
	}, nil
}

// RefineInput starts stage 4. Feedback is non-empty only on regeneration
// after a reviewer rejected the refined outline.
type RefineInput struct {
	Topic      string              `json:"topic"`
	Draft      research.Outline    `json:"draft"`
	Editors    []research.Editor   `json:"editors"`
	Interviews map[string][]string `json:"interviews"`
	Feedback   string              `json:"feedback,omitempty"`
}

type RefineResult struct {
	Outline      research.Outline `json:"outline"`
	UsedFallback bool             `json:"used_fallback"`
}

// RefineOutline reworks the draft outline using the interview transcripts.
// Failures keep the draft, which is always valid, so stage 5 never starts
// without sections to write.
func (a *Activities) RefineOutline(ctx context.Context, in RefineInput) (RefineResult, error) {
	start := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("refine").Observe(time.Since(start).Seconds()) }()

	msgs := personas.RefinePrompt(in.Topic, in.Draft, in.Editors, in.Interviews)
	if in.Feedback != "" {
		msgs = append(msgs, llm.User("Reviewer feedback to incorporate: "+in.Feedback))
	}
	raw, err := a.llm.Complete(ctx, msgs)
	if err != nil {
		a.logger.Warn("outline refinement failed, keeping draft outline",
			zap.String("topic", in.Topic), zap.Error(err))
		metrics.StageFallbacks.WithLabelValues("refine").Inc()
		return RefineResult{Outline: in.Draft, UsedFallback: true}, nil
	}
	outline, err := research.ParseOutline(raw)
	if err != nil {
		a.logger.Warn("refined outline unparseable, keeping draft outline",
			zap.String("topic", in.Topic), zap.Error(err))
		metrics.StageFallbacks.WithLabelValues("refine").Inc()
		return RefineResult{Outline: in.Draft, UsedFallback: true}, nil
	}
	return RefineResult{Outline: outline}, nil
}

// SectionInput writes one section of the article.
type SectionInput struct {
	Topic      string              `json:"topic"`
	Outline    research.Outline    `json:"outline"`
	Section    research.Section    `json:"section"`
	Editors    []research.Editor   `json:"editors"`
	Interviews map[string][]string `json:"interviews"`
	Feedback   string              `json:"feedback,omitempty"`
}

type SectionResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Failed  bool   `json:"failed"`
}

// WriteSection drafts one section from the refined outline and the interview
// material. A failed section carries a placeholder body so the article
// assembly still has an entry per section.
func (a *Activities) WriteSection(ctx context.Context, in SectionInput) (SectionResult, error) {
	start := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("section").Observe(time.Since(start).Seconds()) }()

	msgs := personas.SectionPrompt(in.Topic, in.Outline, in.Section, in.Editors, in.Interviews)
	if in.Feedback != "" {
		msgs = append(msgs, llm.User("Reviewer feedback to incorporate: "+in.Feedback))
	}
	content, err := a.longLLM.Complete(ctx, msgs)
	if err != nil {
		a.logger.Warn("section writing failed",
			zap.String("section", in.Section.SectionTitle), zap.Error(err))
		metrics.StageFallbacks.WithLabelValues("section").Inc()
		return SectionResult{
			Title:   in.Section.SectionTitle,
			Content: "*This section could not be generated.*",
			Failed:  true,
		}, nil
	}
	return SectionResult{Title: in.Section.SectionTitle, Content: content}, nil
}

// ArticleInput assembles the final article.
type ArticleInput struct {
	Topic    string            `json:"topic"`
	Outline  research.Outline  `json:"outline"`
	Sections map[string]string `json:"sections"`
}

type ArticleResult struct {
	Article      string `json:"article"`
	UsedFallback bool   `json:"used_fallback"`
}

// WriteFinalArticle polishes the drafted sections into one coherent article.
// Failures fall back to stitching the sections together in outline order.
func (a *Activities) WriteFinalArticle(ctx context.Context, in ArticleInput) (ArticleResult, error) {
	start := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("article").Observe(time.Since(start).Seconds()) }()

	article, err := a.longLLM.Complete(ctx, personas.FinalPrompt(in.Topic, in.Outline, in.Sections))
	if err != nil {
		a.logger.Warn("final article writing failed, stitching sections",
			zap.String("topic", in.Topic), zap.Error(err))
		metrics.StageFallbacks.WithLabelValues("article").Inc()
		return ArticleResult{Article: StitchSections(in.Topic, in.Outline, in.Sections), UsedFallback: true}, nil
	}
	return ArticleResult{Article: article}, nil
}

// StitchSections concatenates the drafted sections in outline order under a
// title heading. It is the deterministic fallback when the polishing model is
// unavailable.
func StitchSections(topic string, outline research.Outline, sections map[string]string) string {
	title := outline.PageTitle
	if title == "" {
		title = topic
	}
	out := "# " + title + "\n"
	for _, s := range outline.Sections {
		body, ok := sections[s.SectionTitle]
		if !ok {
			continue
		}
		out += "\n## " + s.SectionTitle + "\n\n" + body + "\n"
	}
	return out
}
