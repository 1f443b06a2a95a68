package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/jh941213/storm-orchestrator/internal/activities"
	"github.com/jh941213/storm-orchestrator/internal/interview"
	"github.com/jh941213/storm-orchestrator/internal/research"
	"github.com/jh941213/storm-orchestrator/internal/streaming"
)

// ResearchWorkflow drives one research run through the six pipeline stages:
//
//	1 outline -> 2 perspectives -> 3 interviews -> 4 refine -> 5 sections -> 6 final
//
// Interviews and section writing fan out across concurrent activities.
// When the human loop is enabled the workflow pauses after stages 2, 4 and 5
// for a reviewer decision; a rejection regenerates that stage's output once.
// Every run ends with exactly one terminal event on the progress stream.
func ResearchWorkflow(ctx workflow.Context, in ResearchInput) (ResearchResult, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return ResearchResult{}, errors.New("topic must not be empty")
	}

	editorCount := in.EditorCount
	if editorCount <= 0 {
		editorCount = DefaultEditorCount
	}
	if editorCount > MaxEditorCount {
		editorCount = MaxEditorCount
	}

	info := workflow.GetInfo(ctx)
	runID := info.WorkflowExecution.ID
	logger := workflow.GetLogger(ctx)
	started := workflow.Now(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})

	logger.Info("Research run starting", "topic", in.Topic, "editors", editorCount)
	emit(ctx, runID, streaming.Event{
		Type: streaming.EventLog, Level: streaming.LevelInfo,
		Message: fmt.Sprintf("Starting research on: %s", in.Topic),
	})

	degradedStages := 0
	result := ResearchResult{Topic: in.Topic}

	// Stage 1: initial outline.
	emitStage(ctx, runID, "outline", "Generating initial outline")
	var outlineRes activities.OutlineResult
	if err := workflow.ExecuteActivity(ctx, "GenerateOutline", activities.OutlineInput{Topic: in.Topic}).Get(ctx, &outlineRes); err != nil {
		return fail(ctx, runID, started, fmt.Errorf("outline stage: %w", err))
	}
	if outlineRes.UsedFallback {
		degradedStages++
		emitWarning(ctx, runID, "outline", "Outline generation degraded to default outline")
	}
	outline := outlineRes.Outline
	emitProgress(ctx, runID, 1, "outline", "Outline ready")

	// Stage 2: reviewer personas.
	emitStage(ctx, runID, "perspectives", "Generating editor perspectives")
	var perspRes activities.PerspectivesResult
	if err := workflow.ExecuteActivity(ctx, "GeneratePerspectives", activities.PerspectivesInput{Topic: in.Topic, Count: editorCount}).Get(ctx, &perspRes); err != nil {
		return fail(ctx, runID, started, fmt.Errorf("perspectives stage: %w", err))
	}
	if perspRes.UsedFallback {
		degradedStages++
		emitWarning(ctx, runID, "perspectives", "Perspective generation degraded to fallback personas")
	}
	editors := perspRes.Editors
	emitProgress(ctx, runID, 2, "perspectives", fmt.Sprintf("Generated %d editor perspectives", len(editors)))

	if in.EnableHumanLoop {
		resp, err := awaitDecision(ctx, runID, research.InteractionEditorReview,
			editorSummary(editors), in.InteractionTimeoutSeconds)
		if err != nil {
			return fail(ctx, runID, started, err)
		}
		if wantsRegeneration(resp) {
			emitStage(ctx, runID, "perspectives", "Regenerating perspectives from reviewer feedback")
			if err := workflow.ExecuteActivity(ctx, "GeneratePerspectives", activities.PerspectivesInput{
				Topic: in.Topic, Count: editorCount, Feedback: resp.Feedback,
			}).Get(ctx, &perspRes); err != nil {
				return fail(ctx, runID, started, fmt.Errorf("perspectives regeneration: %w", err))
			}
			editors = perspRes.Editors
		}
	}
	result.Editors = editors

	// Stage 3: interviews, fanned out one activity per editor. Results arrive
	// in completion order; progress is reported after each one resolves.
	emitStage(ctx, runID, "interviews", fmt.Sprintf("Conducting %d interviews", len(editors)))
	interviews := make(map[string][]string, len(editors))
	failedInterviews := 0

	interviewCh := workflow.NewChannel(ctx)
	for _, ed := range editors {
		ed := ed
		workflow.Go(ctx, func(gCtx workflow.Context) {
			var res activities.InterviewResult
			err := workflow.ExecuteActivity(gCtx, "ConductInterview", activities.InterviewInput{
				Topic: in.Topic, Editor: ed, MaxTurns: in.MaxInterviewTurns,
			}).Get(gCtx, &res)
			if err != nil {
				res = activities.InterviewResult{
					EditorName: ed.Name,
					Transcript: interview.FailureTranscript(ed, err),
					Failed:     true,
				}
			}
			interviewCh.Send(gCtx, res)
		})
	}
	for done := 0; done < len(editors); done++ {
		var res activities.InterviewResult
		interviewCh.Receive(ctx, &res)
		interviews[res.EditorName] = res.Transcript
		if res.Failed {
			failedInterviews++
		}
		emit(ctx, runID, streaming.Event{
			Type: streaming.EventLog, Level: streaming.LevelInfo, Stage: "interviews",
			Message: fmt.Sprintf("Interview with %s finished (%d/%d)", res.EditorName, done+1, len(editors)),
		})
	}
	result.FailedInterviews = failedInterviews
	if failedInterviews == len(editors) {
		degradedStages++
	}
	emitProgress(ctx, runID, 3, "interviews", fmt.Sprintf("Completed %d interviews", len(editors)))

	// Three fully degraded stages in a row means the provider is down, not
	// flaky. Give up instead of producing an article with no real content.
	if degradedStages >= 3 {
		return fail(ctx, runID, started, errors.New("completion provider failing across stages"))
	}

	// Stage 4: refine the outline with interview material.
	emitStage(ctx, runID, "refine", "Refining outline from interviews")
	var refineRes activities.RefineResult
	if err := workflow.ExecuteActivity(ctx, "RefineOutline", activities.RefineInput{
		Topic: in.Topic, Draft: outline, Editors: editors, Interviews: interviews,
	}).Get(ctx, &refineRes); err != nil {
		return fail(ctx, runID, started, fmt.Errorf("refine stage: %w", err))
	}
	if refineRes.UsedFallback {
		emitWarning(ctx, runID, "refine", "Outline refinement degraded, keeping draft outline")
	}
	outline = refineRes.Outline
	emitProgress(ctx, runID, 4, "refine", "Outline refined")

	if in.EnableHumanLoop {
		resp, err := awaitDecision(ctx, runID, research.InteractionOutlineReview,
			outline.Summary(), in.InteractionTimeoutSeconds)
		if err != nil {
			return fail(ctx, runID, started, err)
		}
		if wantsRegeneration(resp) {
			emitStage(ctx, runID, "refine", "Reworking outline from reviewer feedback")
			if err := workflow.ExecuteActivity(ctx, "RefineOutline", activities.RefineInput{
				Topic: in.Topic, Draft: outline, Editors: editors, Interviews: interviews, Feedback: resp.Feedback,
			}).Get(ctx, &refineRes); err != nil {
				return fail(ctx, runID, started, fmt.Errorf("refine regeneration: %w", err))
			}
			outline = refineRes.Outline
		}
	}
	result.Outline = outline

	// Stage 5: write sections, fanned out one activity per section.
	emitStage(ctx, runID, "sections", fmt.Sprintf("Writing %d sections", len(outline.Sections)))
	sections, failedSections := writeSections(ctx, runID, in, outline, editors, interviews, "")
	result.FailedSections = failedSections
	emitProgress(ctx, runID, 5, "sections", fmt.Sprintf("Wrote %d sections", len(sections)))

	if in.EnableHumanLoop {
		resp, err := awaitDecision(ctx, runID, research.InteractionSectionReview,
			sectionSummary(outline, sections), in.InteractionTimeoutSeconds)
		if err != nil {
			return fail(ctx, runID, started, err)
		}
		if wantsRegeneration(resp) {
			emitStage(ctx, runID, "sections", "Rewriting sections from reviewer feedback")
			sections, failedSections = writeSections(ctx, runID, in, outline, editors, interviews, resp.Feedback)
			result.FailedSections = failedSections
		}
	}

	// Stage 6: final article.
	emitStage(ctx, runID, "final", "Assembling final article")
	var articleRes activities.ArticleResult
	if err := workflow.ExecuteActivity(ctx, "WriteFinalArticle", activities.ArticleInput{
		Topic: in.Topic, Outline: outline, Sections: sections,
	}).Get(ctx, &articleRes); err != nil {
		return fail(ctx, runID, started, fmt.Errorf("final stage: %w", err))
	}
	if articleRes.UsedFallback {
		emitWarning(ctx, runID, "final", "Article polishing degraded, stitched sections instead")
	}
	result.Article = articleRes.Article

	var saved activities.SaveArticleResult
	if err := workflow.ExecuteActivity(ctx, "SaveArticle", activities.SaveArticleInput{
		Topic: in.Topic, Article: articleRes.Article,
	}).Get(ctx, &saved); err != nil {
		logger.Warn("Saving article failed", "error", err)
	}
	result.ArticlePath = saved.Path
	emitProgress(ctx, runID, 6, "final", "Article complete")

	elapsed := workflow.Now(ctx).Sub(started).Seconds()
	result.ProcessingTime = elapsed
	result.Degraded = outlineRes.UsedFallback || perspRes.UsedFallback || refineRes.UsedFallback ||
		articleRes.UsedFallback || failedInterviews > 0 || result.FailedSections > 0

	emit(ctx, runID, streaming.Event{
		Type:           streaming.EventComplete,
		Content:        result.Article,
		ProcessingTime: elapsed,
	})
	logger.Info("Research run complete", "topic", in.Topic,
		"processing_time", elapsed, "degraded", result.Degraded)
	return result, nil
}

// writeSections fans section drafting out across activities and collects
// results keyed by section title, reporting completion-order progress.
func writeSections(
	ctx workflow.Context,
	runID string,
	in ResearchInput,
	outline research.Outline,
	editors []research.Editor,
	interviews map[string][]string,
	feedback string,
) (map[string]string, int) {
	sections := make(map[string]string, len(outline.Sections))
	failed := 0

	sectionCh := workflow.NewChannel(ctx)
	for _, sec := range outline.Sections {
		sec := sec
		workflow.Go(ctx, func(gCtx workflow.Context) {
			var res activities.SectionResult
			err := workflow.ExecuteActivity(gCtx, "WriteSection", activities.SectionInput{
				Topic: in.Topic, Outline: outline, Section: sec,
				Editors: editors, Interviews: interviews, Feedback: feedback,
			}).Get(gCtx, &res)
			if err != nil {
				res = activities.SectionResult{
					Title:   sec.SectionTitle,
					Content: "*This section could not be generated.*",
					Failed:  true,
				}
			}
			sectionCh.Send(gCtx, res)
		})
	}
	for done := 0; done < len(outline.Sections); done++ {
		var res activities.SectionResult
		sectionCh.Receive(ctx, &res)
		sections[res.Title] = res.Content
		if res.Failed {
			failed++
		}
		emit(ctx, runID, streaming.Event{
			Type: streaming.EventLog, Level: streaming.LevelInfo, Stage: "sections",
			Message: fmt.Sprintf("Section %q written (%d/%d)", res.Title, done+1, len(outline.Sections)),
		})
	}
	return sections, failed
}

// fail emits the run's storm_error terminal event and returns the error.
func fail(ctx workflow.Context, runID string, started time.Time, err error) (ResearchResult, error) {
	emit(ctx, runID, streaming.Event{
		Type:           streaming.EventError,
		Error:          err.Error(),
		ProcessingTime: workflow.Now(ctx).Sub(started).Seconds(),
	})
	return ResearchResult{}, err
}

func emit(ctx workflow.Context, runID string, evt streaming.Event) {
	evt.RunID = runID
	evt.Timestamp = workflow.Now(ctx)
	if err := workflow.ExecuteActivity(ctx, "EmitResearchUpdate", activities.EmitResearchUpdateInput{
		RunID: runID, Event: evt,
	}).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("Emitting progress event failed", "error", err)
	}
}

func emitStage(ctx workflow.Context, runID, stage, message string) {
	emit(ctx, runID, streaming.Event{
		Type: streaming.EventLog, Level: streaming.LevelInfo, Stage: stage, Message: message,
	})
}

func emitWarning(ctx workflow.Context, runID, stage, message string) {
	emit(ctx, runID, streaming.Event{
		Type: streaming.EventLog, Level: streaming.LevelWarning, Stage: stage, Message: message,
	})
}

func emitProgress(ctx workflow.Context, runID string, step int, stage, message string) {
	emit(ctx, runID, streaming.Event{
		Type: streaming.EventProgress, Stage: stage, Step: step, TotalSteps: TotalSteps, Message: message,
	})
}

func editorSummary(editors []research.Editor) string {
	var b strings.Builder
	b.WriteString("Proposed editors:\n")
	for _, e := range editors {
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", e.Name, e.Role, e.Affiliation, e.Description)
	}
	return b.String()
}

func sectionSummary(outline research.Outline, sections map[string]string) string {
	var b strings.Builder
	b.WriteString("Drafted sections:\n")
	for _, s := range outline.Sections {
		fmt.Fprintf(&b, "- %s (%d chars)\n", s.SectionTitle, len(sections[s.SectionTitle]))
	}
	return b.String()
}
