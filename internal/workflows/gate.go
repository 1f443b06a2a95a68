package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/jh941213/storm-orchestrator/internal/activities"
	"github.com/jh941213/storm-orchestrator/internal/research"
)

// awaitDecision pauses the pipeline at a review checkpoint. It registers the
// interaction through an activity, then waits for the decision signal or the
// timeout, whichever comes first. Timeouts resolve to approval so an
// unanswered checkpoint never hangs the run.
func awaitDecision(ctx workflow.Context, runID, interactionType, content string, timeoutSeconds int) (research.InteractionResponse, error) {
	logger := workflow.GetLogger(ctx)

	var req activities.InteractionResult
	err := workflow.ExecuteActivity(ctx, "RequestInteraction", activities.InteractionInput{
		RunID:   runID,
		Type:    interactionType,
		Content: content,
		Options: []string{research.ActionApprove, research.ActionReject, research.ActionModify},
	}).Get(ctx, &req)
	if err != nil {
		return research.InteractionResponse{}, err
	}

	logger.Info("Waiting for reviewer decision",
		"interaction_id", req.InteractionID, "type", interactionType)

	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeoutSeconds <= 0 {
		timeout = DefaultInteractionExpiry * time.Second
	}

	ch := workflow.GetSignalChannel(ctx, DecisionSignalName(req.InteractionID))
	timer := workflow.NewTimer(ctx, timeout)
	sel := workflow.NewSelector(ctx)

	var resp research.InteractionResponse
	var timedOut bool
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, &resp)
	})
	sel.AddFuture(timer, func(f workflow.Future) {
		timedOut = true
		resp = research.InteractionResponse{
			Action:    research.ActionApprove,
			Feedback:  "auto-approved on timeout",
			Timestamp: workflow.Now(ctx),
		}
	})
	sel.Select(ctx)

	if timedOut {
		logger.Warn("Reviewer decision timed out, auto-approving",
			"interaction_id", req.InteractionID)
	}

	err = workflow.ExecuteActivity(ctx, "ResolveInteraction", activities.ResolveInteractionInput{
		RunID:         runID,
		InteractionID: req.InteractionID,
		Response:      resp,
		AutoApproved:  timedOut,
	}).Get(ctx, nil)
	if err != nil {
		return research.InteractionResponse{}, err
	}
	return resp, nil
}

// wantsRegeneration reports whether a decision should trigger the checkpoint's
// single regeneration pass. Modify with feedback counts the same as reject;
// modify without feedback proceeds as approved.
func wantsRegeneration(resp research.InteractionResponse) bool {
	if resp.Action == research.ActionReject {
		return true
	}
	return resp.Action == research.ActionModify && resp.Feedback != ""
}
