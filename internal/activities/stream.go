package activities

import (
	"context"

	"github.com/jh941213/storm-orchestrator/internal/metrics"
	"github.com/jh941213/storm-orchestrator/internal/streaming"
)

// EmitResearchUpdateInput carries one progress event from the workflow to the
// stream manager. Routing through an activity keeps the workflow code
// deterministic and replay-safe.
type EmitResearchUpdateInput struct {
	RunID string          `json:"run_id"`
	Event streaming.Event `json:"event"`
}

// EmitResearchUpdate publishes a progress event for the run's subscribers.
func (a *Activities) EmitResearchUpdate(ctx context.Context, in EmitResearchUpdateInput) error {
	a.publish(in.RunID, in.Event)
	return nil
}

func (a *Activities) publish(runID string, evt streaming.Event) {
	if a.streams == nil {
		return
	}
	a.streams.Publish(runID, evt)
	metrics.EventsPublished.WithLabelValues(evt.Type).Inc()
	switch evt.Type {
	case streaming.EventComplete:
		metrics.RunsCompleted.WithLabelValues("completed").Inc()
		metrics.RunDuration.Observe(evt.ProcessingTime)
	case streaming.EventError:
		metrics.RunsCompleted.WithLabelValues("failed").Inc()
	}
}
