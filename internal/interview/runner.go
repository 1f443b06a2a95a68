// Package interview drives one bounded two-party simulated dialogue between an
// interviewer persona and the search-capable expert responder.
package interview

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/llm"
	"github.com/jh941213/storm-orchestrator/internal/metrics"
	"github.com/jh941213/storm-orchestrator/internal/personas"
	"github.com/jh941213/storm-orchestrator/internal/research"
	"github.com/jh941213/storm-orchestrator/internal/search"
)

const (
	// DefaultMaxTurns is the dialogue turn budget. The runner stops one turn
	// short of it so a closing turn always fits.
	DefaultMaxTurns = 20

	maxInjectedResults = 3
	snippetLimit       = 300

	closingMessage = "Thank you for all the valuable information!"

	failureMarker = "interview failed"
)

// TerminalFunc decides whether an expert utterance ends the interview. The
// matching strategy is pluggable so phrase matching can be swapped for a
// structured end marker without touching the dialogue loop.
type TerminalFunc func(utterance string) bool

// PhraseTerminal matches a fixed summary-opening phrase. Phrase matching is a
// known fragility: a model that paraphrases the phrase falls through to the
// turn budget.
func PhraseTerminal(phrase string) TerminalFunc {
	return func(utterance string) bool {
		return strings.Contains(utterance, phrase)
	}
}

// Runner executes interviews against a completion provider and a search
// provider. A Runner is safe for concurrent use; per-interview state lives on
// the stack of Conduct.
type Runner struct {
	llm        llm.Provider
	search     search.Provider
	logger     *zap.Logger
	maxTurns   int
	isTerminal TerminalFunc

	// OnTurn, when set, is called after every completed dialogue turn. The
	// interview activity uses it to record heartbeats.
	OnTurn func(turn int)
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxTurns overrides the dialogue turn budget.
func WithMaxTurns(n int) Option {
	return func(r *Runner) {
		if n > 1 {
			r.maxTurns = n
		}
	}
}

// WithTerminal overrides the termination predicate.
func WithTerminal(fn TerminalFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.isTerminal = fn
		}
	}
}

func NewRunner(provider llm.Provider, searcher search.Provider, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		llm:        provider,
		search:     searcher,
		logger:     logger,
		maxTurns:   DefaultMaxTurns,
		isTerminal: PhraseTerminal(personas.SummaryOpening),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Conduct runs the interview for one editor and returns the ordered
// transcript. Entries are speaker-tagged utterances or injected search-result
// blocks. Errors never propagate: a mid-interview failure yields a
// single-entry failure transcript so sibling interviews are unaffected.
func (r *Runner) Conduct(ctx context.Context, editor research.Editor, topic string) []string {
	name := research.SanitizeName(editor.Name)
	interviewerTag := "interviewer_" + name

	interviewerHist := []llm.Message{
		llm.System(personas.InterviewerSystem(editor)),
		llm.User(personas.OpeningMessage(topic) + "\nAsk your first question."),
	}
	expertHist := []llm.Message{
		llm.System(personas.ExpertSystem()),
		llm.User(personas.OpeningMessage(topic)),
	}

	var transcript []string
	turns := 0
	limit := r.maxTurns - 1 // leave room for the closing turn

	for turns < limit {
		question, err := r.llm.Complete(ctx, interviewerHist)
		if err != nil {
			return FailureTranscript(editor, err)
		}
		turns++
		r.turnDone(turns)
		transcript = append(transcript, interviewerTag+": "+question)
		interviewerHist = append(interviewerHist, llm.Assistant(question))
		expertHist = append(expertHist, llm.User(question))

		if turns >= limit {
			break
		}

		answer, err := r.llm.Complete(ctx, expertHist)
		if err != nil {
			return FailureTranscript(editor, err)
		}
		turns++
		r.turnDone(turns)
		expertHist = append(expertHist, llm.Assistant(answer))
		interviewerHist = append(interviewerHist, llm.User(answer))

		if query, ok := extractSearchQuery(answer); ok {
			block := r.runSearch(ctx, query)
			transcript = append(transcript, block)
			// hand the results back to the expert for its next answer
			expertHist = append(expertHist, llm.User(block))
		} else {
			transcript = append(transcript, "domain_expert: "+answer)
		}

		if r.isTerminal(answer) {
			r.logger.Debug("interview reached terminal summary",
				zap.String("editor", name),
				zap.Int("turns", turns),
			)
			transcript = append(transcript, interviewerTag+": "+closingMessage)
			break
		}
	}

	r.logger.Info("interview completed",
		zap.String("editor", name),
		zap.Int("turns", turns),
		zap.Int("entries", len(transcript)),
	)
	return transcript
}

func (r *Runner) turnDone(turn int) {
	if r.OnTurn != nil {
		r.OnTurn(turn)
	}
}

// runSearch resolves a search directive into a condensed results block. A
// failing search degrades to an empty-results note; the interview continues
// without the external context.
func (r *Runner) runSearch(ctx context.Context, query string) string {
	results, err := r.search.Search(ctx, query, maxInjectedResults)
	if err != nil {
		r.logger.Warn("interview search failed", zap.String("query", query), zap.Error(err))
		metrics.SearchRequests.WithLabelValues("error").Inc()
		return fmt.Sprintf("Search results for %q: no results", query)
	}
	if len(results) == 0 {
		metrics.SearchRequests.WithLabelValues("empty").Inc()
		return fmt.Sprintf("Search results for %q: no results", query)
	}
	metrics.SearchRequests.WithLabelValues("ok").Inc()
	if len(results) > maxInjectedResults {
		results = results[:maxInjectedResults]
	}
	lines := make([]string, 0, len(results))
	for _, res := range results {
		lines = append(lines, fmt.Sprintf("[%s] %s", res.URL, condense(res.Content)))
	}
	return fmt.Sprintf("Search results for %q:\n%s", query, strings.Join(lines, "\n"))
}

// condense caps a result snippet at snippetLimit bytes, backing up to a rune
// boundary so multi-byte content is never cut mid-rune.
func condense(content string) string {
	if len(content) <= snippetLimit {
		return content
	}
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// extractSearchQuery pulls the query out of an expert utterance containing a
// search directive. The query runs to the end of the directive's line.
func extractSearchQuery(utterance string) (string, bool) {
	idx := strings.Index(utterance, personas.SearchDirective)
	if idx < 0 {
		return "", false
	}
	rest := utterance[idx+len(personas.SearchDirective):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	query := strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), "[]"))
	if query == "" {
		return "", false
	}
	return query, true
}

// FailureTranscript is the degraded single-entry transcript for a failed
// interview.
func FailureTranscript(editor research.Editor, err error) []string {
	return []string{fmt.Sprintf("editor %s: %s: %v", research.SanitizeName(editor.Name), failureMarker, err)}
}

// IsFailure reports whether a transcript is a failure placeholder rather than
// real interview content.
func IsFailure(transcript []string) bool {
	return len(transcript) == 1 && strings.Contains(transcript[0], failureMarker)
}
