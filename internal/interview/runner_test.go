package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jh941213/storm-orchestrator/internal/llm"
	"github.com/jh941213/storm-orchestrator/internal/personas"
	"github.com/jh941213/storm-orchestrator/internal/research"
	"github.com/jh941213/storm-orchestrator/internal/search"
)

var testEditor = research.Editor{
	Name: "Jane_Kim", Role: "Researcher", Affiliation: "University", Description: "methods focus",
}

// scriptedLLM answers with the interviewer script for interviewer prompts and
// the expert script for expert prompts, distinguishing them by system prompt.
func scriptedLLM(t *testing.T, expertReplies []string) llm.Provider {
	t.Helper()
	var questionN, answerN int
	return llm.CompleteFunc(func(ctx context.Context, msgs []llm.Message) (string, error) {
		require.NotEmpty(t, msgs)
		if strings.Contains(msgs[0].Content, "Your persona:") {
			questionN++
			return fmt.Sprintf("Question %d?", questionN), nil
		}
		if answerN < len(expertReplies) {
			answerN++
			return expertReplies[answerN-1], nil
		}
		return "Another detailed answer.", nil
	})
}

func noSearch(t *testing.T) search.Provider {
	t.Helper()
	return search.SearchFunc(func(ctx context.Context, q string, n int) ([]search.Result, error) {
		t.Fatalf("unexpected search for %q", q)
		return nil, nil
	})
}

func TestConductTerminatesOnSummaryPhrase(t *testing.T) {
	replies := []string{
		"A detailed first answer.",
		personas.SummaryOpening + ", the key points are these.",
	}
	r := NewRunner(scriptedLLM(t, replies), noSearch(t), zaptest.NewLogger(t))

	transcript := r.Conduct(context.Background(), testEditor, "Remote work productivity")

	require.NotEmpty(t, transcript)
	assert.False(t, IsFailure(transcript))
	last := transcript[len(transcript)-1]
	assert.Contains(t, last, closingMessage)
	// q1, a1, q2, summary, closing
	assert.Len(t, transcript, 5)
}

func TestConductRespectsTurnBudget(t *testing.T) {
	// the expert never summarizes, so the budget has to stop the loop
	turns := 0
	r := NewRunner(scriptedLLM(t, nil), noSearch(t), zaptest.NewLogger(t))
	r.OnTurn = func(turn int) { turns = turn }

	transcript := r.Conduct(context.Background(), testEditor, "Remote work productivity")

	assert.LessOrEqual(t, turns, DefaultMaxTurns-1)
	assert.Equal(t, DefaultMaxTurns-1, turns, "should stop exactly one turn short of the budget")
	assert.NotEmpty(t, transcript)
}

func TestConductInjectsSearchResults(t *testing.T) {
	replies := []string{
		"I need current data. " + personas.SearchDirective + " [remote work statistics 2026]",
		personas.SummaryOpening + ", here is the wrap-up.",
	}
	searched := ""
	searcher := search.SearchFunc(func(ctx context.Context, q string, n int) ([]search.Result, error) {
		searched = q
		return []search.Result{
			{Title: "Stats", URL: "https://example.com/1", Content: strings.Repeat("x", 400)},
			{Title: "More", URL: "https://example.com/2", Content: "short"},
			{Title: "Extra", URL: "https://example.com/3", Content: "extra"},
			{Title: "Overflow", URL: "https://example.com/4", Content: "dropped"},
		}, nil
	})
	r := NewRunner(scriptedLLM(t, replies), searcher, zaptest.NewLogger(t))

	transcript := r.Conduct(context.Background(), testEditor, "Remote work productivity")

	assert.Equal(t, "remote work statistics 2026", searched)
	var block string
	for _, entry := range transcript {
		if strings.HasPrefix(entry, "Search results") {
			block = entry
		}
	}
	require.NotEmpty(t, block, "transcript should carry an injected search block")
	assert.Contains(t, block, "https://example.com/1")
	assert.NotContains(t, block, "https://example.com/4", "at most 3 results are injected")
	assert.Contains(t, block, "x...", "long snippets are condensed")
}

func TestConductTruncatesSnippetsOnRuneBoundary(t *testing.T) {
	replies := []string{
		personas.SearchDirective + " [한국 원격 근무 통계]",
		personas.SummaryOpening + ", wrap-up.",
	}
	// one leading ASCII byte before the 3-byte runes puts the byte limit
	// mid-rune
	searcher := search.SearchFunc(func(ctx context.Context, q string, n int) ([]search.Result, error) {
		return []search.Result{
			{Title: "통계", URL: "https://example.com/kr", Content: "x" + strings.Repeat("가", 200)},
		}, nil
	})
	r := NewRunner(scriptedLLM(t, replies), searcher, zaptest.NewLogger(t))

	transcript := r.Conduct(context.Background(), testEditor, "원격 근무")

	var block string
	for _, entry := range transcript {
		if strings.HasPrefix(entry, "Search results") {
			block = entry
		}
	}
	require.NotEmpty(t, block)
	assert.True(t, utf8.ValidString(block), "truncated snippet must stay valid UTF-8")
	assert.Contains(t, block, "...")
}

func TestCondense(t *testing.T) {
	assert.Equal(t, "short", condense("short"))

	long := condense(strings.Repeat("x", snippetLimit+50))
	assert.Len(t, long, snippetLimit+len("..."))

	// cut point lands one byte into a rune; condense must back up to x + 99 runes
	multi := condense("x" + strings.Repeat("가", 150))
	assert.True(t, utf8.ValidString(multi))
	assert.Equal(t, "x"+strings.Repeat("가", 99)+"...", multi)
}

func TestConductSearchFailureDegrades(t *testing.T) {
	replies := []string{
		personas.SearchDirective + " [failing query]",
		personas.SummaryOpening + ", wrap-up.",
	}
	searcher := search.SearchFunc(func(ctx context.Context, q string, n int) ([]search.Result, error) {
		return nil, errors.New("search backend down")
	})
	r := NewRunner(scriptedLLM(t, replies), searcher, zaptest.NewLogger(t))

	transcript := r.Conduct(context.Background(), testEditor, "Remote work productivity")

	assert.False(t, IsFailure(transcript))
	found := false
	for _, entry := range transcript {
		if strings.Contains(entry, "no results") {
			found = true
		}
	}
	assert.True(t, found, "failed search should degrade to an empty-results note")
}

func TestConductReturnsFailureTranscriptOnProviderError(t *testing.T) {
	failing := llm.CompleteFunc(func(ctx context.Context, msgs []llm.Message) (string, error) {
		return "", errors.New("provider unreachable")
	})
	r := NewRunner(failing, noSearch(t), zaptest.NewLogger(t))

	transcript := r.Conduct(context.Background(), testEditor, "Remote work productivity")

	require.Len(t, transcript, 1)
	assert.True(t, IsFailure(transcript))
	assert.Contains(t, transcript[0], "Jane_Kim")
}

func TestExtractSearchQuery(t *testing.T) {
	cases := []struct {
		in    string
		query string
		ok    bool
	}{
		{"SEARCH: [golang concurrency]", "golang concurrency", true},
		{"Let me check.\nSEARCH: remote work trends\nMore text", "remote work trends", true},
		{"no directive here", "", false},
		{"SEARCH:   ", "", false},
	}
	for _, c := range cases {
		q, ok := extractSearchQuery(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.query, q, c.in)
	}
}

func TestPhraseTerminalPluggable(t *testing.T) {
	r := NewRunner(
		scriptedLLM(t, []string{"END_OF_INTERVIEW marker reached"}),
		noSearch(t),
		zaptest.NewLogger(t),
		WithTerminal(PhraseTerminal("END_OF_INTERVIEW")),
		WithMaxTurns(6),
	)

	transcript := r.Conduct(context.Background(), testEditor, "Anything")
	last := transcript[len(transcript)-1]
	assert.Contains(t, last, closingMessage)
}
