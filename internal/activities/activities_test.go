package activities

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jh941213/storm-orchestrator/internal/config"
	"github.com/jh941213/storm-orchestrator/internal/llm"
	"github.com/jh941213/storm-orchestrator/internal/research"
	"github.com/jh941213/storm-orchestrator/internal/search"
	"github.com/jh941213/storm-orchestrator/internal/streaming"
)

func staticLLM(response string) llm.Provider {
	return llm.CompleteFunc(func(ctx context.Context, messages []llm.Message) (string, error) {
		return response, nil
	})
}

func erroringLLM(err error) llm.Provider {
	return llm.CompleteFunc(func(ctx context.Context, messages []llm.Message) (string, error) {
		return "", err
	})
}

func noSearch() search.Provider {
	return search.SearchFunc(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		return nil, nil
	})
}

func testActivities(t *testing.T, provider llm.Provider) *Activities {
	t.Helper()
	return NewActivities(provider, provider, noSearch(), streaming.NewManager(16), NewInteractionRegistry(),
		config.ResearchConfig{MaxInterviewTurns: 6, OutputDir: t.TempDir()}, zap.NewNop())
}

func TestGenerateOutlineParsesModelResponse(t *testing.T) {
	raw := `{"page_title":"Quantum Computing","sections":[{"section_title":"History","description":"Origins"}]}`
	a := testActivities(t, staticLLM(raw))

	res, err := a.GenerateOutline(context.Background(), OutlineInput{Topic: "Quantum Computing"})
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, "Quantum Computing", res.Outline.PageTitle)
	require.Len(t, res.Outline.Sections, 1)
	assert.Equal(t, "History", res.Outline.Sections[0].SectionTitle)
}

func TestGenerateOutlineFallsBackOnGarbage(t *testing.T) {
	a := testActivities(t, staticLLM("I cannot produce JSON today."))

	res, err := a.GenerateOutline(context.Background(), OutlineInput{Topic: "Quantum Computing"})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "Quantum Computing", res.Outline.PageTitle)
	assert.Len(t, res.Outline.Sections, 3)
}

func TestGenerateOutlineFallsBackOnProviderError(t *testing.T) {
	a := testActivities(t, erroringLLM(errors.New("rate limited")))

	res, err := a.GenerateOutline(context.Background(), OutlineInput{Topic: "Solar Power"})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.NotEmpty(t, res.Outline.Sections)
	assert.Contains(t, res.Warning, "rate limited")
}

func TestGeneratePerspectivesNormalizesCount(t *testing.T) {
	raw := `{"editors":[
		{"name":"A","role":"r","affiliation":"x","description":"d"},
		{"name":"B","role":"r","affiliation":"x","description":"d"},
		{"name":"C","role":"r","affiliation":"x","description":"d"},
		{"name":"D","role":"r","affiliation":"x","description":"d"},
		{"name":"E","role":"r","affiliation":"x","description":"d"}]}`
	a := testActivities(t, staticLLM(raw))

	res, err := a.GeneratePerspectives(context.Background(), PerspectivesInput{Topic: "t", Count: 3})
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	assert.Len(t, res.Editors, 3)
}

func TestGeneratePerspectivesPadsShortRoster(t *testing.T) {
	raw := `{"editors":[{"name":"Only One","role":"r","affiliation":"x","description":"d"}]}`
	a := testActivities(t, staticLLM(raw))

	res, err := a.GeneratePerspectives(context.Background(), PerspectivesInput{Topic: "t", Count: 4})
	require.NoError(t, err)
	require.Len(t, res.Editors, 4)
	assert.Equal(t, "Only_One", res.Editors[0].Name)
	for _, e := range res.Editors {
		assert.NotEmpty(t, e.Name)
	}
}

func TestGeneratePerspectivesFallsBackOnProviderError(t *testing.T) {
	a := testActivities(t, erroringLLM(errors.New("boom")))

	res, err := a.GeneratePerspectives(context.Background(), PerspectivesInput{Topic: "t", Count: 5})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Len(t, res.Editors, 5)
}

func TestConductInterviewReportsFailure(t *testing.T) {
	a := testActivities(t, erroringLLM(errors.New("connection reset")))

	res, err := a.ConductInterview(context.Background(), InterviewInput{
		Topic:  "t",
		Editor: research.Editor{Name: "Tester", Role: "r"},
	})
	require.NoError(t, err)
	assert.True(t, res.Failed)
	require.Len(t, res.Transcript, 1)
	assert.Contains(t, res.Transcript[0], "interview failed")
}

func TestRefineOutlineKeepsDraftOnFailure(t *testing.T) {
	a := testActivities(t, staticLLM("not json"))
	draft := research.DefaultOutline("topic")

	res, err := a.RefineOutline(context.Background(), RefineInput{Topic: "topic", Draft: draft})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, draft, res.Outline)
}

func TestWriteSectionPlaceholderOnFailure(t *testing.T) {
	a := testActivities(t, erroringLLM(errors.New("timeout")))

	res, err := a.WriteSection(context.Background(), SectionInput{
		Topic:   "t",
		Section: research.Section{SectionTitle: "History"},
	})
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Equal(t, "History", res.Title)
	assert.Contains(t, res.Content, "could not be generated")
}

func TestWriteFinalArticleStitchesOnFailure(t *testing.T) {
	a := testActivities(t, erroringLLM(errors.New("overloaded")))
	outline := research.Outline{
		PageTitle: "Topic Title",
		Sections: []research.Section{
			{SectionTitle: "First"},
			{SectionTitle: "Second"},
		},
	}
	sections := map[string]string{
		"Second": "second body",
		"First":  "first body",
	}

	res, err := a.WriteFinalArticle(context.Background(), ArticleInput{Topic: "t", Outline: outline, Sections: sections})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	first := strings.Index(res.Article, "first body")
	second := strings.Index(res.Article, "second body")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second, "sections must follow outline order")
	assert.True(t, strings.HasPrefix(res.Article, "# Topic Title"))
}

func TestSaveArticleWritesMarkdown(t *testing.T) {
	a := testActivities(t, staticLLM(""))

	res, err := a.SaveArticle(context.Background(), SaveArticleInput{Topic: "t", Article: "# Hello\n\nworld"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Path, ".md"))
	assert.Contains(t, filepath.Base(res.Path), "storm_article_")

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "# Hello\n\nworld", string(data))
}
