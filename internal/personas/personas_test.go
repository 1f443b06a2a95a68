package personas

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jh941213/storm-orchestrator/internal/llm"
	"github.com/jh941213/storm-orchestrator/internal/research"
)

func TestOutlinePromptShape(t *testing.T) {
	msgs := OutlinePrompt("Edge computing", "")
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `"page_title"`)
	assert.Contains(t, msgs[1].Content, "Edge computing")
}

func TestOutlinePromptCarriesFeedback(t *testing.T) {
	msgs := OutlinePrompt("Edge computing", "add a security section")
	assert.Contains(t, msgs[1].Content, "add a security section")
}

func TestPerspectivesPromptCount(t *testing.T) {
	msgs := PerspectivesPrompt("Edge computing", 4, "")
	assert.Contains(t, msgs[1].Content, "exactly 4 editors")
}

func TestInterviewerSystemEmbedsPersona(t *testing.T) {
	ed := research.Editor{Name: "Jane_Kim", Role: "Security Analyst", Affiliation: "CERT", Description: "threat modeling focus"}
	sys := InterviewerSystem(ed)
	for _, want := range []string{"Jane_Kim", "Security Analyst", "CERT", "threat modeling focus", SummaryOpening} {
		assert.Contains(t, sys, want)
	}
}

func TestExpertSystemContract(t *testing.T) {
	sys := ExpertSystem()
	assert.Contains(t, sys, SearchDirective)
	assert.Contains(t, sys, SummaryOpening)
	assert.Contains(t, sys, "200-400 words")
}

func TestRefinePromptIsDeterministic(t *testing.T) {
	editors := []research.Editor{{Name: "A"}, {Name: "B"}}
	interviews := map[string][]string{
		"A": {"A: q1", "expert: a1"},
		"B": {"B: q1", "expert: a1"},
	}
	outline := research.DefaultOutline("Topic")

	first := RefinePrompt("Topic", outline, editors, interviews)
	second := RefinePrompt("Topic", outline, editors, interviews)
	assert.Equal(t, first, second)

	// editor order drives transcript order, not map iteration
	idxA := strings.Index(first[1].Content, "editor A")
	idxB := strings.Index(first[1].Content, "editor B")
	assert.Less(t, idxA, idxB)
}

func TestFinalPromptOrdersSectionsByOutline(t *testing.T) {
	outline := research.Outline{
		PageTitle: "Topic",
		Sections: []research.Section{
			{SectionTitle: "Zeta"},
			{SectionTitle: "Alpha"},
		},
	}
	sections := map[string]string{"Alpha": "alpha body", "Zeta": "zeta body"}

	msgs := FinalPrompt("Topic", outline, sections)
	body := msgs[1].Content
	assert.Less(t, strings.Index(body, "zeta body"), strings.Index(body, "alpha body"))
}
