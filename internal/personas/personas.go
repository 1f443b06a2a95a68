// Package personas defines the prompt contracts for the research pipeline's
// agents. Each persona is a pure function from topic or accumulated context to
// a message list for the completion provider; no persona holds state.
package personas

import (
	"fmt"
	"strings"

	"github.com/jh941213/storm-orchestrator/internal/llm"
	"github.com/jh941213/storm-orchestrator/internal/research"
)

// SearchDirective is the token the expert emits, followed by a query, when it
// needs external information mid-interview.
const SearchDirective = "SEARCH:"

// SummaryOpening is the phrase the expert is instructed to open its wind-down
// summary with. The interview runner treats its appearance as a termination
// signal, via a pluggable predicate.
const SummaryOpening = "To summarize our discussion so far"

const outlineSystem = `You are a Wikipedia writer. Produce a Wikipedia page outline for the topic the user provides.
Be comprehensive and specific.

Respond with JSON in exactly this shape:
{
  "page_title": "page title",
  "sections": [
    {
      "section_title": "section title",
      "description": "section description",
      "subsections": [
        {"subsection_title": "subsection title", "description": "subsection description"}
      ]
    }
  ]
}`

// OutlinePrompt asks for the initial stage-1 outline. Optional reviewer
// feedback from a rejected checkpoint is folded into the request.
func OutlinePrompt(topic, feedback string) []llm.Message {
	task := fmt.Sprintf("Create a Wikipedia outline for the topic %q.", topic)
	if feedback != "" {
		task += "\n\nReviewer feedback to incorporate: " + feedback
	}
	return []llm.Message{llm.System(outlineSystem), llm.User(task)}
}

// RefinePrompt asks for the stage-4 outline refinement from interview
// transcripts. Editors are passed as an ordered list so prompt construction is
// deterministic.
func RefinePrompt(topic string, outline research.Outline, editors []research.Editor, interviews map[string][]string) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nCurrent outline:\n%s\nExpert interview transcripts:\n\n", topic, outline.Summary())
	for _, ed := range editors {
		turns := interviews[ed.Name]
		fmt.Fprintf(&b, "Interview with editor %s:\n%s\n\n", ed.Name, strings.Join(turns, "\n"))
	}
	b.WriteString("Refine the Wikipedia outline based on the interviews. Make sure the outline is comprehensive and specific.")
	return []llm.Message{llm.System(outlineSystem), llm.User(b.String())}
}

const perspectiveSystem = `You assemble Wikipedia editor teams. Select a group of editors with diverse, distinct perspectives on the topic.
Each editor represents a different viewpoint, role and affiliation.

Important: editor names must be ASCII identifiers (e.g. John_Smith, Sarah_Lee).

Respond with JSON in exactly this shape:
{
  "editors": [
    {
      "name": "ascii_name",
      "role": "role",
      "affiliation": "affiliation",
      "description": "the editor's focus, interests and motivation"
    }
  ]
}`

// PerspectivesPrompt asks for exactly count reviewer personas.
func PerspectivesPrompt(topic string, count int, feedback string) []llm.Message {
	task := fmt.Sprintf("Generate exactly %d editors with diverse perspectives on the topic %q.", count, topic)
	if feedback != "" {
		task += "\n\nReviewer feedback to incorporate: " + feedback
	}
	return []llm.Message{llm.System(perspectiveSystem), llm.User(task)}
}

// InterviewerSystem builds the system prompt for the interviewer persona
// embodying one editor.
func InterviewerSystem(editor research.Editor) string {
	return fmt.Sprintf(`You are an experienced Wikipedia writer who wants to edit a specific page.
Besides your identity as a Wikipedia writer, you have a particular focus when researching the topic.

Your persona:
Name: %s
Role: %s
Affiliation: %s
Description: %s

You are chatting with an expert to gather information. Conduct the interview like this:
1. Start from basic concepts and definitions, then move gradually to advanced questions.
2. Dig into the aspects that matter from your perspective (%s).
3. Also ask about practical applications and real cases.
4. Ask one question at a time and never repeat a question you already asked.

When the expert begins a reply with %q, answer "Thank you for all the valuable information!" to close the interview.`,
		editor.Name, editor.Role, editor.Affiliation, editor.Description, editor.Role, SummaryOpening)
}

// ExpertSystem is the system prompt for the search-capable domain expert.
func ExpertSystem() string {
	return fmt.Sprintf(`You are an expert who can use information effectively, chatting with a Wikipedia writer who wants to write a page on the topic.

Response guidelines:
- Write each answer in 200-400 words, with concrete examples, data and comparisons.
- Balance technical detail with a practitioner's view.
- Cover historical background, current state and future outlook.
- Present multiple viewpoints for balance.

Support every statement with gathered information, cite sources as footnotes and reproduce URLs after the answer.

When you need external information, request it as: %s [query]

Important: once the conversation passes its 15th or 16th exchange, prepare to wrap up.
When questions start repeating or run out, close with a structured summary that begins exactly with:
%q
and covers:
1. Key concepts and definitions
2. Main characteristics, pros and cons
3. Practical applications
4. Future outlook and trends
5. Keywords useful for the Wikipedia article`, SearchDirective, SummaryOpening)
}

// OpeningMessage frames the interview before the first question.
func OpeningMessage(topic string) string {
	return fmt.Sprintf("I am writing a Wikipedia article on %q. I will interview you systematically, starting from basic concepts and moving to advanced material.", topic)
}

const sectionWriterSystem = `You are a professional Wikipedia writer. Complete a Wikipedia section using the given outline and reference material.

Writing guidelines:
- Write the section in at least 800-1200 words with technical detail, historical background and real cases.
- Use subsections to structure the content.
- Include comparisons, trade-offs and future outlook.
- Draw as much as possible on the expert interview material.

Write in markdown and cite with footnotes like [1], [2]. The section must be comprehensive and educational.`

// SectionPrompt asks for one stage-5 section draft.
func SectionPrompt(topic string, outline research.Outline, section research.Section, editors []research.Editor, interviews map[string][]string) []llm.Message {
	var refs strings.Builder
	for _, ed := range editors {
		turns := interviews[ed.Name]
		fmt.Fprintf(&refs, "Research material from editor %s:\n%s\n\n", ed.Name, strings.Join(turns, "\n"))
	}
	task := fmt.Sprintf(`Topic: %s

Full outline:
%s
Section to write: %s
Section description: %s

Reference material:
%s
Write the complete, comprehensive Wikipedia content for this section.`,
		topic, outline.Summary(), section.SectionTitle, section.Description, refs.String())
	return []llm.Message{llm.System(sectionWriterSystem), llm.User(task)}
}

const finalWriterSystem = `You are a professional Wikipedia writer. Compose the complete wiki article from the given section drafts.

Goal: a comprehensive article of at least 4000-6000 words.

Requirements:
- Write a detailed 300-500 word introduction.
- Improve flow and connections between sections and expand their content.
- Include concrete cases, statistics and comparisons.
- Close with a conclusion section containing synthesis and outlook.

Follow Wikipedia style strictly, write markdown, consolidate footnote citations like [1] and put URLs in the footer without duplicates.`

// FinalPrompt asks for the stage-6 merged article. Section drafts are passed
// in outline order.
func FinalPrompt(topic string, outline research.Outline, sections map[string]string) []llm.Message {
	var drafts strings.Builder
	for _, s := range outline.Sections {
		fmt.Fprintf(&drafts, "## %s\n%s\n\n", s.SectionTitle, sections[s.SectionTitle])
	}
	task := fmt.Sprintf(`Topic: %s

Section drafts:
%s
Merge the drafts into one coherent Wikipedia article with an expanded introduction, improved transitions, and a conclusion with references.`,
		topic, drafts.String())
	return []llm.Message{llm.System(finalWriterSystem), llm.User(task)}
}
