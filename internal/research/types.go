package research

import (
	"strings"
	"time"
)

// Subsection is one nested entry under an outline section.
type Subsection struct {
	SubsectionTitle string `json:"subsection_title"`
	Description     string `json:"description"`
}

// Section is one top-level outline entry.
type Section struct {
	SectionTitle string       `json:"section_title"`
	Description  string       `json:"description"`
	Subsections  []Subsection `json:"subsections,omitempty"`
}

// Outline is the wiki-page skeleton produced in stage 1 and refined in stage 4.
// A valid outline always has at least one section.
type Outline struct {
	PageTitle string    `json:"page_title"`
	Sections  []Section `json:"sections"`
}

// Summary renders the outline as a short human-readable review text.
func (o Outline) Summary() string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(o.PageTitle)
	b.WriteString("\n\nSections:\n")
	for _, s := range o.Sections {
		b.WriteString("- ")
		b.WriteString(s.SectionTitle)
		b.WriteString(": ")
		b.WriteString(s.Description)
		b.WriteString("\n")
	}
	return b.String()
}

// Editor is one generated reviewer persona. Name is sanitized to an
// identifier-safe ASCII token before use.
type Editor struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Affiliation string `json:"affiliation"`
	Description string `json:"description"`
}

// Interaction types for the human-in-the-loop checkpoints.
const (
	InteractionEditorReview  = "editor_review"
	InteractionOutlineReview = "outline_review"
	InteractionSectionReview = "section_review"
)

// Actions a human reviewer may take on a pending interaction.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionModify  = "modify"
)

// Interaction is one pending human-in-the-loop request. It lives in memory for
// the duration of the checkpoint and is destroyed when the run completes.
type Interaction struct {
	ID        string                `json:"interaction_id"`
	RunID     string                `json:"run_id"`
	Type      string                `json:"type"`
	Content   string                `json:"content"`
	Options   []string              `json:"options"`
	CreatedAt time.Time             `json:"created_at"`
	Response  *InteractionResponse  `json:"response,omitempty"`
}

// InteractionResponse is the reviewer's decision.
type InteractionResponse struct {
	Action        string         `json:"action"`
	Feedback      string         `json:"feedback,omitempty"`
	Modifications map[string]any `json:"modifications,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}
