package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ExtractJSON pulls the JSON payload out of a model response. Models often
// wrap structured output in a ```json fence or lead with prose, so this strips
// the fence when present and otherwise trims to the outermost braces.
func ExtractJSON(raw string) string {
	if idx := strings.Index(raw, "```json"); idx >= 0 {
		rest := raw[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}

// ParseOutline decodes a model response into an Outline. An outline with no
// sections counts as a parse failure so callers fall back deterministically.
func ParseOutline(raw string) (Outline, error) {
	var o Outline
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &o); err != nil {
		return Outline{}, fmt.Errorf("parse outline: %w", err)
	}
	if len(o.Sections) == 0 {
		return Outline{}, errors.New("parse outline: empty sections")
	}
	return o, nil
}

type editorList struct {
	Editors []Editor `json:"editors"`
}

// ParseEditors decodes a model response into an editor roster.
func ParseEditors(raw string) ([]Editor, error) {
	var list editorList
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &list); err != nil {
		return nil, fmt.Errorf("parse editors: %w", err)
	}
	if len(list.Editors) == 0 {
		return nil, errors.New("parse editors: empty roster")
	}
	return list.Editors, nil
}

// DefaultOutline is the deterministic stage-1 fallback used whenever the model
// response cannot be parsed.
func DefaultOutline(topic string) Outline {
	return Outline{
		PageTitle: topic,
		Sections: []Section{
			{SectionTitle: "Overview", Description: "Overview of the topic"},
			{SectionTitle: "Background", Description: "Background and context"},
			{SectionTitle: "Key Aspects", Description: "Core aspects of the topic"},
		},
	}
}

var fallbackEditors = []Editor{
	{Name: "Academic_Researcher", Role: "Researcher", Affiliation: "Academia", Description: "Analyzes the topic from a research perspective"},
	{Name: "Industry_Expert", Role: "Industry Expert", Affiliation: "Industry", Description: "Analyzes the topic from an industry perspective"},
	{Name: "Technical_Specialist", Role: "Technical Specialist", Affiliation: "Engineering", Description: "Analyzes the topic from a technical perspective"},
	{Name: "Policy_Analyst", Role: "Policy Analyst", Affiliation: "Public Policy", Description: "Analyzes the topic from a policy perspective"},
	{Name: "User_Advocate", Role: "User Advocate", Affiliation: "User Community", Description: "Analyzes the topic from a user perspective"},
}

// DefaultEditors returns n deterministic fallback personas, cycling through
// the base roster when n exceeds it.
func DefaultEditors(n int) []Editor {
	if n <= 0 {
		return nil
	}
	editors := make([]Editor, 0, n)
	for i := 0; i < n; i++ {
		editors = append(editors, fallbackEditors[i%len(fallbackEditors)])
	}
	return editors
}

// NormalizeEditors guarantees exactly want editors: generated rosters that are
// too long are truncated, too short are padded with fallback personas. Names
// are sanitized in place. The result length always equals want.
func NormalizeEditors(editors []Editor, want int) []Editor {
	if want <= 0 {
		return nil
	}
	if len(editors) > want {
		editors = editors[:want]
	}
	for len(editors) < want {
		editors = append(editors, fallbackEditors[len(editors)%len(fallbackEditors)])
	}
	out := make([]Editor, want)
	copy(out, editors)
	for i := range out {
		out[i].Name = SanitizeName(out[i].Name)
	}
	return out
}
