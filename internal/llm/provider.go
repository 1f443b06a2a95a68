package llm

import "context"

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is the single message shape used throughout the pipeline. External
// provider formats are adapted to and from this type at the provider boundary
// only.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provider generates a completion for a role-tagged conversation. All agent
// "thinking" in the research pipeline goes through this interface.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// CompleteFunc adapts a plain function to a Provider, mostly for tests.
type CompleteFunc func(ctx context.Context, messages []Message) (string, error)

func (f CompleteFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// System and User are small helpers for building prompts.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message   { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
