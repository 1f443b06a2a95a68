package llm

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jh941213/storm-orchestrator/internal/config"
)

// OpenAIProvider implements Provider using the official openai-go SDK
// (chat completions). Any OpenAI-compatible endpoint works via BaseURL.
type OpenAIProvider struct {
	model  string
	client openai.Client
}

// NewOpenAI builds a provider from config. The client itself is stateless
// apart from its connection pool, so one provider may be shared across runs.
func NewOpenAI(cfg config.LLMConfig, model string) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key missing; set OPENAI_API_KEY or llm.api_key")
	}
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIProvider{model: model, client: openai.NewClient(opts...)}, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
