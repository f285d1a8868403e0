package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/zoterochat/core"
)

// OpenAICompat is the backend variant for any service speaking the OpenAI
// chat-completions wire format. Ollama and OpenRouter differ only in base
// URL, credentials and extra headers.
type OpenAICompat struct {
	client   openai.Client
	model    string
	provider string
}

// NewOllama constructs the variant for a local Ollama server. Ollama exposes
// the OpenAI-compatible API under /v1 and ignores the API key, but the SDK
// wants one set.
func NewOllama(baseURL, model string) *OpenAICompat {
	base := strings.TrimSuffix(baseURL, "/") + "/v1"
	return &OpenAICompat{
		client: openai.NewClient(
			option.WithBaseURL(base),
			option.WithAPIKey("ollama"),
		),
		model:    model,
		provider: "ollama",
	}
}

// NewOpenRouter constructs the variant for the OpenRouter API.
func NewOpenRouter(apiKey, model string) *OpenAICompat {
	return &OpenAICompat{
		client: openai.NewClient(
			option.WithBaseURL("https://openrouter.ai/api/v1"),
			option.WithAPIKey(apiKey),
			option.WithHeader("HTTP-Referer", "https://github.com/hupe1980/zoterochat"),
			option.WithHeader("X-Title", "Zotero Chat"),
		),
		model:    model,
		provider: "openrouter",
	}
}

// Chat implements Provider.
func (p *OpenAICompat) Chat(ctx context.Context, messages []Message) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: buildOpenAIMessages(messages),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s api error: %w", p.provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s api error: no choices returned", p.provider)
	}
	return &Response{Content: resp.Choices[0].Message.Content}, nil
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// TestConnection lists models on the target service; both Ollama and
// OpenRouter answer the models endpoint with valid credentials.
func (p *OpenAICompat) TestConnection(ctx context.Context) bool {
	_, err := p.client.Models.List(ctx)
	return err == nil
}

// ModelName implements Provider.
func (p *OpenAICompat) ModelName() string { return p.model }
