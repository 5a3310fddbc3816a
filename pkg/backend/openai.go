package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zen-systems/quorum/pkg/schema"
)

// OpenAIClient implements the Client interface for OpenAI models.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI backend client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: client}, nil
}

// Provider returns the backend identifier.
func (c *OpenAIClient) Provider() schema.Provider {
	return schema.ProviderOpenAI
}

// Models returns the list of supported OpenAI models.
func (c *OpenAIClient) Models() []string {
	return []string{
		"gpt-5.2-instant",
		"gpt-5.2-thinking",
		"gpt-5.2-pro",
	}
}

// Generate sends a prompt to OpenAI and returns the normalized result.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Result, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(req.Model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(req.maxTokensOrDefault())),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, &Error{
				Provider:  schema.ProviderOpenAI,
				Status:    apierr.StatusCode,
				Temporary: temporaryStatus(apierr.StatusCode),
				Err:       err,
			}
		}
		return nil, fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	choice := resp.Choices[0]
	return &Result{
		Text:         choice.Message.Content,
		TokensIn:     int(resp.Usage.PromptTokens),
		TokensOut:    int(resp.Usage.CompletionTokens),
		FinishReason: normalizeFinishReason(choice.FinishReason),
	}, nil
}
