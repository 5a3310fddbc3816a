package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zen-systems/quorum/pkg/schema"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekClient implements the Client interface for DeepSeek models.
// DeepSeek exposes an OpenAI-compatible API, so the wire format is
// spoken directly.
type DeepSeekClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// deepseekRequest is the OpenAI-compatible request format.
type deepseekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

// deepseekMessage is one chat message.
type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// deepseekResponse is the OpenAI-compatible response format.
type deepseekResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewDeepSeekClient creates a new DeepSeek backend client.
func NewDeepSeekClient(apiKey string) (*DeepSeekClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}

	return &DeepSeekClient{
		apiKey:  apiKey,
		baseURL: deepseekBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Provider returns the backend identifier.
func (c *DeepSeekClient) Provider() schema.Provider {
	return schema.ProviderDeepSeek
}

// Models returns the list of supported DeepSeek models.
func (c *DeepSeekClient) Models() []string {
	return []string{
		"deepseek-chat",
		"deepseek-coder",
		"deepseek-reasoner",
	}
}

// Generate sends a prompt to DeepSeek and returns the normalized result.
func (c *DeepSeekClient) Generate(ctx context.Context, req Request) (*Result, error) {
	messages := make([]deepseekMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, deepseekMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, deepseekMessage{Role: "user", Content: req.Prompt})

	reqBody := deepseekRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.maxTokensOrDefault(),
		Temperature: req.Temperature,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("deepseek API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var deepseekResp deepseekResponse
	if err := json.Unmarshal(body, &deepseekResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if deepseekResp.Error != nil {
		return nil, &Error{
			Provider:  schema.ProviderDeepSeek,
			Status:    resp.StatusCode,
			Temporary: temporaryStatus(resp.StatusCode),
			Err: fmt.Errorf("deepseek API error: %s (type: %s, code: %s)",
				deepseekResp.Error.Message, deepseekResp.Error.Type, deepseekResp.Error.Code),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Provider:  schema.ProviderDeepSeek,
			Status:    resp.StatusCode,
			Temporary: temporaryStatus(resp.StatusCode),
			Err:       fmt.Errorf("deepseek API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	if len(deepseekResp.Choices) == 0 {
		return nil, fmt.Errorf("deepseek returned no choices")
	}

	choice := deepseekResp.Choices[0]
	return &Result{
		Text:         choice.Message.Content,
		TokensIn:     deepseekResp.Usage.PromptTokens,
		TokensOut:    deepseekResp.Usage.CompletionTokens,
		FinishReason: normalizeFinishReason(choice.FinishReason),
	}, nil
}
