package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/zen-systems/quorum/pkg/schema"
	"google.golang.org/genai"
)

// GoogleClient implements the Client interface for Gemini models.
type GoogleClient struct {
	client *genai.Client
}

// NewGoogleClient creates a new Google Gemini backend client.
func NewGoogleClient(apiKey string) (*GoogleClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleClient{client: client}, nil
}

// Provider returns the backend identifier.
func (c *GoogleClient) Provider() schema.Provider {
	return schema.ProviderGoogle
}

// Models returns the list of supported Gemini models.
func (c *GoogleClient) Models() []string {
	return []string{
		"gemini-2.0-pro",
		"gemini-2.0-flash",
	}
}

// Generate sends a prompt to Gemini and returns the normalized result.
func (c *GoogleClient) Generate(ctx context.Context, req Request) (*Result, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.maxTokensOrDefault()),
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		var apierr genai.APIError
		if errors.As(err, &apierr) {
			return nil, &Error{
				Provider:  schema.ProviderGoogle,
				Status:    apierr.Code,
				Temporary: temporaryStatus(apierr.Code),
				Err:       err,
			}
		}
		return nil, fmt.Errorf("google API error: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("google returned no candidates")
	}

	candidate := resp.Candidates[0]
	var content string
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	result := &Result{
		Text:         content,
		FinishReason: normalizeFinishReason(string(candidate.FinishReason)),
	}
	if resp.UsageMetadata != nil {
		result.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		result.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}
