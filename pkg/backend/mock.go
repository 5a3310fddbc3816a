package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zen-systems/quorum/pkg/schema"
)

// MockReply scripts one model's behavior in a MockClient.
type MockReply struct {
	Text         string
	TokensIn     int
	TokensOut    int
	FinishReason schema.FinishReason
	Delay        time.Duration
	Err          error
}

// MockClient returns deterministic responses for local runs and tests.
// The zero delay path answers immediately; scripted delays honor context
// cancellation the way a real backend must.
type MockClient struct {
	// ProviderID lets a mock pose as any provider so candidate keys
	// line up. Defaults to schema.ProviderMock.
	ProviderID schema.Provider

	mu           sync.Mutex
	replies      map[string]MockReply
	defaultReply MockReply
	calls        []Request
}

// NewMockClient creates a mock backend with a default reply.
func NewMockClient() *MockClient {
	return &MockClient{
		replies: make(map[string]MockReply),
	}
}

// NewMockClientWithReplies creates a mock backend with per-model replies
// and a fallback for unscripted models.
func NewMockClientWithReplies(replies map[string]MockReply, defaultReply MockReply) *MockClient {
	if replies == nil {
		replies = make(map[string]MockReply)
	}
	return &MockClient{replies: replies, defaultReply: defaultReply}
}

// Provider returns the backend identifier.
func (c *MockClient) Provider() schema.Provider {
	if c.ProviderID != "" {
		return c.ProviderID
	}
	return schema.ProviderMock
}

// Models returns the list of scripted mock models.
func (c *MockClient) Models() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	models := make([]string, 0, len(c.replies)+1)
	for model := range c.replies {
		models = append(models, model)
	}
	if len(models) == 0 {
		models = append(models, "mock-1")
	}
	return models
}

// Calls returns a copy of every request seen so far.
func (c *MockClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of Generate calls seen so far.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Generate returns the scripted reply for the request's model.
func (c *MockClient) Generate(ctx context.Context, req Request) (*Result, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	reply, ok := c.replies[req.Model]
	if !ok {
		reply = c.defaultReply
	}
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}

	text := reply.Text
	if text == "" {
		text = fmt.Sprintf("mock response:\n%s", req.Prompt)
	}
	finish := reply.FinishReason
	if finish == "" {
		finish = schema.FinishStop
	}
	tokensIn := reply.TokensIn
	if tokensIn == 0 {
		tokensIn = len(req.Prompt) / 4
	}
	tokensOut := reply.TokensOut
	if tokensOut == 0 {
		tokensOut = len(text) / 4
	}

	return &Result{
		Text:         text,
		TokensIn:     tokensIn,
		TokensOut:    tokensOut,
		FinishReason: finish,
	}, nil
}
