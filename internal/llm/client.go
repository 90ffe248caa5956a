// Package llm provides a multi-provider LLM client with a fallback chain,
// plus the debate reply generator built on top of it.
package llm

import (
	"context"
	"time"
)

// Message represents a chat message (system/user/assistant).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic chat completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Response is a provider-agnostic chat completion response.
type Response struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Content      string        `json:"content"`
	TokensIn     int           `json:"tokens_in"`
	TokensOut    int           `json:"tokens_out"`
	FinishReason string        `json:"finish_reason"`
	Latency      time.Duration `json:"latency_ms"`
}

// Provider is a single LLM API backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "gemini", "groq").
	Name() string
	// Complete sends a chat completion request and returns the response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client sends LLM requests, falling back across providers in order.
type Client struct {
	providers []Provider
}

// New creates a multi-provider LLM client. Providers are tried in the order
// given.
func New(providers []Provider) *Client {
	return &Client{providers: providers}
}

// Empty reports whether no providers are configured.
func (c *Client) Empty() bool {
	return c == nil || len(c.providers) == 0
}

// Providers returns the names of all configured providers.
func (c *Client) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Complete tries each provider in order and returns the first success.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.Empty() {
		return nil, ErrNoProviders
	}
	var lastErr error
	for _, p := range c.providers {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}
