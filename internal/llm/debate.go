package llm

import (
	"context"
	"log"
	"strings"
	"unicode/utf8"
)

// maxReplyLen is the platform's post length ceiling. The system prompt asks
// the model to stay under it; Squeeze enforces it when the model does not.
const maxReplyLen = 280

const debateSystemPrompt = "You are Discoursa, a sharp, witty debate bot. " +
	"Your goal is to politely but effectively dismantle the user's argument. " +
	"CONSTRAINT: Your response MUST be under 280 characters. " +
	"Do not use hashtags. Be direct."

// FallbackReply is posted when every provider fails. The orchestrator never
// sees an error from the debater.
const FallbackReply = "I have nothing to say right now."

// Generator produces debate replies. Implementations fail soft: they always
// return postable text, never an error.
type Generator interface {
	// Opening argues against topic with no prior history.
	Opening(ctx context.Context, apiKey, topic string) string
	// Rebuttal continues a debate from the accumulated history, whose last
	// entry is the challenger's inbound message.
	Rebuttal(ctx context.Context, apiKey string, history []Message) string
}

// Debater generates replies, preferring the challenger's own Gemini key and
// falling back through the server-configured provider chain.
type Debater struct {
	fallback *Client
}

func NewDebater(fallback *Client) *Debater {
	return &Debater{fallback: fallback}
}

func (d *Debater) Opening(ctx context.Context, apiKey, topic string) string {
	messages := []Message{
		{Role: "system", Content: debateSystemPrompt},
		{Role: "user", Content: "Debate this topic: " + topic},
	}
	return d.generate(ctx, apiKey, messages)
}

func (d *Debater) Rebuttal(ctx context.Context, apiKey string, history []Message) string {
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: "system", Content: debateSystemPrompt})
	messages = append(messages, history...)
	return d.generate(ctx, apiKey, messages)
}

func (d *Debater) generate(ctx context.Context, apiKey string, messages []Message) string {
	req := Request{Messages: messages, Temperature: 1.0, MaxTokens: 256}

	if apiKey != "" {
		resp, err := NewGeminiProvider(apiKey).Complete(ctx, req)
		if err == nil {
			return Squeeze(resp.Content)
		}
		log.Printf("llm: challenger key failed, falling back: %v", err)
	}

	resp, err := d.fallback.Complete(ctx, req)
	if err != nil {
		log.Printf("llm: all providers failed: %v", err)
		return FallbackReply
	}
	return Squeeze(resp.Content)
}

// Squeeze trims whitespace and hard-truncates to the platform limit with an
// ellipsis.
func Squeeze(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return FallbackReply
	}
	if utf8.RuneCountInString(s) <= maxReplyLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxReplyLen-1]) + "…"
}
