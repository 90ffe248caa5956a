package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

// stubProvider returns a fixed response or error and records the requests it
// saw.
type stubProvider struct {
	name string
	text string
	err  error
	reqs []Request
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Provider: s.name, Content: s.text}, nil
}

func TestClientFallbackOrder(t *testing.T) {
	first := &stubProvider{name: "first", err: errors.New("down")}
	second := &stubProvider{name: "second", text: "hello"}
	third := &stubProvider{name: "third", text: "never"}
	c := New([]Provider{first, second, third})

	resp, err := c.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "second" || resp.Content != "hello" {
		t.Errorf("resp = %+v", resp)
	}
	if len(first.reqs) != 1 || len(second.reqs) != 1 {
		t.Error("providers not tried in order")
	}
	if len(third.reqs) != 0 {
		t.Error("chain did not stop at first success")
	}
}

func TestClientAllProvidersFail(t *testing.T) {
	last := errors.New("also down")
	c := New([]Provider{
		&stubProvider{name: "a", err: errors.New("down")},
		&stubProvider{name: "b", err: last},
	})

	_, err := c.Complete(context.Background(), Request{})
	if !errors.Is(err, last) {
		t.Errorf("got %v, want the last provider's error", err)
	}
}

func TestClientEmpty(t *testing.T) {
	if _, err := New(nil).Complete(context.Background(), Request{}); !errors.Is(err, ErrNoProviders) {
		t.Errorf("got %v, want ErrNoProviders", err)
	}
	var nilClient *Client
	if !nilClient.Empty() {
		t.Error("nil client must report Empty")
	}
}

func TestDebaterOpeningUsesFallbackChain(t *testing.T) {
	stub := &stubProvider{name: "stub", text: "  an opening argument  "}
	d := NewDebater(New([]Provider{stub}))

	// No challenger key, so the chain is used directly.
	got := d.Opening(context.Background(), "", "cats are better than dogs")
	if got != "an opening argument" {
		t.Errorf("Opening = %q", got)
	}

	if len(stub.reqs) != 1 {
		t.Fatalf("provider called %d times", len(stub.reqs))
	}
	msgs := stub.reqs[0].Messages
	if len(msgs) != 2 || msgs[0].Role != "system" {
		t.Fatalf("messages = %+v", msgs)
	}
	if !strings.Contains(msgs[1].Content, "cats are better than dogs") {
		t.Errorf("topic missing from prompt: %q", msgs[1].Content)
	}
}

func TestDebaterRebuttalPrependsSystemPrompt(t *testing.T) {
	stub := &stubProvider{name: "stub", text: "counterpoint"}
	d := NewDebater(New([]Provider{stub}))

	history := []Message{
		{Role: "user", Content: "Debate this: topic"},
		{Role: "assistant", Content: "opening"},
		{Role: "user", Content: "but consider"},
	}
	got := d.Rebuttal(context.Background(), "", history)
	if got != "counterpoint" {
		t.Errorf("Rebuttal = %q", got)
	}

	msgs := stub.reqs[0].Messages
	if len(msgs) != len(history)+1 {
		t.Fatalf("got %d messages, want %d", len(msgs), len(history)+1)
	}
	if msgs[0].Role != "system" {
		t.Error("system prompt not first")
	}
	if msgs[len(msgs)-1].Content != "but consider" {
		t.Error("history order not preserved")
	}
}

func TestDebaterAllProvidersFailYieldsFallbackReply(t *testing.T) {
	d := NewDebater(New([]Provider{
		&stubProvider{name: "a", err: errors.New("down")},
	}))

	got := d.Rebuttal(context.Background(), "", []Message{{Role: "user", Content: "hi"}})
	if got != FallbackReply {
		t.Errorf("got %q, want the canned fallback", got)
	}
}

func TestSqueeze(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims whitespace", "  hello  ", "hello"},
		{"empty becomes fallback", "   ", FallbackReply},
		{"short passes through", "fine as is", "fine as is"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Squeeze(tt.in); got != tt.want {
				t.Errorf("Squeeze(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("long is truncated with ellipsis", func(t *testing.T) {
		got := Squeeze(strings.Repeat("x", 400))
		if n := utf8.RuneCountInString(got); n != maxReplyLen {
			t.Errorf("rune count = %d, want %d", n, maxReplyLen)
		}
		if !strings.HasSuffix(got, "…") {
			t.Error("truncation must end with an ellipsis")
		}
	})

	t.Run("multibyte runes counted as one", func(t *testing.T) {
		in := strings.Repeat("é", 280)
		if got := Squeeze(in); got != in {
			t.Error("280 multibyte runes must pass through untouched")
		}
		long := strings.Repeat("é", 281)
		got := Squeeze(long)
		if n := utf8.RuneCountInString(got); n != maxReplyLen {
			t.Errorf("rune count = %d, want %d", n, maxReplyLen)
		}
	})
}
