package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const geminiDefaultModel = "gemini-2.0-flash"

// GeminiProvider implements Provider against Google's Gemini REST API.
type GeminiProvider struct {
	apiKey string
	client *http.Client
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

// geminiSafety relaxes blocking to high-severity only; debate rebuttals
// trip the default harassment threshold too easily.
var geminiSafety = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
}

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = geminiDefaultModel
	}

	body := geminiRequest{SafetySettings: geminiSafety}
	for _, m := range req.Messages {
		if m.Role == "system" {
			body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		gc := &geminiGenerationConfig{}
		if req.Temperature > 0 {
			gc.Temperature = &req.Temperature
		}
		if req.MaxTokens > 0 {
			gc.MaxOutputTokens = &req.MaxTokens
		}
		body.GenerationConfig = gc
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Model: model, Err: err}
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Model: model, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Model: model, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Model: model, Err: err}
	}

	switch {
	case httpResp.StatusCode == 429:
		return nil, &ProviderError{Provider: "gemini", Model: model, Err: ErrRateLimited}
	case httpResp.StatusCode != 200:
		return nil, &ProviderError{Provider: "gemini", Model: model,
			Err: fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, truncate(string(respBody), 200))}
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		return nil, &ProviderError{Provider: "gemini", Model: model, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(gemResp.Candidates) == 0 {
		return nil, &ProviderError{Provider: "gemini", Model: model, Err: fmt.Errorf("no candidates in response")}
	}

	var content string
	for _, part := range gemResp.Candidates[0].Content.Parts {
		content += part.Text
	}

	resp := &Response{
		Provider:     "gemini",
		Model:        model,
		Content:      content,
		FinishReason: gemResp.Candidates[0].FinishReason,
		Latency:      latency,
	}
	if gemResp.UsageMetadata != nil {
		resp.TokensIn = gemResp.UsageMetadata.PromptTokenCount
		resp.TokensOut = gemResp.UsageMetadata.CandidatesTokenCount
	}
	return resp, nil
}

// Gemini API types
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SafetySettings    []geminiSafetySetting   `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}
