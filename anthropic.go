package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// AnthropicProvider speaks the Anthropic messages API. Unlike the
// chat-completions family, system messages travel in a separate field and
// the reply arrives as an array of typed content blocks.
type AnthropicProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewAnthropicProvider creates an adapter for the Anthropic messages API.
func NewAnthropicProvider(baseURL, apiKey string, timeout time.Duration) *AnthropicProvider {
	return &AnthropicProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Invoke queries one Anthropic model and returns the concatenated text
// blocks of its reply.
func (p *AnthropicProvider) Invoke(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
	if p.apiKey == "" {
		return "", providerErr(ErrKindAuth, model, "Anthropic API key not configured")
	}

	// System messages are a top-level field in the messages API.
	var system string
	filtered := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content
			continue
		}
		filtered = append(filtered, msg)
	}

	payload := anthropicRequest{
		Model:       model,
		Messages:    filtered,
		System:      system,
		MaxTokens:   AnthropicMaxTokens,
		Temperature: temperature,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", providerErr(ErrKindBadResponse, model, "failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/messages", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", providerErr(ErrKindUnknown, model, "failed to create request: %v", err)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", AnthropicAPIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", providerErr(classifyTransportErr(ctx, err), model, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", providerErr(kindFromStatus(resp.StatusCode), model,
			"API returned status %d: %s", resp.StatusCode, truncateForLog(string(bodyBytes)))
	}

	var apiResponse anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", providerErr(ErrKindBadResponse, model, "failed to parse response: %v", err)
	}

	var b bytes.Buffer
	for _, block := range apiResponse.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", providerErr(ErrKindBadResponse, model, "no text content in response")
	}
	return b.String(), nil
}
