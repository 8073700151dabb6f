package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// OllamaProvider talks to a local Ollama server. No auth; model tags may
// themselves contain colons (e.g. "llama3:8b"), which is why the registry
// only strips the first prefix segment of a model reference.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// NewOllamaProvider creates an adapter for a local Ollama server.
func NewOllamaProvider(baseURL string, timeout time.Duration) *OllamaProvider {
	return &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type ollamaResponse struct {
	Message ChatMessage `json:"message"`
}

// Invoke queries one local model via Ollama's chat endpoint.
func (p *OllamaProvider) Invoke(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
	payload := ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}
	payload.Options.Temperature = temperature

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", providerErr(ErrKindBadResponse, model, "failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", providerErr(ErrKindUnknown, model, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", providerErr(classifyTransportErr(ctx, err), model, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", providerErr(kindFromStatus(resp.StatusCode), model,
			"Ollama returned status %d: %s", resp.StatusCode, truncateForLog(string(bodyBytes)))
	}

	var apiResponse ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", providerErr(ErrKindBadResponse, model, "failed to parse response: %v", err)
	}
	if apiResponse.Message.Content == "" {
		return "", providerErr(ErrKindBadResponse, model, "empty message content")
	}
	return apiResponse.Message.Content, nil
}
