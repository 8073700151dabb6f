package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatProvider speaks the OpenAI chat-completions wire format, which
// OpenRouter, OpenAI, Groq, Mistral, DeepSeek and custom endpoints all
// share. One instance per backend, differing only in name, URL and key.
type OpenAICompatProvider struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

// NewOpenAICompatProvider creates an adapter for an OpenAI-compatible
// chat-completions endpoint.
func NewOpenAICompatProvider(name, url, apiKey string, timeout time.Duration) *OpenAICompatProvider {
	return &OpenAICompatProvider{
		name:   name,
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *OpenAICompatProvider) Name() string { return p.name }

// chatCompletionRequest is the request payload for chat-completions APIs.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// chatCompletionResponse covers the subset of the response we consume.
// Content is RawMessage because some backends return structured or
// array-like content instead of a plain string.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   json.RawMessage `json:"content"`
			Reasoning string          `json:"reasoning,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

// Invoke queries one model and returns its reply as a single string.
func (p *OpenAICompatProvider) Invoke(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
	if p.apiKey == "" {
		return "", providerErr(ErrKindAuth, model, "%s API key not configured", p.name)
	}

	payload := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", providerErr(ErrKindBadResponse, model, "failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", providerErr(ErrKindUnknown, model, "failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
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

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", providerErr(classifyTransportErr(ctx, err), model, "failed to read response body: %v", err)
	}

	var apiResponse chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &apiResponse); err != nil {
		return "", providerErr(ErrKindBadResponse, model, "failed to parse response: %v", err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", providerErr(ErrKindBadResponse, model, "no choices in response")
	}

	message := apiResponse.Choices[0].Message
	content := normalizeContent(message.Content)
	if content == "" && message.Reasoning != "" {
		// Some reasoning models return an empty content field.
		content = message.Reasoning
	}
	if content == "" {
		return "", providerErr(ErrKindBadResponse, model, "empty content in response")
	}
	return content, nil
}

// contentPart is one element of an array-shaped content field.
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// normalizeContent collapses the dynamic shapes backends return for message
// content (plain string, array of typed parts, arbitrary JSON) into one
// string so downstream stages never branch on response shape.
func normalizeContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b bytes.Buffer
		for _, part := range parts {
			if part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}

	// Last resort: hand back the raw JSON as text.
	return string(raw)
}

// truncateForLog caps provider error bodies included in error messages.
func truncateForLog(s string) string {
	const max = 500
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// fetchOpenRouterModel is one entry in OpenRouter's model catalog response.
type fetchOpenRouterModel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Pricing struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
}

// FetchOpenRouterModels fetches the available model catalog from OpenRouter.
// Used by the /api/models endpoint behind the catalog cache.
func FetchOpenRouterModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", OpenRouterModelsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: CatalogFetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data []fetchOpenRouterModel `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}

	models := make([]ModelInfo, 0, len(payload.Data))
	for _, item := range payload.Data {
		models = append(models, ModelInfo{
			ID:       item.ID,
			Name:     item.Name,
			Provider: providerDisplayName(item.ID),
			IsFree:   item.Pricing.Prompt == "0" && item.Pricing.Completion == "0",
		})
	}
	return models, nil
}

// providerDisplayName derives a display provider from an OpenRouter model id
// such as "google/gemini-2.5-flash".
func providerDisplayName(modelID string) string {
	slug, _, _ := strings.Cut(modelID, "/")
	switch slug {
	case "openai":
		return "OpenAI"
	case "anthropic":
		return "Anthropic"
	case "google":
		return "Google"
	case "meta-llama":
		return "Meta"
	case "mistralai":
		return "Mistral"
	case "deepseek":
		return "DeepSeek"
	case "x-ai":
		return "xAI"
	default:
		return "OpenRouter"
	}
}
