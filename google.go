package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// GoogleProvider speaks the Gemini generateContent API. Roles and message
// shapes differ from the chat-completions family: the assistant role is
// "model", content is a parts array, and system prompts travel in a
// systemInstruction field.
type GoogleProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewGoogleProvider creates an adapter for the Gemini API.
func NewGoogleProvider(baseURL, apiKey string, timeout time.Duration) *GoogleProvider {
	return &GoogleProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *GoogleProvider) Name() string { return "google" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Invoke queries one Gemini model and returns its reply with all candidate
// parts joined into a single string.
func (p *GoogleProvider) Invoke(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
	if p.apiKey == "" {
		return "", providerErr(ErrKindAuth, model, "Google API key not configured")
	}

	payload := geminiRequest{}
	payload.GenerationConfig.Temperature = temperature
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
		case "assistant":
			payload.Contents = append(payload.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			payload.Contents = append(payload.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", providerErr(ErrKindBadResponse, model, "failed to marshal request: %v", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, url.PathEscape(model), url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(payloadBytes))
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
			"API returned status %d: %s", resp.StatusCode, truncateForLog(string(bodyBytes)))
	}

	var apiResponse geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", providerErr(ErrKindBadResponse, model, "failed to parse response: %v", err)
	}
	if len(apiResponse.Candidates) == 0 {
		return "", providerErr(ErrKindBadResponse, model, "no candidates in response")
	}

	var b bytes.Buffer
	for _, part := range apiResponse.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	if b.Len() == 0 {
		return "", providerErr(ErrKindBadResponse, model, "empty candidate content")
	}
	return b.String(), nil
}
