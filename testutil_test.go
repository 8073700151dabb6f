package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// useTempDataDir points conversation storage at a per-test directory and
// restores the original on cleanup.
func useTempDataDir(t *testing.T) string {
	t.Helper()
	orig := DataDir
	DataDir = t.TempDir()
	t.Cleanup(func() { DataDir = orig })
	return DataDir
}

// stubCall records one Invoke dispatched to a stubProvider.
type stubCall struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
}

// stubProvider is an in-memory Provider for engine tests. The invoke func
// supplies per-test behavior; every dispatched call is recorded.
type stubProvider struct {
	name   string
	invoke func(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error)

	mu    sync.Mutex
	calls []stubCall
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Invoke(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, stubCall{Model: model, Messages: messages, Temperature: temperature})
	p.mu.Unlock()
	return p.invoke(ctx, model, messages, temperature)
}

// Calls returns a snapshot of the recorded calls.
func (p *stubProvider) Calls() []stubCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]stubCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsFor returns the recorded calls for one model.
func (p *stubProvider) CallsFor(model string) []stubCall {
	var out []stubCall
	for _, call := range p.Calls() {
		if call.Model == model {
			out = append(out, call)
		}
	}
	return out
}

// newStubRegistry wires a single stubProvider named "stub" as the default
// provider of a fresh registry.
func newStubRegistry(invoke func(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error)) (*Registry, *stubProvider) {
	stub := &stubProvider{name: "stub", invoke: invoke}
	reg := NewRegistry("stub")
	reg.Register(stub)
	return reg, stub
}

// mockChatHandler returns a chat-completions handler that always answers
// with the given content and verifies the standard request headers.
func mockChatHandler(t *testing.T, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") == "" {
			t.Errorf("Missing Authorization header")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": content}},
			},
		})
	}
}

// mockChatErrorHandler returns a handler that fails with the given status.
func mockChatErrorHandler(statusCode int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		w.Write([]byte(body))
	}
}

// collectResults drains a stage result channel.
func collectResults(ch <-chan StageResult) []StageResult {
	var results []StageResult
	for result := range ch {
		results = append(results, result)
	}
	return results
}

// collectEvents drains a deliberation's event stream and returns the events
// alongside the final result and error.
func collectEvents(d *Deliberation) ([]DeliberationEvent, *DeliberationResult, error) {
	var events []DeliberationEvent
	for event := range d.Events() {
		events = append(events, event)
	}
	result, err := d.Wait()
	return events, result, err
}

// eventTypes projects an event slice to its type sequence.
func eventTypes(events []DeliberationEvent) []EventType {
	types := make([]EventType, len(events))
	for i, event := range events {
		types[i] = event.Type
	}
	return types
}

// hasEventType reports whether any event has the given type.
func hasEventType(events []DeliberationEvent, typ EventType) bool {
	for _, event := range events {
		if event.Type == typ {
			return true
		}
	}
	return false
}

// sampleConversation creates a stored conversation for storage tests.
func sampleConversation(id string) *Conversation {
	return &Conversation{
		ID:        id,
		CreatedAt: testTime(),
		Title:     "Test Conversation",
		Messages: []Message{
			{
				Role:    "user",
				Content: "What is Go?",
			},
			{
				Role: "assistant",
				Stage1: []StageResult{
					{Model: "test/model1", Response: "Go is a programming language."},
					{Model: "test/model2", Response: "Go is developed by Google."},
				},
				Stage2: []RankingResult{
					{
						Model:         "test/model1",
						Ranking:       "FINAL RANKING:\n1. Response B\n2. Response A",
						ParsedRanking: []string{"Response B", "Response A"},
					},
				},
				Stage3: &StageResult{
					Model:    "test/chairman",
					Response: "Go is a programming language developed by Google.",
				},
			},
		},
	}
}

// testTime returns a fixed time for testing
func testTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// newTestServer wraps httptest.NewServer and closes it on test cleanup.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}
