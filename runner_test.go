package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRunStageOneResultPerTarget(t *testing.T) {
	reg, _ := newStubRegistry(func(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
		return "answer from " + model, nil
	})

	targets := []string{"m1", "m2", "m3", "m4"}
	ch, err := RunStage(context.Background(), reg, targets, []ChatMessage{{Role: "user", Content: "q"}}, 0.7)
	if err != nil {
		t.Fatalf("RunStage failed: %v", err)
	}

	results := collectResults(ch)
	if len(results) != len(targets) {
		t.Fatalf("Expected %d results, got %d", len(targets), len(results))
	}

	// Every target is represented exactly once, whatever the arrival order.
	seen := make(map[string]bool)
	for _, result := range results {
		if result.Failed() {
			t.Errorf("Unexpected failure for %s: %s", result.Model, result.ErrorMessage)
		}
		if result.Response != "answer from "+result.Model {
			t.Errorf("Response mismatch for %s: %q", result.Model, result.Response)
		}
		if seen[result.Model] {
			t.Errorf("Duplicate result for %s", result.Model)
		}
		seen[result.Model] = true
	}
	for _, target := range targets {
		if !seen[target] {
			t.Errorf("Missing result for %s", target)
		}
	}
}

func TestRunStageCompletionOrder(t *testing.T) {
	// The slow model is asked first but must arrive last.
	reg, _ := newStubRegistry(func(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
		if model == "slow" {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return "ok", nil
	})

	ch, err := RunStage(context.Background(), reg, []string{"slow", "fast"}, nil, 0)
	if err != nil {
		t.Fatalf("RunStage failed: %v", err)
	}

	results := collectResults(ch)
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Model != "fast" || results[1].Model != "slow" {
		t.Errorf("Expected completion order [fast slow], got [%s %s]", results[0].Model, results[1].Model)
	}
}

func TestRunStageMemberRecordsRosterPosition(t *testing.T) {
	reg, _ := newStubRegistry(func(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
		return "ok", nil
	})

	targets := []string{"m1", "m2", "m2", "m3"}
	ch, err := RunStage(context.Background(), reg, targets, nil, 0)
	if err != nil {
		t.Fatalf("RunStage failed: %v", err)
	}

	// Duplicated members stay distinguishable through their roster index.
	members := make(map[int]string)
	for _, result := range collectResults(ch) {
		if prev, dup := members[result.Member]; dup {
			t.Errorf("Member index %d assigned twice (%s, %s)", result.Member, prev, result.Model)
		}
		members[result.Member] = result.Model
	}
	for i, target := range targets {
		if members[i] != target {
			t.Errorf("Member %d = %q, want %q", i, members[i], target)
		}
	}
}

func TestRunStageContainsFailures(t *testing.T) {
	reg, _ := newStubRegistry(func(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
		if model == "m2" {
			return "", providerErr(ErrKindRateLimited, model, "too many requests")
		}
		return "ok", nil
	})

	ch, err := RunStage(context.Background(), reg, []string{"m1", "m2", "m3"}, nil, 0)
	if err != nil {
		t.Fatalf("RunStage failed: %v", err)
	}

	results := collectResults(ch)
	if len(results) != 3 {
		t.Fatalf("A member failure must not shrink the result set: got %d results", len(results))
	}
	for _, result := range results {
		if result.Model == "m2" {
			if result.Error != ErrKindRateLimited {
				t.Errorf("m2 error kind = %q, want %q", result.Error, ErrKindRateLimited)
			}
			if result.Response != "" {
				t.Errorf("Failed result must not carry a response: %q", result.Response)
			}
		} else if result.Failed() {
			t.Errorf("Unexpected failure for %s", result.Model)
		}
	}
}

func TestRunStageNoTargets(t *testing.T) {
	reg, _ := newStubRegistry(func(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
		return "ok", nil
	})

	if _, err := RunStage(context.Background(), reg, nil, nil, 0); !errors.Is(err, ErrNoTargets) {
		t.Errorf("Expected ErrNoTargets, got %v", err)
	}
}

func TestRunStageCancellationPreservesCompletedResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, _ := newStubRegistry(func(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
		if model == "m1" || model == "m2" {
			return "ok", nil
		}
		// m3 and m4 hang until cancellation cuts them off.
		<-ctx.Done()
		return "", ctx.Err()
	})

	ch, err := RunStage(ctx, reg, []string{"m1", "m2", "m3", "m4"}, nil, 0)
	if err != nil {
		t.Fatalf("RunStage failed: %v", err)
	}

	var results []StageResult
	for result := range ch {
		results = append(results, result)
		if len(results) == 2 {
			cancel()
		}
	}

	// Exactly the two calls that finished before cancellation survive; the
	// cut-off ones produce nothing, not even cancelled placeholders.
	if len(results) != 2 {
		t.Fatalf("Expected exactly 2 results after cancellation, got %d", len(results))
	}
	for _, result := range results {
		if result.Model != "m1" && result.Model != "m2" {
			t.Errorf("Unexpected result for %s after cancellation", result.Model)
		}
		if result.Failed() {
			t.Errorf("Completed result marked failed: %+v", result)
		}
	}
}

func TestRunStageLargeCouncilBounded(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	reg, _ := newStubRegistry(func(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return "ok", nil
	})

	targets := []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"}
	ch, err := RunStage(context.Background(), reg, targets, nil, 0)
	if err != nil {
		t.Fatalf("RunStage failed: %v", err)
	}

	results := collectResults(ch)
	if len(results) != len(targets) {
		t.Fatalf("Expected %d results, got %d", len(targets), len(results))
	}

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight > StageBatchSize {
		t.Errorf("In-flight calls peaked at %d, want at most %d", maxInFlight, StageBatchSize)
	}
}

func TestRunStageSmallCouncilUnbounded(t *testing.T) {
	// Below the threshold all members go out together.
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	release := make(chan struct{})

	reg, _ := newStubRegistry(func(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight == 4 {
			close(release)
		}
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}

		mu.Lock()
		inFlight--
		mu.Unlock()
		return "ok", nil
	})

	ch, err := RunStage(context.Background(), reg, []string{"m1", "m2", "m3", "m4"}, nil, 0)
	if err != nil {
		t.Fatalf("RunStage failed: %v", err)
	}
	collectResults(ch)

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 4 {
		t.Errorf("Expected all 4 calls in flight at once, peaked at %d", maxInFlight)
	}
}
