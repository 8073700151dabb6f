package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// StageBatchThreshold is the council size at which fan-out switches to a
	// bounded window, to stay under common per-minute rate limits.
	StageBatchThreshold = 6
	// StageBatchSize is the window width: at most this many calls in flight
	// once the threshold is reached; a new call starts when a slot frees.
	StageBatchSize = 3
)

// ErrNoTargets is returned when a stage is run with an empty target list.
var ErrNoTargets = errors.New("no target models for stage")

// RunStage dispatches one model call per target through the registry and
// streams StageResults in completion order - the first model to answer is
// surfaced first, deliberately trading determinism for perceived latency.
//
// A single target's failure never fails the stage; it is contained as a
// StageResult with Error set. Cancelling ctx stops unstarted calls, aborts
// in-flight ones, and closes the channel without emitting results for calls
// that were cut off - the caller sees exactly the results that completed.
func RunStage(ctx context.Context, reg *Registry, targets []string, messages []ChatMessage, temperature float64) (<-chan StageResult, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	out := make(chan StageResult)

	go func() {
		defer close(out)

		g, gctx := errgroup.WithContext(ctx)
		if len(targets) >= StageBatchThreshold {
			g.SetLimit(StageBatchSize)
		}

		for i, target := range targets {
			i, target := i, target
			g.Go(func() error {
				// Cancellation stops queued calls from going out.
				if gctx.Err() != nil {
					return nil
				}

				start := time.Now()
				content, err := reg.Invoke(gctx, target, messages, temperature)
				latency := time.Since(start).Milliseconds()

				res := StageResult{Model: target, LatencyMS: latency, Member: i}
				if err != nil {
					if gctx.Err() != nil {
						// Cut off by cancellation: the partial result set
						// must contain only calls that actually finished.
						return nil
					}
					res.Error, res.ErrorMessage = errorKindOf(err)
				} else {
					res.Response = content
				}

				select {
				case out <- res:
				case <-gctx.Done():
				}
				return nil
			})
		}

		g.Wait()
	}()

	return out, nil
}
