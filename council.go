package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// Council size bounds. Duplicated members are allowed.
const (
	MinCouncilSize = 2
	MaxCouncilSize = 8
)

// Whole-deliberation-fatal conditions. Per-model failures never surface as
// errors; they are contained in StageResults.
var (
	ErrNoCouncilMembers   = errors.New("council has no members")
	ErrCouncilTooSmall    = errors.New("council needs at least 2 members")
	ErrCouncilTooLarge    = errors.New("council exceeds 8 members")
	ErrNoChairman         = errors.New("no chairman model configured")
	ErrAllProvidersFailed = errors.New("all council models failed to respond")
)

// Council runs three-stage deliberations: independent answers, anonymized
// peer ranking, chairman synthesis.
type Council struct {
	registry *Registry
	prompts  PromptSet
}

// NewCouncil creates a deliberation engine over the given provider registry
// and prompt templates. Zero-value template fields fall back to the
// defaults.
func NewCouncil(registry *Registry, prompts PromptSet) *Council {
	defaults := DefaultPrompts()
	if prompts.Stage1 == "" {
		prompts.Stage1 = defaults.Stage1
	}
	if prompts.Stage2 == "" {
		prompts.Stage2 = defaults.Stage2
	}
	if prompts.Stage3 == "" {
		prompts.Stage3 = defaults.Stage3
	}
	return &Council{registry: registry, prompts: prompts}
}

// DeliberationRequest is one deliberation's input. SearchContext is an
// already-resolved context string from the search subsystem; the engine
// never fetches it itself.
type DeliberationRequest struct {
	Query         string
	Council       CouncilConfig
	SearchContext string
}

// Deliberation is the handle to one in-flight deliberation: an ordered
// event stream, a cancel switch, and the final result.
type Deliberation struct {
	events chan DeliberationEvent
	done   chan struct{}
	cancel context.CancelFunc
	result *DeliberationResult
	err    error
}

// Events returns the ordered event stream. It is closed when the
// deliberation terminates; consumers should drain it.
func (d *Deliberation) Events() <-chan DeliberationEvent {
	return d.events
}

// Cancel requests cooperative cancellation: in-flight model calls abort, no
// further calls are issued, and the stream ends with an aborted event that
// preserves every result already produced.
func (d *Deliberation) Cancel() {
	d.cancel()
}

// Wait blocks until the deliberation terminates and returns the result.
// On cancellation the result holds all partial output and err is
// context.Canceled; on fatal configuration or all-providers failure the
// result holds whatever was produced before the failure.
func (d *Deliberation) Wait() (*DeliberationResult, error) {
	<-d.done
	return d.result, d.err
}

// StartDeliberation validates the request, then runs the pipeline in the
// background. Configuration errors (bad council size, missing chairman,
// unresolvable model references) fail here, before any network call.
func (c *Council) StartDeliberation(ctx context.Context, req DeliberationRequest) (*Deliberation, error) {
	if req.Council.Mode == "" {
		req.Council.Mode = ModeFull
	}

	switch {
	case len(req.Council.Members) == 0:
		return nil, ErrNoCouncilMembers
	case len(req.Council.Members) < MinCouncilSize:
		return nil, ErrCouncilTooSmall
	case len(req.Council.Members) > MaxCouncilSize:
		return nil, ErrCouncilTooLarge
	}
	for _, member := range req.Council.Members {
		if _, _, err := c.registry.Resolve(member); err != nil {
			return nil, err
		}
	}
	if req.Council.Mode == ModeFull {
		if req.Council.Chairman == "" {
			return nil, ErrNoChairman
		}
		if _, _, err := c.registry.Resolve(req.Council.Chairman); err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d := &Deliberation{
		events: make(chan DeliberationEvent, 256),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go c.run(runCtx, req, d)
	return d, nil
}

// run drives the state machine: Stage1 -> {Stage2 -> Stage3} -> Completed,
// with Aborted and Failed reachable from any non-terminal state. Stages
// never overlap: each fully settles before the next begins.
func (c *Council) run(ctx context.Context, req DeliberationRequest, d *Deliberation) {
	defer d.cancel()

	res := &DeliberationResult{}
	seq := 0
	emit := func(ev DeliberationEvent) {
		ev.Seq = seq
		seq++
		res.Events = append(res.Events, ev)
		d.events <- ev
	}
	finish := func(err error) {
		d.result = res
		d.err = err
		close(d.events)
		close(d.done)
	}
	aborted := func() {
		emit(DeliberationEvent{Type: EventAborted})
		finish(context.Canceled)
	}

	searchBlock := buildSearchContextBlock(req.SearchContext)
	members := req.Council.Members

	// Stage 1: independent answers from every member.
	emit(DeliberationEvent{Type: EventStage1Start, Total: len(members)})

	prompt := renderPrompt(c.prompts.Stage1, map[string]string{
		"user_query":           req.Query,
		"search_context_block": searchBlock,
	})
	if strings.TrimSpace(prompt) == "" {
		prompt = req.Query
	}
	messages := []ChatMessage{{Role: "user", Content: prompt}}

	ch, err := RunStage(ctx, c.registry, members, messages, req.Council.CouncilTemperature)
	if err != nil {
		emit(DeliberationEvent{Type: EventError, Scope: "stage1", Message: err.Error()})
		finish(err)
		return
	}
	for result := range ch {
		result := result
		res.Stage1 = append(res.Stage1, result)
		emit(DeliberationEvent{
			Type:   EventStage1Progress,
			Model:  result.Model,
			Count:  len(res.Stage1),
			Total:  len(members),
			Result: &result,
		})
	}
	if ctx.Err() != nil {
		aborted()
		return
	}
	emit(DeliberationEvent{Type: EventStage1Complete, Stage1: res.Stage1})

	successes := successesInCouncilOrder(res.Stage1)
	if len(successes) == 0 {
		emit(DeliberationEvent{Type: EventError, Scope: "stage1", Message: ErrAllProvidersFailed.Error()})
		finish(ErrAllProvidersFailed)
		return
	}

	if req.Council.Mode == ModeAnswersOnly {
		emit(DeliberationEvent{Type: EventComplete})
		finish(nil)
		return
	}

	// Stage 2: anonymized peer ranking across the Stage 1 successes. The
	// label map lives only inside this deliberation.
	anonMap := AssignLabels(successes)
	emit(DeliberationEvent{Type: EventStage2Start, Total: len(successes)})

	var responsesText strings.Builder
	labels := anonMap.Labels()
	for i, result := range successes {
		fmt.Fprintf(&responsesText, "%s:\n%s\n\n", labels[i], result.Response)
	}
	rankingPrompt := renderPrompt(c.prompts.Stage2, map[string]string{
		"user_query":           req.Query,
		"responses_text":       responsesText.String(),
		"search_context_block": searchBlock,
	})
	rankingMessages := []ChatMessage{{Role: "user", Content: rankingPrompt}}

	rankers := make([]string, len(successes))
	for i, result := range successes {
		rankers[i] = result.Model
	}

	ch2, err := RunStage(ctx, c.registry, rankers, rankingMessages, req.Council.RankingTemperature)
	if err != nil {
		emit(DeliberationEvent{Type: EventError, Scope: "stage2", Message: err.Error()})
		finish(err)
		return
	}
	for result := range ch2 {
		ranking := RankingResult{
			Model:        result.Model,
			Member:       result.Member,
			Error:        result.Error,
			ErrorMessage: result.ErrorMessage,
		}
		if !result.Failed() {
			ranking.Ranking = result.Response
			ranking.ParsedRanking = ParseRanking(result.Response, labels)
			if ranking.ParsedRanking == nil {
				log.Printf("No ranking extracted from %s; excluding from aggregation", result.Model)
			}
		}
		res.Stage2 = append(res.Stage2, ranking)
		emit(DeliberationEvent{
			Type:    EventStage2Progress,
			Model:   ranking.Model,
			Count:   len(res.Stage2),
			Total:   len(successes),
			Ranking: &ranking,
		})
	}
	if ctx.Err() != nil {
		aborted()
		return
	}

	res.Metadata = &Metadata{
		LabelToModel:      anonMap.LabelToModel(),
		AggregateRankings: CalculateAggregateRankings(res.Stage2, anonMap),
	}
	emit(DeliberationEvent{Type: EventStage2Complete, Stage2: res.Stage2, Metadata: res.Metadata})

	if req.Council.Mode == ModeAnswersRanking {
		emit(DeliberationEvent{Type: EventComplete})
		finish(nil)
		return
	}

	// Stage 3: chairman synthesis. A chairman failure is recorded on the
	// Stage 3 result; the deliberation still completes.
	emit(DeliberationEvent{Type: EventStage3Start, Model: req.Council.Chairman})

	var stage1Text strings.Builder
	for _, result := range successes {
		fmt.Fprintf(&stage1Text, "Model: %s\nResponse: %s\n\n", result.Model, result.Response)
	}
	var stage2Text strings.Builder
	for _, ranking := range res.Stage2 {
		if ranking.Ranking == "" {
			continue
		}
		fmt.Fprintf(&stage2Text, "Model: %s\nRanking: %s\n\n", ranking.Model, ranking.Ranking)
	}
	chairmanPrompt := renderPrompt(c.prompts.Stage3, map[string]string{
		"user_query":           req.Query,
		"stage1_text":          stage1Text.String(),
		"stage2_text":          stage2Text.String(),
		"search_context_block": searchBlock,
	})
	chairmanMessages := []ChatMessage{
		{Role: "system", Content: "You are the Chairman of an LLM Council. Your task is to synthesize the provided model responses into a single, comprehensive answer."},
		{Role: "user", Content: chairmanPrompt},
	}

	start := time.Now()
	content, err := c.registry.Invoke(ctx, req.Council.Chairman, chairmanMessages, req.Council.ChairmanTemperature)
	if ctx.Err() != nil {
		aborted()
		return
	}

	stage3 := StageResult{Model: req.Council.Chairman, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		stage3.Error, stage3.ErrorMessage = errorKindOf(err)
		log.Printf("Chairman model %s failed: %v", req.Council.Chairman, err)
	} else {
		stage3.Response = content
	}
	res.Stage3 = &stage3
	emit(DeliberationEvent{Type: EventStage3Complete, Stage3: &stage3})

	emit(DeliberationEvent{Type: EventComplete})
	finish(nil)
}

// successesInCouncilOrder filters to non-error results and restores council
// roster order, which completion-order streaming discarded. Label
// assignment depends on this ordering.
func successesInCouncilOrder(results []StageResult) []StageResult {
	successes := make([]StageResult, 0, len(results))
	for _, result := range results {
		if !result.Failed() {
			successes = append(successes, result)
		}
	}
	sort.SliceStable(successes, func(i, j int) bool {
		return successes[i].Member < successes[j].Member
	})
	return successes
}

// GenerateConversationTitle produces a short title for a conversation using
// a fast model, falling back to a truncation of the query when the call
// fails.
func GenerateConversationTitle(ctx context.Context, registry *Registry, userQuery string) string {
	titlePrompt := fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, userQuery)

	titleCtx, cancel := context.WithTimeout(ctx, TitleGenTimeout)
	defer cancel()

	content, err := registry.Invoke(titleCtx, TitleModel, []ChatMessage{{Role: "user", Content: titlePrompt}}, 0.7)
	if err != nil {
		log.Printf("Title generation failed, using heuristic: %v", err)
		return heuristicTitle(userQuery)
	}

	title := strings.Trim(strings.TrimSpace(content), "\"'")
	if title == "" {
		return heuristicTitle(userQuery)
	}
	if len(title) > 50 {
		title = title[:47] + "..."
	}
	return title
}

// heuristicTitle derives a title from the query itself.
func heuristicTitle(userQuery string) string {
	title := strings.Trim(strings.TrimSpace(userQuery), "\"'")
	if title == "" {
		return "New Conversation"
	}
	if len(title) > 50 {
		title = title[:47] + "..."
	}
	return title
}
