package main

import "time"

// ChatMessage is a single role-tagged message sent to a model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExecutionMode selects which subset of the three stages a deliberation runs.
type ExecutionMode string

const (
	// ModeAnswersOnly runs Stage 1 and stops.
	ModeAnswersOnly ExecutionMode = "answers-only"
	// ModeAnswersRanking runs Stage 1 and Stage 2, skipping synthesis.
	ModeAnswersRanking ExecutionMode = "answers+ranking"
	// ModeFull runs all three stages.
	ModeFull ExecutionMode = "full"
)

// CouncilConfig describes one deliberation: which models participate, which
// model chairs, per-stage temperatures, and the execution mode. It is passed
// explicitly per call and never mutated by the engine.
type CouncilConfig struct {
	Members             []string      `json:"members"`
	Chairman            string        `json:"chairman"`
	Mode                ExecutionMode `json:"mode"`
	CouncilTemperature  float64       `json:"council_temperature"`
	RankingTemperature  float64       `json:"ranking_temperature"`
	ChairmanTemperature float64       `json:"chairman_temperature"`
}

// ErrorKind classifies a single model call failure.
type ErrorKind string

const (
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindAuth        ErrorKind = "auth"
	ErrKindRateLimited ErrorKind = "rate_limited"
	ErrKindBadResponse ErrorKind = "bad_response"
	ErrKindCancelled   ErrorKind = "cancelled"
	ErrKindUnknown     ErrorKind = "unknown"
)

// StageResult is one model's outcome in Stage 1 or Stage 3. Exactly one of
// Response / Error is set. Member is the model's position in the council
// roster; it is engine-internal and not persisted.
type StageResult struct {
	Model        string    `json:"model"`
	Response     string    `json:"response,omitempty"`
	Error        ErrorKind `json:"error,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	LatencyMS    int64     `json:"latency_ms,omitempty"`
	Member       int       `json:"-"`
}

// Failed reports whether the model call errored.
func (r StageResult) Failed() bool {
	return r.Error != ""
}

// RankingResult is one ranker's critique in Stage 2: the raw text plus the
// labels extracted from it. ParsedRanking is nil when nothing could be
// extracted; such rankers are excluded from aggregation.
type RankingResult struct {
	Model         string    `json:"model"`
	Ranking       string    `json:"ranking,omitempty"`
	ParsedRanking []string  `json:"parsed_ranking,omitempty"`
	Error         ErrorKind `json:"error,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Member        int       `json:"-"`
}

// AggregateRanking is the consensus position of one council member after
// Stage 2. Lower AverageRank is better.
type AggregateRanking struct {
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// Metadata carries the ephemeral per-deliberation derivations. It is handed
// to consumers alongside stage2_complete and never persisted.
type Metadata struct {
	LabelToModel      map[string]string  `json:"label_to_model"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings"`
}

// EventType tags entries in the deliberation event stream.
type EventType string

const (
	EventStage1Start    EventType = "stage1_start"
	EventStage1Progress EventType = "stage1_progress"
	EventStage1Complete EventType = "stage1_complete"
	EventStage2Start    EventType = "stage2_start"
	EventStage2Progress EventType = "stage2_progress"
	EventStage2Complete EventType = "stage2_complete"
	EventStage3Start    EventType = "stage3_start"
	EventStage3Complete EventType = "stage3_complete"
	EventError          EventType = "error"
	EventAborted        EventType = "aborted"
	EventComplete       EventType = "complete"
)

// DeliberationEvent is one entry in the ordered, write-once event stream of a
// deliberation. Seq increases monotonically from 0. Which payload fields are
// set depends on Type.
type DeliberationEvent struct {
	Seq      int             `json:"seq"`
	Type     EventType       `json:"type"`
	Model    string          `json:"model,omitempty"`
	Count    int             `json:"count,omitempty"`
	Total    int             `json:"total,omitempty"`
	Result   *StageResult    `json:"result,omitempty"`
	Ranking  *RankingResult  `json:"ranking,omitempty"`
	Stage1   []StageResult   `json:"stage1,omitempty"`
	Stage2   []RankingResult `json:"stage2,omitempty"`
	Stage3   *StageResult    `json:"stage3,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
	Scope    string          `json:"scope,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// DeliberationResult is the final outcome of one deliberation, including the
// complete event log. Partial results survive cancellation.
type DeliberationResult struct {
	Stage1   []StageResult       `json:"stage1"`
	Stage2   []RankingResult     `json:"stage2,omitempty"`
	Stage3   *StageResult        `json:"stage3,omitempty"`
	Metadata *Metadata           `json:"metadata,omitempty"`
	Events   []DeliberationEvent `json:"events,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	Role    string          `json:"role"`
	Content string          `json:"content,omitempty"`
	Stage1  []StageResult   `json:"stage1,omitempty"`
	Stage2  []RankingResult `json:"stage2,omitempty"`
	Stage3  *StageResult    `json:"stage3,omitempty"`
}

// Conversation represents a full conversation with all messages
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// ConversationMetadata represents conversation list metadata
type ConversationMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// SendMessageRequest represents a request to send a message
type SendMessageRequest struct {
	Content   string        `json:"content"`
	Members   []string      `json:"council_models,omitempty"`
	Chairman  string        `json:"chairman_model,omitempty"`
	Mode      ExecutionMode `json:"mode,omitempty"`
	UseSearch bool          `json:"use_search,omitempty"`
}

// SendMessageResponse represents the response after sending a message
type SendMessageResponse struct {
	Stage1   []StageResult   `json:"stage1"`
	Stage2   []RankingResult `json:"stage2,omitempty"`
	Stage3   *StageResult    `json:"stage3,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// ModelInfo describes one selectable model for the catalog endpoint.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	IsFree   bool   `json:"is_free"`
}
