package domain

import "context"

// --- Model types ---

// Connection is one websocket client as tracked in the directory. RoundID and
// DisplayName stay empty until the client joins a round.
type Connection struct {
	ID          string
	RoundID     string
	DisplayName string
	HasAnswered bool
}

// Joined reports whether the connection has declared a round membership.
func (c Connection) Joined() bool {
	return c.RoundID != ""
}

// Phase is the explicit round phase stored alongside the counters. The original
// data model inferred phase from counter values only; storing it gives the start
// transition a single field to claim.
type Phase string

const (
	PhaseForming   Phase = "forming"
	PhaseAnswering Phase = "answering"
	PhaseComplete  Phase = "complete"
)

// Round is the per-round aggregate row. MemberCount and PendingQuestionCount are
// maintained with atomic increments in lock-step with directory and pool
// mutations, never recomputed by the hot path.
type Round struct {
	ID                   string
	MemberCount          int64
	PendingQuestionCount int64
	Phase                Phase
	Answerer             string
}

// Question is one pending trivia question, keyed by (round, question) pair.
type Question struct {
	RoundID  string
	ID       string
	Text     string
	AuthorID string
}

// --- Store interfaces ---

// ConnectionDirectory tracks live connections and their round membership.
type ConnectionDirectory interface {
	Register(ctx context.Context, connID string) error
	Join(ctx context.Context, connID, roundID, displayName string) error
	Get(ctx context.Context, connID string) (*Connection, error)
	Delete(ctx context.Context, connID string) error
	MarkAnswered(ctx context.Context, connID string) error
	ResetAnswered(ctx context.Context, roundID string) error
	ListMembers(ctx context.Context, roundID string) ([]Connection, error)
	ListUnanswered(ctx context.Context, roundID string) ([]Connection, error)
	ListRoundIDs(ctx context.Context) (map[string]int64, error)
}

// RoundRepository owns the per-round counter row.
type RoundRepository interface {
	EnsureRound(ctx context.Context, roundID string) error
	Get(ctx context.Context, roundID string) (*Round, error)
	IncrMembers(ctx context.Context, roundID string, delta int64) (int64, error)
	SetCounts(ctx context.Context, roundID string, members, pending int64) error
	SetAnswerer(ctx context.Context, roundID, answerer string) error
	SetPhase(ctx context.Context, roundID string, phase Phase) error
	// ClaimStart flips the round from forming to answering and records the
	// answerer in one atomic step. Returns false if another caller already
	// claimed the transition.
	ClaimStart(ctx context.Context, roundID, answerer string) (bool, error)
	Delete(ctx context.Context, roundID string) error
	ListIDs(ctx context.Context) ([]string, error)
}

// QuestionPool owns the pending questions of a round.
type QuestionPool interface {
	Add(ctx context.Context, q Question) (pending int64, err error)
	Get(ctx context.Context, roundID, questionID string) (*Question, error)
	Update(ctx context.Context, roundID, questionID, text string) error
	List(ctx context.Context, roundID string) ([]Question, error)
	Sample(ctx context.Context, roundID string, k int) ([]string, error)
	// Consume atomically removes the question and decrements the round's
	// pending counter. Returns ErrQuestionNotFound if already consumed.
	Consume(ctx context.Context, roundID, questionID string) (q *Question, pending int64, err error)
	DeleteAll(ctx context.Context, roundID string) (int, error)
	CountByRound(ctx context.Context) (map[string]int64, error)
}

// --- Transport interfaces ---

// PushGateway delivers a payload to a single connection. ErrConnectionGone is
// the only distinguished failure; everything else is opaque and not retried.
type PushGateway interface {
	Post(ctx context.Context, connID string, data []byte) error
}

// Broadcaster fans an event out to a recipient set, best effort.
type Broadcaster interface {
	Send(ctx context.Context, connID string, event Event)
	Broadcast(ctx context.Context, recipients []string, event Event)
}
