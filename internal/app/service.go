package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/logging"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/metrics"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/retry"
)

// systemChooser is the display name announced when the service itself picks
// the first answerer at round start. The frontend treats it as "the game".
const systemChooser = "TRVY"

// maxQuestionSample caps how many question IDs an answerer gets to choose from.
const maxQuestionSample = 5

// Service orchestrates rounds. All methods are safe for concurrent use; the
// underlying stores provide atomicity, Service only sequences operations.
type Service struct {
	directory domain.ConnectionDirectory
	rounds    domain.RoundRepository
	pool      domain.QuestionPool
	fanout    domain.Broadcaster

	// collapses concurrent start requests for the same round on this
	// instance; cross-instance races are settled by RoundRepository.ClaimStart.
	startGroup singleflight.Group
}

func NewService(directory domain.ConnectionDirectory, rounds domain.RoundRepository, pool domain.QuestionPool) *Service {
	return &Service{
		directory: directory,
		rounds:    rounds,
		pool:      pool,
	}
}

// SetBroadcaster wires the fanout. Must be called before serving traffic;
// split from the constructor because the fanout's gone-handler points back
// at this service.
func (s *Service) SetBroadcaster(b domain.Broadcaster) {
	s.fanout = b
}

// Register creates the bare connection row for a fresh transport connection.
// The row stays unjoined until the client sends a join action.
func (s *Service) Register(ctx context.Context, connID string) error {
	if err := s.directory.Register(ctx, connID); err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	return nil
}

// Join places the connection into a round and announces the updated member
// roster to everyone in it. The round row is created on first join.
func (s *Service) Join(ctx context.Context, connID, roundID, displayName string) error {
	if err := s.rounds.EnsureRound(ctx, roundID); err != nil {
		return fmt.Errorf("ensure round: %w", err)
	}
	if err := s.directory.Join(ctx, connID, roundID, displayName); err != nil {
		return fmt.Errorf("join round: %w", err)
	}
	if _, err := s.rounds.IncrMembers(ctx, roundID, 1); err != nil {
		return fmt.Errorf("increment member count: %w", err)
	}

	members, err := s.directory.ListMembers(ctx, roundID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	s.fanout.Broadcast(ctx, connIDs(members), domain.NewPlayer(displayNames(members)))
	return nil
}

// SubmitQuestion adds a question to the round's pool and tells everyone the
// new pool and member tallies. Returns the generated question ID.
func (s *Service) SubmitQuestion(ctx context.Context, connID, text string) (string, error) {
	conn, err := s.joinedConnection(ctx, connID)
	if err != nil {
		return "", err
	}

	question := domain.Question{
		RoundID:  conn.RoundID,
		ID:       uuid.NewString(),
		Text:     text,
		AuthorID: connID,
	}
	pending, err := s.pool.Add(ctx, question)
	if err != nil {
		return "", fmt.Errorf("add question: %w", err)
	}

	members, err := s.directory.ListMembers(ctx, conn.RoundID)
	if err != nil {
		return "", fmt.Errorf("list members: %w", err)
	}
	s.fanout.Broadcast(ctx, connIDs(members), domain.NewQuestion(text, pending, int64(len(members))))
	return question.ID, nil
}

// RequestStart moves the round from forming to answering when every member
// has submitted exactly one question. On a tally mismatch the requester gets
// a start-error event with the deficit and no state changes. When two
// members race to start, exactly one wins the claim; the loser gets
// ErrRoundStarted.
func (s *Service) RequestStart(ctx context.Context, connID string) error {
	conn, err := s.joinedConnection(ctx, connID)
	if err != nil {
		return err
	}

	round, err := s.rounds.Get(ctx, conn.RoundID)
	if err != nil {
		return fmt.Errorf("get round: %w", err)
	}
	if round.MemberCount != round.PendingQuestionCount {
		s.fanout.Send(ctx, connID, domain.StartError(round.MemberCount-round.PendingQuestionCount))
		return nil
	}

	_, err, _ = s.startGroup.Do(conn.RoundID, func() (any, error) {
		return nil, s.startRound(ctx, conn.RoundID)
	})
	return err
}

func (s *Service) startRound(ctx context.Context, roundID string) error {
	members, err := s.directory.ListMembers(ctx, roundID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	if len(members) == 0 {
		return fmt.Errorf("round %s: %w", roundID, domain.ErrRoundNotFound)
	}

	answerer := members[rand.IntN(len(members))].DisplayName
	claimed, err := s.rounds.ClaimStart(ctx, roundID, answerer)
	if err != nil {
		return fmt.Errorf("claim start: %w", err)
	}
	if !claimed {
		return domain.ErrRoundStarted
	}
	s.announceAnswerer(ctx, roundID, systemChooser, answerer, members)
	return nil
}

// AssignAnswerer records the chosen answerer and announces them. The chooser
// must be joined and the answerer must currently be a member of the round.
func (s *Service) AssignAnswerer(ctx context.Context, connID, answerer string) error {
	conn, err := s.joinedConnection(ctx, connID)
	if err != nil {
		return err
	}

	members, err := s.directory.ListMembers(ctx, conn.RoundID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	if !isMember(members, answerer) {
		return fmt.Errorf("answerer %q: %w", answerer, domain.ErrNotAMember)
	}

	if err := s.rounds.SetAnswerer(ctx, conn.RoundID, answerer); err != nil {
		return fmt.Errorf("set answerer: %w", err)
	}
	s.announceAnswerer(ctx, conn.RoundID, conn.DisplayName, answerer, members)
	return nil
}

// announceAnswerer sends the next-answerer event to everyone except the
// answerer, and a question sample to the answerer so they can pick one.
func (s *Service) announceAnswerer(ctx context.Context, roundID, chooser, answerer string, members []domain.Connection) {
	var audience []string
	var answererID string
	for _, m := range members {
		if m.DisplayName == answerer {
			answererID = m.ID
			continue
		}
		audience = append(audience, m.ID)
	}
	s.fanout.Broadcast(ctx, audience, domain.NextAnswerer(chooser, answerer))

	sample, err := s.pool.Sample(ctx, roundID, maxQuestionSample)
	if err != nil {
		slog.Error("sampling questions for answerer failed", "round_id", roundID, "error", err)
		return
	}
	if answererID != "" {
		s.fanout.Send(ctx, answererID, domain.PickQuestion(sample))
	}
}

// ResolveQuestion consumes the chosen question and reveals it to the round.
// The answerer is marked as answered; when the pool drains the round phase
// flips to complete. Concurrent resolves of the same question settle on the
// store: exactly one caller gets the question, the rest get
// ErrQuestionNotFound and trigger no broadcast.
func (s *Service) ResolveQuestion(ctx context.Context, connID, questionID string) error {
	conn, err := s.joinedConnection(ctx, connID)
	if err != nil {
		return err
	}

	question, pending, err := s.pool.Consume(ctx, conn.RoundID, questionID)
	if err != nil {
		return fmt.Errorf("consume question %s: %w", questionID, err)
	}
	if err := s.directory.MarkAnswered(ctx, connID); err != nil {
		return fmt.Errorf("mark answered: %w", err)
	}
	if pending <= 0 {
		if err := s.rounds.SetPhase(ctx, conn.RoundID, domain.PhaseComplete); err != nil {
			slog.Error("marking round complete failed", "round_id", conn.RoundID, "error", err)
		}
	}

	members, err := s.directory.ListMembers(ctx, conn.RoundID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	s.fanout.Broadcast(ctx, connIDs(members), domain.QuestionRevealed(conn.DisplayName, question.Text, pending))
	return nil
}

// AnswererCandidates replies to the requester with the members who have not
// answered yet this round.
func (s *Service) AnswererCandidates(ctx context.Context, connID string) error {
	conn, err := s.joinedConnection(ctx, connID)
	if err != nil {
		return err
	}

	unanswered, err := s.directory.ListUnanswered(ctx, conn.RoundID)
	if err != nil {
		return fmt.Errorf("list unanswered: %w", err)
	}
	s.fanout.Send(ctx, connID, domain.PickAnswerer(displayNames(unanswered)))
	return nil
}

// EndRound announces the end of the round, clears every member's answered
// flag and returns the round to the forming phase so it can run again with
// the same roster.
func (s *Service) EndRound(ctx context.Context, connID string) error {
	conn, err := s.joinedConnection(ctx, connID)
	if err != nil {
		return err
	}

	members, err := s.directory.ListMembers(ctx, conn.RoundID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	s.fanout.Broadcast(ctx, connIDs(members), domain.RoundEnd())

	if err := s.directory.ResetAnswered(ctx, conn.RoundID); err != nil {
		return fmt.Errorf("reset answered flags: %w", err)
	}
	if err := s.rounds.SetPhase(ctx, conn.RoundID, domain.PhaseForming); err != nil {
		return fmt.Errorf("reset phase: %w", err)
	}
	return nil
}

// Disconnect removes the connection and reconciles the round it belonged to.
// Calling it for an unknown connection is a no-op, so transport-close and
// stale-detection paths can both call it without coordination.
func (s *Service) Disconnect(ctx context.Context, connID string) error {
	conn, err := s.directory.Get(ctx, connID)
	if errors.Is(err, domain.ErrConnectionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}

	if err := s.directory.Delete(ctx, connID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if !conn.Joined() {
		return nil
	}

	remaining, err := s.rounds.IncrMembers(ctx, conn.RoundID, -1)
	if err != nil {
		return fmt.Errorf("decrement member count: %w", err)
	}
	if remaining <= 0 {
		s.cleanupRound(ctx, conn.RoundID)
	}
	return nil
}

// HandleGone is called by the fanout when a push hits a vanished connection.
// The directory row is torn down lazily here instead of on every push.
func (s *Service) HandleGone(ctx context.Context, connID string) {
	metrics.StaleConnectionsCleaned.Inc()
	if err := s.Disconnect(ctx, connID); err != nil {
		slog.Error("cleaning up gone connection failed", "connection_id", connID, "error", err)
	}
}

// cleanupRound deletes the round row and all its questions. Retried because
// a half-deleted round leaks questions that nothing can consume anymore.
func (s *Service) cleanupRound(ctx context.Context, roundID string) {
	logger := logging.WithRound(roundID)
	policy := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			logger.Warn("round cleanup retry", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	alwaysRetry := func(error) retry.Action { return retry.Retry }
	err := retry.DoVoid(ctx, policy, alwaysRetry, func() error {
		// Questions go first: if this dies halfway, the surviving round row
		// keeps the orphan visible to the sweeper's round scan.
		deleted, err := s.pool.DeleteAll(ctx, roundID)
		if err != nil {
			return err
		}
		metrics.OrphanQuestionsCleaned.Add(float64(deleted))
		return s.rounds.Delete(ctx, roundID)
	})
	if err != nil {
		logger.Error("round cleanup failed", "error", err)
		return
	}
	metrics.OrphanRoundsCleaned.Inc()
	logger.Info("round cleaned up")
}

// joinedConnection loads the connection and enforces that it has joined a
// round, which every action except join requires.
func (s *Service) joinedConnection(ctx context.Context, connID string) (*domain.Connection, error) {
	conn, err := s.directory.Get(ctx, connID)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	if !conn.Joined() {
		return nil, fmt.Errorf("connection %s: %w", connID, domain.ErrNotInRound)
	}
	return conn, nil
}

func connIDs(members []domain.Connection) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}

func displayNames(members []domain.Connection) []string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.DisplayName
	}
	return names
}

func isMember(members []domain.Connection, displayName string) bool {
	for _, m := range members {
		if m.DisplayName == displayName {
			return true
		}
	}
	return false
}
