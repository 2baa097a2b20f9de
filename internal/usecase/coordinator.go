package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

type matchStore interface {
	Create(ctx context.Context, match *entity.Match) error
	Transition(ctx context.Context, match *entity.Match, from entity.MatchStatus) error
	Head(ctx context.Context, matchID string) (*entity.Match, *entity.Move, error)
	Commit(ctx context.Context, writer string, move *entity.Move, completion *entity.Completion) error
	Move(ctx context.Context, matchID string, index int) (*entity.Move, error)
	Moves(ctx context.Context, matchID string) ([]*entity.Move, error)
}

type moveValidator interface {
	Validate(match *entity.Match, snapshot entity.Snapshot, seat entity.Seat, action *int) (entity.Snapshot, error)
}

type initialState interface {
	Initial() entity.Snapshot
}

type publisher interface {
	Publish(ctx context.Context, event entity.FeedEvent) error
}

type recorder interface {
	MoveCommitted()
	Rejected(kind apperror.Kind)
	CommitRetried()
	MatchEnded(reason entity.EndReason)
	Reconciled()
}

type CoordinatorConfig struct {
	WriterToken      string
	CommitAttempts   uint64
	CommitBackoff    time.Duration
	CommitMaxBackoff time.Duration
}

// Submission - a move request. A nil Action is absent; 0 is a valid action code.
type Submission struct {
	MatchID       string
	CallerID      string
	ExpectedIndex int
	Action        *int
}

// Coordinator - the only writer of matches and moves.
type Coordinator struct {
	logger *slog.Logger

	store     matchStore
	validator moveValidator
	rules     initialState
	feed      publisher
	metrics   recorder
	clock     clock.Clock

	conf CoordinatorConfig
}

func NewCoordinator(
	logger *slog.Logger,
	store matchStore,
	validator moveValidator,
	rules initialState,
	feed publisher,
	metrics recorder,
	clk clock.Clock,
	conf CoordinatorConfig,
) *Coordinator {
	if conf.CommitAttempts == 0 {
		conf.CommitAttempts = 1
	}

	return &Coordinator{
		logger:    logger.With("component", "coordinator"),
		store:     store,
		validator: validator,
		rules:     rules,
		feed:      feed,
		metrics:   metrics,
		clock:     clk,
		conf:      conf,
	}
}

// Submit - validates the action against the latest snapshot and commits it at ExpectedIndex.
func (that *Coordinator) Submit(ctx context.Context, submission Submission) (*entity.Move, error) {
	log := that.logger.With("method", "Submit", "match_id", submission.MatchID, "caller", submission.CallerID)

	move, err := that.submit(ctx, log, submission)
	if err != nil {
		kind := apperror.KindOf(err)
		that.metrics.Rejected(kind)

		if kind == apperror.KindPersistenceFailure || kind == apperror.KindInternal {
			log.Error("submission failed", "error", err)
		} else {
			log.Info("submission rejected", "kind", kind, "error", err)
		}

		return nil, err
	}

	log.Debug("move committed", "move_index", move.Index, "action", move.Action)

	return move, nil
}

func (that *Coordinator) submit(ctx context.Context, log *slog.Logger, submission Submission) (*entity.Move, error) {
	match, last, err := that.store.Head(ctx, submission.MatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match head: %w", err)
	}

	seat, ok := match.SeatOf(submission.CallerID)
	if !ok {
		return nil, apperror.ErrNotParticipant
	}

	match = that.reconcile(ctx, log, match, last)

	latest := entity.NoMoves
	if last != nil {
		latest = last.Index
	}

	if submission.ExpectedIndex != latest+1 {
		return nil, fmt.Errorf("%w: expected index %d, latest committed is %d", apperror.ErrStaleIndex, submission.ExpectedIndex, latest)
	}

	next, err := that.validator.Validate(match, that.snapshotOf(last), seat, submission.Action)
	if err != nil {
		return nil, err
	}

	now := that.clock.Now().UTC()
	move := &entity.Move{
		ID:          uuid.NewString(),
		MatchID:     match.ID,
		Index:       submission.ExpectedIndex,
		PlayerID:    submission.CallerID,
		Seat:        seat,
		Action:      *submission.Action,
		Snapshot:    next,
		CommittedAt: now,
	}

	if state, timed := entity.NewClockState(match, last); timed {
		increment := time.Duration(match.Clock.IncrementMs) * time.Millisecond

		after, err := state.AfterMove(seat, next.CurrentPlayer, increment, now)
		if err != nil {
			return nil, err
		}

		move.Clock = &after
	}

	var completion *entity.Completion
	if next.Scores.IsTerminal() {
		winner, _ := next.Scores.Winner()
		ending := match.CompletionFor(entity.StatusCompleted, winner, entity.EndReasonMove, now)
		completion = &ending
	}

	if err = that.commit(ctx, log, move, completion); err != nil {
		return nil, fmt.Errorf("failed to commit move: %w", err)
	}

	that.metrics.MoveCommitted()
	that.publish(ctx, log, entity.MoveEvent(move))

	if completion != nil {
		match.Complete(*completion)
		that.metrics.MatchEnded(completion.Reason)
		that.publish(ctx, log, entity.MatchEvent(match))
	}

	return move, nil
}

// commit - retries persistence failures with bounded backoff. Validation is never re-run.
func (that *Coordinator) commit(ctx context.Context, log *slog.Logger, move *entity.Move, completion *entity.Completion) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = that.conf.CommitBackoff
	policy.MaxInterval = that.conf.CommitMaxBackoff
	policy.MaxElapsedTime = 0

	attempt := 0

	return backoff.Retry(func() error {
		attempt++

		err := that.store.Commit(ctx, that.conf.WriterToken, move, completion)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, apperror.ErrPersistenceFailure):
			that.metrics.CommitRetried()
			log.Warn("commit failed", "attempt", attempt, "error", err)

			return err
		case attempt > 1 && (errors.Is(err, apperror.ErrStaleIndex) || errors.Is(err, apperror.ErrMatchNotActive)):
			// an earlier attempt may have landed and only its acknowledgement was lost
			if stored, getErr := that.store.Move(ctx, move.MatchID, move.Index); getErr == nil && stored.ID == move.ID {
				return nil
			}

			return backoff.Permanent(err)
		default:
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(backoff.WithMaxRetries(policy, that.conf.CommitAttempts-1), ctx))
}

// reconcile - repairs a match whose game-ending move committed without the status change.
func (that *Coordinator) reconcile(ctx context.Context, log *slog.Logger, match *entity.Match, last *entity.Move) *entity.Match {
	if last == nil || !match.IsInProgress() || !last.Snapshot.Scores.IsTerminal() {
		return match
	}

	winner, _ := last.Snapshot.Scores.Winner()
	repaired := *match
	repaired.Complete(match.CompletionFor(entity.StatusCompleted, winner, entity.EndReasonMove, last.CommittedAt))

	err := that.store.Transition(ctx, &repaired, entity.StatusInProgress)
	switch {
	case errors.Is(err, apperror.ErrStatusConflict):
		log.Info("match status changed while repairing", "match_id", match.ID)
	case err != nil:
		log.Error("failed to repair match status", "match_id", match.ID, "error", err)
	default:
		log.Warn("repaired match status from terminal snapshot", "match_id", match.ID, "move_index", last.Index)
		that.metrics.Reconciled()
		that.publish(ctx, log, entity.MatchEvent(&repaired))
	}

	return &repaired
}

// Head - the latest committed index and snapshot. Index is NoMoves and the snapshot initial before the first move.
func (that *Coordinator) Head(ctx context.Context, matchID string) (*entity.Head, error) {
	log := that.logger.With("method", "Head", "match_id", matchID)

	match, last, err := that.store.Head(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match head: %w", err)
	}

	head := &entity.Head{
		Match:    that.reconcile(ctx, log, match, last),
		Index:    entity.NoMoves,
		Snapshot: that.snapshotOf(last),
		Move:     last,
	}

	if last != nil {
		head.Index = last.Index
	}

	return head, nil
}

func (that *Coordinator) GetMatch(ctx context.Context, matchID string) (*entity.Match, error) {
	head, err := that.Head(ctx, matchID)
	if err != nil {
		return nil, err
	}

	return head.Match, nil
}

// Moves - committed history in index order. Not used to rebuild state.
func (that *Coordinator) Moves(ctx context.Context, matchID string) ([]*entity.Move, error) {
	if _, _, err := that.store.Head(ctx, matchID); err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}

	moves, err := that.store.Moves(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load moves: %w", err)
	}

	return moves, nil
}

func (that *Coordinator) CreateMatch(ctx context.Context, creatorID string, clockConfig *entity.ClockConfig) (*entity.Match, error) {
	if creatorID == "" {
		return nil, apperror.ErrUnauthenticated
	}

	if clockConfig != nil && (clockConfig.InitialMs <= 0 || clockConfig.IncrementMs < 0) {
		return nil, fmt.Errorf("%w: initial %dms, increment %dms", apperror.ErrInvalidClock, clockConfig.InitialMs, clockConfig.IncrementMs)
	}

	match := entity.NewMatch(uuid.NewString(), creatorID, clockConfig, that.clock.Now().UTC())
	if err := that.store.Create(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	that.logger.Info("match created", "match_id", match.ID, "creator", creatorID)

	return match, nil
}

func (that *Coordinator) JoinMatch(ctx context.Context, matchID, playerID string) (*entity.Match, error) {
	if playerID == "" {
		return nil, apperror.ErrUnauthenticated
	}

	match, _, err := that.store.Head(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}

	switch {
	case match.Opponent == playerID:
		return match, nil
	case match.Creator == playerID:
		return nil, apperror.ErrAlreadyJoined
	case match.IsTerminal():
		return nil, apperror.ErrMatchFinished
	case !match.IsWaiting():
		return nil, apperror.ErrMatchFull
	}

	match.Opponent = playerID
	match.Status = entity.StatusInProgress
	match.StartedAt = that.clock.Now().UTC()

	if err = that.store.Transition(ctx, match, entity.StatusWaiting); err != nil {
		if errors.Is(err, apperror.ErrStatusConflict) {
			return nil, apperror.ErrMatchFull
		}

		return nil, fmt.Errorf("failed to join match: %w", err)
	}

	that.publish(ctx, that.logger.With("method", "JoinMatch"), entity.MatchEvent(match))

	return match, nil
}

// Abandon - the leaving participant forfeits; a waiting match just closes.
func (that *Coordinator) Abandon(ctx context.Context, matchID, playerID string) (*entity.Match, error) {
	log := that.logger.With("method", "Abandon", "match_id", matchID)

	match, last, err := that.store.Head(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}

	seat, ok := match.SeatOf(playerID)
	if !ok {
		return nil, apperror.ErrNotParticipant
	}

	match = that.reconcile(ctx, log, match, last)
	if match.IsTerminal() {
		return nil, apperror.ErrMatchFinished
	}

	completion := match.CompletionFor(entity.StatusAbandoned, seat.Other(), entity.EndReasonAbandon, that.clock.Now().UTC())

	return that.finish(ctx, log, match, completion)
}

// CheckClock - ends the match if the running seat's time is up. Reports whether it did.
func (that *Coordinator) CheckClock(ctx context.Context, matchID string) (*entity.Match, bool, error) {
	log := that.logger.With("method", "CheckClock", "match_id", matchID)

	match, last, err := that.store.Head(ctx, matchID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load match head: %w", err)
	}

	match = that.reconcile(ctx, log, match, last)
	if !match.IsInProgress() {
		return match, false, nil
	}

	state, timed := entity.NewClockState(match, last)
	if !timed {
		return match, false, nil
	}

	now := that.clock.Now().UTC()

	seat, expired := state.Expired(now)
	if !expired {
		return match, false, nil
	}

	ended, err := that.finish(ctx, log, match, match.CompletionFor(entity.StatusCompleted, seat.Other(), entity.EndReasonTimeout, now))
	if errors.Is(err, apperror.ErrStatusConflict) {
		return match, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	log.Info("match ended on time", "flagged_seat", seat)

	return ended, true, nil
}

// finish - ends a match outside of a move commit, if its status is still the one we read.
func (that *Coordinator) finish(ctx context.Context, log *slog.Logger, match *entity.Match, completion entity.Completion) (*entity.Match, error) {
	ended := *match
	ended.Complete(completion)

	if err := that.store.Transition(ctx, &ended, match.Status); err != nil {
		return nil, fmt.Errorf("failed to end match: %w", err)
	}

	that.metrics.MatchEnded(completion.Reason)
	that.publish(ctx, log, entity.MatchEvent(&ended))

	return &ended, nil
}

func (that *Coordinator) snapshotOf(last *entity.Move) entity.Snapshot {
	if last == nil {
		return that.rules.Initial()
	}

	return last.Snapshot
}

// publish - delivery is best effort, subscribers resync from Head on gaps.
func (that *Coordinator) publish(ctx context.Context, log *slog.Logger, event entity.FeedEvent) {
	if err := that.feed.Publish(ctx, event); err != nil {
		log.Error("failed to publish feed event", "type", event.Type, "error", err)
	}
}
