package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

const (
	pgUniqueViolation       = "23505"
	pgInsufficientPrivilege = "42501"
)

const (
	matchColumns = `m.id, m.creator, m.opponent, m.status, m.clock, m.winner, m.end_reason, m.created_at, m.started_at, m.ended_at`
	moveColumns  = `mv.id, mv.move_index, mv.player_id, mv.seat, mv.action, mv.snapshot, mv.clock, mv.committed_at`

	insertMatchQuery = `
INSERT INTO matches (id, creator, opponent, status, clock, winner, end_reason, created_at, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	transitionQuery = `
UPDATE matches
SET opponent = $2, status = $3, clock = $4, winner = $5, end_reason = $6, started_at = $7, ended_at = $8
WHERE id = $1 AND status = $9`

	headQuery = `
SELECT ` + matchColumns + `, ` + moveColumns + `
FROM matches m
LEFT JOIN LATERAL (
	SELECT * FROM moves WHERE match_id = m.id ORDER BY move_index DESC LIMIT 1
) mv ON TRUE
WHERE m.id = $1`

	// held until the commit, so a concurrent status transition waits for the move to land or be refused
	lockMatchQuery = `SELECT status FROM matches WHERE id = $1 FOR SHARE`

	insertMoveQuery = `
INSERT INTO moves (id, match_id, move_index, player_id, seat, action, snapshot, clock, committed_at)
SELECT $1::text, $2::text, $3::int, $4::text, $5::smallint, $6::int, $7::jsonb, $8::jsonb, $9::timestamptz
WHERE ($3::int = 0 OR EXISTS (SELECT 1 FROM moves WHERE match_id = $2::text AND move_index = $3::int - 1))`

	completeQuery = `
UPDATE matches SET status = $2, winner = $3, end_reason = $4, ended_at = $5
WHERE id = $1 AND status = 'in_progress'`

	moveQuery = `
SELECT ` + moveColumns + ` FROM moves mv WHERE mv.match_id = $1 AND mv.move_index = $2`

	movesQuery = `
SELECT ` + moveColumns + ` FROM moves mv WHERE mv.match_id = $1 ORDER BY mv.move_index`

	activeQuery = `SELECT id FROM matches WHERE status = 'in_progress'`
)

type pgMatch struct {
	pool *pgxpool.Pool
}

func NewPostgresMatchRepository(pool *pgxpool.Pool) MatchRepository {
	return &pgMatch{
		pool: pool,
	}
}

func (that *pgMatch) Create(ctx context.Context, match *entity.Match) error {
	clock, err := marshalNullable(match.Clock)
	if err != nil {
		return err
	}

	_, err = that.pool.Exec(ctx, insertMatchQuery,
		match.ID, match.Creator, match.Opponent, string(match.Status), clock, match.Winner,
		string(match.EndReason), match.CreatedAt, match.StartedAt, match.EndedAt)
	if isPgError(err, pgUniqueViolation) {
		return fmt.Errorf("%w: match %s already exists", apperror.ErrStatusConflict, match.ID)
	}

	if err != nil {
		return persistenceFailure("failed to create match", err)
	}

	return nil
}

func (that *pgMatch) Transition(ctx context.Context, match *entity.Match, from entity.MatchStatus) error {
	clock, err := marshalNullable(match.Clock)
	if err != nil {
		return err
	}

	tag, err := that.pool.Exec(ctx, transitionQuery,
		match.ID, match.Opponent, string(match.Status), clock, match.Winner,
		string(match.EndReason), match.StartedAt, match.EndedAt, string(from))
	if err != nil {
		return persistenceFailure("failed to transition match", err)
	}

	if tag.RowsAffected() == 0 {
		if _, _, err = that.Head(ctx, match.ID); err != nil {
			return err
		}

		return fmt.Errorf("%w: expected %s", apperror.ErrStatusConflict, from)
	}

	return nil
}

func (that *pgMatch) Head(ctx context.Context, matchID string) (*entity.Match, *entity.Move, error) {
	var (
		match pgMatchRow
		move  nullableMove
	)

	dest := append(matchDest(&match), move.dest()...)

	err := that.pool.QueryRow(ctx, headQuery, matchID).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, apperror.ErrMatchNotFound
	}

	if err != nil {
		return nil, nil, persistenceFailure("failed to read match head", err)
	}

	if err = match.decodeClock(); err != nil {
		return nil, nil, err
	}

	head, err := move.toMove(matchID)
	if err != nil {
		return nil, nil, err
	}

	return &match.Match, head, nil
}

func (that *pgMatch) Commit(ctx context.Context, writer string, move *entity.Move, completion *entity.Completion) error {
	snapshot, err := json.Marshal(move.Snapshot)
	if err != nil {
		return fmt.Errorf("could not marshal snapshot: %w", err)
	}

	clock, err := marshalNullable(move.Clock)
	if err != nil {
		return err
	}

	tx, err := that.pool.Begin(ctx)
	if err != nil {
		return persistenceFailure("failed to begin transaction", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err = tx.Exec(ctx, `SELECT set_config('matchsync.writer', $1, true)`, writer); err != nil {
		return persistenceFailure("failed to set writer", err)
	}

	var status string

	err = tx.QueryRow(ctx, lockMatchQuery, move.MatchID).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperror.ErrMatchNotFound
	case err != nil:
		return persistenceFailure("failed to lock match", err)
	case entity.MatchStatus(status) != entity.StatusInProgress:
		return apperror.ErrMatchFinished
	}

	tag, err := tx.Exec(ctx, insertMoveQuery,
		move.ID, move.MatchID, move.Index, move.PlayerID, int(move.Seat), move.Action, snapshot, clock, move.CommittedAt)

	switch {
	case isPgError(err, pgUniqueViolation):
		return fmt.Errorf("%w: index %d is taken", apperror.ErrStaleIndex, move.Index)
	case isPgError(err, pgInsufficientPrivilege):
		return apperror.ErrWriterRejected
	case err != nil:
		return persistenceFailure("failed to insert move", err)
	case tag.RowsAffected() == 0:
		return that.explainRejectedInsert(move)
	}

	if completion != nil {
		_, err = tx.Exec(ctx, completeQuery,
			move.MatchID, string(completion.Status), completion.Winner, string(completion.Reason), completion.EndedAt)
		if err != nil {
			return persistenceFailure("failed to complete match", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return persistenceFailure("failed to commit transaction", err)
	}

	return nil
}

// explainRejectedInsert - the conditional insert matched nothing: the previous index is missing.
func (that *pgMatch) explainRejectedInsert(move *entity.Move) error {
	return fmt.Errorf("%w: index %d is out of sequence", apperror.ErrStaleIndex, move.Index)
}

func (that *pgMatch) Move(ctx context.Context, matchID string, index int) (*entity.Move, error) {
	var move nullableMove

	err := that.pool.QueryRow(ctx, moveQuery, matchID, index).Scan(move.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrMoveNotFound
	}

	if err != nil {
		return nil, persistenceFailure("failed to get move", err)
	}

	return move.toMove(matchID)
}

func (that *pgMatch) Moves(ctx context.Context, matchID string) ([]*entity.Move, error) {
	rows, err := that.pool.Query(ctx, movesQuery, matchID)
	if err != nil {
		return nil, persistenceFailure("failed to get moves", err)
	}
	defer rows.Close()

	moves := make([]*entity.Move, 0)
	for rows.Next() {
		var move nullableMove
		if err = rows.Scan(move.dest()...); err != nil {
			return nil, persistenceFailure("failed to scan move", err)
		}

		decoded, err := move.toMove(matchID)
		if err != nil {
			return nil, err
		}

		moves = append(moves, decoded)
	}

	if err = rows.Err(); err != nil {
		return nil, persistenceFailure("failed to iterate moves", err)
	}

	return moves, nil
}

func (that *pgMatch) ActiveMatches(ctx context.Context) ([]string, error) {
	rows, err := that.pool.Query(ctx, activeQuery)
	if err != nil {
		return nil, persistenceFailure("failed to list active matches", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, persistenceFailure("failed to collect active matches", err)
	}

	return ids, nil
}

type pgMatchRow struct {
	entity.Match

	status    string
	endReason string
	clock     []byte
}

func matchDest(match *pgMatchRow) []any {
	return []any{
		&match.ID, &match.Creator, &match.Opponent, &match.status, &match.clock, &match.Winner,
		&match.endReason, &match.CreatedAt, &match.StartedAt, &match.EndedAt,
	}
}

func (that *pgMatchRow) decodeClock() error {
	that.Status = entity.MatchStatus(that.status)
	that.EndReason = entity.EndReason(that.endReason)

	if that.clock == nil {
		return nil
	}

	that.Clock = &entity.ClockConfig{}
	if err := json.Unmarshal(that.clock, that.Clock); err != nil {
		return fmt.Errorf("failed to unmarshal clock config: %w", err)
	}

	return nil
}

// nullableMove - move columns as they come out of a LEFT JOIN.
type nullableMove struct {
	id          *string
	index       *int
	playerID    *string
	seat        *int16
	action      *int
	snapshot    []byte
	clock       []byte
	committedAt *time.Time
}

func (that *nullableMove) dest() []any {
	return []any{
		&that.id, &that.index, &that.playerID, &that.seat, &that.action, &that.snapshot, &that.clock, &that.committedAt,
	}
}

func (that *nullableMove) toMove(matchID string) (*entity.Move, error) {
	if that.id == nil {
		return nil, nil //nolint: nilnil // no move committed yet
	}

	move := &entity.Move{
		ID:          *that.id,
		MatchID:     matchID,
		Index:       *that.index,
		PlayerID:    *that.playerID,
		Seat:        entity.Seat(*that.seat),
		Action:      *that.action,
		CommittedAt: *that.committedAt,
	}

	if err := json.Unmarshal(that.snapshot, &move.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	if that.clock != nil {
		move.Clock = &entity.ClockState{}
		if err := json.Unmarshal(that.clock, move.Clock); err != nil {
			return nil, fmt.Errorf("failed to unmarshal clock state: %w", err)
		}
	}

	return move, nil
}

func marshalNullable[T any](value *T) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("could not marshal %T: %w", value, err)
	}

	return raw, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
