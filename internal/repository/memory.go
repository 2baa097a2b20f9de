package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

type memMatch struct {
	mu sync.RWMutex

	writer  string
	matches map[string][]byte
	moves   map[string][][]byte
}

// NewMemoryMatchRepository - process-local store for development and tests.
// Values are kept serialized so callers never share memory with the store.
func NewMemoryMatchRepository(writer string) MatchRepository {
	return &memMatch{
		writer:  writer,
		matches: make(map[string][]byte),
		moves:   make(map[string][][]byte),
	}
}

func (that *memMatch) Create(_ context.Context, match *entity.Match) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.matches[match.ID]; ok {
		return fmt.Errorf("%w: match %s already exists", apperror.ErrStatusConflict, match.ID)
	}

	return that.putMatch(match)
}

func (that *memMatch) Transition(_ context.Context, match *entity.Match, from entity.MatchStatus) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	stored, err := that.getMatch(match.ID)
	if err != nil {
		return err
	}

	if stored.Status != from {
		return fmt.Errorf("%w: expected %s", apperror.ErrStatusConflict, from)
	}

	return that.putMatch(match)
}

func (that *memMatch) Head(_ context.Context, matchID string) (*entity.Match, *entity.Move, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	match, err := that.getMatch(matchID)
	if err != nil {
		return nil, nil, err
	}

	moves := that.moves[matchID]
	if len(moves) == 0 {
		return match, nil, nil
	}

	move, err := decodeMove(moves[len(moves)-1])
	if err != nil {
		return nil, nil, err
	}

	return match, move, nil
}

func (that *memMatch) Commit(_ context.Context, writer string, move *entity.Move, completion *entity.Completion) error {
	if writer != that.writer {
		return apperror.ErrWriterRejected
	}

	moveJSON, err := json.Marshal(move)
	if err != nil {
		return fmt.Errorf("could not marshal move: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	match, err := that.getMatch(move.MatchID)
	if err != nil {
		return err
	}

	if !match.IsInProgress() {
		return apperror.ErrMatchFinished
	}

	// the slice position is the move index, so append is both the uniqueness and the contiguity check
	if move.Index != len(that.moves[move.MatchID]) {
		return fmt.Errorf("%w: index %d is taken or out of sequence", apperror.ErrStaleIndex, move.Index)
	}

	that.moves[move.MatchID] = append(that.moves[move.MatchID], moveJSON)

	if completion != nil {
		match.Complete(*completion)
		return that.putMatch(match)
	}

	return nil
}

func (that *memMatch) Move(_ context.Context, matchID string, index int) (*entity.Move, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	moves := that.moves[matchID]
	if index < 0 || index >= len(moves) {
		return nil, apperror.ErrMoveNotFound
	}

	return decodeMove(moves[index])
}

func (that *memMatch) Moves(_ context.Context, matchID string) ([]*entity.Move, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	moves := make([]*entity.Move, 0, len(that.moves[matchID]))
	for _, raw := range that.moves[matchID] {
		move, err := decodeMove(raw)
		if err != nil {
			return nil, err
		}

		moves = append(moves, move)
	}

	return moves, nil
}

func (that *memMatch) ActiveMatches(_ context.Context) ([]string, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	ids := make([]string, 0)
	for id := range that.matches {
		match, err := that.getMatch(id)
		if err != nil {
			return nil, err
		}

		if match.IsInProgress() {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func (that *memMatch) getMatch(id string) (*entity.Match, error) {
	raw, ok := that.matches[id]
	if !ok {
		return nil, apperror.ErrMatchNotFound
	}

	var match entity.Match
	if err := json.Unmarshal(raw, &match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}

	return &match, nil
}

func (that *memMatch) putMatch(match *entity.Match) error {
	raw, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("could not marshal match: %w", err)
	}

	that.matches[match.ID] = raw

	return nil
}

func decodeMove(raw []byte) (*entity.Move, error) {
	var move entity.Move
	if err := json.Unmarshal(raw, &move); err != nil {
		return nil, fmt.Errorf("failed to unmarshal move: %w", err)
	}

	return &move, nil
}
