package service

import (
	"fmt"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

type rulesEngine interface {
	ActionSize() int
	Apply(snapshot entity.Snapshot, action int) (entity.Snapshot, entity.Scores, error)
}

type MoveValidator interface {
	Validate(match *entity.Match, snapshot entity.Snapshot, seat entity.Seat, action *int) (entity.Snapshot, error)
}

type moveValidator struct {
	rules rulesEngine
}

func NewMoveValidator(rules rulesEngine) MoveValidator {
	return &moveValidator{
		rules: rules,
	}
}

// Validate - checks the submission against snapshot and computes the next snapshot.
// A nil action is absent; zero is a valid action code.
func (that *moveValidator) Validate(match *entity.Match, snapshot entity.Snapshot, seat entity.Seat, action *int) (entity.Snapshot, error) {
	if err := match.ConfirmInProgress(); err != nil {
		return snapshot, err
	}

	if seat != snapshot.CurrentPlayer {
		return snapshot, fmt.Errorf("%w: seat %d to move", apperror.ErrNotYourTurn, snapshot.CurrentPlayer)
	}

	if action == nil {
		return snapshot, fmt.Errorf("%w: action is missing", apperror.ErrMalformedAction)
	}

	if *action < 0 || *action >= that.rules.ActionSize() {
		return snapshot, fmt.Errorf("%w: action %d out of range [0,%d)", apperror.ErrMalformedAction, *action, that.rules.ActionSize())
	}

	if !snapshot.IsLegal(*action) {
		return snapshot, fmt.Errorf("%w: action %d", apperror.ErrIllegalMove, *action)
	}

	next, _, err := that.rules.Apply(snapshot, *action)
	if err != nil {
		return snapshot, fmt.Errorf("%w: %w", apperror.ErrIllegalMove, err)
	}

	return next, nil
}
