package apperror

import (
	"errors"
	"fmt"
)

// Submission taxonomy. Specific errors wrap one of these so callers can match either level.
var (
	ErrAuth               = errors.New("not authorized")
	ErrMatchNotActive     = errors.New("match is not active")
	ErrNotYourTurn        = errors.New("it's not your turn")
	ErrIllegalMove        = errors.New("illegal move")
	ErrMalformedAction    = errors.New("malformed action")
	ErrStaleIndex         = errors.New("stale move index")
	ErrPersistenceFailure = errors.New("persistence failure")
)

var (
	ErrUnauthenticated = fmt.Errorf("%w: caller is not authenticated", ErrAuth)
	ErrNotParticipant  = fmt.Errorf("%w: caller is not a participant", ErrAuth)
	ErrWriterRejected  = fmt.Errorf("%w: writer is not the coordinator", ErrAuth)

	ErrInvalidClock = fmt.Errorf("%w: invalid clock configuration", ErrMalformedAction)

	ErrMatchNotStarted = fmt.Errorf("%w: match is not started", ErrMatchNotActive)
	ErrMatchFinished   = fmt.Errorf("%w: match is already finished", ErrMatchNotActive)
	ErrClockExpired    = fmt.Errorf("%w: clock expired", ErrMatchNotActive)
	ErrStatusConflict  = fmt.Errorf("%w: match status changed concurrently", ErrMatchNotActive)

	ErrMatchNotFound = errors.New("match not found")
	ErrMoveNotFound  = errors.New("move not found")
	ErrMatchFull     = errors.New("match already has two players")
	ErrAlreadyJoined = errors.New("player already joined the match")
)

type Kind string

const (
	KindAuth               Kind = "AuthError"
	KindMatchNotActive     Kind = "MatchNotActive"
	KindNotYourTurn        Kind = "NotYourTurn"
	KindIllegalMove        Kind = "IllegalMove"
	KindMalformedAction    Kind = "MalformedAction"
	KindStaleIndex         Kind = "StaleIndex"
	KindPersistenceFailure Kind = "PersistenceFailure"
	KindNotFound           Kind = "NotFound"
	KindConflict           Kind = "Conflict"
	KindInternal           Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrAuth, KindAuth},
	{ErrMatchNotActive, KindMatchNotActive},
	{ErrNotYourTurn, KindNotYourTurn},
	{ErrIllegalMove, KindIllegalMove},
	{ErrMalformedAction, KindMalformedAction},
	{ErrStaleIndex, KindStaleIndex},
	{ErrPersistenceFailure, KindPersistenceFailure},
	{ErrMatchNotFound, KindNotFound},
	{ErrMoveNotFound, KindNotFound},
	{ErrMatchFull, KindConflict},
	{ErrAlreadyJoined, KindConflict},
}

// KindOf - classifies err. Unknown errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	return KindInternal
}

// FromKind - returns the taxonomy error for a kind received over the wire.
func FromKind(kind Kind) error {
	for _, k := range kinds {
		if k.kind == kind {
			return k.err
		}
	}

	return errors.New(string(kind))
}

// IsRecoverable - reports whether the caller may retry after re-reading state.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrStaleIndex)
}
