package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Run("Wrapped specific errors resolve to their taxonomy kind", func(t *testing.T) {
		// Given: errors wrapped the way services and stores wrap them
		notParticipant := fmt.Errorf("failed to submit: %w", ErrNotParticipant)
		expired := fmt.Errorf("failed to submit: %w", ErrClockExpired)
		stale := fmt.Errorf("failed to commit move: %w", ErrStaleIndex)

		// When / Then: the kind is the one of the wrapped sentinel
		assert.Equal(t, KindAuth, KindOf(notParticipant))
		assert.Equal(t, KindMatchNotActive, KindOf(expired))
		assert.Equal(t, KindStaleIndex, KindOf(stale))
	})

	t.Run("Unknown errors are internal and nil has no kind", func(t *testing.T) {
		assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
		assert.Equal(t, Kind(""), KindOf(nil))
	})

	t.Run("FromKind round trips every taxonomy member", func(t *testing.T) {
		for _, kind := range []Kind{KindAuth, KindMatchNotActive, KindNotYourTurn, KindIllegalMove, KindMalformedAction, KindStaleIndex, KindPersistenceFailure} {
			assert.Equal(t, kind, KindOf(FromKind(kind)))
		}
	})

	t.Run("Only StaleIndex is recoverable", func(t *testing.T) {
		assert.True(t, IsRecoverable(fmt.Errorf("x: %w", ErrStaleIndex)))
		assert.False(t, IsRecoverable(ErrIllegalMove))
		assert.False(t, IsRecoverable(ErrPersistenceFailure))
	})
}
