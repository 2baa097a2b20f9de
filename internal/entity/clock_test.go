package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
)

func timedMatch(start time.Time) *Match {
	match := NewMatch("m1", "alice", &ClockConfig{InitialMs: 10_000, IncrementMs: 2_000}, start)
	match.Opponent = "bob"
	match.Status = StatusInProgress
	match.StartedAt = start

	return match
}

func TestNewClockState(t *testing.T) {
	t.Run("Untimed matches have no clock", func(t *testing.T) {
		match := NewMatch("m1", "alice", nil, time.Now())

		_, ok := NewClockState(match, nil)

		assert.False(t, ok)
	})

	t.Run("Without moves the creator's clock runs from the start", func(t *testing.T) {
		// Given: a timed match that just started
		start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		match := timedMatch(start)

		// When: the clock is derived
		state, ok := NewClockState(match, nil)

		// Then: both seats have the initial time and seat 0 is running
		require.True(t, ok)
		assert.Equal(t, [2]int64{10_000, 10_000}, state.RemainingMs)
		assert.Equal(t, SeatCreator, state.Running)
		assert.Equal(t, start, state.TurnStartedAt)
	})
}

func TestClockState_Expired(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	state, _ := NewClockState(timedMatch(start), nil)

	t.Run("Running seat has time left", func(t *testing.T) {
		_, expired := state.Expired(start.Add(9 * time.Second))
		assert.False(t, expired)
		assert.Equal(t, time.Second, state.Remaining(start.Add(9 * time.Second))[SeatCreator])
	})

	t.Run("Running seat reaches zero", func(t *testing.T) {
		seat, expired := state.Expired(start.Add(10 * time.Second))
		assert.True(t, expired)
		assert.Equal(t, SeatCreator, seat)
		assert.Equal(t, time.Duration(0), state.Remaining(start.Add(time.Minute))[SeatCreator])
	})

	t.Run("Waiting seat never expires", func(t *testing.T) {
		remaining := state.Remaining(start.Add(time.Hour))
		assert.Equal(t, 10*time.Second, remaining[SeatOpponent])
	})
}

func TestClockState_AfterMove(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	state, _ := NewClockState(timedMatch(start), nil)

	t.Run("Mover is charged the elapsed time plus increment", func(t *testing.T) {
		// When: seat 0 moves after three seconds
		next, err := state.AfterMove(SeatCreator, SeatOpponent, 2*time.Second, start.Add(3*time.Second))

		// Then: 10s - 3s + 2s is left and seat 1 is running
		require.NoError(t, err)
		assert.Equal(t, [2]int64{9_000, 10_000}, next.RemainingMs)
		assert.Equal(t, SeatOpponent, next.Running)
		assert.Equal(t, start.Add(3*time.Second), next.TurnStartedAt)
	})

	t.Run("A move after the flag fell is rejected", func(t *testing.T) {
		_, err := state.AfterMove(SeatCreator, SeatOpponent, 2*time.Second, start.Add(11*time.Second))

		require.ErrorIs(t, err, apperror.ErrClockExpired)
		require.ErrorIs(t, err, apperror.ErrMatchNotActive)
	})
}
