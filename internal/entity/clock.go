package entity

import (
	"time"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
)

// ClockState - remaining time per seat as of TurnStartedAt. Only the running seat's clock ticks.
type ClockState struct {
	RemainingMs   [2]int64  `json:"remaining_ms"`
	Running       Seat      `json:"running"`
	TurnStartedAt time.Time `json:"turn_started_at"`
}

// NewClockState - derives the clock from the match and its latest move, if the match is timed.
func NewClockState(match *Match, last *Move) (ClockState, bool) {
	if match.Clock == nil || match.StartedAt.IsZero() {
		return ClockState{}, false
	}

	if last == nil || last.Clock == nil {
		return ClockState{
			RemainingMs:   [2]int64{match.Clock.InitialMs, match.Clock.InitialMs},
			Running:       SeatCreator,
			TurnStartedAt: match.StartedAt,
		}, true
	}

	return *last.Clock, true
}

func (that ClockState) Remaining(now time.Time) [2]time.Duration {
	remaining := [2]time.Duration{
		time.Duration(that.RemainingMs[0]) * time.Millisecond,
		time.Duration(that.RemainingMs[1]) * time.Millisecond,
	}

	if that.Running.Valid() {
		left := remaining[that.Running] - now.Sub(that.TurnStartedAt)
		remaining[that.Running] = max(left, 0)
	}

	return remaining
}

// Expired - pure function of the state and now.
func (that ClockState) Expired(now time.Time) (Seat, bool) {
	if !that.Running.Valid() {
		return NoSeat, false
	}

	if that.Remaining(now)[that.Running] <= 0 {
		return that.Running, true
	}

	return NoSeat, false
}

// AfterMove - charges the mover for the elapsed turn and starts next's clock.
func (that ClockState) AfterMove(mover, next Seat, increment time.Duration, now time.Time) (ClockState, error) {
	if seat, expired := that.Expired(now); expired && seat == mover {
		return that, apperror.ErrClockExpired
	}

	remaining := that.Remaining(now)
	remaining[mover] += increment

	return ClockState{
		RemainingMs:   [2]int64{remaining[0].Milliseconds(), remaining[1].Milliseconds()},
		Running:       next,
		TurnStartedAt: now,
	}, nil
}
