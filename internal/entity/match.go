package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
)

type MatchStatus string

const (
	StatusWaiting    MatchStatus = "waiting"
	StatusInProgress MatchStatus = "in_progress"
	StatusCompleted  MatchStatus = "completed"
	StatusAbandoned  MatchStatus = "abandoned"
)

type EndReason string

const (
	EndReasonMove    EndReason = "move"
	EndReasonTimeout EndReason = "timeout"
	EndReasonAbandon EndReason = "abandon"
)

// Seat - 0 is the creator, 1 is the opponent.
type Seat int

const (
	SeatCreator  Seat = 0
	SeatOpponent Seat = 1
	NoSeat       Seat = -1
)

func (that Seat) Other() Seat {
	return 1 - that
}

func (that Seat) Valid() bool {
	return that == SeatCreator || that == SeatOpponent
}

type ClockConfig struct {
	InitialMs   int64 `json:"initial_ms"`
	IncrementMs int64 `json:"increment_ms"`
}

type Match struct {
	ID        string       `json:"id"`
	Creator   string       `json:"creator"`
	Opponent  string       `json:"opponent"`
	Status    MatchStatus  `json:"status"`
	Clock     *ClockConfig `json:"clock,omitempty"`
	Winner    *string      `json:"winner"`
	EndReason EndReason    `json:"end_reason,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
}

// Completion - the terminal transition of a match, written together with the move that caused it.
type Completion struct {
	Status  MatchStatus `json:"status"`
	Winner  *string     `json:"winner"`
	Reason  EndReason   `json:"reason"`
	EndedAt time.Time   `json:"ended_at"`
}

func NewMatch(id, creator string, clock *ClockConfig, now time.Time) *Match {
	return &Match{
		ID:        id,
		Creator:   creator,
		Status:    StatusWaiting,
		Clock:     clock,
		CreatedAt: now,
	}
}

func (that *Match) SeatOf(playerID string) (Seat, bool) {
	switch {
	case playerID == "":
		return NoSeat, false
	case playerID == that.Creator:
		return SeatCreator, true
	case playerID == that.Opponent:
		return SeatOpponent, true
	default:
		return NoSeat, false
	}
}

func (that *Match) PlayerAt(seat Seat) string {
	switch seat {
	case SeatCreator:
		return that.Creator
	case SeatOpponent:
		return that.Opponent
	default:
		return ""
	}
}

func (that *Match) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Match) IsInProgress() bool {
	return that.Status == StatusInProgress
}

func (that *Match) IsTerminal() bool {
	return that.Status == StatusCompleted || that.Status == StatusAbandoned
}

func (that *Match) ConfirmInProgress() error {
	switch {
	case that.IsWaiting():
		return apperror.ErrMatchNotStarted
	case that.IsTerminal():
		return apperror.ErrMatchFinished
	case that.IsInProgress():
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", apperror.ErrMatchNotActive, that.Status)
	}
}

// CompletionFor - builds the transition that ends the match with winner declared.
func (that *Match) CompletionFor(status MatchStatus, winner Seat, reason EndReason, now time.Time) Completion {
	completion := Completion{
		Status:  status,
		Reason:  reason,
		EndedAt: now,
	}

	if player := that.PlayerAt(winner); player != "" {
		completion.Winner = &player
	}

	return completion
}

func (that *Match) Complete(completion Completion) {
	that.Status = completion.Status
	that.Winner = completion.Winner
	that.EndReason = completion.Reason
	that.EndedAt = completion.EndedAt
}
