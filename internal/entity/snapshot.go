package entity

import "slices"

const BoardCells = 64

// Scores - (score0, score1). Non-zero exactly from the move that ends the game.
type Scores [2]int

func (that Scores) IsTerminal() bool {
	return that != Scores{}
}

// Winner - the seat with the higher score.
func (that Scores) Winner() (Seat, bool) {
	switch {
	case that[0] > that[1]:
		return SeatCreator, true
	case that[1] > that[0]:
		return SeatOpponent, true
	default:
		return NoSeat, false
	}
}

// Snapshot - self-sufficient game state. Enough to validate and apply the next move.
type Snapshot struct {
	Board         [BoardCells]int8 `json:"board"`
	CurrentPlayer Seat             `json:"current_player"`
	ColourToMove  int8             `json:"colour_to_move"`
	Scores        Scores           `json:"scores"`
	LegalActions  []int            `json:"legal_actions"`
}

func (that Snapshot) Clone() Snapshot {
	clone := that
	clone.LegalActions = slices.Clone(that.LegalActions)
	if clone.LegalActions == nil {
		clone.LegalActions = []int{}
	}

	return clone
}

// IsLegal - LegalActions is kept sorted.
func (that Snapshot) IsLegal(action int) bool {
	_, found := slices.BinarySearch(that.LegalActions, action)
	return found
}

func (that Snapshot) IsTerminal() bool {
	return that.Scores.IsTerminal()
}
