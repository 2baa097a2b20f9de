package kamisado

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

const (
	BoardSize   = 8
	Colours     = 8
	Directions  = 3
	MaxDistance = 7

	// ActionSize - action codes are colour*21 + direction*7 + distance-1.
	ActionSize = Colours * Directions * MaxDistance

	Empty      int8 = -1
	FreeColour int8 = -1
)

var (
	ErrActionOutOfRange = errors.New("action code out of range")
	ErrIllegalAction    = errors.New("action is not legal in this position")
	ErrGameOver         = errors.New("game is over")
)

var (
	colourNames    = [Colours]string{"brown", "green", "red", "yellow", "pink", "purple", "blue", "orange"}
	directionNames = [Directions]string{"left", "up", "right"}

	squareColours = [BoardSize][BoardSize]int8{
		{7, 6, 5, 4, 3, 2, 1, 0},
		{2, 7, 4, 1, 6, 3, 0, 5},
		{1, 4, 7, 2, 5, 0, 3, 6},
		{4, 5, 6, 7, 0, 1, 2, 3},
		{3, 2, 1, 0, 7, 6, 5, 4},
		{6, 3, 0, 5, 2, 7, 4, 1},
		{5, 0, 3, 6, 1, 4, 7, 2},
		{0, 1, 2, 3, 4, 5, 6, 7},
	}
)

// Rules - the Kamisado rules engine. Stateless, safe for concurrent use.
type Rules struct{}

func New() *Rules {
	return &Rules{}
}

func (that *Rules) ActionSize() int {
	return ActionSize
}

// Initial - seat 0 on row 7, seat 1 on row 0, every tower on its own colour.
func (that *Rules) Initial() entity.Snapshot {
	var board [entity.BoardCells]int8
	for i := range board {
		board[i] = Empty
	}

	for col := 0; col < BoardSize; col++ {
		board[cell(BoardSize-1, col)] = Token(entity.SeatCreator, squareColours[BoardSize-1][col])
		board[cell(0, col)] = Token(entity.SeatOpponent, squareColours[0][col])
	}

	return NewPosition(board, entity.SeatCreator, FreeColour)
}

func (that *Rules) LegalActions(snapshot entity.Snapshot) []int {
	if snapshot.Scores.IsTerminal() {
		return []int{}
	}

	return legalActions(&snapshot.Board, snapshot.CurrentPlayer, snapshot.ColourToMove)
}

// Apply - moves the tower named by action and hands the turn over.
// A player whose forced tower is blocked passes; if that leaves the mover blocked too, the mover loses.
func (that *Rules) Apply(snapshot entity.Snapshot, action int) (entity.Snapshot, entity.Scores, error) {
	if snapshot.Scores.IsTerminal() {
		return snapshot, snapshot.Scores, ErrGameOver
	}

	if action < 0 || action >= ActionSize {
		return snapshot, snapshot.Scores, fmt.Errorf("%w: %d", ErrActionOutOfRange, action)
	}

	if !snapshot.IsLegal(action) {
		return snapshot, snapshot.Scores, fmt.Errorf("%w: %s", ErrIllegalAction, ActionString(action))
	}

	colour, direction, distance := DecodeAction(action)
	mover := snapshot.CurrentPlayer
	step := forward(mover)

	from := find(&snapshot.Board, Token(mover, int8(colour)))
	if from < 0 {
		return snapshot, snapshot.Scores, fmt.Errorf("%w: no %s tower", ErrIllegalAction, colourNames[colour])
	}

	row, col := from/BoardSize+step*distance, from%BoardSize+step*(direction-1)*distance
	if row < 0 || row >= BoardSize || col < 0 || col >= BoardSize {
		return snapshot, snapshot.Scores, fmt.Errorf("%w: %s leaves the board", ErrIllegalAction, ActionString(action))
	}

	to := cell(row, col)

	next := snapshot.Clone()
	next.Board[to] = next.Board[from]
	next.Board[from] = Empty

	if reachedHomeRow(mover, row) {
		next.Scores[mover], next.Scores[mover.Other()] = 1, -1
		return finish(next, mover.Other(), squareColours[row][col]), next.Scores, nil
	}

	opponent := mover.Other()
	colourNext := squareColours[row][col]

	legal := legalActions(&next.Board, opponent, colourNext)
	if len(legal) > 0 {
		next.CurrentPlayer, next.ColourToMove, next.LegalActions = opponent, colourNext, legal
		return next, next.Scores, nil
	}

	// opponent passes, the mover plays the colour under the blocked tower
	blocked := find(&next.Board, Token(opponent, colourNext))
	colourNext = squareColours[blocked/BoardSize][blocked%BoardSize]

	legal = legalActions(&next.Board, mover, colourNext)
	if len(legal) > 0 {
		next.CurrentPlayer, next.ColourToMove, next.LegalActions = mover, colourNext, legal
		return next, next.Scores, nil
	}

	next.Scores[mover], next.Scores[opponent] = -1, 1

	return finish(next, opponent, colourNext), next.Scores, nil
}

// NewPosition - a snapshot for an arbitrary board with its legal actions filled in.
func NewPosition(board [entity.BoardCells]int8, toMove entity.Seat, colour int8) entity.Snapshot {
	return entity.Snapshot{
		Board:         board,
		CurrentPlayer: toMove,
		ColourToMove:  colour,
		LegalActions:  legalActions(&board, toMove, colour),
	}
}

func Token(seat entity.Seat, colour int8) int8 {
	return int8(seat)*10 + colour
}

func EncodeAction(colour, direction, distance int) int {
	return colour*Directions*MaxDistance + direction*MaxDistance + distance - 1
}

func DecodeAction(action int) (colour, direction, distance int) {
	return action / (Directions * MaxDistance), action % (Directions * MaxDistance) / MaxDistance, action%MaxDistance + 1
}

func ActionString(action int) string {
	if action < 0 || action >= ActionSize {
		return fmt.Sprintf("invalid(%d)", action)
	}

	colour, direction, distance := DecodeAction(action)

	return fmt.Sprintf("%s %s %d", colourNames[colour], directionNames[direction], distance)
}

func legalActions(board *[entity.BoardCells]int8, seat entity.Seat, colour int8) []int {
	actions := make([]int, 0, 16)
	step := forward(seat)

	for c := int8(0); c < Colours; c++ {
		if colour != FreeColour && c != colour {
			continue
		}

		from := find(board, Token(seat, c))
		if from < 0 {
			continue
		}

		for direction := 0; direction < Directions; direction++ {
			for distance := 1; distance <= MaxDistance; distance++ {
				row := from/BoardSize + step*distance
				col := from%BoardSize + step*(direction-1)*distance
				if row < 0 || row >= BoardSize || col < 0 || col >= BoardSize {
					break
				}

				// towers never jump
				if board[cell(row, col)] != Empty {
					break
				}

				actions = append(actions, EncodeAction(int(c), direction, distance))
			}
		}
	}

	return actions
}

func finish(snapshot entity.Snapshot, toMove entity.Seat, colour int8) entity.Snapshot {
	snapshot.CurrentPlayer = toMove
	snapshot.ColourToMove = colour
	snapshot.LegalActions = []int{}

	return snapshot
}

func reachedHomeRow(seat entity.Seat, row int) bool {
	if seat == entity.SeatCreator {
		return row == 0
	}

	return row == BoardSize-1
}

func forward(seat entity.Seat) int {
	return 2*int(seat) - 1
}

func find(board *[entity.BoardCells]int8, token int8) int {
	for i, value := range board {
		if value == token {
			return i
		}
	}

	return -1
}

func cell(row, col int) int {
	return row*BoardSize + col
}
