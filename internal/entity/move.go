package entity

import "time"

// NoMoves - index reported for a match without committed moves.
const NoMoves = -1

type Move struct {
	ID          string      `json:"id"`
	MatchID     string      `json:"match_id"`
	Index       int         `json:"move_index"`
	PlayerID    string      `json:"player_id"`
	Seat        Seat        `json:"seat"`
	Action      int         `json:"action"`
	Snapshot    Snapshot    `json:"snapshot"`
	Clock       *ClockState `json:"clock,omitempty"`
	CommittedAt time.Time   `json:"committed_at"`
}

// Head - the latest authoritative state of a match.
type Head struct {
	Match    *Match   `json:"match"`
	Index    int      `json:"move_index"`
	Snapshot Snapshot `json:"snapshot"`
	Move     *Move    `json:"move,omitempty"`
}

type FeedEventType string

const (
	FeedMove  FeedEventType = "move"
	FeedMatch FeedEventType = "match"
)

// FeedEvent - what subscribers of a match receive.
type FeedEvent struct {
	Type    FeedEventType `json:"type"`
	MatchID string        `json:"match_id"`
	Move    *Move         `json:"move,omitempty"`
	Match   *Match        `json:"match,omitempty"`
}

func MoveEvent(move *Move) FeedEvent {
	return FeedEvent{Type: FeedMove, MatchID: move.MatchID, Move: move}
}

func MatchEvent(match *Match) FeedEvent {
	return FeedEvent{Type: FeedMatch, MatchID: match.ID, Match: match}
}
