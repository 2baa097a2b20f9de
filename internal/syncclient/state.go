package syncclient

import "github.com/rocketscienceinc/kamisado-backend/internal/apperror"

type State int

const (
	Uninitialized State = iota
	Syncing
	Synced
	AwaitingConfirmation
)

func (that State) String() string {
	switch that {
	case Uninitialized:
		return "uninitialized"
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// PendingMove - a submission sent to the coordinator and not yet seen committed.
type PendingMove struct {
	ExpectedIndex int
	Action        int
}

// ClientSyncState - how far the client has followed the authoritative history.
type ClientSyncState struct {
	MatchID     string
	LastApplied int
	Pending     *PendingMove
}

// Rejection - a pending move that will never be committed.
type Rejection struct {
	Move PendingMove
	Kind apperror.Kind
	Err  error
}
