package syncclient

import (
	"context"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/usecase"
)

type submitter interface {
	Head(ctx context.Context, matchID string) (*entity.Head, error)
	Submit(ctx context.Context, submission usecase.Submission) (*entity.Move, error)
}

// LocalCoordinator - an in-process coordinator acting for one player, for bots running next to the server.
type LocalCoordinator struct {
	coordinator submitter
	playerID    string
}

func NewLocalCoordinator(coordinator submitter, playerID string) *LocalCoordinator {
	return &LocalCoordinator{
		coordinator: coordinator,
		playerID:    playerID,
	}
}

func (that *LocalCoordinator) Head(ctx context.Context, matchID string) (*entity.Head, error) {
	return that.coordinator.Head(ctx, matchID)
}

func (that *LocalCoordinator) Submit(ctx context.Context, matchID string, expectedIndex int, action *int) (*entity.Move, error) {
	return that.coordinator.Submit(ctx, usecase.Submission{
		MatchID:       matchID,
		CallerID:      that.playerID,
		ExpectedIndex: expectedIndex,
		Action:        action,
	})
}
