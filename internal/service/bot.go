package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/syncclient"
)

var (
	ErrNoAvailableMoves = errors.New("no available moves")
	ErrBotNotSeated     = errors.New("bot is not a participant")
)

type botClient interface {
	State() syncclient.State
	Confirmed() entity.Snapshot
	Match() *entity.Match
	Act(ctx context.Context, action *int) (*entity.Move, error)
}

type BotService interface {
	ChooseAction(snapshot entity.Snapshot) (int, error)
	Play(ctx context.Context, client botClient, playerID string, interval time.Duration) (*entity.Match, error)
}

type botService struct {
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBotService(logger *slog.Logger, seed int64) BotService {
	return &botService{
		logger: logger.With("component", "bot"),
		rng:    rand.New(rand.NewSource(seed)), //nolint: gosec // it's ok
	}
}

// ChooseAction - a uniformly random legal action.
func (that *botService) ChooseAction(snapshot entity.Snapshot) (int, error) {
	if snapshot.IsTerminal() || len(snapshot.LegalActions) == 0 {
		return 0, ErrNoAvailableMoves
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	return snapshot.LegalActions[that.rng.Intn(len(snapshot.LegalActions))], nil
}

// Play - moves whenever it is the bot's turn until the match ends. Returns the final match.
func (that *botService) Play(ctx context.Context, client botClient, playerID string, interval time.Duration) (*entity.Match, error) {
	log := that.logger.With("method", "Play", "player_id", playerID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("bot stopped: %w", ctx.Err())
		case <-ticker.C:
		}

		match := client.Match()
		if match == nil {
			continue
		}

		if match.IsTerminal() {
			return match, nil
		}

		if client.State() != syncclient.Synced {
			continue
		}

		snapshot := client.Confirmed()
		if snapshot.IsTerminal() {
			return match, nil
		}

		seat, ok := match.SeatOf(playerID)
		if !ok {
			if match.IsWaiting() {
				continue
			}

			return nil, ErrBotNotSeated
		}

		if !match.IsInProgress() || snapshot.CurrentPlayer != seat {
			continue
		}

		action, err := that.ChooseAction(snapshot)
		if err != nil {
			continue
		}

		move, err := client.Act(ctx, &action)
		switch {
		case err == nil:
			log.Debug("bot moved", "move_index", move.Index, "action", action)
		case apperror.IsRecoverable(err), errors.Is(err, apperror.ErrNotYourTurn), errors.Is(err, apperror.ErrMatchNotActive):
			log.Info("bot move rejected", "kind", apperror.KindOf(err), "error", err)
		default:
			return nil, fmt.Errorf("bot failed to move: %w", err)
		}
	}
}
