package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

type activeMatches interface {
	ActiveMatches(ctx context.Context) ([]string, error)
}

type clockChecker interface {
	CheckClock(ctx context.Context, matchID string) (*entity.Match, bool, error)
}

// Monitor - ends timed matches whose running clock reached zero, on its own cadence.
type Monitor struct {
	logger *slog.Logger

	matches  activeMatches
	checker  clockChecker
	clock    clock.Clock
	interval time.Duration
}

func NewMonitor(logger *slog.Logger, matches activeMatches, checker clockChecker, clk clock.Clock, interval time.Duration) *Monitor {
	return &Monitor{
		logger:   logger.With("component", "clock-monitor"),
		matches:  matches,
		checker:  checker,
		clock:    clk,
		interval: interval,
	}
}

func (that *Monitor) Run(ctx context.Context) error {
	ticker := that.clock.Ticker(that.interval)
	defer ticker.Stop()

	that.logger.Info("clock monitor started", "interval", that.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			that.Tick(ctx)
		}
	}
}

// Tick - one pass over the active matches. Returns how many were ended.
func (that *Monitor) Tick(ctx context.Context) int {
	log := that.logger.With("method", "Tick")

	ids, err := that.matches.ActiveMatches(ctx)
	if err != nil {
		log.Error("failed to list active matches", "error", err)
		return 0
	}

	ended := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		_, timedOut, err := that.checker.CheckClock(ctx, id)
		if err != nil {
			log.Error("failed to check clock", "match_id", id, "error", err)
			continue
		}

		if timedOut {
			ended++
		}
	}

	return ended
}
