package usecase_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/usecase"
)

func TestMonitor(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	timed := &entity.ClockConfig{InitialMs: 5_000}

	t.Run("A tick ends every flagged match and nothing else", func(t *testing.T) {
		f := newFixture(t, nil)
		monitor := usecase.NewMonitor(logger, f.store, f.coordinator, f.clock, time.Second)

		// Given: one timed and one untimed match, nobody moves
		flagged := f.startMatch(t, timed)
		untimed := f.startMatch(t, nil)

		// When: the clock passes five seconds and the monitor ticks
		f.clock.Add(5 * time.Second)
		ended := monitor.Tick(f.ctx)

		// Then: only the timed match ended, with the opponent as winner
		assert.Equal(t, 1, ended)

		match, err := f.coordinator.GetMatch(f.ctx, flagged.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, match.Status)
		assert.Equal(t, "bob", *match.Winner)

		match, err = f.coordinator.GetMatch(f.ctx, untimed.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusInProgress, match.Status)
	})

	t.Run("Run ends a match within one tick of its flag falling", func(t *testing.T) {
		f := newFixture(t, nil)
		monitor := usecase.NewMonitor(logger, f.store, f.coordinator, f.clock, time.Second)
		match := f.startMatch(t, timed)

		ctx, cancel := context.WithCancel(f.ctx)
		done := make(chan error, 1)
		go func() {
			done <- monitor.Run(ctx)
		}()

		// When: time advances past the flag one tick at a time
		require.Eventually(t, func() bool {
			f.clock.Add(time.Second)

			current, err := f.coordinator.GetMatch(f.ctx, match.ID)
			return err == nil && current.Status == entity.StatusCompleted
		}, 5*time.Second, 10*time.Millisecond)

		// Then: the monitor stops with its context
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("monitor did not stop")
		}
	})
}
