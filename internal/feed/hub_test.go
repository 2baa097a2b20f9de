package feed

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/metrics"
)

func newTestHub(buffer int) *Hub {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return NewHub(logger, metrics.New(prometheus.NewRegistry()), buffer)
}

func TestHub(t *testing.T) {
	t.Run("Subscribers of a match receive its events only", func(t *testing.T) {
		// Given: one subscriber on m1 and one on m2
		hub := newTestHub(4)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		m1, err := hub.Subscribe(ctx, "m1")
		require.NoError(t, err)
		m2, err := hub.Subscribe(ctx, "m2")
		require.NoError(t, err)

		// When: a move of m1 is published
		move := &entity.Move{ID: "a", MatchID: "m1", Index: 0}
		require.NoError(t, hub.Publish(ctx, entity.MoveEvent(move)))

		// Then: only m1's subscriber gets it
		select {
		case event := <-m1:
			assert.Equal(t, entity.FeedMove, event.Type)
			assert.Equal(t, "a", event.Move.ID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}

		assert.Empty(t, m2)
	})

	t.Run("A slow subscriber never blocks the publisher", func(t *testing.T) {
		// Given: a subscriber that does not read
		hub := newTestHub(1)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events, err := hub.Subscribe(ctx, "m1")
		require.NoError(t, err)

		// When: more events than its buffer are published
		for i := 0; i < 3; i++ {
			require.NoError(t, hub.Publish(ctx, entity.MoveEvent(&entity.Move{MatchID: "m1", Index: i})))
		}

		// Then: the first is kept and the rest dropped
		event := <-events
		assert.Equal(t, 0, event.Move.Index)
		assert.Empty(t, events)
	})

	t.Run("Cancelling the subscription closes the channel", func(t *testing.T) {
		hub := newTestHub(1)
		ctx, cancel := context.WithCancel(context.Background())

		events, err := hub.Subscribe(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, 1, hub.Subscribers("m1"))

		cancel()

		_, open := <-events
		assert.False(t, open)
		assert.Equal(t, 0, hub.Subscribers("m1"))
	})
}
