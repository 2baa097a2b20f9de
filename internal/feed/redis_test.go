package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/testing/suite"
)

func TestRedisFeed(t *testing.T) {
	t.Run("Events published on one feed reach subscribers of another", func(t *testing.T) {
		ctx, st := suite.New(t)

		// Given: two feeds sharing one Redis, as two server instances would
		publisher := NewRedisFeed(st.Logger, st.Storage, 8)
		subscriber := NewRedisFeed(st.Logger, st.Storage, 8)

		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		events, err := subscriber.Subscribe(subCtx, "m1")
		require.NoError(t, err)

		// When: a move and a match event are published
		move := &entity.Move{ID: "move-0", MatchID: "m1", Index: 0, Action: 0}
		require.NoError(t, publisher.Publish(ctx, entity.MoveEvent(move)))
		require.NoError(t, publisher.Publish(ctx, entity.MatchEvent(&entity.Match{ID: "m1", Status: entity.StatusCompleted})))

		// Then: both arrive intact
		received := make([]entity.FeedEvent, 0, 2)
		for len(received) < 2 {
			select {
			case event := <-events:
				received = append(received, event)
			case <-time.After(5 * time.Second):
				t.Fatal("events not delivered")
			}
		}

		assert.Equal(t, "move-0", received[0].Move.ID)
		assert.Equal(t, entity.StatusCompleted, received[1].Match.Status)

		// Then: the channel closes with the subscription
		cancel()
		assert.Eventually(t, func() bool {
			_, open := <-events
			return !open
		}, 5*time.Second, 10*time.Millisecond)
	})
}
