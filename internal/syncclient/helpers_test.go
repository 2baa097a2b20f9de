package syncclient_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/feed"
	"github.com/rocketscienceinc/kamisado-backend/internal/kamisado"
	"github.com/rocketscienceinc/kamisado-backend/internal/metrics"
	"github.com/rocketscienceinc/kamisado-backend/internal/repository"
	"github.com/rocketscienceinc/kamisado-backend/internal/service"
	"github.com/rocketscienceinc/kamisado-backend/internal/syncclient"
	"github.com/rocketscienceinc/kamisado-backend/internal/usecase"
)

const (
	writer    = "syncclient-test"
	gapWindow = 2 * time.Second
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// countingRules - counts every Apply so tests can tell a fetch from a replay.
type countingRules struct {
	*kamisado.Rules
	applied atomic.Int64
}

func (that *countingRules) Apply(snapshot entity.Snapshot, action int) (entity.Snapshot, entity.Scores, error) {
	that.applied.Add(1)
	return that.Rules.Apply(snapshot, action)
}

func readySession(t *testing.T, rules syncclient.Rules) *syncclient.Session {
	t.Helper()

	session := syncclient.NewSession(logger, func(context.Context) (syncclient.Rules, error) {
		return rules, nil
	})
	session.Start(context.Background())

	select {
	case <-session.Engine().Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("engine never became ready")
	}

	return session
}

type server struct {
	coordinator *usecase.Coordinator
	hub         *feed.Hub
	rules       *kamisado.Rules
}

func newServer(t *testing.T) *server {
	t.Helper()

	recorder := metrics.New(prometheus.NewRegistry())
	hub := feed.NewHub(logger, recorder, 64)
	rules := kamisado.New()

	coordinator := usecase.NewCoordinator(logger, repository.NewMemoryMatchRepository(writer),
		service.NewMoveValidator(rules), rules, hub, recorder, clock.New(),
		usecase.CoordinatorConfig{WriterToken: writer, CommitAttempts: 1})

	return &server{coordinator: coordinator, hub: hub, rules: rules}
}

func (that *server) startMatch(t *testing.T) *entity.Match {
	t.Helper()

	ctx := context.Background()

	match, err := that.coordinator.CreateMatch(ctx, "alice", nil)
	require.NoError(t, err)

	match, err = that.coordinator.JoinMatch(ctx, match.ID, "bob")
	require.NoError(t, err)

	return match
}

// play - commits n moves, each the first legal action of whoever is to move.
func (that *server) play(t *testing.T, matchID string, n int) []*entity.Move {
	t.Helper()

	ctx := context.Background()
	moves := make([]*entity.Move, 0, n)

	for range n {
		head, err := that.coordinator.Head(ctx, matchID)
		require.NoError(t, err)
		require.NotEmpty(t, head.Snapshot.LegalActions)

		action := head.Snapshot.LegalActions[0]
		move, err := that.coordinator.Submit(ctx, usecase.Submission{
			MatchID:       matchID,
			CallerID:      head.Match.PlayerAt(head.Snapshot.CurrentPlayer),
			ExpectedIndex: head.Index + 1,
			Action:        &action,
		})
		require.NoError(t, err)

		moves = append(moves, move)
	}

	return moves
}

// scriptedFeed - hands out the given channels in order, then channels that only close with ctx.
type scriptedFeed struct {
	mu            sync.Mutex
	channels      []chan entity.FeedEvent
	subscriptions int
}

func (that *scriptedFeed) Subscribe(ctx context.Context, _ string) (<-chan entity.FeedEvent, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.subscriptions++

	if len(that.channels) > 0 {
		events := that.channels[0]
		that.channels = that.channels[1:]

		return events, nil
	}

	events := make(chan entity.FeedEvent)
	go func() {
		<-ctx.Done()
		close(events)
	}()

	return events, nil
}

func (that *scriptedFeed) count() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.subscriptions
}

func action(value int) *int {
	return &value
}
