package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/kamisado"
	"github.com/rocketscienceinc/kamisado-backend/testing/suite"
)

type repoFactory func(t *testing.T) (context.Context, MatchRepository)

var testStart = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func runningMatch(t *testing.T, ctx context.Context, repo MatchRepository, id string) *entity.Match {
	t.Helper()

	match := entity.NewMatch(id, "alice", &entity.ClockConfig{InitialMs: 60_000, IncrementMs: 1_000}, testStart)
	require.NoError(t, repo.Create(ctx, match))

	match.Opponent = "bob"
	match.Status = entity.StatusInProgress
	match.StartedAt = testStart
	require.NoError(t, repo.Transition(ctx, match, entity.StatusWaiting))

	return match
}

func testMove(matchID string, index int) *entity.Move {
	seat := entity.Seat(index % 2)

	return &entity.Move{
		ID:          fmt.Sprintf("%s-move-%d", matchID, index),
		MatchID:     matchID,
		Index:       index,
		PlayerID:    []string{"alice", "bob"}[seat],
		Seat:        seat,
		Action:      index,
		Snapshot:    kamisado.New().Initial(),
		CommittedAt: testStart.Add(time.Duration(index) * time.Second),
	}
}

//nolint: funlen // one scenario per subtest
func testMatchRepository(t *testing.T, newRepo repoFactory) {
	t.Run("Head of a fresh match has no move", func(t *testing.T) {
		ctx, repo := newRepo(t)

		// Given: a running match without moves
		runningMatch(t, ctx, repo, "m1")

		// When: reading the head
		match, move, err := repo.Head(ctx, "m1")

		// Then: the match is returned without a move
		require.NoError(t, err)
		assert.Nil(t, move)
		assert.Equal(t, entity.StatusInProgress, match.Status)
		assert.Equal(t, "bob", match.Opponent)
		require.NotNil(t, match.Clock)
		assert.Equal(t, int64(60_000), match.Clock.InitialMs)
	})

	t.Run("Unknown matches are not found", func(t *testing.T) {
		ctx, repo := newRepo(t)

		_, _, err := repo.Head(ctx, "nope")

		require.ErrorIs(t, err, apperror.ErrMatchNotFound)
	})

	t.Run("Moves commit in sequence and the head follows", func(t *testing.T) {
		ctx, repo := newRepo(t)
		runningMatch(t, ctx, repo, "m1")

		// When: three moves are committed in order
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.Commit(ctx, suite.WriterToken, testMove("m1", i), nil))
		}

		// Then: the head is the last one and the history is 0..2
		_, head, err := repo.Head(ctx, "m1")
		require.NoError(t, err)
		require.NotNil(t, head)
		assert.Equal(t, 2, head.Index)
		assert.Equal(t, "m1-move-2", head.ID)
		assert.Equal(t, kamisado.New().Initial(), head.Snapshot)

		moves, err := repo.Moves(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, moves, 3)
		for i, move := range moves {
			assert.Equal(t, i, move.Index)
		}

		move, err := repo.Move(ctx, "m1", 1)
		require.NoError(t, err)
		assert.Equal(t, "bob", move.PlayerID)

		_, err = repo.Move(ctx, "m1", 7)
		require.ErrorIs(t, err, apperror.ErrMoveNotFound)
	})

	t.Run("Taken or out of sequence indexes are stale", func(t *testing.T) {
		ctx, repo := newRepo(t)
		runningMatch(t, ctx, repo, "m1")
		require.NoError(t, repo.Commit(ctx, suite.WriterToken, testMove("m1", 0), nil))

		// When: index 0 is committed again under another id
		duplicate := testMove("m1", 0)
		duplicate.ID = "other"
		err := repo.Commit(ctx, suite.WriterToken, duplicate, nil)

		// Then: it is stale
		require.ErrorIs(t, err, apperror.ErrStaleIndex)

		// When: index 2 skips index 1
		err = repo.Commit(ctx, suite.WriterToken, testMove("m1", 2), nil)

		// Then: it is stale as well and the history is untouched
		require.ErrorIs(t, err, apperror.ErrStaleIndex)
		moves, err := repo.Moves(ctx, "m1")
		require.NoError(t, err)
		assert.Len(t, moves, 1)
	})

	t.Run("Completion is written with its move", func(t *testing.T) {
		ctx, repo := newRepo(t)
		match := runningMatch(t, ctx, repo, "m1")

		active, err := repo.ActiveMatches(ctx)
		require.NoError(t, err)
		assert.Contains(t, active, "m1")

		// When: a game-ending move commits with its completion
		completion := match.CompletionFor(entity.StatusCompleted, entity.SeatCreator, entity.EndReasonMove, testStart)
		require.NoError(t, repo.Commit(ctx, suite.WriterToken, testMove("m1", 0), &completion))

		// Then: the match is completed with alice as winner and no longer active
		stored, _, err := repo.Head(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, stored.Status)
		require.NotNil(t, stored.Winner)
		assert.Equal(t, "alice", *stored.Winner)
		assert.Equal(t, entity.EndReasonMove, stored.EndReason)

		active, err = repo.ActiveMatches(ctx)
		require.NoError(t, err)
		assert.NotContains(t, active, "m1")

		// Then: nothing commits after the end
		err = repo.Commit(ctx, suite.WriterToken, testMove("m1", 1), nil)
		require.ErrorIs(t, err, apperror.ErrMatchNotActive)
	})

	t.Run("Only the registered writer may commit", func(t *testing.T) {
		ctx, repo := newRepo(t)
		runningMatch(t, ctx, repo, "m1")

		err := repo.Commit(ctx, "intruder", testMove("m1", 0), nil)

		require.ErrorIs(t, err, apperror.ErrAuth)
		_, head, err := repo.Head(ctx, "m1")
		require.NoError(t, err)
		assert.Nil(t, head)
	})

	t.Run("Transitions are conditional on the stored status", func(t *testing.T) {
		ctx, repo := newRepo(t)
		match := runningMatch(t, ctx, repo, "m1")

		// When: someone else tries to join the already running match
		match.Opponent = "carol"
		err := repo.Transition(ctx, match, entity.StatusWaiting)

		// Then: the transition is refused
		require.ErrorIs(t, err, apperror.ErrStatusConflict)

		err = repo.Transition(ctx, &entity.Match{ID: "nope", Status: entity.StatusAbandoned}, entity.StatusWaiting)
		require.ErrorIs(t, err, apperror.ErrMatchNotFound)
	})

	t.Run("Concurrent commits for one index have exactly one winner", func(t *testing.T) {
		ctx, repo := newRepo(t)
		runningMatch(t, ctx, repo, "m1")

		const attempts = 8

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, attempts)
		)

		// When: several writers race for index 0
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start

				move := testMove("m1", 0)
				move.ID = fmt.Sprintf("racer-%d", i)
				errs[i] = repo.Commit(ctx, suite.WriterToken, move, nil)
			}(i)
		}

		close(start)
		wg.Wait()

		// Then: one succeeded and all others are stale
		committed := 0
		for _, err := range errs {
			if err == nil {
				committed++
				continue
			}
			require.ErrorIs(t, err, apperror.ErrStaleIndex)
		}
		assert.Equal(t, 1, committed)
	})

	t.Run("A game-ending commit and an abandon never both win", func(t *testing.T) {
		ctx, repo := newRepo(t)

		for round := 0; round < 10; round++ {
			// Given: a running match
			id := fmt.Sprintf("race-%d", round)
			match := runningMatch(t, ctx, repo, id)

			move := testMove(id, 0)
			completion := match.CompletionFor(entity.StatusCompleted, entity.SeatCreator, entity.EndReasonMove, testStart)

			abandoned := *match
			abandoned.Complete(match.CompletionFor(entity.StatusAbandoned, entity.SeatOpponent, entity.EndReasonAbandon, testStart))

			var (
				wg                     sync.WaitGroup
				start                  = make(chan struct{})
				commitErr, abandonErr error
			)

			// When: the winning move and an abandon race
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				commitErr = repo.Commit(ctx, suite.WriterToken, move, &completion)
			}()
			go func() {
				defer wg.Done()
				<-start
				abandonErr = repo.Transition(ctx, &abandoned, entity.StatusInProgress)
			}()

			close(start)
			wg.Wait()

			// Then: exactly one of them ended the match and the stored state agrees
			stored, head, err := repo.Head(ctx, id)
			require.NoError(t, err)

			if commitErr == nil {
				require.ErrorIs(t, abandonErr, apperror.ErrMatchNotActive)
				assert.Equal(t, entity.StatusCompleted, stored.Status)
				require.NotNil(t, head)
				assert.Equal(t, 0, head.Index)
				continue
			}

			require.ErrorIs(t, commitErr, apperror.ErrMatchNotActive)
			require.NoError(t, abandonErr)
			assert.Equal(t, entity.StatusAbandoned, stored.Status)
			assert.Nil(t, head)
		}
	})
}
