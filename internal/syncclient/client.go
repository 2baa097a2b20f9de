package syncclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

var (
	ErrNoMatch   = errors.New("no match selected")
	ErrNotSynced = errors.New("client is not synced")
)

type Coordinator interface {
	Head(ctx context.Context, matchID string) (*entity.Head, error)
	Submit(ctx context.Context, matchID string, expectedIndex int, action *int) (*entity.Move, error)
}

type Feed interface {
	Subscribe(ctx context.Context, matchID string) (<-chan entity.FeedEvent, error)
}

type Config struct {
	// GapWindow - how long a gap in the move sequence may stay open before the client refetches.
	GapWindow           time.Duration
	ResyncTimeout       time.Duration
	ReconnectBackoff    time.Duration
	ReconnectMaxBackoff time.Duration
}

func (that Config) withDefaults() Config {
	if that.GapWindow <= 0 {
		that.GapWindow = 2 * time.Second
	}

	if that.ResyncTimeout <= 0 {
		that.ResyncTimeout = 10 * time.Second
	}

	if that.ReconnectBackoff <= 0 {
		that.ReconnectBackoff = 100 * time.Millisecond
	}

	if that.ReconnectMaxBackoff <= 0 {
		that.ReconnectMaxBackoff = 5 * time.Second
	}

	return that
}

// Client - follows one match for one player. Safe for concurrent use.
type Client struct {
	logger      *slog.Logger
	playerID    string
	engine      *Engine
	coordinator Coordinator
	clock       clock.Clock
	conf        Config

	rejections chan Rejection

	mu         sync.Mutex
	state      State
	generation uint64
	waitingFor uint64
	selection  context.Context
	deselect   context.CancelFunc
	syncState  ClientSyncState
	match      *entity.Match
	confirmed  entity.Snapshot
	view       entity.Snapshot
	buffer     map[int]*entity.Move
	seen       map[string]struct{}
	gapTimer   *clock.Timer
}

func NewClient(
	logger *slog.Logger,
	session *Session,
	coordinator Coordinator,
	playerID string,
	clk clock.Clock,
	conf Config,
) *Client {
	return &Client{
		logger:      logger.With("component", "sync-client", "player_id", playerID),
		playerID:    playerID,
		engine:      session.Engine(),
		coordinator: coordinator,
		clock:       clk,
		conf:        conf.withDefaults(),
		rejections:  make(chan Rejection, 16),
		state:       Uninitialized,
		syncState:   ClientSyncState{LastApplied: entity.NoMoves},
		buffer:      make(map[int]*entity.Move),
		seen:        make(map[string]struct{}),
		selection:   context.Background(),
		deselect:    func() {},
	}
}

// SelectMatch - forgets the previous match and syncs to the latest snapshot of matchID.
// If the engine is not ready yet the client stays Syncing and finishes on the readiness event.
// That wait outlives ctx and ends with the next SelectMatch or Close.
func (that *Client) SelectMatch(ctx context.Context, matchID string) error {
	that.mu.Lock()
	that.generation++
	gen := that.generation

	that.deselect()
	that.selection, that.deselect = context.WithCancel(context.Background())

	that.stopGapTimer()
	that.state = Syncing
	that.syncState = ClientSyncState{MatchID: matchID, LastApplied: entity.NoMoves}
	that.match = nil
	that.buffer = make(map[int]*entity.Move)
	that.seen = make(map[string]struct{})
	that.mu.Unlock()

	return that.resync(ctx, gen)
}

// Act - applies action optimistically and submits it. The returned error is the coordinator's rejection, if any.
func (that *Client) Act(ctx context.Context, action *int) (*entity.Move, error) {
	log := that.logger.With("method", "Act")

	if action == nil {
		return nil, fmt.Errorf("%w: no action chosen", apperror.ErrMalformedAction)
	}

	that.mu.Lock()
	if that.state != Synced {
		state := that.state
		that.mu.Unlock()

		return nil, fmt.Errorf("%w: %s", ErrNotSynced, state)
	}

	gen, matchID := that.generation, that.syncState.MatchID
	pending := &PendingMove{ExpectedIndex: that.syncState.LastApplied + 1, Action: *action}

	// the coordinator decides legality, a failed local apply only skips the optimistic view
	if rules := that.engine.Rules(); rules != nil {
		if view, _, err := rules.Apply(that.confirmed, *action); err == nil {
			that.view = view
		} else {
			log.Debug("action not applicable locally", "action", *action, "error", err)
		}
	}

	that.syncState.Pending = pending
	that.state = AwaitingConfirmation
	that.mu.Unlock()

	move, err := that.coordinator.Submit(ctx, matchID, pending.ExpectedIndex, action)

	that.mu.Lock()
	defer that.mu.Unlock()

	if gen != that.generation {
		return move, err
	}

	if err != nil {
		if that.syncState.Pending == pending {
			that.reject(*pending, err)
		}

		if apperror.IsRecoverable(err) {
			go that.resyncDetached(gen)
		}

		return nil, err
	}

	that.onMove(move)

	return move, nil
}

// HandleEvent - feeds one broadcast event into the state machine. Duplicates and reordering are tolerated.
func (that *Client) HandleEvent(event entity.FeedEvent) {
	that.mu.Lock()
	defer that.mu.Unlock()

	switch event.Type {
	case entity.FeedMove:
		if event.Move != nil {
			that.onMove(event.Move)
		}
	case entity.FeedMatch:
		if event.Match != nil {
			that.onMatch(event.Match)
		}
	}
}

// Run - consumes the feed of the selected match until ctx is done, reconnecting on disconnects.
// After every (re)subscription the client fetches the latest snapshot instead of replaying what it missed.
func (that *Client) Run(ctx context.Context, feed Feed) error {
	that.mu.Lock()
	gen, matchID := that.generation, that.syncState.MatchID
	that.mu.Unlock()

	if matchID == "" {
		return ErrNoMatch
	}

	log := that.logger.With("method", "Run", "match_id", matchID)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = that.conf.ReconnectBackoff
	policy.MaxInterval = that.conf.ReconnectMaxBackoff
	policy.MaxElapsedTime = 0

	for {
		var events <-chan entity.FeedEvent

		err := backoff.RetryNotify(func() error {
			var err error
			events, err = feed.Subscribe(ctx, matchID)

			return err
		}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
			log.Warn("failed to subscribe to feed", "error", err, "retry_in", wait)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed to subscribe to feed: %w", err)
		}

		policy.Reset()

		if err = that.resync(ctx, gen); err != nil {
			log.Warn("failed to fetch latest snapshot", "error", err)
		}

		for event := range events {
			that.HandleEvent(event)
		}

		if ctx.Err() != nil || !that.isGeneration(gen) {
			return nil
		}

		log.Info("feed disconnected, reconnecting")
	}
}

// Close - stops background work of the current selection.
func (that *Client) Close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.generation++
	that.deselect()
	that.stopGapTimer()
}

func (that *Client) Rejections() <-chan Rejection {
	return that.rejections
}

func (that *Client) State() State {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state
}

func (that *Client) SyncState() ClientSyncState {
	that.mu.Lock()
	defer that.mu.Unlock()

	state := that.syncState
	if state.Pending != nil {
		pending := *state.Pending
		state.Pending = &pending
	}

	return state
}

// Snapshot - what the player should see: the confirmed snapshot, or the optimistic one while a move is pending.
func (that *Client) Snapshot() entity.Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.view.Clone()
}

// Confirmed - the snapshot at LastApplied.
func (that *Client) Confirmed() entity.Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.confirmed.Clone()
}

func (that *Client) Match() *entity.Match {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.match == nil {
		return nil
	}

	match := *that.match

	return &match
}

func (that *Client) isGeneration(gen uint64) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return gen == that.generation
}

// resync - fetches the latest snapshot once the engine is ready. Never treats a skipped attempt as synced.
func (that *Client) resync(ctx context.Context, gen uint64) error {
	if that.engine.IsReady() {
		return that.fetchLatest(ctx, gen)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.waitingFor != gen && gen == that.generation {
		that.waitingFor = gen
		go that.awaitEngine(that.selection, gen)
	}

	return nil
}

// awaitEngine - syncs on the readiness event, retrying the fetch until it lands or the selection ends.
func (that *Client) awaitEngine(selection context.Context, gen uint64) {
	select {
	case <-selection.Done():
		return
	case <-that.engine.Ready():
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = that.conf.ReconnectBackoff
	policy.MaxInterval = that.conf.ReconnectMaxBackoff
	policy.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(selection, that.conf.ResyncTimeout)
		defer cancel()

		err := that.fetchLatest(ctx, gen)
		if errors.Is(err, apperror.ErrAuth) || errors.Is(err, apperror.ErrMatchNotFound) {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(policy, selection))
	if err != nil && selection.Err() == nil {
		that.logger.Warn("failed to sync after engine became ready", "error", err)
	}
}

func (that *Client) resyncDetached(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), that.conf.ResyncTimeout)
	defer cancel()

	if err := that.resync(ctx, gen); err != nil {
		that.logger.Warn("failed to resync", "error", err)
	}
}

func (that *Client) fetchLatest(ctx context.Context, gen uint64) error {
	that.mu.Lock()
	matchID := that.syncState.MatchID
	current := gen == that.generation
	that.mu.Unlock()

	if !current || matchID == "" {
		return nil
	}

	head, err := that.coordinator.Head(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to fetch head: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if gen == that.generation {
		that.adoptHead(head)
	}

	return nil
}

// adoptHead - jumps straight to the fetched snapshot. Must hold mu.
func (that *Client) adoptHead(head *entity.Head) {
	that.onMatch(head.Match)

	if that.state != Syncing && head.Index <= that.syncState.LastApplied {
		that.drain()
		return
	}

	that.syncState.LastApplied = head.Index
	that.confirmed = head.Snapshot

	if head.Move != nil {
		that.seen[head.Move.ID] = struct{}{}
	}

	if pending := that.syncState.Pending; pending != nil && pending.ExpectedIndex <= head.Index {
		that.syncState.Pending = nil

		if head.Move != nil && head.Move.Index == pending.ExpectedIndex && head.Move.PlayerID != that.playerID {
			that.reject(*pending, fmt.Errorf("%w: move %d was taken by the opponent", apperror.ErrStaleIndex, pending.ExpectedIndex))
		}
	}

	if that.syncState.Pending == nil {
		that.view = that.confirmed
		that.state = Synced
	} else {
		that.state = AwaitingConfirmation
	}

	that.logger.Debug("synced to latest snapshot", "match_id", that.syncState.MatchID, "move_index", head.Index)

	that.drain()
}

// onMove - must hold mu.
func (that *Client) onMove(move *entity.Move) {
	if move.MatchID != that.syncState.MatchID {
		return
	}

	if _, ok := that.seen[move.ID]; ok {
		return
	}

	switch that.state {
	case Uninitialized:
		return
	case Syncing:
		// kept until the fetched snapshot tells where the sequence stands
		that.buffer[move.Index] = move
		return
	}

	if move.Index <= that.syncState.LastApplied {
		that.seen[move.ID] = struct{}{}
		return
	}

	that.buffer[move.Index] = move
	that.drain()
}

// drain - applies buffered moves in index order and arms or disarms the gap timer. Must hold mu.
func (that *Client) drain() {
	for {
		next, ok := that.buffer[that.syncState.LastApplied+1]
		if !ok {
			break
		}

		delete(that.buffer, next.Index)
		that.apply(next)
	}

	for index := range that.buffer {
		if index <= that.syncState.LastApplied {
			delete(that.buffer, index)
		}
	}

	if len(that.buffer) == 0 {
		that.stopGapTimer()
		return
	}

	that.startGapTimer()
}

// apply - must hold mu.
func (that *Client) apply(move *entity.Move) {
	that.seen[move.ID] = struct{}{}
	that.syncState.LastApplied = move.Index
	that.confirmed = move.Snapshot

	if pending := that.syncState.Pending; pending != nil && pending.ExpectedIndex <= move.Index {
		that.syncState.Pending = nil

		if move.PlayerID != that.playerID {
			that.reject(*pending, fmt.Errorf("%w: move %d was taken by the opponent", apperror.ErrStaleIndex, move.Index))
		}
	}

	if that.syncState.Pending == nil {
		that.view = that.confirmed
		that.state = Synced
	}
}

// onMatch - must hold mu.
func (that *Client) onMatch(match *entity.Match) {
	if match.ID != that.syncState.MatchID {
		return
	}

	if that.match != nil && that.match.IsTerminal() && !match.IsTerminal() {
		return
	}

	that.match = match

	if pending := that.syncState.Pending; pending != nil && match.IsTerminal() {
		that.reject(*pending, apperror.ErrMatchFinished)
	}
}

// reject - reverts the optimistic view. Must hold mu.
func (that *Client) reject(pending PendingMove, err error) {
	that.syncState.Pending = nil
	that.view = that.confirmed

	if that.state == AwaitingConfirmation {
		that.state = Synced
	}

	kind := apperror.KindOf(err)
	that.logger.Info("pending move rejected", "move_index", pending.ExpectedIndex, "kind", kind, "error", err)

	select {
	case that.rejections <- Rejection{Move: pending, Kind: kind, Err: err}:
	default:
		that.logger.Warn("rejection dropped, nobody is listening", "move_index", pending.ExpectedIndex)
	}
}

// startGapTimer - must hold mu.
func (that *Client) startGapTimer() {
	if that.gapTimer != nil {
		return
	}

	gen := that.generation
	that.gapTimer = that.clock.AfterFunc(that.conf.GapWindow, func() {
		that.onGapTimeout(gen)
	})
}

// stopGapTimer - must hold mu.
func (that *Client) stopGapTimer() {
	if that.gapTimer != nil {
		that.gapTimer.Stop()
		that.gapTimer = nil
	}
}

func (that *Client) onGapTimeout(gen uint64) {
	that.mu.Lock()
	if gen != that.generation {
		that.mu.Unlock()
		return
	}

	that.gapTimer = nil
	if len(that.buffer) == 0 {
		that.mu.Unlock()
		return
	}

	that.logger.Info("gap not closed in time, fetching latest snapshot", "last_applied", that.syncState.LastApplied)
	that.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), that.conf.ResyncTimeout)
	defer cancel()

	if err := that.fetchLatest(ctx, gen); err != nil {
		that.logger.Warn("failed to resync after gap", "error", err)

		that.mu.Lock()
		if gen == that.generation && len(that.buffer) > 0 {
			that.startGapTimer()
		}
		that.mu.Unlock()
	}
}
