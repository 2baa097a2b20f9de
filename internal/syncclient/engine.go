package syncclient

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

type Rules interface {
	Apply(snapshot entity.Snapshot, action int) (entity.Snapshot, entity.Scores, error)
}

// Loader - builds the local rules instance. May be slow.
type Loader func(ctx context.Context) (Rules, error)

// Engine - the local rules instance. Usable once Ready is closed.
type Engine struct {
	ready chan struct{}
	once  sync.Once
	rules Rules
}

func newEngine() *Engine {
	return &Engine{ready: make(chan struct{})}
}

// Ready - closed exactly once, when the rules are loaded.
func (that *Engine) Ready() <-chan struct{} {
	return that.ready
}

func (that *Engine) IsReady() bool {
	select {
	case <-that.ready:
		return true
	default:
		return false
	}
}

// Rules - nil until ready.
func (that *Engine) Rules() Rules {
	if !that.IsReady() {
		return nil
	}

	return that.rules
}

func (that *Engine) resolve(rules Rules) {
	that.once.Do(func() {
		that.rules = rules
		close(that.ready)
	})
}

// Session - owns the one Engine shared by every client of the process.
type Session struct {
	logger *slog.Logger
	load   Loader
	engine *Engine
	start  sync.Once
}

func NewSession(logger *slog.Logger, load Loader) *Session {
	return &Session{
		logger: logger.With("component", "sync-session"),
		load:   load,
		engine: newEngine(),
	}
}

func (that *Session) Engine() *Engine {
	return that.engine
}

// Start - loads the engine in the background, retrying failures until ctx is done. Later calls do nothing.
func (that *Session) Start(ctx context.Context) {
	that.start.Do(func() {
		go that.run(ctx)
	})
}

func (that *Session) run(ctx context.Context) {
	log := that.logger.With("method", "run")

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		rules, err := that.load(ctx)
		if err != nil {
			log.Warn("failed to load engine", "error", err)
			return err
		}

		that.engine.resolve(rules)

		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		log.Error("engine was never loaded", "error", err)
		return
	}

	log.Info("engine ready")
}
