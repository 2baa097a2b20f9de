package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/kamisado-backend/internal/config"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/feed"
	"github.com/rocketscienceinc/kamisado-backend/internal/kamisado"
	"github.com/rocketscienceinc/kamisado-backend/internal/metrics"
	"github.com/rocketscienceinc/kamisado-backend/internal/repository"
	"github.com/rocketscienceinc/kamisado-backend/internal/repository/storage"
	"github.com/rocketscienceinc/kamisado-backend/internal/service"
	"github.com/rocketscienceinc/kamisado-backend/internal/usecase"
	"github.com/rocketscienceinc/kamisado-backend/transport/rest"
	"github.com/rocketscienceinc/kamisado-backend/transport/websocket"
)

const shutdownTimeout = 10 * time.Second

var (
	ErrAddrNotFound   = errors.New("redis address string is empty")
	ErrUnknownStorage = errors.New("unknown storage driver")
	ErrUnknownFeed    = errors.New("unknown feed driver")
)

type feedBus interface {
	Publish(ctx context.Context, event entity.FeedEvent) error
	Subscribe(ctx context.Context, matchID string) (<-chan entity.FeedEvent, error)
}

// RunApp - runs the application until ctx is done or SIGINT/SIGTERM arrives.
func RunApp(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]rest.Pinger)

	var redisStorage *storage.RedisStorage
	if conf.Storage.Driver == "redis" || conf.Feed.Driver == "redis" {
		redisAddrString := conf.Redis.GetRedisAddr()
		if redisAddrString == "" {
			return ErrAddrNotFound
		}

		var err error
		redisStorage, err = storage.NewRedisStorage(ctx, redisAddrString, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			return fmt.Errorf("could not connect to redis storage: %w", err)
		}

		checks["redis"] = redisStorage

		defer func() {
			if err = redisStorage.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}()
	}

	var matchRepo repository.MatchRepository
	switch conf.Storage.Driver {
	case "redis":
		if err := redisStorage.RegisterWriter(ctx, conf.Coordinator.WriterToken); err != nil {
			return err
		}

		matchRepo = repository.NewMatchRepository(redisStorage.Connection)
	case "postgres":
		postgresStorage, err := storage.NewPostgresStorage(ctx, conf.Postgres.DSN, conf.Postgres.MaxConns)
		if err != nil {
			return fmt.Errorf("could not connect to postgres storage: %w", err)
		}
		defer postgresStorage.Close()

		if err = postgresStorage.Migrate(ctx, conf.Coordinator.WriterToken); err != nil {
			return err
		}

		checks["postgres"] = postgresStorage

		matchRepo = repository.NewPostgresMatchRepository(postgresStorage.Pool)
	case "memory":
		matchRepo = repository.NewMemoryMatchRepository(conf.Coordinator.WriterToken)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorage, conf.Storage.Driver)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	var bus feedBus
	switch conf.Feed.Driver {
	case "redis":
		bus = feed.NewRedisFeed(logger, redisStorage.Connection, conf.Feed.Buffer)
	case "local":
		bus = feed.NewHub(logger, recorder, conf.Feed.Buffer)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFeed, conf.Feed.Driver)
	}

	clk := clock.New()
	rules := kamisado.New()
	authService := service.NewAuthService(conf.Auth.JWTSecret, conf.Auth.TokenTTL)

	coordinator := usecase.NewCoordinator(logger, matchRepo, service.NewMoveValidator(rules), rules, bus, recorder, clk,
		usecase.CoordinatorConfig{
			WriterToken:      conf.Coordinator.WriterToken,
			CommitAttempts:   conf.Coordinator.CommitAttempts,
			CommitBackoff:    conf.Coordinator.CommitBackoff,
			CommitMaxBackoff: conf.Coordinator.CommitMaxBackoff,
		})
	monitor := usecase.NewMonitor(logger, matchRepo, coordinator, clk, conf.Clock.TickInterval)

	defaultClock := &entity.ClockConfig{
		InitialMs:   conf.Clock.DefaultInitial.Milliseconds(),
		IncrementMs: conf.Clock.DefaultIncrement.Milliseconds(),
	}

	restServer := rest.New(logger, conf.HTTPPort, rest.NewRouter(
		logger,
		rest.NewPingHandler(logger, checks),
		rest.NewAuth(logger, authService),
		rest.NewMatchHandler(logger, coordinator, defaultClock),
		registry,
	))
	wsServer := websocket.New(logger, bus, authService, coordinator)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(restServer.Start)
	group.Go(func() error {
		return wsServer.Start(conf.SocketPort)
	})
	group.Go(func() error {
		return monitor.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("Application context canceled, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return errors.Join(restServer.Shutdown(shutdownCtx), wsServer.Shutdown(shutdownCtx))
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
