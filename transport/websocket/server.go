package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type subscriber interface {
	Subscribe(ctx context.Context, matchID string) (<-chan entity.FeedEvent, error)
}

type tokenParser interface {
	ParseToken(token string) (string, error)
}

type matchReader interface {
	GetMatch(ctx context.Context, matchID string) (*entity.Match, error)
}

// Server - streams the feed of one match per connection. Clients never write state through it.
type Server struct {
	logger *slog.Logger

	feed    subscriber
	auth    tokenParser
	matches matchReader

	upgrader websocket.Upgrader
	srv      *http.Server
}

func New(logger *slog.Logger, feed subscriber, auth tokenParser, matches matchReader) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		feed:    feed,
		auth:    auth,
		matches: matches,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	// Shutdown cancels the contexts of hijacked feed connections
	baseCtx, cancel := context.WithCancel(context.Background())

	server.srv = &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.srv.RegisterOnShutdown(cancel)

	return server
}

func (that *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/matches/{id}/feed", that.handleFeed)

	return r
}

// Start - starts WebSocket server.
func (that *Server) Start(port string) error {
	that.srv.Addr = ":" + port

	that.logger.Info("Starting WebSocket server", "addr", that.srv.Addr)

	if err := that.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) Shutdown(ctx context.Context) error {
	if err := that.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
