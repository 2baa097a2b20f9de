package rest

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

const pingTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type PingHandler interface {
	PingHandler(w http.ResponseWriter, r *http.Request)
}

type pingHandler struct {
	logger *slog.Logger
	checks map[string]Pinger
}

// NewPingHandler - answers pong while every named dependency responds.
func NewPingHandler(logger *slog.Logger, checks map[string]Pinger) PingHandler {
	return &pingHandler{
		logger: logger,
		checks: checks,
	}
}

func (that *pingHandler) PingHandler(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "PingHandler")

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	names := make([]string, 0, len(that.checks))
	for name := range that.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := that.checks[name].Ping(ctx); err != nil {
			log.Warn("dependency is unavailable", "dependency", name, "error", err)
			http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}
