package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(logger *slog.Logger, ping PingHandler, auth AuthHandler, matches MatchHandler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, requestLogger(logger))

	r.Get("/ping", ping.PingHandler)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Post("/auth/guest", auth.Guest)

	r.Route("/matches", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Post("/", matches.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", matches.Get)
			r.Get("/head", matches.Head)
			r.Get("/moves", matches.Moves)
			r.Post("/moves", matches.Submit)
			r.Post("/join", matches.Join)
			r.Post("/abandon", matches.Abandon)
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
