package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

const namespace = "kamisado"

type Metrics struct {
	movesCommitted  prometheus.Counter
	rejections      *prometheus.CounterVec
	commitRetries   prometheus.Counter
	matchesEnded    *prometheus.CounterVec
	reconciliations prometheus.Counter
	feedDropped     prometheus.Counter
}

func New(registerer prometheus.Registerer) *Metrics {
	that := &Metrics{
		movesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_committed_total",
			Help:      "Moves committed by the coordinator.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_rejected_total",
			Help:      "Rejected move submissions by kind.",
		}, []string{"kind"}),
		commitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_retries_total",
			Help:      "Commit attempts retried after a persistence failure.",
		}),
		matchesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_ended_total",
			Help:      "Matches that reached a terminal status, by reason.",
		}, []string{"reason"}),
		reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Terminal snapshots whose match status was repaired on read.",
		}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_dropped_total",
			Help:      "Feed events dropped for slow subscribers.",
		}),
	}

	registerer.MustRegister(
		that.movesCommitted,
		that.rejections,
		that.commitRetries,
		that.matchesEnded,
		that.reconciliations,
		that.feedDropped,
	)

	return that
}

func (that *Metrics) MoveCommitted() {
	that.movesCommitted.Inc()
}

func (that *Metrics) Rejected(kind apperror.Kind) {
	that.rejections.WithLabelValues(string(kind)).Inc()
}

func (that *Metrics) CommitRetried() {
	that.commitRetries.Inc()
}

func (that *Metrics) MatchEnded(reason entity.EndReason) {
	that.matchesEnded.WithLabelValues(string(reason)).Inc()
}

func (that *Metrics) Reconciled() {
	that.reconciliations.Inc()
}

func (that *Metrics) FeedDropped() {
	that.feedDropped.Inc()
}
