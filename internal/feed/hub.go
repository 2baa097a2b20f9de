package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

type dropRecorder interface {
	FeedDropped()
}

type subscriber struct {
	events chan entity.FeedEvent
}

// Hub - in-process fan-out of feed events per match.
type Hub struct {
	logger  *slog.Logger
	metrics dropRecorder
	buffer  int

	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
}

func NewHub(logger *slog.Logger, metrics dropRecorder, buffer int) *Hub {
	return &Hub{
		logger:      logger.With("component", "feed-hub"),
		metrics:     metrics,
		buffer:      buffer,
		subscribers: make(map[string]map[*subscriber]struct{}),
	}
}

// Publish - never blocks. A subscriber whose buffer is full misses the event and resyncs on the gap.
func (that *Hub) Publish(_ context.Context, event entity.FeedEvent) error {
	that.mu.RLock()
	defer that.mu.RUnlock()

	for sub := range that.subscribers[event.MatchID] {
		select {
		case sub.events <- event:
		default:
			that.metrics.FeedDropped()
			that.logger.Warn("dropped feed event for slow subscriber", "match_id", event.MatchID, "type", event.Type)
		}
	}

	return nil
}

// Subscribe - the channel is closed once ctx is done.
func (that *Hub) Subscribe(ctx context.Context, matchID string) (<-chan entity.FeedEvent, error) {
	sub := &subscriber{events: make(chan entity.FeedEvent, that.buffer)}

	that.mu.Lock()
	if that.subscribers[matchID] == nil {
		that.subscribers[matchID] = make(map[*subscriber]struct{})
	}
	that.subscribers[matchID][sub] = struct{}{}
	that.mu.Unlock()

	go func() {
		<-ctx.Done()

		that.mu.Lock()
		delete(that.subscribers[matchID], sub)
		if len(that.subscribers[matchID]) == 0 {
			delete(that.subscribers, matchID)
		}
		that.mu.Unlock()

		close(sub.events)
	}()

	return sub.events, nil
}

func (that *Hub) Subscribers(matchID string) int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.subscribers[matchID])
}
