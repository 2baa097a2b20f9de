package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

// RedisFeed - feed events over Redis Pub/Sub, shared by every server instance.
type RedisFeed struct {
	logger *slog.Logger
	client *redis.Client
	buffer int
}

func NewRedisFeed(logger *slog.Logger, client *redis.Client, buffer int) *RedisFeed {
	return &RedisFeed{
		logger: logger.With("component", "feed-redis"),
		client: client,
		buffer: buffer,
	}
}

func (that *RedisFeed) Publish(ctx context.Context, event entity.FeedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal feed event: %w", err)
	}

	if err = that.client.Publish(ctx, channel(event.MatchID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish feed event: %w", err)
	}

	return nil
}

// Subscribe - returns once the subscription is confirmed. The channel is closed once ctx is done.
func (that *RedisFeed) Subscribe(ctx context.Context, matchID string) (<-chan entity.FeedEvent, error) {
	log := that.logger.With("method", "Subscribe", "match_id", matchID)

	pubsub := that.client.Subscribe(ctx, channel(matchID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to feed: %w", err)
	}

	events := make(chan entity.FeedEvent, that.buffer)

	go func() {
		defer close(events)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-messages:
				if !ok {
					return
				}

				var event entity.FeedEvent
				if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
					log.Error("failed to unmarshal feed event", "error", err)
					continue
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

func channel(matchID string) string {
	return "match:" + matchID + ":feed"
}
