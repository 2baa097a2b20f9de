package syncclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

// WebsocketFeed - subscribes to the websocket feed server. baseURL uses the ws or wss scheme.
type WebsocketFeed struct {
	logger  *slog.Logger
	baseURL string
	token   string
	dialer  *websocket.Dialer
}

func NewWebsocketFeed(logger *slog.Logger, baseURL, token string, dialer *websocket.Dialer) *WebsocketFeed {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &WebsocketFeed{
		logger:  logger.With("component", "websocket-feed"),
		baseURL: baseURL,
		token:   token,
		dialer:  dialer,
	}
}

// Subscribe - the channel is closed when the connection drops or ctx is done.
func (that *WebsocketFeed) Subscribe(ctx context.Context, matchID string) (<-chan entity.FeedEvent, error) {
	log := that.logger.With("method", "Subscribe", "match_id", matchID)

	endpoint := that.baseURL + "/matches/" + url.PathEscape(matchID) + "/feed?token=" + url.QueryEscape(that.token)

	conn, resp, err := that.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("failed to dial feed: %w", err)
	}

	events := make(chan entity.FeedEvent, 16)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()

		for {
			var event entity.FeedEvent
			if err := conn.ReadJSON(&event); err != nil {
				log.Debug("feed connection closed", "error", err)
				return
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
