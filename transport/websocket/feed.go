package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
)

// handleFeed - authenticates, subscribes before upgrading so no event after the handshake is missed, then pumps.
func (that *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")
	log := that.logger.With("method", "handleFeed", "match_id", matchID)

	playerID, err := that.auth.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err = that.matches.GetMatch(r.Context(), matchID); err != nil {
		if errors.Is(err, apperror.ErrMatchNotFound) {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}

		log.Error("failed to load match", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)

		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := that.feed.Subscribe(ctx, matchID)
	if err != nil {
		log.Error("failed to subscribe", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)

		return
	}

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	defer conn.Close()

	log.Info("feed connection established", "player_id", playerID)

	go that.readPump(conn, cancel)
	that.writePump(ctx, log, conn, events)

	log.Info("feed connection closed", "player_id", playerID)
}

// readPump - keeps the pong deadline and notices when the client goes away. Inbound messages are ignored.
func (that *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (that *Server) writePump(ctx context.Context, log *slog.Logger, conn *websocket.Conn, events <-chan entity.FeedEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case event, ok := <-events:
			if !ok {
				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Info("failed to write event", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
