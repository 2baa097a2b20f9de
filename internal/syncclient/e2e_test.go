package syncclient_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/kamisado-backend/internal/kamisado"
	"github.com/rocketscienceinc/kamisado-backend/internal/service"
	"github.com/rocketscienceinc/kamisado-backend/internal/syncclient"
	"github.com/rocketscienceinc/kamisado-backend/transport/rest"
	"github.com/rocketscienceinc/kamisado-backend/transport/websocket"
)

func TestClient_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given: the REST API and the feed server in front of one coordinator
	srv := newServer(t)
	auth := service.NewAuthService("secret", time.Hour)

	api := httptest.NewServer(rest.NewRouter(logger, rest.NewPingHandler(logger, nil), rest.NewAuth(logger, auth),
		rest.NewMatchHandler(logger, srv.coordinator, nil), prometheus.NewRegistry()))
	defer api.Close()

	feedServer := httptest.NewServer(websocket.New(logger, srv.hub, auth, srv.coordinator).Handler())
	defer feedServer.Close()

	feedURL := "ws" + strings.TrimPrefix(feedServer.URL, "http")

	alice, aliceToken, err := syncclient.GuestLogin(ctx, api.Client(), api.URL)
	require.NoError(t, err)
	bob, bobToken, err := syncclient.GuestLogin(ctx, api.Client(), api.URL)
	require.NoError(t, err)

	aliceAPI := syncclient.NewHTTPCoordinator(api.URL, aliceToken, api.Client())
	bobAPI := syncclient.NewHTTPCoordinator(api.URL, bobToken, api.Client())

	match, err := aliceAPI.CreateMatch(ctx, nil)
	require.NoError(t, err)
	_, err = bobAPI.JoinMatch(ctx, match.ID)
	require.NoError(t, err)

	// Given: both players follow the match through one shared engine
	session := readySession(t, kamisado.New())
	clients := map[string]*syncclient.Client{
		alice: syncclient.NewClient(logger, session, aliceAPI, alice, clock.New(), syncclient.Config{}),
		bob:   syncclient.NewClient(logger, session, bobAPI, bob, clock.New(), syncclient.Config{}),
	}
	seats := []string{alice, bob}
	tokens := map[string]string{alice: aliceToken, bob: bobToken}

	for playerID, client := range clients {
		require.NoError(t, client.SelectMatch(ctx, match.ID))

		go func() {
			_ = client.Run(ctx, syncclient.NewWebsocketFeed(logger, feedURL, tokens[playerID], nil))
		}()
	}

	// When: they take turns for six moves
	const turns = 6
	for index := range turns {
		for _, client := range clients {
			require.Eventually(t, func() bool {
				return client.State() == syncclient.Synced && client.SyncState().LastApplied == index-1
			}, 5*time.Second, 10*time.Millisecond)
		}

		mover := clients[seats[clients[alice].Confirmed().CurrentPlayer]]
		legal := mover.Confirmed().LegalActions
		require.NotEmpty(t, legal)

		move, err := mover.Act(ctx, &legal[0])
		require.NoError(t, err)
		require.Equal(t, index, move.Index)
	}

	// Then: both converge on the same last snapshot
	for _, client := range clients {
		require.Eventually(t, func() bool {
			return client.SyncState().LastApplied == turns-1
		}, 5*time.Second, 10*time.Millisecond)
	}

	head, err := srv.coordinator.Head(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, head.Snapshot, clients[alice].Confirmed())
	assert.Equal(t, head.Snapshot, clients[bob].Confirmed())
}
