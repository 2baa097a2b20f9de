package rest_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/feed"
	"github.com/rocketscienceinc/kamisado-backend/internal/kamisado"
	"github.com/rocketscienceinc/kamisado-backend/internal/metrics"
	"github.com/rocketscienceinc/kamisado-backend/internal/repository"
	"github.com/rocketscienceinc/kamisado-backend/internal/service"
	"github.com/rocketscienceinc/kamisado-backend/internal/usecase"
	"github.com/rocketscienceinc/kamisado-backend/transport/rest"
)

const writer = "rest-test"

type api struct {
	t      *testing.T
	server *httptest.Server
}

func newAPI(t *testing.T) *api {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	registry := prometheus.NewRegistry()
	recorder := metrics.New(registry)
	rules := kamisado.New()

	coordinator := usecase.NewCoordinator(
		logger,
		repository.NewMemoryMatchRepository(writer),
		service.NewMoveValidator(rules),
		rules,
		feed.NewHub(logger, recorder, 8),
		recorder,
		clock.New(),
		usecase.CoordinatorConfig{WriterToken: writer, CommitAttempts: 1},
	)

	router := rest.NewRouter(
		logger,
		rest.NewPingHandler(logger, nil),
		rest.NewAuth(logger, service.NewAuthService("secret", time.Hour)),
		rest.NewMatchHandler(logger, coordinator, &entity.ClockConfig{InitialMs: 60_000, IncrementMs: 1_000}),
		registry,
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &api{t: t, server: server}
}

func (that *api) do(method, path, token, body string, out any) int {
	that.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, that.server.URL+path, reader)
	require.NoError(that.t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(that.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(that.t, err)

	if out != nil {
		require.NoError(that.t, json.NewDecoder(bytes.NewReader(raw)).Decode(out), string(raw))
	}

	return resp.StatusCode
}

func (that *api) guest() (string, string) {
	that.t.Helper()

	var resp struct {
		PlayerID string `json:"player_id"`
		Token    string `json:"token"`
	}

	require.Equal(that.t, http.StatusCreated, that.do(http.MethodPost, "/auth/guest", "", "", &resp))

	return resp.PlayerID, resp.Token
}

func TestRouter(t *testing.T) {
	t.Run("Ping answers pong", func(t *testing.T) {
		a := newAPI(t)

		resp, err := http.Get(a.server.URL + "/ping")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "pong", string(body))
	})

	t.Run("Match routes require a bearer token", func(t *testing.T) {
		a := newAPI(t)

		var rejected rest.ErrorResponse
		status := a.do(http.MethodPost, "/matches", "", "", &rejected)

		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, apperror.KindAuth, rejected.Kind)

		status = a.do(http.MethodPost, "/matches", "forged", "", &rejected)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("A match is played over HTTP", func(t *testing.T) {
		a := newAPI(t)
		alice, aliceToken := a.guest()
		bob, bobToken := a.guest()

		// Given: alice created a timed match and bob joined it
		var match entity.Match
		require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/matches", aliceToken, `{"timed": true}`, &match))
		assert.Equal(t, alice, match.Creator)
		require.NotNil(t, match.Clock)
		assert.Equal(t, int64(60_000), match.Clock.InitialMs)

		require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/matches/"+match.ID+"/join", bobToken, "", &match))
		assert.Equal(t, bob, match.Opponent)
		assert.Equal(t, entity.StatusInProgress, match.Status)

		var head entity.Head
		require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/matches/"+match.ID+"/head", bobToken, "", &head))
		assert.Equal(t, entity.NoMoves, head.Index)

		// When: alice submits without an action
		var rejected rest.ErrorResponse
		status := a.do(http.MethodPost, "/matches/"+match.ID+"/moves", aliceToken, `{"expected_move_index": 0}`, &rejected)

		// Then: it is malformed
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, apperror.KindMalformedAction, rejected.Kind)

		// When: alice submits action 0
		var move entity.Move
		status = a.do(http.MethodPost, "/matches/"+match.ID+"/moves", aliceToken, `{"expected_move_index": 0, "action": 0}`, &move)

		// Then: it is committed as move 0
		require.Equal(t, http.StatusCreated, status)
		assert.Equal(t, 0, move.Index)
		assert.Equal(t, 0, move.Action)

		// Then: a repeat is stale and bob cannot move for alice
		status = a.do(http.MethodPost, "/matches/"+match.ID+"/moves", aliceToken, `{"expected_move_index": 0, "action": 0}`, &rejected)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, apperror.KindStaleIndex, rejected.Kind)

		status = a.do(http.MethodPost, "/matches/"+match.ID+"/moves", bobToken, `{"expected_move_index": 1, "action": 167}`, &rejected)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, apperror.KindIllegalMove, rejected.Kind)

		var moves []entity.Move
		require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/matches/"+match.ID+"/moves", bobToken, "", &moves))
		assert.Len(t, moves, 1)

		// When: bob abandons
		require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/matches/"+match.ID+"/abandon", bobToken, "", &match))

		// Then: alice won
		require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/matches/"+match.ID, aliceToken, "", &match))
		assert.Equal(t, entity.StatusAbandoned, match.Status)
		require.NotNil(t, match.Winner)
		assert.Equal(t, alice, *match.Winner)

		status = a.do(http.MethodPost, "/matches/"+match.ID+"/moves", bobToken, `{"expected_move_index": 1, "action": 0}`, &rejected)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, apperror.KindMatchNotActive, rejected.Kind)
	})

	t.Run("Unknown matches are not found", func(t *testing.T) {
		a := newAPI(t)
		_, token := a.guest()

		var rejected rest.ErrorResponse
		status := a.do(http.MethodGet, "/matches/missing/head", token, "", &rejected)

		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, apperror.KindNotFound, rejected.Kind)
	})

	t.Run("Metrics are exposed", func(t *testing.T) {
		a := newAPI(t)

		resp, err := http.Get(a.server.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "kamisado_moves_committed_total")
	})
}
