package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
)

type authService interface {
	GenerateToken(playerID string) (string, error)
	ParseToken(token string) (string, error)
}

type playerKey struct{}

type AuthHandler interface {
	Guest(w http.ResponseWriter, r *http.Request)
	Authenticate(next http.Handler) http.Handler
}

type authHandler struct {
	logger *slog.Logger
	auth   authService
}

func NewAuth(logger *slog.Logger, auth authService) AuthHandler {
	return &authHandler{
		logger: logger,
		auth:   auth,
	}
}

type guestResponse struct {
	PlayerID string `json:"player_id"`
	Token    string `json:"token"`
}

// Guest - issues a token for a fresh guest identity.
func (that *authHandler) Guest(w http.ResponseWriter, _ *http.Request) {
	log := that.logger.With("method", "Guest")

	playerID := uuid.NewString()

	token, err := that.auth.GenerateToken(playerID)
	if err != nil {
		log.Error("failed to generate auth token", "error", err)
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusCreated, guestResponse{PlayerID: playerID, Token: token})
}

// Authenticate - requires a bearer token and puts the caller's player id into the request context.
func (that *authHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := that.logger.With("method", "Authenticate")

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, log, apperror.ErrUnauthenticated)
			return
		}

		playerID, err := that.auth.ParseToken(token)
		if err != nil {
			writeError(w, log, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), playerKey{}, playerID)))
	})
}

func playerFrom(ctx context.Context) string {
	playerID, _ := ctx.Value(playerKey{}).(string)

	return playerID
}
