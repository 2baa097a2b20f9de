package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/usecase"
)

type matchCoordinator interface {
	CreateMatch(ctx context.Context, creatorID string, clock *entity.ClockConfig) (*entity.Match, error)
	JoinMatch(ctx context.Context, matchID, playerID string) (*entity.Match, error)
	Abandon(ctx context.Context, matchID, playerID string) (*entity.Match, error)
	GetMatch(ctx context.Context, matchID string) (*entity.Match, error)
	Head(ctx context.Context, matchID string) (*entity.Head, error)
	Moves(ctx context.Context, matchID string) ([]*entity.Move, error)
	Submit(ctx context.Context, submission usecase.Submission) (*entity.Move, error)
}

type MatchHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	Join(w http.ResponseWriter, r *http.Request)
	Abandon(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Head(w http.ResponseWriter, r *http.Request)
	Moves(w http.ResponseWriter, r *http.Request)
	Submit(w http.ResponseWriter, r *http.Request)
}

type matchHandler struct {
	logger      *slog.Logger
	coordinator matchCoordinator

	defaultClock *entity.ClockConfig
}

// NewMatchHandler - defaultClock is used for matches created with "timed": true and no explicit clock.
func NewMatchHandler(logger *slog.Logger, coordinator matchCoordinator, defaultClock *entity.ClockConfig) MatchHandler {
	return &matchHandler{
		logger:       logger,
		coordinator:  coordinator,
		defaultClock: defaultClock,
	}
}

type createMatchRequest struct {
	Timed bool                `json:"timed"`
	Clock *entity.ClockConfig `json:"clock"`
}

// SubmitRequest - Action is a pointer so that an absent action and action 0 stay distinct.
type SubmitRequest struct {
	ExpectedIndex *int `json:"expected_move_index"`
	Action        *int `json:"action"`
}

func (that *matchHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "Create")

	var req createMatchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, log, fmt.Errorf("%w: %w", apperror.ErrMalformedAction, err))
			return
		}
	}

	clock := req.Clock
	if clock == nil && req.Timed {
		clock = that.defaultClock
	}

	match, err := that.coordinator.CreateMatch(r.Context(), playerFrom(r.Context()), clock)
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusCreated, match)
}

func (that *matchHandler) Join(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "Join")

	match, err := that.coordinator.JoinMatch(r.Context(), chi.URLParam(r, "id"), playerFrom(r.Context()))
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

func (that *matchHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "Abandon")

	match, err := that.coordinator.Abandon(r.Context(), chi.URLParam(r, "id"), playerFrom(r.Context()))
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

func (that *matchHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "Get")

	match, err := that.coordinator.GetMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

func (that *matchHandler) Head(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "Head")

	head, err := that.coordinator.Head(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, head)
}

func (that *matchHandler) Moves(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "Moves")

	moves, err := that.coordinator.Moves(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, moves)
}

func (that *matchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "Submit")

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, log, fmt.Errorf("%w: %w", apperror.ErrMalformedAction, err))
		return
	}

	if req.ExpectedIndex == nil {
		writeError(w, log, fmt.Errorf("%w: expected_move_index is required", apperror.ErrMalformedAction))
		return
	}

	move, err := that.coordinator.Submit(r.Context(), usecase.Submission{
		MatchID:       chi.URLParam(r, "id"),
		CallerID:      playerFrom(r.Context()),
		ExpectedIndex: *req.ExpectedIndex,
		Action:        req.Action,
	})
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusCreated, move)
}
