package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/kamisado-backend/internal/apperror"
)

// ErrorResponse - body of every rejected request.
type ErrorResponse struct {
	Kind  apperror.Kind `json:"kind"`
	Error string        `json:"error"`
}

var statuses = map[apperror.Kind]int{
	apperror.KindAuth:               http.StatusForbidden,
	apperror.KindMatchNotActive:     http.StatusConflict,
	apperror.KindNotYourTurn:        http.StatusConflict,
	apperror.KindIllegalMove:        http.StatusUnprocessableEntity,
	apperror.KindMalformedAction:    http.StatusBadRequest,
	apperror.KindStaleIndex:         http.StatusConflict,
	apperror.KindPersistenceFailure: http.StatusServiceUnavailable,
	apperror.KindNotFound:           http.StatusNotFound,
	apperror.KindConflict:           http.StatusConflict,
}

func statusOf(err error) int {
	if errors.Is(err, apperror.ErrUnauthenticated) {
		return http.StatusUnauthorized
	}

	if status, ok := statuses[apperror.KindOf(err)]; ok {
		return status
	}

	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := apperror.KindOf(err)
	message := err.Error()

	if kind == apperror.KindInternal {
		log.Error("request failed", "error", err)
		message = http.StatusText(http.StatusInternalServerError)
	}

	writeJSON(w, statusOf(err), ErrorResponse{Kind: kind, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
