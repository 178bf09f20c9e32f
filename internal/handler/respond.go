package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/feastline/orderflow/internal/domain/domainerr"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondBadRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// respondError maps domain error kinds onto HTTP statuses. Anything outside
// the taxonomy is a 500 whose detail stays in the server log.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, domainerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domainerr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domainerr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domainerr.ErrValidation), errors.Is(err, domainerr.ErrIllegalTransition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domainerr.ErrUpstreamUnavailable):
		status = http.StatusServiceUnavailable
	default:
		zctx.From(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondBadRequest(w, "malformed request body")
		return false
	}
	return true
}
