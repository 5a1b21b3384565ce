package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/xraph/postmaster"
)

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

func (a *API) badRequest(w http.ResponseWriter, msg string) {
	a.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

// writeError maps postmaster sentinel errors to HTTP status codes.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	a.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, postmaster.ErrInvalidPriority):
		return http.StatusBadRequest
	case errors.Is(err, postmaster.ErrMessageNotFound), errors.Is(err, postmaster.ErrDLQNotFound):
		return http.StatusNotFound
	case errors.Is(err, postmaster.ErrMessageInFlight), errors.Is(err, postmaster.ErrMessageExists):
		return http.StatusConflict
	case errors.Is(err, postmaster.ErrSchedulerStopped), errors.Is(err, postmaster.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// intQuery parses an optional non negative integer query parameter.
func intQuery(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key + " " + strconv.Quote(v))
	}
	return n, nil
}

func defaultLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
