package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"maintenance-classifier/internal/domain"
	"maintenance-classifier/internal/features"
	"maintenance-classifier/internal/ml"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"
)

var errBadRequest = errors.New("bad request")

// envelope wraps write responses.
type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type errorResponse struct {
	Detail    string `json:"detail"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == errBadRequest }

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, features.ErrInvalidReading):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMachineNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ml.ErrModelsUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{
		Detail:    err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	}

	var invalid *features.InvalidReadingError
	if errors.As(err, &invalid) {
		resp.Field = invalid.Field
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", resp.RequestID).Msg("Request failed")
		resp.Detail = http.StatusText(status)
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func idParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("id must be a positive integer")
	}
	return id, nil
}
