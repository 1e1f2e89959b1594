package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/examhall/internal/apperrors"
	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/report"
)

const maxBodyBytes = 4 << 20

var (
	errUnauthorized = errors.New("unauthorized")
	errBadRequest   = errors.New("bad request")
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func unauthorized(msg string) error {
	return fmt.Errorf("%w: %s", errUnauthorized, msg)
}

// statusFor maps an error kind to an HTTP status and message ID.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "ErrNotFound"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "ErrConflict"
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "ErrForbidden"
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusUnprocessableEntity, "ErrValidation"
	case errors.Is(err, apperrors.ErrAlreadyRecorded):
		return http.StatusConflict, "ErrAlreadyRecorded"
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "ErrUnauthorized"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "ErrBadRequest"
	}
	return http.StatusInternalServerError, "ErrInternal"
}

// streamReport writes a report body. Once writing has started the status is
// sent, so a failure can only be logged.
func streamReport(w http.ResponseWriter, r *http.Request, format report.Format, write func(io.Writer) error) {
	w.Header().Set("Content-Type", format.ContentType())
	if err := write(w); err != nil {
		slog.Error("report write failed", "method", r.Method, "path", r.URL.Path, "format", format, "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msgID := statusFor(err)
	body := errorBody{
		Error:   appI18n.T(r.Context(), msgID),
		Message: err.Error(),
		Details: apperrors.Details(err),
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Message = ""
	}
	writeJSON(w, status, body)
}
