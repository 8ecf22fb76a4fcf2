package handler

// RESPONSE HELPERS:
// writeJSON and writeError standardise how handlers send JSON bodies and
// errors, so every endpoint produces the same shapes:
//
//	success: whatever struct the handler passes
//	error:   {"error": "conflict", "message": "user conflict with id alice"}
//
// writeError is the single place where the apperror taxonomy maps to
// HTTP status codes. Services never see status codes; handlers never
// inspect error kinds themselves.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/icar/swc-backend/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "conflict"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends a JSON response with the given status code.
// Headers and the status line go out before the body — order matters,
// anything set after the first Write is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already gone; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status and sends it.
//
// errors.Is walks the wrap chain, so a service error like
// "service/auth: creating user: user conflict with id alice" still
// matches apperror.ErrConflict.
//
// Unknown errors become a generic 500 — internal details (SQL text, file
// paths, upstream URLs) never reach the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			// Registration reports a taken username as a plain 400 — the
			// caller's input was unusable, and the frontend treats it as
			// a form error, not a resource conflict.
			status = http.StatusBadRequest
			errorType = "conflict"
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusBadGateway
			errorType = "upstream_unavailable"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a request body into dst, turning malformed JSON into
// a validation error instead of a bare 500.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("", "request body is not valid JSON")
	}
	return nil
}
