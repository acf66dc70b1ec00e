package handler

// RESPONSE HELPERS:
// Every JSON endpoint answers through writeJSON and writeError so the
// frontend always sees the same shapes:
//
//	success: the resource itself, e.g. {"id": 3, "name": "Home", ...}
//	failure: {"error": "not_found", "message": "library not found with id 3"}

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/homelibrary/internal/apperror"
	"github.com/sakif/homelibrary/internal/auth"
	"github.com/sakif/homelibrary/internal/repository"
)

// maxBodyBytes bounds JSON request bodies. The largest legitimate body is a
// book with a full description.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable type, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input field for validation errors
}

// MessageResponse is the body for operations with nothing else to return.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and the status must be set before the body. Once Encode writes,
// later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to its HTTP status and error type.
//
// The service layer knows nothing about HTTP; this is the one place
// apperror kinds become status codes. errors.Is walks the wrap chain, so
// fmt.Errorf("...: %w", apperror.NotFound(...)) still maps to 404.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError sends the standard error body for err.
//
// Errors that aren't *apperror.AppError are logged and replaced with a
// generic message: raw driver errors may contain SQL or file paths.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := errorStatus(err)
		writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message, Field: appErr.Field})
		return
	}

	logger.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "an internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst. Unknown fields are rejected so a
// typo in a field name fails loudly instead of being ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is empty")
		}
		return apperror.ValidationFailed("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// pathID parses a numeric chi URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(name, "must be a positive integer")
	}
	return id, nil
}

// listOptions reads ?offset=&limit=. Missing or malformed values fall back
// to zero, which the services replace with their defaults.
func listOptions(r *http.Request) repository.ListOptions {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return repository.ListOptions{Limit: limit, Offset: offset}
}

// currentUser returns the id the auth middleware stored. Routes using it
// are always mounted behind RequireAuth or RequireAuthRedirect.
func currentUser(r *http.Request) int64 {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
