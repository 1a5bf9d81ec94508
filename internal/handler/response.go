// Package handler is the HTTP layer: it parses requests, calls the
// services and writes responses. All error-to-status translation
// happens in writeError, nowhere else.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/auth"
	"github.com/subitlab-buf/sms4-backend/internal/model"
)

// ErrorResponse is the error body shared by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps domain errors onto HTTP statuses. Unknown errors
// become a generic 500: internal messages never reach the client.
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
			status = http.StatusConflict
			errorType = "conflict"
		case errors.Is(err, apperror.ErrTooLarge):
			status = http.StatusRequestEntityTooLarge
			errorType = "payload_too_large"
		case errors.Is(err, apperror.ErrRateLimited):
			status = http.StatusTooManyRequests
			errorType = "rate_limited"
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(appErr.RetryAfter.Seconds()))))
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

// credential pulls the parsed auth credential out of the request
// context; routes reaching here are wrapped by auth.RequireAuth.
func credential(r *http.Request) (auth.Credential, error) {
	cred, ok := auth.CredentialFromContext(r.Context())
	if !ok {
		return auth.Credential{}, apperror.Unauthorized("authentication required")
	}
	return cred, nil
}

// decodeJSON decodes the request body into v, rejecting malformed
// bodies with a validation error.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// parsePositiveInt parses a positive decimal query parameter.
func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}

// pathID parses the named path segment as an entity id.
func pathID(r *http.Request, name string) (model.ID, error) {
	id, err := model.ParseID(chi.URLParam(r, name))
	if err != nil {
		return 0, apperror.ValidationFailed(name, "invalid id")
	}
	return id, nil
}
