package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/rewardloop/backend/internal/middleware"
	"github.com/rewardloop/backend/internal/services"
)

const maxBodyBytes = 1_048_576

// decodeJSON reads exactly one JSON object into dst and writes the 400 response itself.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
	}
	return userID, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps the service error taxonomy onto HTTP. Storage and
// configuration failures are logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, component string, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[%s] Internal error: %v", component, err)
	}
	services.SendErrorResponse(w, message, status, nil)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "Insufficient balance"
	case errors.Is(err, services.ErrLimitExceeded):
		return http.StatusConflict, "Redemption limit reached"
	case errors.Is(err, services.ErrUnavailable):
		return http.StatusConflict, "Reward is not available"
	}
	return http.StatusInternalServerError, "Internal server error"
}
