package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/wayfarerhq/wayfarer/internal/auth"
	"github.com/wayfarerhq/wayfarer/internal/permission"
)

// envelope is the uniform response body. Data is omitted for bare
// acknowledgements.
type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:   status < http.StatusBadRequest,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, message, nil)
}

// respondServiceError maps lifecycle errors onto HTTP statuses. Unmapped
// errors become a generic 500 so internals never leak to clients.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		respondError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrRefreshTokenExpiredOrRevoked):
		respondError(w, http.StatusUnauthorized, "invalid or expired refresh token")
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired):
		respondError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, auth.ErrResetTokenInvalid):
		respondError(w, http.StatusBadRequest, "invalid or expired reset token")
	case errors.Is(err, auth.ErrVerificationTokenInvalid):
		respondError(w, http.StatusBadRequest, "invalid or expired verification token")
	case errors.Is(err, auth.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrRateLimited):
		respondError(w, http.StatusTooManyRequests, "too many requests")
	case errors.Is(err, permission.ErrEngineUnavailable):
		respondError(w, http.StatusBadGateway, "permission engine unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
