package auth

import "errors"

var (
	// ErrUnauthenticated is returned when a request carries no usable credential.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidToken is returned for malformed or badly signed access tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when an access token's lifetime has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidCredentials is returned for a wrong email or wrong password.
	// The two cases are intentionally indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrForbidden is returned when an authenticated principal lacks a
	// required permission or role.
	ErrForbidden = errors.New("forbidden")
	// ErrEmailTaken is returned when a registration collides with an
	// existing account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUserNotFound is returned when a token references a user that no
	// longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRefreshToken is returned when a refresh token fails
	// signature or expiry verification.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenExpiredOrRevoked is returned when a structurally valid
	// refresh token is found in neither the fingerprint cache nor the
	// durable store.
	ErrRefreshTokenExpiredOrRevoked = errors.New("refresh token expired or revoked")
	// ErrRateLimited is returned when a fixed-window request budget is spent.
	ErrRateLimited = errors.New("too many requests")
	// ErrResetTokenInvalid is returned for unknown or expired password
	// reset tokens.
	ErrResetTokenInvalid = errors.New("reset token invalid or expired")
	// ErrVerificationTokenInvalid is returned for unknown or expired email
	// verification tokens.
	ErrVerificationTokenInvalid = errors.New("verification token invalid or expired")
)
