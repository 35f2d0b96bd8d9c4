package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/wayfarerhq/wayfarer/internal/store"
)

// VerifyEmail consumes an unexpired verification token and marks the user
// verified.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken string) error {
	user, err := s.store.FindUserByVerificationToken(ctx, verificationToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrVerificationTokenInvalid
		}
		return err
	}
	if user.VerificationTokenExpiresAt == nil || s.now().After(*user.VerificationTokenExpiresAt) {
		return ErrVerificationTokenInvalid
	}

	if err := s.store.MarkEmailVerified(ctx, user.ID); err != nil {
		return err
	}
	if err := s.cache.InvalidateUser(ctx, user.ID.String(), user.Email); err != nil {
		s.log.Warn().Err(err).Str("userId", user.ID.String()).Msg("user cache invalidation failed")
	}
	return nil
}

// ResendVerification issues a fresh verification token. Like
// ForgotPassword, it never reveals whether the email exists; the returned
// token is empty for unknown or already-verified accounts.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if user.EmailVerified {
		return "", nil
	}

	verificationToken := uuid.NewString()
	expiresAt := s.now().Add(verificationTokenTTL)
	if err := s.store.SetVerificationToken(ctx, user.ID, &verificationToken, &expiresAt); err != nil {
		return "", err
	}

	return verificationToken, nil
}
