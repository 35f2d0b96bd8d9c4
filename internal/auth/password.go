package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wayfarerhq/wayfarer/internal/store"
)

// ForgotPassword issues a reset token with a one-hour expiry and persists
// it on the user row. The returned token is handed to the mail collaborator
// by the caller; it is empty when the email is unknown. Callers must send
// the same response either way so account existence is never revealed.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	resetToken := uuid.NewString()
	expiresAt := s.now().Add(resetTokenTTL)
	if err := s.store.SetResetToken(ctx, user.ID, &resetToken, &expiresAt); err != nil {
		return "", err
	}

	return resetToken, nil
}

// ResetPassword consumes an unexpired reset token, sets the new password,
// and revokes every outstanding session.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	user, err := s.store.FindUserByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	if user.ResetTokenExpiresAt == nil || s.now().After(*user.ResetTokenExpiresAt) {
		return ErrResetTokenInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	if err := s.store.SetResetToken(ctx, user.ID, nil, nil); err != nil {
		return err
	}

	if err := s.revokeAllSessions(ctx, user.ID); err != nil {
		return err
	}
	if err := s.cache.InvalidateUser(ctx, user.ID.String(), user.Email); err != nil {
		s.log.Warn().Err(err).Str("userId", user.ID.String()).Msg("user cache invalidation failed")
	}
	return nil
}

// PurgeExpiredRefreshTokens removes durable rows whose lifetime has passed.
// Called from the maintenance loop.
func (s *Service) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredRefreshTokens(ctx, s.now())
}
