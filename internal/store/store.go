package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wayfarerhq/wayfarer/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateEmail is returned when a create collides with an existing email.
var ErrDuplicateEmail = errors.New("email already registered")

// CredentialStore is the durable side of the auth core: users, profiles,
// and the refresh-token backup rows.
type CredentialStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByResetToken(ctx context.Context, token string) (*models.User, error)
	FindUserByVerificationToken(ctx context.Context, token string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) error
	SetResetToken(ctx context.Context, userID uuid.UUID, token *string, expiresAt *time.Time) error
	SetVerificationToken(ctx context.Context, userID uuid.UUID, token *string, expiresAt *time.Time) error
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error
	TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error

	CreateRefreshToken(ctx context.Context, row *models.RefreshToken) error
	FindActiveRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

// Store implements CredentialStore over GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store bound to the given GORM session.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateUser inserts a user together with its empty profile in one
// transaction. A unique-email collision surfaces as ErrDuplicateEmail.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateEmail
			}
			return err
		}
		profile := models.Profile{UserID: user.ID}
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
		user.Profile = &profile
		return nil
	})
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Profile").Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Profile").First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) FindUserByResetToken(ctx context.Context, token string) (*models.User, error) {
	return s.findByTokenColumn(ctx, "reset_token", token)
}

func (s *Store) FindUserByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return s.findByTokenColumn(ctx, "verification_token", token)
}

func (s *Store) findByTokenColumn(ctx context.Context, column, token string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where(column+" = ?", token).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) error {
	return s.updateUser(ctx, userID, map[string]any{"password_hash": hash})
}

// SetResetToken writes or clears the password-reset token fields. Passing
// nil for both clears them.
func (s *Store) SetResetToken(ctx context.Context, userID uuid.UUID, token *string, expiresAt *time.Time) error {
	return s.updateUser(ctx, userID, map[string]any{
		"reset_token":            token,
		"reset_token_expires_at": expiresAt,
	})
}

func (s *Store) SetVerificationToken(ctx context.Context, userID uuid.UUID, token *string, expiresAt *time.Time) error {
	return s.updateUser(ctx, userID, map[string]any{
		"verification_token":            token,
		"verification_token_expires_at": expiresAt,
	})
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID uuid.UUID) error {
	return s.updateUser(ctx, userID, map[string]any{
		"email_verified":                true,
		"verification_token":            nil,
		"verification_token_expires_at": nil,
	})
}

func (s *Store) updateUser(ctx context.Context, userID uuid.UUID, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Update("last_login_at", at).Error
}

func (s *Store) CreateRefreshToken(ctx context.Context, row *models.RefreshToken) error {
	return s.db.WithContext(ctx).Create(row).Error
}

// FindActiveRefreshToken returns the row for token only when it is neither
// revoked nor expired. This is the disaster-recovery path for fingerprint
// cache misses.
func (s *Store) FindActiveRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var row models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("token = ? AND is_revoked = ? AND expires_at > ?", token, false, time.Now()).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token = ?", token).
		Update("is_revoked", true).Error
}

func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true).Error
}

// DeleteExpiredRefreshTokens hard-deletes rows whose natural lifetime has
// passed. Run from a maintenance loop, not from request flows.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}
