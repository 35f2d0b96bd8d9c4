package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarerhq/wayfarer/internal/models"
	"github.com/wayfarerhq/wayfarer/internal/store"
)

// fakeStore is an in-memory CredentialStore for lifecycle tests.
type fakeStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	profiles map[uuid.UUID]*models.Profile
	tokens   []*models.RefreshToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[uuid.UUID]*models.User),
		profiles: make(map[uuid.UUID]*models.Profile),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return store.ErrDuplicateEmail
		}
	}
	user.ID = uuid.New()
	profile := &models.Profile{ID: uuid.New(), UserID: user.ID}
	user.Profile = profile
	f.users[user.ID] = user
	f.profiles[user.ID] = profile
	return nil
}

func (f *fakeStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindUserByResetToken(_ context.Context, token string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.ResetToken != nil && *user.ResetToken == token {
			return user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindUserByVerificationToken(_ context.Context, token string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.VerificationToken != nil && *user.VerificationToken == token {
			return user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpdatePassword(_ context.Context, userID uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = hash
	return nil
}

func (f *fakeStore) SetResetToken(_ context.Context, userID uuid.UUID, token *string, expiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.ResetToken = token
	user.ResetTokenExpiresAt = expiresAt
	return nil
}

func (f *fakeStore) SetVerificationToken(_ context.Context, userID uuid.UUID, token *string, expiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.VerificationToken = token
	user.VerificationTokenExpiresAt = expiresAt
	return nil
}

func (f *fakeStore) MarkEmailVerified(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.EmailVerified = true
	user.VerificationToken = nil
	user.VerificationTokenExpiresAt = nil
	return nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if profile, ok := f.profiles[userID]; ok {
		profile.LastLoginAt = &at
	}
	return nil
}

func (f *fakeStore) CreateRefreshToken(_ context.Context, row *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row.ID = uuid.New()
	row.CreatedAt = time.Now()
	f.tokens = append(f.tokens, row)
	return nil
}

func (f *fakeStore) FindActiveRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.tokens {
		if row.Token == token && !row.IsRevoked && row.ExpiresAt.After(time.Now()) {
			return row, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) RevokeRefreshToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.tokens {
		if row.Token == token {
			row.IsRevoked = true
		}
	}
	return nil
}

func (f *fakeStore) RevokeAllRefreshTokens(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.tokens {
		if row.UserID == userID {
			row.IsRevoked = true
		}
	}
	return nil
}

func (f *fakeStore) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tokens[:0]
	var deleted int64
	for _, row := range f.tokens {
		if row.ExpiresAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	f.tokens = kept
	return deleted, nil
}
