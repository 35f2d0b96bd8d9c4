// Package auth implements the session and token lifecycle: registration,
// login, refresh, logout, and the password and email-verification flows.
// It coordinates the credential store (durable), the cache service (fast
// path), the token issuer, and the permission checker.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/wayfarerhq/wayfarer/internal/cache"
	"github.com/wayfarerhq/wayfarer/internal/models"
	"github.com/wayfarerhq/wayfarer/internal/permission"
	"github.com/wayfarerhq/wayfarer/internal/store"
	"github.com/wayfarerhq/wayfarer/internal/token"
)

const (
	resetTokenTTL        = time.Hour
	verificationTokenTTL = 24 * time.Hour
)

// Device carries per-request client metadata stored beside refresh-token
// fingerprints.
type Device struct {
	UserAgent string
	IP        string
}

// Session is the result of a successful register or login.
type Session struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	IsSuperAdmin bool
}

// Service is the lifecycle controller. All dependencies are injected; the
// service holds no hidden global state.
type Service struct {
	store      store.CredentialStore
	cache      *cache.Service
	tokens     *token.Issuer
	perms      *permission.Checker
	log        zerolog.Logger
	bcryptCost int
	now        func() time.Time
}

// New wires a lifecycle Service.
func New(
	credStore store.CredentialStore,
	cacheSvc *cache.Service,
	issuer *token.Issuer,
	perms *permission.Checker,
	log zerolog.Logger,
	bcryptCost int,
) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:      credStore,
		cache:      cacheSvc,
		tokens:     issuer,
		perms:      perms,
		log:        log,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// RegisterInput is the payload accepted by Register. Field validation
// (format, lengths) happens at the HTTP boundary.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

// Register creates the user with an empty profile, establishes baseline
// permission relations, and opens the first session.
func (s *Service) Register(ctx context.Context, input RegisterInput, device Device) (*Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	verification := uuid.NewString()
	verificationExpiry := s.now().Add(verificationTokenTTL)
	user := &models.User{
		Email:                      input.Email,
		PasswordHash:               string(hash),
		Name:                       input.Name,
		Phone:                      input.Phone,
		VerificationToken:          &verification,
		VerificationTokenExpiresAt: &verificationExpiry,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	profileID := ""
	if user.Profile != nil {
		profileID = user.Profile.ID.String()
	}
	if err := s.perms.CreateProfileRelations(ctx, user.ID.String(), profileID); err != nil {
		s.log.Warn().Err(err).Str("userId", user.ID.String()).Msg("baseline permission relations not established")
	}

	pair, err := s.openSession(ctx, user, device)
	if err != nil {
		return nil, err
	}

	s.populateUserCache(ctx, user)

	return &Session{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Login verifies credentials and opens a new session. Prior sessions stay
// valid: concurrent sessions per user are allowed by design.
func (s *Service) Login(ctx context.Context, email, password string, device Device) (*Session, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn comparable time so a missing account is not
			// distinguishable from a wrong password by latency.
			_ = bcrypt.CompareHashAndPassword(
				[]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"),
				[]byte(password),
			)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	isSuperAdmin, err := s.perms.IsSuperAdmin(ctx, user.ID.String())
	if err != nil {
		s.log.Warn().Err(err).Str("userId", user.ID.String()).Msg("superadmin check failed, assuming false")
		isSuperAdmin = false
	}

	pair, err := s.openSession(ctx, user, device)
	if err != nil {
		return nil, err
	}

	if err := s.store.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		s.log.Warn().Err(err).Str("userId", user.ID.String()).Msg("lastLogin update failed")
	}
	s.populateUserCache(ctx, user)

	return &Session{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		IsSuperAdmin: isSuperAdmin,
	}, nil
}

// Refresh mints a new access token against a live refresh token. The
// refresh token itself is not rotated. A fingerprint-cache miss falls back
// to the durable row and, on success, restores the fingerprint.
func (s *Service) Refresh(ctx context.Context, refreshToken string, device Device) (string, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	_, found, err := s.cache.ValidateFingerprint(ctx, claims.UserID, refreshToken)
	if err != nil {
		s.log.Warn().Err(err).Msg("fingerprint lookup failed, falling back to durable store")
		found = false
	}

	if !found {
		row, err := s.store.FindActiveRefreshToken(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", ErrRefreshTokenExpiredOrRevoked
			}
			return "", err
		}
		if row.UserID.String() != claims.UserID {
			return "", ErrRefreshTokenExpiredOrRevoked
		}

		// Self-healing: restore the evicted fingerprint.
		if _, err := s.cache.StoreFingerprint(ctx, claims.UserID, refreshToken, cache.Metadata{
			UserAgent: device.UserAgent,
			IP:        device.IP,
			Restored:  true,
		}); err != nil {
			s.log.Warn().Err(err).Str("userId", claims.UserID).Msg("fingerprint restore failed")
		}
	}

	return s.tokens.IssueAccess(claims.UserID, claims.Email)
}

// Logout destroys session material. With a refresh token it revokes that
// one session and blacklists the presented access token for its remaining
// lifetime; without one it revokes every session the user has.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, email, refreshToken, accessToken string) error {
	if refreshToken != "" {
		if err := s.cache.RemoveFingerprint(ctx, userID.String(), refreshToken); err != nil {
			s.log.Warn().Err(err).Str("userId", userID.String()).Msg("fingerprint removal failed")
		}
		if err := s.store.RevokeRefreshToken(ctx, refreshToken); err != nil {
			return err
		}
	} else {
		if err := s.revokeAllSessions(ctx, userID); err != nil {
			return err
		}
	}

	s.blacklistRemaining(ctx, accessToken)

	if err := s.cache.InvalidateUser(ctx, userID.String(), email); err != nil {
		s.log.Warn().Err(err).Str("userId", userID.String()).Msg("user cache invalidation failed")
	}
	return nil
}

// ChangePassword verifies the current password, persists the new hash, and
// forces re-login everywhere by revoking all refresh tokens.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	if err := s.revokeAllSessions(ctx, userID); err != nil {
		return err
	}
	if err := s.cache.InvalidateUser(ctx, userID.String(), user.Email); err != nil {
		s.log.Warn().Err(err).Str("userId", userID.String()).Msg("user cache invalidation failed")
	}
	return nil
}

// openSession issues a token pair, stores the refresh fingerprint, and
// writes the durable backup row. The durable row is the safety net, so its
// failure aborts the flow; a fingerprint write failure does not.
func (s *Service) openSession(ctx context.Context, user *models.User, device Device) (token.Pair, error) {
	pair, err := s.tokens.IssuePair(user.ID.String(), user.Email)
	if err != nil {
		return token.Pair{}, err
	}

	if err := s.store.CreateRefreshToken(ctx, &models.RefreshToken{
		UserID:    user.ID,
		Token:     pair.RefreshToken,
		ExpiresAt: s.now().Add(s.tokens.RefreshTTL()),
	}); err != nil {
		return token.Pair{}, err
	}

	if _, err := s.cache.StoreFingerprint(ctx, user.ID.String(), pair.RefreshToken, cache.Metadata{
		UserAgent: device.UserAgent,
		IP:        device.IP,
	}); err != nil {
		s.log.Warn().Err(err).Str("userId", user.ID.String()).Msg("fingerprint store failed, durable row is the fallback")
	}

	return pair, nil
}

func (s *Service) revokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	sessions, err := s.cache.FingerprintCount(ctx, userID.String())
	if err != nil {
		s.log.Warn().Err(err).Str("userId", userID.String()).Msg("session count unavailable")
		sessions = -1
	}
	if err := s.cache.RemoveAllFingerprints(ctx, userID.String()); err != nil {
		s.log.Warn().Err(err).Str("userId", userID.String()).Msg("fingerprint purge failed")
	}
	s.log.Info().Str("userId", userID.String()).Int("sessions", sessions).Msg("all sessions revoked")
	return s.store.RevokeAllRefreshTokens(ctx, userID)
}

// blacklistRemaining tombstones the access token for whatever lifetime it
// has left. Already-expired or malformed tokens need no tombstone.
func (s *Service) blacklistRemaining(ctx context.Context, accessToken string) {
	if accessToken == "" {
		return
	}
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil || claims.ExpiresAt == nil {
		return
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return
	}
	if err := s.cache.BlacklistAccessToken(ctx, accessToken, remaining); err != nil {
		s.log.Warn().Err(err).Msg("access token blacklist write failed")
	}
}

func (s *Service) populateUserCache(ctx context.Context, user *models.User) {
	if err := s.cache.CacheUser(ctx, cache.CachedUser{
		ID:            user.ID.String(),
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
	}); err != nil {
		s.log.Warn().Err(err).Str("userId", user.ID.String()).Msg("user cache population failed")
	}
}
