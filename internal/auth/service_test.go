package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarerhq/wayfarer/internal/cache"
	"github.com/wayfarerhq/wayfarer/internal/permission"
	"github.com/wayfarerhq/wayfarer/internal/token"
)

// grantEngine answers superadmin checks from a settable map.
type grantEngine struct {
	mu     sync.Mutex
	admins map[string]bool
}

func (e *grantEngine) Check(_ context.Context, userID, relation, object string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if relation == permission.SuperAdminRelation && object == permission.SuperAdminObject {
		return e.admins[userID], nil
	}
	return false, nil
}

func (e *grantEngine) AssignSuperAdmin(_ context.Context, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.admins == nil {
		e.admins = map[string]bool{}
	}
	e.admins[userID] = true
	return nil
}

func (e *grantEngine) CreateProfileRelations(context.Context, string, string) error { return nil }

type testEnv struct {
	svc    *Service
	store  *fakeStore
	cache  *cache.Service
	tokens *token.Issuer
	mr     *miniredis.Miniredis
	engine *grantEngine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cacheSvc, err := cache.New(client, cache.Config{
		RefreshSecret: []byte("refresh-secret-0123456789"),
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		PermissionTTL: 5 * time.Minute,
	})
	require.NoError(t, err)

	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  []byte("access-secret-0123456789"),
		RefreshSecret: []byte("refresh-secret-0123456789"),
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "wayfarer-test",
	})
	require.NoError(t, err)

	engine := &grantEngine{}
	checker := permission.NewChecker(engine, cacheSvc, zerolog.Nop())
	credStore := newFakeStore()

	// Min cost keeps the hashing-heavy flows fast under test.
	svc := New(credStore, cacheSvc, issuer, checker, zerolog.Nop(), 4)

	return &testEnv{svc: svc, store: credStore, cache: cacheSvc, tokens: issuer, mr: mr, engine: engine}
}

func register(t *testing.T, env *testEnv, email, password string) *Session {
	t.Helper()
	sess, err := env.svc.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: password,
		Name:     "Test User",
	}, Device{UserAgent: "test-agent", IP: "10.0.0.1"})
	require.NoError(t, err)
	return sess
}

func TestRegisterThenLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := register(t, env, "a@x.com", "Secret123")
	require.NotEmpty(t, sess.AccessToken)
	require.NotEmpty(t, sess.RefreshToken)
	assert.False(t, sess.IsSuperAdmin)

	// The freshly issued access token authenticates immediately.
	claims, err := env.tokens.VerifyAccess(sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID.String(), claims.UserID)

	login, err := env.svc.Login(ctx, "a@x.com", "Secret123", Device{})
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)
	assert.False(t, login.IsSuperAdmin)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	register(t, env, "a@x.com", "Secret123")
	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email:    "a@x.com",
		Password: "Other456",
		Name:     "Other",
	}, Device{})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	register(t, env, "a@x.com", "Secret123")

	// Wrong password and unknown email yield the same error.
	_, err := env.svc.Login(ctx, "a@x.com", "WrongPass1", Device{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, "nobody@x.com", "Secret123", Device{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshDoesNotRotate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := register(t, env, "a@x.com", "Secret123")

	access1, err := env.svc.Refresh(ctx, sess.RefreshToken, Device{})
	require.NoError(t, err)
	require.NotEmpty(t, access1)

	// The same refresh token keeps working.
	access2, err := env.svc.Refresh(ctx, sess.RefreshToken, Device{})
	require.NoError(t, err)
	require.NotEmpty(t, access2)

	claims, err := env.tokens.VerifyAccess(access2)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID.String(), claims.UserID)
}

func TestRefreshWithGarbageToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Refresh(context.Background(), "not-a-jwt", Device{})
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshDurableFallbackSelfHeals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := register(t, env, "a@x.com", "Secret123")
	userID := sess.User.ID.String()

	// Simulate cache eviction.
	env.mr.FlushAll()
	_, found, err := env.cache.ValidateFingerprint(ctx, userID, sess.RefreshToken)
	require.NoError(t, err)
	require.False(t, found)

	access, err := env.svc.Refresh(ctx, sess.RefreshToken, Device{IP: "10.0.0.2"})
	require.NoError(t, err)
	require.NotEmpty(t, access)

	// The fingerprint was restored and marked as such.
	meta, found, err := env.cache.ValidateFingerprint(ctx, userID, sess.RefreshToken)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, meta.Restored)

	// Idempotent: a second refresh keeps succeeding.
	_, err = env.svc.Refresh(ctx, sess.RefreshToken, Device{})
	require.NoError(t, err)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := register(t, env, "a@x.com", "Secret123")

	err := env.svc.Logout(ctx, sess.User.ID, sess.User.Email, sess.RefreshToken, sess.AccessToken)
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, sess.RefreshToken, Device{})
	assert.ErrorIs(t, err, ErrRefreshTokenExpiredOrRevoked)

	// The presented access token is blacklisted for its remaining lifetime.
	blacklisted, err := env.cache.IsBlacklisted(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.True(t, blacklisted)
}

func TestLogoutEverywhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess1 := register(t, env, "a@x.com", "Secret123")
	sess2, err := env.svc.Login(ctx, "a@x.com", "Secret123", Device{})
	require.NoError(t, err)

	userID := sess1.User.ID.String()
	count, err := env.cache.FingerprintCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// No refresh token supplied: revoke every session.
	err = env.svc.Logout(ctx, sess1.User.ID, sess1.User.Email, "", sess1.AccessToken)
	require.NoError(t, err)

	count, err = env.cache.FingerprintCount(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = env.svc.Refresh(ctx, sess1.RefreshToken, Device{})
	assert.ErrorIs(t, err, ErrRefreshTokenExpiredOrRevoked)
	_, err = env.svc.Refresh(ctx, sess2.RefreshToken, Device{})
	assert.ErrorIs(t, err, ErrRefreshTokenExpiredOrRevoked)
}

func TestConcurrentLoginsAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	register(t, env, "a@x.com", "Secret123")

	const parallel = 4
	sessions := make([]*Session, parallel)
	var wg sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := env.svc.Login(ctx, "a@x.com", "Secret123", Device{})
			if err == nil {
				sessions[i] = sess
			}
		}(i)
	}
	wg.Wait()

	// Every login produced an independently valid refresh token.
	for i, sess := range sessions {
		require.NotNil(t, sess, "login %d failed", i)
		_, err := env.svc.Refresh(ctx, sess.RefreshToken, Device{})
		require.NoError(t, err, "refresh %d", i)
	}
}

func TestChangePasswordRevokesAllSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess1 := register(t, env, "a@x.com", "Secret123")
	sess2, err := env.svc.Login(ctx, "a@x.com", "Secret123", Device{})
	require.NoError(t, err)

	err = env.svc.ChangePassword(ctx, sess1.User.ID, "Secret123", "Fresh456!")
	require.NoError(t, err)

	for _, sess := range []*Session{sess1, sess2} {
		_, err = env.svc.Refresh(ctx, sess.RefreshToken, Device{})
		assert.ErrorIs(t, err, ErrRefreshTokenExpiredOrRevoked)
	}

	// Old password is gone, new one works.
	_, err = env.svc.Login(ctx, "a@x.com", "Secret123", Device{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, "a@x.com", "Fresh456!", Device{})
	require.NoError(t, err)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	env := newTestEnv(t)

	sess := register(t, env, "a@x.com", "Secret123")
	err := env.svc.ChangePassword(context.Background(), sess.User.ID, "WrongPass1", "Fresh456!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := register(t, env, "a@x.com", "Secret123")

	// Unknown email: no error, no token.
	tok, err := env.svc.ForgotPassword(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Empty(t, tok)

	tok, err = env.svc.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	require.NoError(t, env.svc.ResetPassword(ctx, tok, "Reset789!"))

	// Token is single-use.
	assert.ErrorIs(t, env.svc.ResetPassword(ctx, tok, "Again000!"), ErrResetTokenInvalid)

	// All sessions were revoked and only the new password logs in.
	_, err = env.svc.Refresh(ctx, sess.RefreshToken, Device{})
	assert.ErrorIs(t, err, ErrRefreshTokenExpiredOrRevoked)
	_, err = env.svc.Login(ctx, "a@x.com", "Reset789!", Device{})
	require.NoError(t, err)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	register(t, env, "a@x.com", "Secret123")
	tok, err := env.svc.ForgotPassword(ctx, "a@x.com")
	require.NoError(t, err)

	env.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.ErrorIs(t, env.svc.ResetPassword(ctx, tok, "Reset789!"), ErrResetTokenInvalid)
}

func TestVerifyEmailFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := register(t, env, "a@x.com", "Secret123")
	require.NotNil(t, sess.User.VerificationToken)

	require.NoError(t, env.svc.VerifyEmail(ctx, *sess.User.VerificationToken))

	user, err := env.store.FindUserByID(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)

	// Verified users get no new token from resend.
	tok, err := env.svc.ResendVerification(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, tok)

	assert.ErrorIs(t, env.svc.VerifyEmail(ctx, "bogus-token"), ErrVerificationTokenInvalid)
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := register(t, env, "a@x.com", "Secret123")
	original := *sess.User.VerificationToken

	tok, err := env.svc.ResendVerification(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	assert.NotEqual(t, original, tok)

	require.NoError(t, env.svc.VerifyEmail(ctx, tok))
}

func TestPurgeExpiredRefreshTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := register(t, env, "a@x.com", "Secret123")

	env.svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	deleted, err := env.svc.PurgeExpiredRefreshTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// With the fingerprint gone too, the durable fallback finds nothing.
	env.mr.FlushAll()
	_, err = env.svc.Refresh(ctx, sess.RefreshToken, Device{})
	assert.ErrorIs(t, err, ErrRefreshTokenExpiredOrRevoked)
}
