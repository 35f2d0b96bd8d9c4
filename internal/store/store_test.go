package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wayfarerhq/wayfarer/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	return New(db), mock
}

func TestFindUserByEmail(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WithArgs("a@x.com", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "name"}).
			AddRow(id, "a@x.com", "$2a$10$hash", "Ada"))
	mock.ExpectQuery(`SELECT \* FROM "profiles"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(uuid.New(), id))

	user, err := s.FindUserByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "a@x.com", user.Email)
	require.NotNil(t, user.Profile)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserByEmailNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.FindUserByEmail(context.Background(), "missing@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePassword(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "users" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpdatePassword(context.Background(), id, "$2a$10$newhash"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePasswordMissingUser(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "users" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.UpdatePassword(context.Background(), uuid.New(), "$2a$10$newhash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindActiveRefreshTokenFiltersRevokedAndExpired(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "refresh_tokens"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.FindActiveRefreshToken(context.Background(), "some-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindActiveRefreshToken(t *testing.T) {
	s, mock := newMockStore(t)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "refresh_tokens"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "is_revoked", "expires_at"}).
			AddRow(uuid.New(), userID, "raw-refresh", false, time.Now().Add(time.Hour)))

	row, err := s.FindActiveRefreshToken(context.Background(), "raw-refresh")
	require.NoError(t, err)
	assert.Equal(t, userID, row.UserID)
	assert.False(t, row.IsRevoked)
}

func TestRevokeAllRefreshTokens(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "refresh_tokens" SET`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, s.RevokeAllRefreshTokens(context.Background(), uuid.New()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredRefreshTokens(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "refresh_tokens"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := s.DeleteExpiredRefreshTokens(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCreateRefreshToken(t *testing.T) {
	s, mock := newMockStore(t)
	row := &models.RefreshToken{
		UserID:    uuid.New(),
		Token:     "raw-refresh",
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "refresh_tokens"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectCommit()

	require.NoError(t, s.CreateRefreshToken(context.Background(), row))
	require.NoError(t, mock.ExpectationsWereMet())
}
