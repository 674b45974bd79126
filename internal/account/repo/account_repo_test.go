package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/entity"
)

func newRepoWithMock(t *testing.T) (*AccountRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewAccountRepo(sqlx.NewDb(db, "sqlmock")), mock
}

var accountColumns = []string{
	"id", "email", "encrypted_password", "full_name", "business_name",
	"email_confirmed_at", "confirmation_token", "confirmation_sent_at",
	"recovery_token", "recovery_sent_at", "last_sign_in_at", "created_at", "updated_at",
	"profile_id", "role", "phone", "address", "avatar_url", "is_active",
	"profile_created_at", "profile_updated_at",
}

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func accountRows(id, email string, confirmed *time.Time, active bool) *sqlmock.Rows {
	var confirmedAt any
	if confirmed != nil {
		confirmedAt = *confirmed
	}
	return sqlmock.NewRows(accountColumns).AddRow(
		id, email, "$2a$hash", "Ada", "Acme",
		confirmedAt, "tok", now,
		nil, nil, nil, now, now,
		"p-1", "admin", nil, nil, nil, active,
		now, now,
	)
}

func TestFindByEmail_Found(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)SELECT u\.id, u\.email.*FROM users u JOIN profiles p ON p\.user_id = u\.id WHERE u\.email = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(accountRows("acc-1", "a@x.com", nil, true))

	got, err := r.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ID)
	assert.Equal(t, "$2a$hash", got.PasswordHash)
	assert.False(t, got.Confirmed())
	require.NotNil(t, got.ConfirmationToken)
	assert.Equal(t, "tok", *got.ConfirmationToken)
	assert.Equal(t, "p-1", got.Profile.ProfileID)
	assert.Equal(t, "acc-1", got.Profile.AccountID)
	assert.Equal(t, entity.RoleAdmin, got.Profile.Role)
	assert.True(t, got.Profile.IsActive)
}

func TestFindByID_NotFound(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectQuery(`WHERE u\.id = \$1`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := r.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByConfirmationToken_DBError(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectQuery(`WHERE u\.confirmation_token = \$1`).WithArgs("tok").WillReturnError(errors.New("db down"))

	_, err := r.FindByConfirmationToken(context.Background(), "tok")
	require.EqualError(t, err, "db down")
}

func TestFindByRecoveryToken(t *testing.T) {
	r, mock := newRepoWithMock(t)
	confirmed := now
	mock.ExpectQuery(`WHERE u\.recovery_token = \$1`).WithArgs("rtok").
		WillReturnRows(accountRows("acc-2", "b@x.com", &confirmed, false))

	got, err := r.FindByRecoveryToken(context.Background(), "rtok")
	require.NoError(t, err)
	assert.True(t, got.Confirmed())
	assert.False(t, got.Profile.IsActive)
}

func TestInsertAccountAndProfile_Commits(t *testing.T) {
	r, mock := newRepoWithMock(t)
	tok := "confirm-token"

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)INSERT INTO users .*RETURNING id`).
		WithArgs("acc-1", "a@x.com", "hash", "Ada", "Acme", tok).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "encrypted_password", "full_name", "business_name", "email_confirmed_at",
			"confirmation_token", "confirmation_sent_at", "recovery_token", "recovery_sent_at",
			"last_sign_in_at", "created_at", "updated_at",
		}).AddRow("acc-1", "a@x.com", "hash", "Ada", "Acme", nil, tok, now, nil, nil, nil, now, now))
	mock.ExpectQuery(`(?s)INSERT INTO profiles .*RETURNING profile_id`).
		WithArgs("p-1", "acc-1", entity.RoleAdmin, true).
		WillReturnRows(sqlmock.NewRows([]string{
			"profile_id", "user_id", "role", "phone", "address", "avatar_url", "is_active", "created_at", "updated_at",
		}).AddRow("p-1", "acc-1", "admin", nil, nil, nil, true, now, now))
	mock.ExpectCommit()

	got, err := r.InsertAccountAndProfile(context.Background(),
		&entity.Account{ID: "acc-1", Email: "a@x.com", PasswordHash: "hash", FullName: "Ada", BusinessName: "Acme", ConfirmationToken: &tok},
		&entity.Profile{ProfileID: "p-1", Role: entity.RoleAdmin, IsActive: true},
	)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ID)
	assert.Equal(t, "acc-1", got.Profile.AccountID)
	assert.Equal(t, now, *got.ConfirmationSentAt)
}

func TestInsertAccountAndProfile_RollsBackOnProfileFailure(t *testing.T) {
	r, mock := newRepoWithMock(t)
	boom := errors.New("profile insert failed")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "encrypted_password", "full_name", "business_name", "created_at", "updated_at"}).
			AddRow("acc-1", "a@x.com", "hash", "", "", now, now))
	mock.ExpectQuery(`INSERT INTO profiles`).WillReturnError(boom)
	mock.ExpectRollback()

	_, err := r.InsertAccountAndProfile(context.Background(),
		&entity.Account{ID: "acc-1", Email: "a@x.com", PasswordHash: "hash"},
		&entity.Profile{ProfileID: "p-1", Role: entity.RoleAdmin, IsActive: true},
	)
	assert.ErrorIs(t, err, boom)
}

func TestInsertAccountAndProfile_UniqueViolation(t *testing.T) {
	r, mock := newRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})
	mock.ExpectRollback()

	_, err := r.InsertAccountAndProfile(context.Background(),
		&entity.Account{ID: "acc-1", Email: "a@x.com", PasswordHash: "hash"},
		&entity.Profile{ProfileID: "p-1", Role: entity.RoleAdmin, IsActive: true},
	)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestInsertAccountAndProfile_BeginError(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	_, err := r.InsertAccountAndProfile(context.Background(), &entity.Account{}, &entity.Profile{})
	require.EqualError(t, err, "pool exhausted")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestUpdateConfirmation(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`(?s)UPDATE users SET email_confirmed_at = COALESCE\(email_confirmed_at, NOW\(\)\),\s+confirmation_token = NULL.*WHERE id = \$1 AND confirmation_token = \$2`).
		WithArgs("acc-1", "ctok").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.UpdateConfirmation(context.Background(), "acc-1", "ctok"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateConfirmation_TokenAlreadyConsumed(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`(?s)UPDATE users SET email_confirmed_at.*AND confirmation_token = \$2`).
		WithArgs("acc-1", "ctok").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, r.UpdateConfirmation(context.Background(), "acc-1", "ctok"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateConfirmationToken_NoRows(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE users SET confirmation_token = \$2, confirmation_sent_at = NOW\(\)`).
		WithArgs("acc-1", "new").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, r.UpdateConfirmationToken(context.Background(), "acc-1", "new"), ErrNotFound)
}

func TestUpdateRecoveryToken(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE users SET recovery_token = \$2, recovery_sent_at = NOW\(\)`).
		WithArgs("acc-1", "rtok").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.UpdateRecoveryToken(context.Background(), "acc-1", "rtok"))
}

func TestUpdatePassword(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`(?s)UPDATE users SET encrypted_password = \$3, recovery_token = NULL, recovery_sent_at = NULL.*WHERE id = \$1 AND recovery_token = \$2`).
		WithArgs("acc-1", "rtok", "newhash").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.UpdatePassword(context.Background(), "acc-1", "rtok", "newhash"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePassword_TokenAlreadyConsumed(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`(?s)UPDATE users SET encrypted_password = \$3.*AND recovery_token = \$2`).
		WithArgs("acc-1", "rtok", "newhash").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, r.UpdatePassword(context.Background(), "acc-1", "rtok", "newhash"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLastSignIn(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectQuery(`UPDATE users SET last_sign_in_at = NOW\(\).*RETURNING last_sign_in_at`).
		WithArgs("acc-1").WillReturnRows(sqlmock.NewRows([]string{"last_sign_in_at"}).AddRow(now))

	at, err := r.UpdateLastSignIn(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, now, at)
}

func TestSetActive(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE profiles SET is_active = \$2`).
		WithArgs("acc-1", false).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.SetActive(context.Background(), "acc-1", false))
}
