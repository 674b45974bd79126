package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/entity"
)

// ErrNotFound is returned when a lookup or single-row update matches nothing.
var ErrNotFound = errors.New("account not found")

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err carries a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// AccountRepo provides data access for the users and profiles tables using sqlx.
type AccountRepo struct {
	db *sqlx.DB
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

const selectAccount = `SELECT u.id, u.email, u.encrypted_password, u.full_name, u.business_name,
		u.email_confirmed_at, u.confirmation_token, u.confirmation_sent_at,
		u.recovery_token, u.recovery_sent_at, u.last_sign_in_at, u.created_at, u.updated_at,
		p.profile_id, p.role, p.phone, p.address, p.avatar_url, p.is_active,
		p.created_at AS profile_created_at, p.updated_at AS profile_updated_at
	FROM users u JOIN profiles p ON p.user_id = u.id`

// accountRow is the flat projection of selectAccount.
type accountRow struct {
	entity.Account
	ProfileID        string      `db:"profile_id"`
	Role             entity.Role `db:"role"`
	Phone            *string     `db:"phone"`
	Address          *string     `db:"address"`
	AvatarURL        *string     `db:"avatar_url"`
	IsActive         bool        `db:"is_active"`
	ProfileCreatedAt time.Time   `db:"profile_created_at"`
	ProfileUpdatedAt time.Time   `db:"profile_updated_at"`
}

func (r accountRow) toEntity() *entity.AccountWithProfile {
	return &entity.AccountWithProfile{
		Account: r.Account,
		Profile: entity.Profile{
			ProfileID: r.ProfileID,
			AccountID: r.Account.ID,
			Role:      r.Role,
			Phone:     r.Phone,
			Address:   r.Address,
			AvatarURL: r.AvatarURL,
			IsActive:  r.IsActive,
			CreatedAt: r.ProfileCreatedAt,
			UpdatedAt: r.ProfileUpdatedAt,
		},
	}
}

func (r *AccountRepo) findOne(ctx context.Context, where string, arg any) (*entity.AccountWithProfile, error) {
	var row accountRow
	if err := r.db.GetContext(ctx, &row, selectAccount+" WHERE "+where, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toEntity(), nil
}

// FindByEmail matches case-insensitively (email is CITEXT).
func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*entity.AccountWithProfile, error) {
	return r.findOne(ctx, "u.email = $1", email)
}

func (r *AccountRepo) FindByID(ctx context.Context, id string) (*entity.AccountWithProfile, error) {
	return r.findOne(ctx, "u.id = $1", id)
}

func (r *AccountRepo) FindByConfirmationToken(ctx context.Context, token string) (*entity.AccountWithProfile, error) {
	return r.findOne(ctx, "u.confirmation_token = $1", token)
}

func (r *AccountRepo) FindByRecoveryToken(ctx context.Context, token string) (*entity.AccountWithProfile, error) {
	return r.findOne(ctx, "u.recovery_token = $1", token)
}

// InsertAccountAndProfile creates both rows in one transaction. The transaction
// pins a single pooled connection which is released on commit or rollback.
// Errors are returned as produced by the driver; use IsUniqueViolation to
// detect a duplicate email.
func (r *AccountRepo) InsertAccountAndProfile(ctx context.Context, a *entity.Account, p *entity.Profile) (*entity.AccountWithProfile, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const insertUser = `INSERT INTO users (id, email, encrypted_password, full_name, business_name,
		confirmation_token, confirmation_sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), NOW())
		RETURNING id, email, encrypted_password, full_name, business_name, email_confirmed_at,
		confirmation_token, confirmation_sent_at, recovery_token, recovery_sent_at,
		last_sign_in_at, created_at, updated_at`
	var acc entity.Account
	if err := tx.GetContext(ctx, &acc, insertUser,
		a.ID, a.Email, a.PasswordHash, a.FullName, a.BusinessName, a.ConfirmationToken); err != nil {
		return nil, err
	}

	const insertProfile = `INSERT INTO profiles (profile_id, user_id, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING profile_id, user_id, role, phone, address, avatar_url, is_active, created_at, updated_at`
	var prof entity.Profile
	if err := tx.GetContext(ctx, &prof, insertProfile, p.ProfileID, acc.ID, p.Role, p.IsActive); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &entity.AccountWithProfile{Account: acc, Profile: prof}, nil
}

// UpdateConfirmation marks the email confirmed (first time only) and clears
// the token. It returns ErrNotFound when token is no longer the account's
// outstanding confirmation token.
func (r *AccountRepo) UpdateConfirmation(ctx context.Context, id, token string) error {
	const q = `UPDATE users SET email_confirmed_at = COALESCE(email_confirmed_at, NOW()),
		confirmation_token = NULL, updated_at = NOW() WHERE id = $1 AND confirmation_token = $2`
	return r.execOne(ctx, q, id, token)
}

// UpdateConfirmationToken overwrites any outstanding confirmation token.
func (r *AccountRepo) UpdateConfirmationToken(ctx context.Context, id, token string) error {
	const q = `UPDATE users SET confirmation_token = $2, confirmation_sent_at = NOW(), updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, q, id, token)
}

// UpdateRecoveryToken overwrites any outstanding recovery token.
func (r *AccountRepo) UpdateRecoveryToken(ctx context.Context, id, token string) error {
	const q = `UPDATE users SET recovery_token = $2, recovery_sent_at = NOW(), updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, q, id, token)
}

// UpdatePassword replaces the password digest and consumes recoveryToken.
// It returns ErrNotFound when the token was already used or replaced.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id, recoveryToken, hash string) error {
	const q = `UPDATE users SET encrypted_password = $3, recovery_token = NULL, recovery_sent_at = NULL,
		updated_at = NOW() WHERE id = $1 AND recovery_token = $2`
	return r.execOne(ctx, q, id, recoveryToken, hash)
}

// UpdateLastSignIn stamps last_sign_in_at and returns the stored value.
func (r *AccountRepo) UpdateLastSignIn(ctx context.Context, id string) (time.Time, error) {
	const q = `UPDATE users SET last_sign_in_at = NOW(), updated_at = NOW() WHERE id = $1 RETURNING last_sign_in_at`
	var at time.Time
	if err := r.db.GetContext(ctx, &at, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return at, nil
}

// SetActive flips the profile's is_active gate.
func (r *AccountRepo) SetActive(ctx context.Context, id string, active bool) error {
	const q = `UPDATE profiles SET is_active = $2, updated_at = NOW() WHERE user_id = $1`
	return r.execOne(ctx, q, id, active)
}

func (r *AccountRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
