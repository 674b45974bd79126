package entity

import "time"

// Account is an identity row in the `users` table.
// PasswordHash is never serialized.
type Account struct {
	ID                 string     `db:"id" json:"id"`
	Email              string     `db:"email" json:"email"`
	PasswordHash       string     `db:"encrypted_password" json:"-"`
	FullName           string     `db:"full_name" json:"full_name"`
	BusinessName       string     `db:"business_name" json:"business_name"`
	EmailConfirmedAt   *time.Time `db:"email_confirmed_at" json:"email_confirmed_at"`
	ConfirmationToken  *string    `db:"confirmation_token" json:"-"`
	ConfirmationSentAt *time.Time `db:"confirmation_sent_at" json:"-"`
	RecoveryToken      *string    `db:"recovery_token" json:"-"`
	RecoverySentAt     *time.Time `db:"recovery_sent_at" json:"-"`
	LastSignInAt       *time.Time `db:"last_sign_in_at" json:"last_sign_in_at"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Confirmed reports whether the email address has been confirmed.
func (a *Account) Confirmed() bool { return a.EmailConfirmedAt != nil }

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
	RoleViewer  Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser, RoleViewer:
		return true
	}
	return false
}

// Profile is the authorization/contact facet of an Account (1:1).
type Profile struct {
	ProfileID string    `db:"profile_id" json:"profile_id"`
	AccountID string    `db:"user_id" json:"user_id"`
	Role      Role      `db:"role" json:"role"`
	Phone     *string   `db:"phone" json:"phone"`
	Address   *string   `db:"address" json:"address"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AccountWithProfile is the joined view returned by lookups.
type AccountWithProfile struct {
	Account
	Profile Profile `json:"profile"`
}
