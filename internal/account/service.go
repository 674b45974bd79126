package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/entity"
	accountrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

const (
	DefaultConfirmationTokenTTL = 24 * time.Hour
	DefaultRecoveryTokenTTL     = time.Hour
)

// Store is the persistence surface the service needs. *repo.AccountRepo satisfies it.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*entity.AccountWithProfile, error)
	FindByID(ctx context.Context, id string) (*entity.AccountWithProfile, error)
	FindByConfirmationToken(ctx context.Context, token string) (*entity.AccountWithProfile, error)
	FindByRecoveryToken(ctx context.Context, token string) (*entity.AccountWithProfile, error)
	InsertAccountAndProfile(ctx context.Context, a *entity.Account, p *entity.Profile) (*entity.AccountWithProfile, error)
	UpdateConfirmation(ctx context.Context, id, token string) error
	UpdateConfirmationToken(ctx context.Context, id, token string) error
	UpdateRecoveryToken(ctx context.Context, id, token string) error
	UpdatePassword(ctx context.Context, id, recoveryToken, hash string) error
	UpdateLastSignIn(ctx context.Context, id string) (time.Time, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// Options tune token lifetimes. A zero TTL disables the age check on
// confirmation or recovery tokens.
type Options struct {
	ConfirmationTokenTTL time.Duration
	RecoveryTokenTTL     time.Duration
	Clock                func() time.Time
}

// Session is returned by Register and Login.
type Session struct {
	Account   *entity.AccountWithProfile
	Token     string
	ExpiresAt time.Time
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email        string
	Password     string
	FullName     string
	BusinessName string
}

// Service orchestrates the account lifecycle: registration, login, email
// confirmation and password recovery.
type Service struct {
	store    Store
	hasher   PasswordHasher
	tokens   *TokenIssuer
	notifier *Notifier
	logger   *zap.SugaredLogger

	confirmationTTL time.Duration
	recoveryTTL     time.Duration
	now             func() time.Time
}

func NewService(store Store, hasher PasswordHasher, tokens *TokenIssuer, notifier *Notifier, logger *zap.SugaredLogger, opts Options) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: DefaultBcryptCost}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if notifier == nil {
		notifier = NewNotifier(nil, logger)
	}
	now := time.Now
	if opts.Clock != nil {
		now = opts.Clock
	}
	return &Service{
		store:           store,
		hasher:          hasher,
		tokens:          tokens,
		notifier:        notifier,
		logger:          logger,
		confirmationTTL: opts.ConfirmationTokenTTL,
		recoveryTTL:     opts.RecoveryTokenTTL,
		now:             now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func observe(op string, err error) {
	result := "success"
	if err != nil {
		result = KindOf(err).String()
	}
	metrics.AuthOperations.WithLabelValues(op, result).Inc()
}

// Register creates an unconfirmed account with an admin profile and returns a
// usable session token. The confirmation email is sent in the background.
func (s *Service) Register(ctx context.Context, in RegisterInput) (sess *Session, err error) {
	defer func() { observe("register", err) }()

	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, Validation("Email and password are required")
	}

	switch _, err := s.store.FindByEmail(ctx, email); {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, accountrepo.ErrNotFound):
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	confirmToken, err := GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate confirmation token: %w", err)
	}

	acc := &entity.Account{
		ID:                utilities.NewKSUID(),
		Email:             email,
		PasswordHash:      hash,
		FullName:          strings.TrimSpace(in.FullName),
		BusinessName:      strings.TrimSpace(in.BusinessName),
		ConfirmationToken: &confirmToken,
	}
	// every self-registered account is an admin until an invite flow exists
	prof := &entity.Profile{
		ProfileID: utilities.NewSnowflakeID(),
		Role:      entity.RoleAdmin,
		IsActive:  true,
	}
	created, err := s.store.InsertAccountAndProfile(ctx, acc, prof)
	if err != nil {
		if accountrepo.IsUniqueViolation(err) {
			return nil, ErrEmailTaken.WithErr(err)
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	token, exp, err := s.tokens.Issue(created.ID, created.Email)
	if err != nil {
		return nil, err
	}

	s.notifier.SendConfirmation(created.Email, confirmToken)
	s.logger.Infow("account registered", "account_id", created.ID)
	return &Session{Account: created, Token: token, ExpiresAt: exp}, nil
}

// Login checks the password before the confirmation and activity gates so an
// unknown email and a wrong password are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (sess *Session, err error) {
	defer func() { observe("login", err) }()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, Validation("Email and password are required")
	}

	acc, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if !s.hasher.Verify(acc.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !acc.Confirmed() {
		return nil, ErrEmailNotConfirmed
	}
	if !acc.Profile.IsActive {
		return nil, ErrAccountInactive
	}

	at, err := s.store.UpdateLastSignIn(ctx, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("update last sign in: %w", err)
	}
	acc.LastSignInAt = &at

	token, exp, err := s.tokens.Issue(acc.ID, acc.Email)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("login succeeded", "account_id", acc.ID)
	return &Session{Account: acc, Token: token, ExpiresAt: exp}, nil
}

// ConfirmEmail consumes a confirmation token. Unknown, consumed and stale
// tokens fail identically.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (err error) {
	defer func() { observe("confirm_email", err) }()

	if token == "" {
		return Validation("Confirmation token is required")
	}
	acc, err := s.store.FindByConfirmationToken(ctx, token)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return ErrInvalidConfirmationToken
		}
		return fmt.Errorf("lookup confirmation token: %w", err)
	}
	if s.expired(acc.ConfirmationSentAt, s.confirmationTTL) {
		return ErrInvalidConfirmationToken
	}
	if err := s.store.UpdateConfirmation(ctx, acc.ID, token); err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return ErrInvalidConfirmationToken
		}
		return fmt.Errorf("confirm email: %w", err)
	}
	s.logger.Infow("email confirmed", "account_id", acc.ID)
	return nil
}

// InitiatePasswordReset never reveals whether the email is registered.
func (s *Service) InitiatePasswordReset(ctx context.Context, email string) (err error) {
	defer func() { observe("initiate_password_reset", err) }()

	email = normalizeEmail(email)
	if email == "" {
		return Validation("Email is required")
	}
	acc, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			s.logger.Debugw("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("lookup email: %w", err)
	}

	token, err := GenerateOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate recovery token: %w", err)
	}
	if err := s.store.UpdateRecoveryToken(ctx, acc.ID, token); err != nil {
		return fmt.Errorf("store recovery token: %w", err)
	}
	s.notifier.SendPasswordReset(acc.Email, token)
	s.logger.Infow("password reset initiated", "account_id", acc.ID)
	return nil
}

// ResetPassword consumes a recovery token and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { observe("reset_password", err) }()

	if token == "" || newPassword == "" {
		return Validation("Token and new password are required")
	}
	acc, err := s.store.FindByRecoveryToken(ctx, token)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("lookup recovery token: %w", err)
	}
	if s.expired(acc.RecoverySentAt, s.recoveryTTL) {
		return ErrInvalidResetToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, acc.ID, token, hash); err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("update password: %w", err)
	}
	s.logger.Infow("password reset", "account_id", acc.ID)
	return nil
}

// ResendConfirmation issues a fresh confirmation token. Unlike
// InitiatePasswordReset it reports unknown and already confirmed accounts.
func (s *Service) ResendConfirmation(ctx context.Context, email string) (err error) {
	defer func() { observe("resend_confirmation", err) }()

	email = normalizeEmail(email)
	if email == "" {
		return Validation("Email is required")
	}
	acc, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup email: %w", err)
	}
	if acc.Confirmed() {
		return ErrAlreadyConfirmed
	}

	token, err := GenerateOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate confirmation token: %w", err)
	}
	if err := s.store.UpdateConfirmationToken(ctx, acc.ID, token); err != nil {
		return fmt.Errorf("store confirmation token: %w", err)
	}
	s.notifier.SendConfirmation(acc.Email, token)
	s.logger.Infow("confirmation resent", "account_id", acc.ID)
	return nil
}

// VerifySessionToken checks a session token without touching the store.
func (s *Service) VerifySessionToken(token string) (*SessionClaims, error) {
	return s.tokens.Verify(token)
}

func (s *Service) GetAccountByID(ctx context.Context, id string) (*entity.AccountWithProfile, error) {
	if id == "" {
		return nil, Validation("Account id is required")
	}
	acc, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return acc, nil
}

// Authenticate resolves a bearer token to a live, active account. The account
// is re-read on every call so deactivation takes effect immediately.
func (s *Service) Authenticate(ctx context.Context, token string) (acc *entity.AccountWithProfile, err error) {
	defer func() { observe("authenticate", err) }()

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	acc, err = s.GetAccountByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !acc.Profile.IsActive {
		return nil, ErrAccountInactive
	}
	return acc, nil
}

// SetAccountActive toggles the profile gate checked by Login and Authenticate.
func (s *Service) SetAccountActive(ctx context.Context, id string, active bool) (err error) {
	defer func() { observe("set_active", err) }()

	if id == "" {
		return Validation("Account id is required")
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("set active: %w", err)
	}
	s.logger.Infow("account activity changed", "account_id", id, "active", active)
	return nil
}

// Wait drains background email dispatches.
func (s *Service) Wait() { s.notifier.Wait() }

func (s *Service) expired(sentAt *time.Time, ttl time.Duration) bool {
	if ttl <= 0 || sentAt == nil {
		return false
	}
	return s.now().Sub(*sentAt) > ttl
}
