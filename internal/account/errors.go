package account

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that map failures to transport codes.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindInvalidToken
	KindNotFound
	KindAlreadyConfirmed
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindInvalidToken:
		return "invalid_token"
	case KindNotFound:
		return "not_found"
	case KindAlreadyConfirmed:
		return "already_confirmed"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is the tagged failure returned by Service operations.
// Two Errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithErr returns a copy of e carrying err as its cause.
func (e *Error) WithErr(err error) *Error {
	cpy := *e
	cpy.Err = err
	return &cpy
}

var (
	ErrInvalidCredentials       = &Error{Kind: KindUnauthorized, Code: "INVALID_CREDENTIALS", Message: "Invalid email or password"}
	ErrEmailNotConfirmed        = &Error{Kind: KindForbidden, Code: "EMAIL_NOT_CONFIRMED", Message: "Please confirm your email address before logging in. Check your email for the confirmation link."}
	ErrAccountInactive          = &Error{Kind: KindUnauthorized, Code: "ACCOUNT_INACTIVE", Message: "Account is inactive. Please contact support."}
	ErrEmailTaken               = &Error{Kind: KindConflict, Code: "EMAIL_TAKEN", Message: "User with this email already exists"}
	ErrInvalidConfirmationToken = &Error{Kind: KindInvalidToken, Code: "INVALID_CONFIRMATION_TOKEN", Message: "Invalid or expired confirmation token"}
	ErrInvalidResetToken        = &Error{Kind: KindInvalidToken, Code: "INVALID_RESET_TOKEN", Message: "Invalid or expired reset token"}
	ErrAccountNotFound          = &Error{Kind: KindNotFound, Code: "USER_NOT_FOUND", Message: "User not found"}
	ErrAlreadyConfirmed         = &Error{Kind: KindAlreadyConfirmed, Code: "ALREADY_CONFIRMED", Message: "Email is already confirmed"}

	ErrTokenExpired   = &Error{Kind: KindUnauthorized, Code: "TOKEN_EXPIRED", Message: "Token expired"}
	ErrTokenMalformed = &Error{Kind: KindUnauthorized, Code: "TOKEN_MALFORMED", Message: "Invalid token"}
	ErrTokenInvalid   = &Error{Kind: KindUnauthorized, Code: "TOKEN_INVALID", Message: "Invalid token"}

	ErrSigningKeyMissing = &Error{Kind: KindUnavailable, Code: "SIGNING_KEY_MISSING", Message: "Server configuration error"}
)

// Validation builds a caller-input error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: msg}
}

// KindOf extracts the Kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
