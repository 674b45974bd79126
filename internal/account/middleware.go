package account

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/entity"
)

type ctxKey struct{}

// WithAccount stores the authenticated account on ctx.
func WithAccount(ctx context.Context, acc *entity.AccountWithProfile) context.Context {
	return context.WithValue(ctx, ctxKey{}, acc)
}

// AccountFromContext returns the account placed by Authenticate.
func AccountFromContext(ctx context.Context) (*entity.AccountWithProfile, bool) {
	acc, ok := ctx.Value(ctxKey{}).(*entity.AccountWithProfile)
	return acc, ok && acc != nil
}

// Authenticate requires a valid "Authorization: Bearer <jwt>" header whose
// account still exists and is active.
func Authenticate(svc *Service, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "Access token required"})
				return
			}
			acc, err := svc.Authenticate(r.Context(), token)
			if err != nil {
				status, msg := authFailure(err)
				if status == http.StatusInternalServerError {
					logger.Errorw("authentication failed", "path", r.URL.Path, "err", err)
				} else {
					logger.Debugw("authentication rejected", "path", r.URL.Path, "reason", msg)
				}
				writeJSON(w, status, envelope{Success: false, Error: msg})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acc)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, ErrTokenMalformed), errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusUnauthorized, "User not found"
	case errors.Is(err, ErrAccountInactive):
		return http.StatusUnauthorized, "Account is inactive"
	case KindOf(err) == KindUnavailable:
		return http.StatusServiceUnavailable, "Authentication unavailable"
	default:
		return http.StatusInternalServerError, "Authentication failed"
	}
}

// RequireRole admits only accounts whose profile role is listed. It must run
// after Authenticate.
func RequireRole(roles ...entity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc, ok := AccountFromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "Authentication required"})
				return
			}
			if !slices.Contains(roles, acc.Profile.Role) {
				writeJSON(w, http.StatusForbidden, envelope{Success: false, Error: "Insufficient permissions"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
