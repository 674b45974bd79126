package account

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/entity"
)

const maxBodyBytes = 1 << 20

// Handler exposes the account lifecycle over HTTP.
type Handler struct {
	svc      *Service
	logger   *zap.SugaredLogger
	validate *validator.Validate
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Handler{svc: svc, logger: logger, validate: v}
}

// envelope is the JSON body of every response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	User    any    `json:"user,omitempty"`
}

// UserView is the public projection of an account and its profile.
type UserView struct {
	ID               string      `json:"id"`
	Email            string      `json:"email"`
	FullName         string      `json:"full_name"`
	BusinessName     string      `json:"business_name"`
	Role             entity.Role `json:"role"`
	Phone            *string     `json:"phone"`
	Address          *string     `json:"address"`
	AvatarURL        *string     `json:"avatar_url"`
	IsActive         bool        `json:"is_active"`
	EmailConfirmedAt *time.Time  `json:"email_confirmed_at"`
	LastSignInAt     *time.Time  `json:"last_sign_in_at"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func NewUserView(a *entity.AccountWithProfile) UserView {
	return UserView{
		ID:               a.ID,
		Email:            a.Email,
		FullName:         a.FullName,
		BusinessName:     a.BusinessName,
		Role:             a.Profile.Role,
		Phone:            a.Profile.Phone,
		Address:          a.Profile.Address,
		AvatarURL:        a.Profile.AvatarURL,
		IsActive:         a.Profile.IsActive,
		EmailConfirmedAt: a.EmailConfirmedAt,
		LastSignInAt:     a.LastSignInAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type sessionData struct {
	User      UserView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterRequest body for POST /register.
type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6"`
	FullName     string `json:"full_name" validate:"max=255"`
	BusinessName string `json:"business_name" validate:"max=255"`
}

var registerMessages = map[string]string{
	"email.required":    "Email and password are required",
	"password.required": "Email and password are required",
	"password.min":      "Password must be at least 6 characters long",
	"email.email":       "Please provide a valid email address",
}

// LoginRequest body for POST /login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

var loginMessages = map[string]string{
	"email.required":    "Email and password are required",
	"password.required": "Email and password are required",
}

// TokenRequest body for POST /confirm-email.
type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// EmailRequest body for POST /forgot-password and /resend-confirmation.
type EmailRequest struct {
	Email string `json:"email" validate:"required"`
}

// ResetPasswordRequest body for POST /reset-password.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

var resetMessages = map[string]string{
	"token.required":       "Token and new password are required",
	"newPassword.required": "Token and new password are required",
	"newPassword.min":      "Password must be at least 6 characters long",
}

// SetActiveRequest body for PATCH /accounts/{id}/active.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Auth routes are working!"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req, registerMessages) {
		return
	}
	sess, err := h.svc.Register(r.Context(), RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		FullName:     req.FullName,
		BusinessName: req.BusinessName,
	})
	if err != nil {
		h.writeError(w, r, err, "Failed to create account")
		return
	}
	h.writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Data:    sessionData{User: NewUserView(sess.Account), Token: sess.Token, ExpiresAt: sess.ExpiresAt},
		Message: "Account created successfully. Please check your email to confirm your account.",
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req, loginMessages) {
		return
	}
	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err, "Login failed")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    sessionData{User: NewUserView(sess.Account), Token: sess.Token, ExpiresAt: sess.ExpiresAt},
		Message: "Login successful",
	})
}

func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req, map[string]string{"token.required": "Confirmation token is required"}) {
		return
	}
	if err := h.svc.ConfirmEmail(r.Context(), req.Token); err != nil {
		h.writeError(w, r, err, "Email confirmation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Email confirmed successfully"})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req, map[string]string{"email.required": "Email is required"}) {
		return
	}
	if err := h.svc.InitiatePasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err, "Failed to process password reset request")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "If an account with that email exists, a password reset link has been sent",
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req, resetMessages) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeError(w, r, err, "Password reset failed")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Password reset successful"})
}

func (h *Handler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req, map[string]string{"email.required": "Email is required"}) {
		return
	}
	if err := h.svc.ResendConfirmation(r.Context(), req.Email); err != nil {
		// unknown account is a client error here, not a 404
		if KindOf(err) == KindNotFound {
			h.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
			return
		}
		h.writeError(w, r, err, "Failed to resend confirmation email")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Confirmation email sent successfully"})
}

// Profile requires Authenticate.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	current, ok := AccountFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "Authentication required"})
		return
	}
	acc, err := h.svc.GetAccountByID(r.Context(), current.ID)
	if err != nil {
		h.writeError(w, r, err, "Failed to get profile")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: NewUserView(acc)})
}

// VerifyToken requires Authenticate; reaching it means the token is valid.
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	current, ok := AccountFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "Invalid token"})
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Token is valid", User: NewUserView(current)})
}

// Logout is a no-op: sessions are stateless and the client discards its token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Logged out successfully"})
}

// SetActive requires Authenticate and RequireRole(admin).
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !h.decode(w, r, &req, map[string]string{"active.required": "Active flag is required"}) {
		return
	}
	id := r.PathValue("id")
	if err := h.svc.SetAccountActive(r.Context(), id, *req.Active); err != nil {
		h.writeError(w, r, err, "Failed to update account")
		return
	}
	acc, err := h.svc.GetAccountByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "Failed to update account")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: NewUserView(acc)})
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, messages map[string]string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "Invalid JSON payload"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: validationMessage(err, messages)})
		return false
	}
	return true
}

func validationMessage(err error, messages map[string]string) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid request payload"
	}
	fe := ve[0]
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch KindOf(err) {
	case KindValidation, KindInvalidToken, KindAlreadyConfirmed:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the service error's message, or fallback for
// internal failures whose detail must not leak.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := StatusFor(err)
	body := envelope{Success: false}
	var e *Error
	if status == http.StatusInternalServerError || !errors.As(err, &e) {
		h.logger.Errorw("request failed", "path", r.URL.Path, "err", err)
		body.Error = fallback
		h.writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	h.logger.Debugw("request rejected", "path", r.URL.Path, "code", e.Code)
	body.Error = e.Message
	if errors.Is(err, ErrEmailNotConfirmed) {
		body.Code = e.Code
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
