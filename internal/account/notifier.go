package account

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/mail"
)

const (
	defaultSendTimeout = 30 * time.Second

	linkTypeConfirmation = "email_confirmation"
	linkTypeReset        = "password_reset"

	confirmationSubject = "Confirm Your Email - Business Inventory"
	resetSubject        = "Reset Your Password - Business Inventory"
)

// NotifierOption customises a Notifier.
type NotifierOption func(*Notifier)

// WithFrontendURL sets the base of the links embedded in emails.
func WithFrontendURL(u string) NotifierOption {
	return func(n *Notifier) { n.frontendURL = strings.TrimRight(u, "/") }
}

// WithSender sets the From header.
func WithSender(from string) NotifierOption {
	return func(n *Notifier) { n.from = from }
}

// WithSendTimeout bounds each background send.
func WithSendTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// Notifier renders confirmation and reset emails and dispatches them in the
// background. Send failures are logged and counted, never returned.
type Notifier struct {
	mailer      mail.Mailer
	logger      *zap.SugaredLogger
	frontendURL string
	from        string
	timeout     time.Duration
	wg          sync.WaitGroup
}

func NewNotifier(mailer mail.Mailer, logger *zap.SugaredLogger, opts ...NotifierOption) *Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	n := &Notifier{mailer: mailer, logger: logger, timeout: defaultSendTimeout}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ConfirmationLink is FRONTEND_URL/auth/callback?token=<t>&type=email_confirmation.
func (n *Notifier) ConfirmationLink(token string) string {
	return n.callbackLink(token, linkTypeConfirmation)
}

// ResetLink is FRONTEND_URL/auth/callback?token=<t>&type=password_reset.
func (n *Notifier) ResetLink(token string) string {
	return n.callbackLink(token, linkTypeReset)
}

func (n *Notifier) callbackLink(token, typ string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("type", typ)
	return n.frontendURL + "/auth/callback?" + q.Encode()
}

// ConfirmationMessage builds the email sent after registration or resend.
func (n *Notifier) ConfirmationMessage(to, token string) (mail.Message, error) {
	link := n.ConfirmationLink(token)
	html, err := render(confirmationTemplate, link)
	if err != nil {
		return mail.Message{}, err
	}
	return mail.Message{
		From:    n.from,
		To:      []string{to},
		Subject: confirmationSubject,
		HTML:    html,
		Text:    "Please confirm your email by clicking this link: " + link,
	}, nil
}

// ResetMessage builds the password reset email.
func (n *Notifier) ResetMessage(to, token string) (mail.Message, error) {
	link := n.ResetLink(token)
	html, err := render(resetTemplate, link)
	if err != nil {
		return mail.Message{}, err
	}
	return mail.Message{
		From:    n.from,
		To:      []string{to},
		Subject: resetSubject,
		HTML:    html,
		Text:    "Reset your password by clicking this link: " + link,
	}, nil
}

// SendConfirmation dispatches the confirmation email without blocking.
func (n *Notifier) SendConfirmation(to, token string) {
	msg, err := n.ConfirmationMessage(to, token)
	n.dispatch("confirmation", msg, err)
}

// SendPasswordReset dispatches the reset email without blocking.
func (n *Notifier) SendPasswordReset(to, token string) {
	msg, err := n.ResetMessage(to, token)
	n.dispatch("password_reset", msg, err)
}

func (n *Notifier) dispatch(kind string, msg mail.Message, err error) {
	if err != nil {
		n.logger.Errorw("render email failed", "kind", kind, "err", err)
		metrics.EmailDispatches.WithLabelValues(kind, "failed").Inc()
		return
	}
	if n.mailer == nil {
		n.logger.Warnw("no mailer configured, email dropped", "kind", kind, "to", msg.To)
		metrics.EmailDispatches.WithLabelValues(kind, "failed").Inc()
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		// detached from the request: the caller has already answered
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.mailer.Send(ctx, msg); err != nil {
			n.logger.Warnw("send email failed", "kind", kind, "to", msg.To, "err", err)
			metrics.EmailDispatches.WithLabelValues(kind, "failed").Inc()
			return
		}
		n.logger.Infow("email sent", "kind", kind, "to", msg.To)
		metrics.EmailDispatches.WithLabelValues(kind, "sent").Inc()
	}()
}

// Wait blocks until all in-flight dispatches have finished.
func (n *Notifier) Wait() { n.wg.Wait() }

func render(t *template.Template, link string) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, struct{ Link string }{link}); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Confirm Your Email</title>
</head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background-color: #f8f9fa; padding: 30px; border-radius: 8px;">
    <h1 style="color: #2c3e50; text-align: center;">Welcome to Business Inventory!</h1>
    <p style="color: #34495e; font-size: 16px; line-height: 1.6;">
      Thank you for creating an account with Business Inventory. To complete your registration,
      please confirm your email address by clicking the button below:
    </p>
    <div style="text-align: center; margin: 30px 0;">
      <a href="{{.Link}}" style="background-color: #3498db; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; font-weight: bold; display: inline-block;">Confirm Email Address</a>
    </div>
    <p style="color: #7f8c8d; font-size: 14px;">
      If the button doesn't work, you can copy and paste this link into your browser:<br>
      <a href="{{.Link}}" style="color: #3498db;">{{.Link}}</a>
    </p>
    <p style="color: #7f8c8d; font-size: 14px;">
      This link will expire in 24 hours. If you didn't create this account, you can safely ignore this email.
    </p>
  </div>
</body>
</html>
`))

var resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Reset Your Password</title>
</head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background-color: #f8f9fa; padding: 30px; border-radius: 8px;">
    <h1 style="color: #2c3e50; text-align: center;">Reset Your Password</h1>
    <p style="color: #34495e; font-size: 16px; line-height: 1.6;">
      You recently requested to reset your password for your Business Inventory account.
      Click the button below to reset it:
    </p>
    <div style="text-align: center; margin: 30px 0;">
      <a href="{{.Link}}" style="background-color: #e74c3c; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; font-weight: bold; display: inline-block;">Reset Password</a>
    </div>
    <p style="color: #7f8c8d; font-size: 14px;">
      If the button doesn't work, you can copy and paste this link into your browser:<br>
      <a href="{{.Link}}" style="color: #e74c3c;">{{.Link}}</a>
    </p>
    <p style="color: #7f8c8d; font-size: 14px;">
      This link will expire in 1 hour. If you didn't request a password reset, you can safely ignore this email.
      Your password will remain unchanged.
    </p>
  </div>
</body>
</html>
`))
