package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account"
	accountrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/mail"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	// best-effort: real environment wins when no .env exists
	_ = godotenv.Load()

	logCfg := utilities.ConfigFromEnv()
	lg, err := utilities.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-auth-go")

	cfg, err := config.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db.DB, sugar); err != nil {
		sugar.Fatalf("db migrate: %v", err)
	}

	tokens, err := account.NewTokenIssuer(account.TokenConfig{
		Secret: cfg.JWTSecret,
		TTL:    cfg.JWTExpiresIn,
		Issuer: cfg.JWTIssuer,
	})
	if err != nil {
		sugar.Fatalf("token issuer: %v", err)
	}

	notifier := account.NewNotifier(newMailer(cfg, logCfg.Dev, sugar), sugar,
		account.WithFrontendURL(cfg.FrontendURL),
		account.WithSender(cfg.Mail.From),
	)
	svc := account.NewService(
		accountrepo.NewAccountRepo(db),
		account.BcryptHasher{Cost: account.DefaultBcryptCost},
		tokens,
		notifier,
		sugar,
		account.Options{
			ConfirmationTokenTTL: cfg.ConfirmationTokenTTL,
			RecoveryTokenTTL:     cfg.RecoveryTokenTTL,
		},
	)

	handler := router.RegisterRoutes(sugar, router.Deps{DB: db, Accounts: svc, CORSOrigin: cfg.CORSOrigin})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	// let queued confirmation and reset emails finish
	drained := make(chan struct{})
	go func() {
		svc.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-doneCtx.Done():
		sugar.Warn("email dispatch still in flight at shutdown")
	}

	sugar.Info("goodbye")
}

// newMailer picks SMTP when configured, otherwise a mailer that only logs.
func newMailer(cfg config.Config, verbose bool, logger *zap.SugaredLogger) mail.Mailer {
	if !cfg.Mail.Enabled() {
		logger.Warn("SMTP_HOST not set; emails will be logged, not sent")
		return mail.LogMailer{Logger: logger, Verbose: verbose}
	}
	m, err := mail.NewSMTPMailer(cfg.Mail.SMTP)
	if err != nil {
		logger.Fatalf("smtp mailer: %v", err)
	}
	return m
}
