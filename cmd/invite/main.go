// Command invite creates an account from the operator's terminal and prints
// its activation link. It bootstraps the first administrator, since the
// invite endpoint itself requires a session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NightOwlRecon/IntriCase/internal/config"
	pgInfra "github.com/NightOwlRecon/IntriCase/internal/infrastructure/postgres"
	"github.com/NightOwlRecon/IntriCase/internal/mail"
	"github.com/NightOwlRecon/IntriCase/pkg/credential"
	"github.com/NightOwlRecon/IntriCase/pkg/logger"
	"github.com/NightOwlRecon/IntriCase/repository/postgres"
	usersUC "github.com/NightOwlRecon/IntriCase/usecase/users"
)

func main() {
	email := flag.String("email", "", "email address of the account to create")
	resend := flag.String("resend", "", "reissue the activation link for this user id instead")
	flag.Parse()

	if strings.TrimSpace(*email) == "" && *resend == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.Storage.Driver != "postgres" {
		log.Fatalf("invite requires STORE_DRIVER=postgres")
	}
	if cfg.Auth.OTPValidity <= 0 {
		log.Fatalf("OTP_VALIDITY_HOURS must be set; the link would never be valid")
	}

	zapLogger, err := logger.New(logger.Config{Level: "warn", Encoding: "console"})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}
	pool, err := pgInfra.NewPool(ctx, cfg.Database, cfg.AppName+"-invite", zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pool.Close()

	// Tokens only; no password is hashed here.
	tokens, err := credential.NewHasher(credential.DefaultParams(), 1)
	if err != nil {
		zapLogger.Fatal("hasher", zap.Error(err))
	}
	uc := usersUC.New(postgres.NewUserRepository(pool), tokens, tokens, nil, usersUC.Config{OTPValidity: cfg.Auth.OTPValidity}, zapLogger)

	var userID string
	if *resend != "" {
		user, err := uc.ResendActivation(ctx, *resend)
		if err != nil {
			zapLogger.Fatal("resend failed", zap.Error(err))
		}
		userID = user.ID
	} else {
		user, err := uc.Invite(ctx, strings.TrimSpace(*email))
		if err != nil {
			zapLogger.Fatal("invite failed", zap.Error(err))
		}
		userID = user.ID
	}

	user, err := uc.FindByID(ctx, userID)
	if err != nil || !user.HasPendingOTP() {
		zapLogger.Fatal("activation token not found", zap.Error(err))
	}
	renderer := mail.NewRenderer(cfg.Mail.BaseURL, cfg.Auth.OTPValidity)
	fmt.Printf("user %s (%s)\nactivation link, valid for %s:\n%s\n", user.ID, user.Email, cfg.Auth.OTPValidity, renderer.Link(mail.Activation, user.ID, *user.OTP))
}
