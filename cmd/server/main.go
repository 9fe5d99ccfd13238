package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/NightOwlRecon/IntriCase/api/handler"
	"github.com/NightOwlRecon/IntriCase/internal/authcookie"
	"github.com/NightOwlRecon/IntriCase/internal/config"
	"github.com/NightOwlRecon/IntriCase/internal/infrastructure/monitor"
	"github.com/NightOwlRecon/IntriCase/internal/infrastructure/outbox"
	pgInfra "github.com/NightOwlRecon/IntriCase/internal/infrastructure/postgres"
	redisInfra "github.com/NightOwlRecon/IntriCase/internal/infrastructure/redis"
	"github.com/NightOwlRecon/IntriCase/internal/mail"
	"github.com/NightOwlRecon/IntriCase/internal/middleware"
	"github.com/NightOwlRecon/IntriCase/internal/router"
	"github.com/NightOwlRecon/IntriCase/internal/services"
	"github.com/NightOwlRecon/IntriCase/internal/services/lifecycle"
	"github.com/NightOwlRecon/IntriCase/pkg/credential"
	"github.com/NightOwlRecon/IntriCase/pkg/httpcontext"
	"github.com/NightOwlRecon/IntriCase/pkg/logger"
	"github.com/NightOwlRecon/IntriCase/repository"
	"github.com/NightOwlRecon/IntriCase/repository/memory"
	"github.com/NightOwlRecon/IntriCase/repository/postgres"
	redisRepo "github.com/NightOwlRecon/IntriCase/repository/redis"
	"github.com/NightOwlRecon/IntriCase/usecase"
	authUC "github.com/NightOwlRecon/IntriCase/usecase/auth"
	sessionsUC "github.com/NightOwlRecon/IntriCase/usecase/sessions"
	usersUC "github.com/NightOwlRecon/IntriCase/usecase/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	for _, problem := range cfg.Problems() {
		zapLogger.Error("configuration problem; affected checks will fail closed", zap.Error(problem))
	}

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	hasher, err := credential.NewHasher(credential.Params{
		Memory:      cfg.Auth.HashMemoryKiB,
		Iterations:  cfg.Auth.HashIterations,
		Parallelism: cfg.Auth.HashParallelism,
		SaltLength:  16,
		KeyLength:   32,
	}, cfg.Auth.HashConcurrency)
	if err != nil {
		zapLogger.Fatal("invalid hashing parameters", zap.Error(err))
	}

	cookies, err := authcookie.New(authcookie.Config{
		Secret: []byte(cfg.Auth.CookieSecret),
		Issuer: cfg.Auth.CookieIssuer,
		Secure: cfg.Auth.CookieSecure,
		MaxAge: cfg.Auth.SessionValidity,
	})
	if err != nil {
		zapLogger.Fatal("cookie codec", zap.Error(err))
	}

	var (
		userRepo    repository.UserRepository
		sessionRepo repository.SessionRepository
		monitorOpts []monitor.Option
	)

	switch cfg.Storage.Driver {
	case "memory":
		zapLogger.Warn("using in-memory storage; accounts and sessions are lost on restart")
		userRepo = memory.NewUserRepository()
		sessionRepo = memory.NewSessionRepository()
	default:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}
		pool, err := pgInfra.NewPool(appCtx, cfg.Database, cfg.AppName, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pgInfra.Close(pool, zapLogger)
			return nil
		})
		monitorOpts = append(monitorOpts, monitor.WithPostgres(pool))
		userRepo = postgres.NewUserRepository(pool)
		sessionRepo = sessionStore(appCtx, cfg, pool, manager, &monitorOpts, zapLogger)
	}

	var (
		outboxStore *outbox.Store
		sender      *mail.SMTPSender
	)
	if cfg.Mail.Enabled {
		outboxStore, err = outbox.Open(cfg.Outbox.Path, "outbox")
		if err != nil {
			zapLogger.Fatal("failed to open outbox store", zap.Error(err))
		}
		manager.Register("outbox", func(ctx context.Context) error {
			return outboxStore.Close()
		})
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			User:     cfg.Mail.User,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			Timeout:  cfg.Mail.Timeout,
		})
		monitorOpts = append(monitorOpts, monitor.WithOutbox(outboxStore), monitor.WithSMTP(sender.Addr()))
	}

	mon := monitor.New(10*time.Second, zapLogger, monitorOpts...)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	var notifier usecase.Notifier
	if outboxStore != nil {
		processor := services.NewOutboxProcessor(
			outboxStore,
			mon,
			userRepo,
			mail.NewRenderer(cfg.Mail.BaseURL, cfg.Auth.OTPValidity),
			sender,
			zapLogger,
			services.ProcessorConfig{
				Interval:    cfg.Outbox.SyncInterval,
				BatchSize:   50,
				MaxRetries:  cfg.Outbox.MaxRetry,
				Retention:   time.Duration(cfg.Outbox.RetentionHours) * time.Hour,
				OTPValidity: cfg.Auth.OTPValidity,
			},
		)
		processor.Start()
		manager.Register("outbox_processor", func(ctx context.Context) error {
			processor.Stop(ctx)
			return nil
		})
		notifier = services.NewMailBridge(processor)
	} else {
		zapLogger.Warn("mail delivery disabled; use the invite command to obtain activation links")
	}

	userUseCase := usersUC.New(userRepo, hasher, hasher, notifier, usersUC.Config{OTPValidity: cfg.Auth.OTPValidity}, zapLogger)
	sessionUseCase := sessionsUC.New(sessionRepo, cfg.Auth.SessionValidity, zapLogger)
	authUseCase := authUC.New(userUseCase, sessionUseCase, hasher, zapLogger)

	if email := cfg.Storage.BootstrapEmail; email != "" {
		bootstrap(appCtx, cfg, userUseCase, email, zapLogger)
	} else if cfg.Storage.Driver == "memory" {
		zapLogger.Warn("memory store without BOOTSTRAP_EMAIL; no account can sign in")
	}

	sweeper := services.NewSessionSweeper(sessionUseCase, time.Hour, zapLogger)
	sweeper.Start()
	manager.Register("session_sweeper", func(ctx context.Context) error {
		sweeper.Stop(ctx)
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth:   apiHandler.NewAuthHandler(authUseCase, cookies, ctxAdapter, zapLogger),
		Users:  apiHandler.NewUsersHandler(userUseCase, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	gate := middleware.NewSessionGate(authUseCase, cookies, ctxAdapter, cfg.Auth.LoginRedirect, zapLogger)
	r := router.New(handlers, gate)

	server := &fasthttp.Server{
		Handler:            r.Handler,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		Concurrency:        cfg.HTTP.MaxConn,
		MaxRequestBodySize: 64 * 1024,
		Name:               cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}

// bootstrap makes sure the configured first account exists. A new account's
// activation link goes to stdout, not the structured log.
func bootstrap(ctx context.Context, cfg *config.Config, uc *usersUC.UseCase, email string, zapLogger *zap.Logger) {
	user, created, err := uc.Bootstrap(ctx, email)
	if err != nil {
		zapLogger.Fatal("bootstrap account failed", zap.Error(err))
	}
	if !created {
		zapLogger.Info("bootstrap account already exists", zap.String("user_id", user.ID))
		return
	}
	zapLogger.Info("bootstrap account created", zap.String("user_id", user.ID))
	renderer := mail.NewRenderer(cfg.Mail.BaseURL, cfg.Auth.OTPValidity)
	fmt.Fprintf(os.Stdout, "bootstrap account %s (%s)\nactivation link, valid for %s:\n%s\n",
		user.ID, user.Email, cfg.Auth.OTPValidity, renderer.Link(mail.Activation, user.ID, *user.OTP))
}

func sessionStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, manager *lifecycle.Manager, opts *[]monitor.Option, zapLogger *zap.Logger) repository.SessionRepository {
	if cfg.Storage.SessionStore != "redis" {
		return postgres.NewSessionRepository(pool)
	}
	client, err := redisInfra.NewClient(ctx, cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return client.Close()
	})
	*opts = append(*opts, monitor.WithRedis(client))
	return redisRepo.NewSessionRepository(client, cfg.Auth.SessionValidity)
}
