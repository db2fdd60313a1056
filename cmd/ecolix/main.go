package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ecolix/ecolix/cmd/ecolix/cli"
	"github.com/ecolix/ecolix/internal/app"
	"github.com/ecolix/ecolix/internal/audit"
	audithttp "github.com/ecolix/ecolix/internal/audit/http"
	"github.com/ecolix/ecolix/internal/auth"
	"github.com/ecolix/ecolix/internal/observability"
	"github.com/ecolix/ecolix/internal/overrides"
	"github.com/ecolix/ecolix/internal/platform/cache"
	"github.com/ecolix/ecolix/internal/platform/db"
	"github.com/ecolix/ecolix/internal/rbac"
	"github.com/ecolix/ecolix/internal/roles"
	"github.com/ecolix/ecolix/internal/shared"
	"github.com/ecolix/ecolix/internal/users"
	"github.com/ecolix/ecolix/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	if len(args) > 0 && args[0] != "serve" {
		os.Exit(dispatch(ctx, args))
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("ecolix stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, args []string) int {
	switch args[0] {
	case "-h", "--help", "help":
		cli.Usage(os.Stdout)
		return cli.ExitOK
	case "purge":
		cmd := cli.NewPurgeCommand(func() (cli.PurgeEnqueuer, func() error, error) {
			cfg, err := app.LoadConfig()
			if err != nil {
				return nil, nil, err
			}
			redisOpts, err := cfg.RedisOptions()
			if err != nil {
				return nil, nil, err
			}
			client, err := jobs.NewClient(jobs.RedisOpt(redisOpts))
			if err != nil {
				return nil, nil, err
			}
			return client, client.Close, nil
		})
		return cmd.Run(ctx, args[1:], cli.Streams{})
	}
	cmd, ok := cli.Lookup(args[0])
	if !ok {
		_, _ = fmt.Fprintf(os.Stderr, "ecolix: unknown command %q\n", args[0])
		cli.Usage(os.Stderr)
		return cli.ExitUsage
	}
	return cmd.Run(ctx, args[1:], cli.Streams{})
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	catalog := rbac.DefaultCatalog()
	if err := rbac.VerifyWall(catalog); err != nil {
		return fmt.Errorf("role catalog breaches the wall: %w", err)
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{ApplicationName: "ecolix"})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "ecolix_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	var tokens *auth.TokenManager
	resolver := rbac.ChainResolver{}
	if cfg.TokensEnabled() {
		if tokens, err = auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL); err != nil {
			return err
		}
		resolver.Bearer = rbac.BearerResolver{Tokens: tokens}
	}

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, logger)
	overridesService := overrides.NewService(overrides.NewRepository(pool), usersService, logger)

	authz := rbac.NewService(
		rbac.NewContextBuilder(usersService, overridesService),
		rbac.NewEvaluator(catalog),
		rbac.ServiceConfig{
			FailClosed: cfg.AuthzFailClosed,
			MaxBatch:   cfg.AuthzMaxBatch,
			Metrics:    rbac.NewMetrics(metrics.Registerer()),
			Logger:     logger,
		},
	)
	guard := rbac.Middleware{Service: authz, Resolver: resolver, Logger: logger}

	authService := auth.NewService(auth.NewRepository(pool), tokens)
	overridesHandler := overrides.NewHandler(logger, overridesService, guard)

	inspector := asynq.NewInspector(jobs.RedisOpt(redisOpts))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager, csrfManager),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, authz, resolver),
		UsersHandler:       users.NewHandler(logger, usersService, guard, overridesHandler),
		RolesHandler:       roles.NewHandler(logger, roles.NewService(roles.NewRepository(pool), catalog), guard),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), guard),
		JobHandler:         jobs.NewHandler(inspector, logger),
		RBACMiddleware:     guard,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.Int("grants", catalog.Len()),
			slog.Bool("bearer_tokens", tokens != nil),
			slog.Bool("fail_closed", cfg.AuthzFailClosed))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
