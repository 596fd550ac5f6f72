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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/GamerLionLeo/CGM-Trakr/internal/client/dexcom"
	"github.com/GamerLionLeo/CGM-Trakr/internal/config"
	"github.com/GamerLionLeo/CGM-Trakr/internal/feed"
	"github.com/GamerLionLeo/CGM-Trakr/internal/migrations"
	"github.com/GamerLionLeo/CGM-Trakr/internal/oauth"
	"github.com/GamerLionLeo/CGM-Trakr/internal/server"
	"github.com/GamerLionLeo/CGM-Trakr/internal/session"
	"github.com/GamerLionLeo/CGM-Trakr/internal/settings"
	"github.com/GamerLionLeo/CGM-Trakr/internal/token"
	"github.com/GamerLionLeo/CGM-Trakr/internal/user"
	"github.com/GamerLionLeo/CGM-Trakr/internal/xslog"
)

const keyPort = "port"

func newServeCmd(logger *slog.Logger) *cobra.Command {
	var simulated bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the CGM-Trakr HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), logger, simulated)
		},
	}
	cmd.Flags().BoolVar(&simulated, "simulated", false, "serve simulated glucose data instead of the real provider")
	return cmd
}

func runServe(ctx context.Context, logger *slog.Logger, simulated bool) error {
	cfg, err := config.Read()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	if err := migrations.Apply(ctx, cfg.Database.URL); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	tokens := token.NewPostgresStore(pool)
	settingsStore := settings.NewRedisStore(redisClient)
	oauthService := oauth.NewService(cfg.Dexcom, tokens, logger)
	users := user.NewPostgresService(pool)

	clientFor := func(userID string) *dexcom.Client {
		return dexcom.New(
			oauth.NewStoreTokenSource(tokens, userID),
			dexcom.WithBaseURL(cfg.Dexcom.BaseURL),
			dexcom.WithLogger(logger),
		)
	}

	sessions := session.NewManager(func(userID string) *session.Session {
		sessionCfg := session.Config{
			UserID:   userID,
			Settings: settingsStore,
			Interval: cfg.Poll.Interval,
			Logger:   logger,
		}
		if simulated {
			sessionCfg.Source = feed.NewSimulatedSource(time.Now().UnixNano())
		} else {
			sessionCfg.Auth = oauthService
			sessionCfg.Source = feed.NewDexcomSource(clientFor(userID))
		}
		return session.New(sessionCfg)
	})

	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.New(server.Deps{
			Config:   cfg,
			Logger:   logger,
			Users:    users,
			Sessions: sessions,
			OAuth:    oauthService,
			Clients:  clientFor,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.InfoContext(ctx, "starting server", slog.String(keyPort, cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "server error", xslog.Error(err))
		}
	}()

	<-done
	logger.InfoContext(ctx, "shutdown signal received, stopping pollers")
	sessions.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.InfoContext(ctx, "server stopped")
	return nil
}
