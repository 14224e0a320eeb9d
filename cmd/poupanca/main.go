package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"poupanca/internal/amqp"
	"poupanca/internal/auth"
	"poupanca/internal/cli"
	"poupanca/internal/config"
	apphttp "poupanca/internal/http"
	"poupanca/internal/leaderboard"
	"poupanca/internal/log"
	"poupanca/internal/metrics"
	"poupanca/internal/services"
	"poupanca/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig((*config.Config).Validate)
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg)

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	res, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to open store", err, "backend", cfg.DataBackend)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err.Error())
		}
	}()
	// fatal closes the store first; the deferred Cleanup never runs on exit.
	fatal := func(msg string, err error, args ...any) {
		cli.FatalAfter(logger, res.Cleanup, msg, err, args...)
	}
	store := res.Store

	m := metrics.New()
	board := newBoard(ctx, cfg, store, logger)

	var exports services.ExportPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, exports left to the worker sweep", log.FieldError, err.Error())
		} else {
			defer client.Close()
			exports = client
			logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	tokens := auth.NewTokens(cfg.JWTSecretKey, cfg.JWTTTL)
	xp := services.NewXPService(store, store, board, m)
	authSvc := services.NewAuthService(store, xp, tokens, board, m)
	txs := services.NewTransactionService(store, store, exports)
	cats := services.NewCategoryService(store, authSvc)

	if cfg.AdminConfigured() {
		created, err := authSvc.EnsureAdmin(ctx, services.AdminAccount{
			Username: cfg.AdminUsername,
			Password: cfg.AdminPassword,
			Email:    cfg.AdminEmail,
			Phone:    cfg.AdminPhone,
		})
		if err != nil {
			fatal("Failed to seed admin account", err)
		}
		if created {
			logger.Info("Admin account created", "username", cfg.AdminUsername)
		}
	}

	srv, err := apphttp.NewServer(net.JoinHostPort("", cfg.Port), apphttp.Deps{
		Auth:               authSvc,
		XP:                 xp,
		Transactions:       txs,
		Categories:         cats,
		Tokens:             tokens,
		Store:              store,
		Metrics:            m,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		fatal("Failed to build HTTP server", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
	}()

	logger.Info("Starting poupanca server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("Server error", err, "port", cfg.Port)
	}
	logger.Info("Server stopped gracefully")
}

// newBoard serves rankings from Redis when REDIS_URL is set and reachable,
// falling back to the store otherwise.
func newBoard(ctx context.Context, cfg *config.Config, store storage.Store, logger *log.Logger) leaderboard.Board {
	storeBoard := leaderboard.NewStoreBoard(store)
	if cfg.RedisURL == "" {
		return storeBoard
	}
	client, err := leaderboard.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("Redis unavailable, ranking from the store", log.FieldError, err.Error())
		return storeBoard
	}
	board := leaderboard.NewRedisBoard(client, storeBoard, logger.Slog())
	n, err := board.Rebuild(ctx, store)
	if err != nil {
		logger.Warn("Leaderboard rebuild failed, ranking from the store", log.FieldError, err.Error())
		client.Close()
		return storeBoard
	}
	logger.Info("Leaderboard cached in Redis", "users", n)
	return board
}
