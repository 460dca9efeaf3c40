package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/config"
	"github.com/spec-kit/adoption-client/internal/observability"
	"github.com/spec-kit/adoption-client/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accounts := buildAccounts(ctx, cfg, logger)
	refreshTokens := buildRefreshTokens(cfg, logger)

	if cfg.Stub.SeedAccounts {
		if err := server.SeedAccounts(ctx, accounts, cfg.Stub.BcryptCost, logger); err != nil {
			logger.Fatal("failed to seed accounts", zap.Error(err))
		}
	}

	srv := server.New(cfg.Stub, accounts, refreshTokens, logger)

	go func() {
		logger.Info("stub api listening", zap.String("addr", cfg.Stub.Addr()))
		if err := srv.Listen(cfg.Stub.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = srv.Shutdown()
}

func buildAccounts(ctx context.Context, cfg *config.Config, logger *zap.Logger) server.AccountRepository {
	if cfg.Stub.PostgresDSN == "" {
		logger.Info("no STUB_POSTGRES_DSN, using in-memory accounts")
		return server.NewMemoryAccountRepository()
	}

	pool, err := server.NewPool(ctx, cfg.Stub.PostgresDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	if err := server.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	return server.NewPgAccountRepository(pool)
}

func buildRefreshTokens(cfg *config.Config, logger *zap.Logger) server.RefreshTokenStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis, using in-memory refresh tokens", zap.Error(err))
		_ = client.Close()
		return server.NewMemoryRefreshTokenStore()
	}
	logger.Info("connected to redis")
	return server.NewRedisRefreshTokenStore(client)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
