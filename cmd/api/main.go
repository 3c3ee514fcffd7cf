package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"

	"github.com/splax/teamroster/internal/app/migrate"
	httpx "github.com/splax/teamroster/internal/http"
	"github.com/splax/teamroster/internal/repository"
	"github.com/splax/teamroster/internal/repository/memory"
	"github.com/splax/teamroster/internal/repository/postgres"
	"github.com/splax/teamroster/internal/service/auth"
	"github.com/splax/teamroster/internal/service/documents"
	"github.com/splax/teamroster/pkg/config"
	"github.com/splax/teamroster/pkg/logger"
)

type store interface {
	repository.IdentityRepository
	repository.DocumentRepository
}

func main() {
	_ = godotenv.Load()

	cfg := config.LoadAPIConfig()
	log := logger.New("teamroster-api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo     store
		dbHealth func(context.Context) error
	)
	if cfg.UsesMemoryStore() {
		log.Warn("using in-memory store; data is lost on restart")
		repo = memory.New()
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		defer runner.Close()
		if err := runner.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		repo = postgres.New(pool)
		dbHealth = pool.Ping
	}

	var (
		limiter  httpx.RateLimiter
		docsOpts []documents.Option
	)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable; using local rate limiting and no change feed", "addr", addr, "error", err)
			_ = client.Close()
		} else {
			defer client.Close()
			limiter = httpx.NewRedisRateLimiterWithClient(client, log)
			docsOpts = append(docsOpts, documents.WithFeed(documents.NewRedisFeed(client, cfg.ChangeChannel, log)))
		}
	}

	docs := documents.New(repo, log, docsOpts...)
	defer docs.Close()
	go func() {
		if err := docs.Run(ctx); err != nil {
			log.Error("change feed stopped", "error", err)
		}
	}()

	authSvc := auth.New(repo, docs, log, cfg)

	router := httpx.NewRouter(httpx.Deps{
		Logger:    log,
		Auth:      authSvc,
		Documents: docs,
		Limiter:   limiter,
		Limits: httpx.Limits{
			Signup:    cfg.RateLimitSignup,
			Login:     cfg.RateLimitLogin,
			UserRead:  cfg.RateLimitUserRead,
			UserWrite: cfg.RateLimitUserWrite,
		},
		StreamHeartbeat: cfg.StreamHeartbeat,
		MetricsEnabled:  cfg.MetricsEnabled,
		DBHealth:        dbHealth,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreDriver, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
