package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasgrid/pgtiles/internal/cache"
	"github.com/atlasgrid/pgtiles/internal/cache/memstore"
	"github.com/atlasgrid/pgtiles/internal/cache/redisstore"
	"github.com/atlasgrid/pgtiles/internal/catalog"
	"github.com/atlasgrid/pgtiles/internal/core/config"
	"github.com/atlasgrid/pgtiles/internal/core/executor"
	"github.com/atlasgrid/pgtiles/internal/core/observability"
	"github.com/atlasgrid/pgtiles/internal/core/router"
	"github.com/atlasgrid/pgtiles/internal/core/server"
	"github.com/atlasgrid/pgtiles/internal/logger"
	"github.com/atlasgrid/pgtiles/pkg/invalidation/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "pgtiles",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting tile server", "addr", cfg.Addr, "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		appLog.Error("database pool setup failed", "err", err)
		return 1
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		appLog.Error("database unreachable", "err", err)
		return 1
	}

	store := catalog.NewStore()
	introspector := catalog.NewIntrospector(pool, appLog)
	refresher := catalog.NewRefresher(appLog, introspector, store,
		catalog.Options{StrictNames: cfg.CatalogStrictNames})
	if err := refresher.Refresh(ctx); err != nil {
		appLog.Error("initial catalog scan failed", "err", err)
		return 1
	}
	go refresher.Run(ctx, cfg.CatalogRefresh)

	tileCache, err := buildCache(ctx, cfg)
	if err != nil {
		appLog.Error("cache setup failed", "driver", cfg.CacheDriver, "err", err)
		return 1
	}
	defer func() {
		if err := tileCache.Close(); err != nil {
			appLog.Warn("cache close", "err", err)
		}
	}()

	kcfg := kafka.FromEnv()
	if kcfg.Enabled {
		runner := kafka.New(kcfg, tileCache, kafka.Options{
			Logger:  appLog,
			Catalog: refresher,
		})
		if err := runner.Start(ctx); err != nil {
			appLog.Error("invalidation runner failed to start", "err", err)
			return 1
		}
		defer runner.Stop()
	}

	exec := executor.New(appLog, pool)
	handler := router.New(appLog, cfg, store, exec, tileCache)

	if err := server.Run(ctx, cfg, appLog, handler, refresher); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func buildCache(ctx context.Context, cfg config.Config) (cache.Interface, error) {
	switch cfg.CacheDriver {
	case "redis":
		return redisstore.New(ctx, cfg.RedisAddr)
	case "none":
		return cache.Nop{}, nil
	default:
		return memstore.New(cfg.CacheSize, cfg.CacheTTLDefault), nil
	}
}
