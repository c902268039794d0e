package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/congo-pay/accounts/internal/config"
	"github.com/congo-pay/accounts/internal/infra"
	"github.com/congo-pay/accounts/internal/logging"
	"github.com/congo-pay/accounts/internal/routes"
	"github.com/congo-pay/accounts/internal/server"
	"github.com/congo-pay/accounts/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewWithWriter(os.Stdout, cfg.Log.Level, cfg.Log.Format).
		With("app", cfg.App.Name, "env", cfg.App.Environment)

	ctx := context.Background()
	deps := routes.Deps{Cfg: cfg, Logger: logger}

	switch {
	case cfg.Database.URL != "":
		db, err := infra.NewPostgresPool(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			logger.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
		deps.DB = db
	case cfg.Database.SQLitePath != "":
		sqlite, err := infra.NewSQLite(cfg.Database.SQLitePath)
		if err != nil {
			logger.Error("open sqlite", "error", err)
			os.Exit(1)
		}
		if sqlDB, err := sqlite.DB(); err == nil {
			defer sqlDB.Close()
		}
		deps.SQL = sqlite
		logger.Info("using embedded sqlite store", "path", cfg.Database.SQLitePath)
	default:
		logger.Warn("no database configured, state is kept in memory")
	}

	if cfg.Redis.URL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		deps.Cache = cache
	} else {
		logger.Warn("no redis configured, idempotency disabled and login limits are per process")
	}

	srv, err := server.New(deps)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
