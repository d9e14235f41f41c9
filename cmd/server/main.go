package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/fleetimport/internal/advisor"
	"github.com/JonMunkholm/fleetimport/internal/config"
	"github.com/JonMunkholm/fleetimport/internal/core"
	_ "github.com/JonMunkholm/fleetimport/internal/core/tables" // Register all entities
	"github.com/JonMunkholm/fleetimport/internal/decode"
	"github.com/JonMunkholm/fleetimport/internal/logging"
	"github.com/JonMunkholm/fleetimport/internal/metrics"
	"github.com/JonMunkholm/fleetimport/internal/store"
	"github.com/JonMunkholm/fleetimport/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"chunk_size", cfg.Import.ChunkSize,
		"advisor", cfg.Advisor.Provider,
		"profiles", cfg.Profiles.Backend,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := store.Migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	metrics.Init()

	adv, closeAdvisor, err := advisor.New(ctx, advisor.Config{
		Provider: cfg.Advisor.Provider,
		OpenAI: advisor.OpenAIConfig{
			APIKey:  cfg.Advisor.OpenAIKey,
			BaseURL: cfg.Advisor.OpenAIBaseURL,
			Model:   cfg.Advisor.Model,
		},
		RedisURL: cfg.Advisor.RedisURL,
		CacheTTL: cfg.Advisor.CacheTTL,
	}, logger)
	if err != nil {
		return err
	}
	defer closeAdvisor()

	var profiles core.ProfileStore
	switch cfg.Profiles.Backend {
	case "file":
		profiles = store.NewFileProfiles(cfg.Profiles.Path)
	default:
		profiles = store.NewProfiles(pool)
	}

	service := core.NewService(core.ServiceConfig{
		ChunkSize:            cfg.Import.ChunkSize,
		MaxConcurrentCommits: cfg.Import.MaxConcurrent,
		MaxWaitTime:          cfg.Import.MaxWaitTime,
		CommitTimeout:        cfg.Import.CommitTimeout,
		SessionTTL:           cfg.Import.SessionTTL,
		PreviewSampleLimit:   cfg.Import.PreviewSampleLimit,
		AdvisorTimeout:       cfg.Advisor.Timeout,
		LockNaturalKeys:      cfg.Import.LockNaturalKeys,
		MaxFileSize:          cfg.Import.MaxFileSize,
	}, core.Dependencies{
		Stores:   store.NewProvider(pool),
		Profiles: profiles,
		Advisor:  adv,
		Decoders: decode.ForFile(decode.Options{
			MaxBytes: cfg.Import.MaxFileSize,
			MaxRows:  cfg.Import.MaxRows,
		}),
		Logger: logger,
	})

	logger.Info("entities registered", "count", core.EntityCount(), "types", core.EntityTypes())

	server := web.NewServer(service, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Running commits finish their chunks before the pool closes.
		if status := service.Limiter().Status(); status.Active > 0 {
			logger.Info("waiting for commits to complete", "active", status.Active)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			logger.Warn("commits did not complete in time", "error", err)
		}

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
