package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/fleetimport/internal/advisor"
	"github.com/JonMunkholm/fleetimport/internal/config"
	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/decode"
	"github.com/JonMunkholm/fleetimport/internal/logging"
	"github.com/JonMunkholm/fleetimport/internal/store"
)

const shutdownTimeout = 30 * time.Second

// app holds the configuration and connections shared by subcommands.
type app struct {
	// flags
	logLevel     string
	advisor      string
	profilesFile string
	noEnvFile    bool

	imp      config.ImportConfig
	adv      config.AdvisorConfig
	profiles config.ProfilesConfig
	logger   *slog.Logger

	pool    *pgxpool.Pool
	closers []func()
}

// needs lists the backends a subcommand uses.
type needs struct {
	database bool
	profiles bool
}

func (a *app) load(stderr io.Writer) error {
	var lc config.LoggingConfig
	for _, section := range []any{&a.imp, &a.adv, &a.profiles, &lc} {
		if err := config.LoadSection(section); err != nil {
			return err
		}
	}

	// Quiet by default so progress lines stay readable.
	level := a.logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "warn"
	}
	a.logger = logging.SetupWriter(stderr, level, lc.Format)

	if a.advisor != "" {
		a.adv.Provider = a.advisor
	}
	return nil
}

func (a *app) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	var db config.DatabaseConfig
	if err := config.LoadSection(&db); err != nil {
		return nil, err
	}
	pool, err := store.Open(ctx, db, a.logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	return pool, nil
}

func (a *app) profileStore(ctx context.Context) (core.ProfileStore, error) {
	switch {
	case a.profilesFile != "":
		return store.NewFileProfiles(a.profilesFile), nil
	case a.profiles.Backend == "file":
		return store.NewFileProfiles(a.profiles.Path), nil
	}
	pool, err := a.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("profiles need a database or --profiles-file: %w", err)
	}
	return store.NewProfiles(pool), nil
}

// newService wires an import service for one invocation. Call close when
// the command is done.
func (a *app) newService(ctx context.Context, n needs) (*core.Service, error) {
	deps := core.Dependencies{
		Decoders: decode.ForFile(decode.Options{
			MaxBytes: a.imp.MaxFileSize,
			MaxRows:  a.imp.MaxRows,
		}),
		Logger: a.logger,
	}

	if n.database {
		pool, err := a.connect(ctx)
		if err != nil {
			return nil, err
		}
		deps.Stores = store.NewProvider(pool)
	}
	if n.profiles {
		profiles, err := a.profileStore(ctx)
		if err != nil {
			return nil, err
		}
		deps.Profiles = profiles
	}

	adv, closeAdvisor, err := advisor.New(ctx, advisor.Config{
		Provider: a.adv.Provider,
		OpenAI: advisor.OpenAIConfig{
			APIKey:  a.adv.OpenAIKey,
			BaseURL: a.adv.OpenAIBaseURL,
			Model:   a.adv.Model,
		},
		RedisURL: a.adv.RedisURL,
		CacheTTL: a.adv.CacheTTL,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeAdvisor)
	deps.Advisor = adv

	svc := core.NewService(core.ServiceConfig{
		ChunkSize:            a.imp.ChunkSize,
		MaxConcurrentCommits: a.imp.MaxConcurrent,
		MaxWaitTime:          a.imp.MaxWaitTime,
		CommitTimeout:        a.imp.CommitTimeout,
		SessionTTL:           a.imp.SessionTTL,
		PreviewSampleLimit:   a.imp.PreviewSampleLimit,
		AdvisorTimeout:       a.adv.Timeout,
		LockNaturalKeys:      a.imp.LockNaturalKeys,
		MaxFileSize:          a.imp.MaxFileSize,
	}, deps)

	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			a.logger.Warn("commits did not complete in time", "error", err)
		}
	})
	return svc, nil
}

// close releases everything opened by the command, newest first.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.pool = nil
}
