// Package advisor implements the assisted column mapping pass.
//
// Advisors only suggest; the core mapping resolver decides what to apply and
// never lets a suggestion replace a deterministic match or an operator edit.
//
//	fuzzy   local approximate matching (fuzzysearch), no network
//	openai  chat completion (openai-go), optionally cached in redis,
//	        chained with the fuzzy advisor so either can fill gaps
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// Providers.
const (
	ProviderNone   = "none"
	ProviderFuzzy  = "fuzzy"
	ProviderOpenAI = "openai"
)

// Config selects and configures the advisor.
type Config struct {
	Provider string
	OpenAI   OpenAIConfig
	RedisURL string // optional suggestion cache for remote providers
	CacheTTL time.Duration
}

// New builds the configured advisor. A nil advisor means the assisted pass
// is disabled. The returned close function releases the cache connection.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (core.Advisor, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	noop := func() {}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderNone:
		return nil, noop, nil

	case ProviderFuzzy:
		return Observed{Name: ProviderFuzzy, Inner: Fuzzy{}}, noop, nil

	case ProviderOpenAI:
		oa, err := NewOpenAI(cfg.OpenAI)
		if err != nil {
			return nil, noop, err
		}

		var remote core.Advisor = oa
		closeFn := noop
		if cfg.RedisURL != "" {
			client, err := NewRedisClient(ctx, cfg.RedisURL)
			if err != nil {
				// The cache is an optimization; run without it.
				logger.Warn("advisor cache unavailable", "error", err)
			} else {
				remote = NewCached(oa, client, cfg.CacheTTL, logger)
				closeFn = func() { client.Close() }
			}
		}

		return Chain{
			Observed{Name: ProviderOpenAI, Inner: remote},
			Observed{Name: ProviderFuzzy, Inner: Fuzzy{}},
		}, closeFn, nil

	default:
		return nil, noop, fmt.Errorf("unknown advisor provider %q", cfg.Provider)
	}
}
