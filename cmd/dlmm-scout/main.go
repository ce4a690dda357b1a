// DLMM Scout: BTC-SOL liquidity pool recommendations with a streaming
// Claude analyst behind a rate-limited HTTP and WebSocket relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/becomeliminal/dlmm-scout/config"
	"github.com/becomeliminal/dlmm-scout/engine"
	"github.com/becomeliminal/dlmm-scout/guardrails"
	"github.com/becomeliminal/dlmm-scout/logger"
	"github.com/becomeliminal/dlmm-scout/memory"
	"github.com/becomeliminal/dlmm-scout/memory/embedder/hash"
	"github.com/becomeliminal/dlmm-scout/memory/store/chromem"
	"github.com/becomeliminal/dlmm-scout/meteora"
	"github.com/becomeliminal/dlmm-scout/observability"
	"github.com/becomeliminal/dlmm-scout/pools"
	"github.com/becomeliminal/dlmm-scout/server"
	"github.com/becomeliminal/dlmm-scout/solana"
)

const retryInitialInterval = 250 * time.Millisecond

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dlmm-scout:", err)
		os.Exit(1)
	}
}

func run() error {
	// ========================================================================
	// CONFIGURATION
	// ========================================================================
	// .env is optional; the process environment always wins.
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Development: cfg.IsDevelopment(),
		Level:       cfg.LogLevel,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	// ========================================================================
	// GUARDRAILS
	// ========================================================================
	limiter, err := guardrails.NewLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	if err != nil {
		return err
	}
	defer limiter.Close()

	// ========================================================================
	// POOL SEARCH
	// ========================================================================
	var fetcher pools.Fetcher = meteora.NewClient(cfg.MeteoraAPIURL)
	if cfg.SearchRetries > 0 {
		fetcher = pools.NewRetryFetcher(fetcher, uint(cfg.SearchRetries)+1, retryInitialInterval, log)
	}
	searcher := pools.NewSearcher(fetcher, pools.SearchConfig{
		BroadenThreshold: cfg.SearchBroadenThreshold,
		Delay:            cfg.SearchDelay,
	}, pools.WithLogger(log), pools.WithMetrics(metrics))

	balances := solana.NewBalanceService(solana.NewRPCClient(cfg.SolanaRPCURL), log)

	// ========================================================================
	// CHAT RELAY
	// ========================================================================
	relayOpts := []engine.Option{engine.WithLogger(log), engine.WithMetrics(metrics)}
	if cfg.MemoryEnabled {
		store := chromem.New(log)
		defer store.Close()

		manager := memory.NewSimpleManager(store, hash.New(0), &memory.Config{
			Enabled:             true,
			MaxResults:          memory.DefaultConfig.MaxResults,
			MaxPromptChars:      memory.DefaultConfig.MaxPromptChars,
			MaxMemoriesPerOwner: memory.DefaultConfig.MaxMemoriesPerOwner,
		}, log)
		relayOpts = append(relayOpts, engine.WithMemory(manager))
		log.Info("analysis memory enabled")
	}

	// Without a key the server still starts; chat requests fail with a
	// configuration error.
	var completer engine.Completer
	if cfg.AnthropicAPIKey != "" {
		completer = engine.NewClaudeCompleter(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens)
	} else {
		log.Warn("ANTHROPIC_API_KEY is not set; chat is disabled")
	}

	// ========================================================================
	// SERVER
	// ========================================================================
	srv, err := server.New(server.Config{
		Relay:          engine.NewRelay(completer, relayOpts...),
		Limiter:        limiter,
		Searcher:       searcher,
		Balances:       balances,
		Metrics:        metrics,
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		Development:    cfg.IsDevelopment(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting dlmm-scout",
		zap.String("environment", cfg.Environment),
		zap.String("model", cfg.AnthropicModel),
		zap.Int("rate_limit", cfg.RateLimitMax),
		zap.Duration("rate_window", cfg.RateLimitWindow))
	return srv.Run(ctx, cfg.Addr())
}
