package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/halide-works/aperture-drop/internal/adapter"
	"github.com/halide-works/aperture-drop/internal/api/middleware"
	"github.com/halide-works/aperture-drop/internal/api/rest"
	"github.com/halide-works/aperture-drop/internal/api/server"
	"github.com/halide-works/aperture-drop/internal/chain"
	"github.com/halide-works/aperture-drop/internal/config"
	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/evaluator"
	"github.com/halide-works/aperture-drop/internal/ledger"
	"github.com/halide-works/aperture-drop/internal/logger"
	"github.com/halide-works/aperture-drop/internal/metrics"
	"github.com/halide-works/aperture-drop/internal/observations"
	"github.com/halide-works/aperture-drop/internal/orchestrator"
	"github.com/halide-works/aperture-drop/internal/pool"
	"github.com/halide-works/aperture-drop/internal/ratelimit"
	"github.com/halide-works/aperture-drop/internal/relay"
	"github.com/halide-works/aperture-drop/internal/trustgate"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Aperture Drop API")

	clock := adapter.NewClock()

	// The authority signs relayed claims and fallback tickets
	authority, err := pool.NewAuthority(cfg.Ledger.AuthorityKey)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to load authority key", zap.Error(err))
	}

	// Wire the ledger backend
	var (
		reader    ledger.Reader
		submitter ledger.Submitter
	)
	switch cfg.Ledger.Mode {
	case config.LedgerModeEmbedded:
		owner := common.HexToAddress(cfg.Ledger.OwnerAddress)
		p := pool.New(pool.Config{
			Owner:     owner,
			Authority: authority.Address(),
			Clock:     clock,
		})

		// Embedded mode is for development; seed the full pool so the
		// service starts usable.
		ids := make([]domain.TokenID, 0, domain.MaxSupply)
		for id := domain.TokenID(1); id <= domain.MaxSupply; id++ {
			ids = append(ids, id)
		}
		if err := p.Deposit(owner, ids); err != nil {
			logger.FatalCtx(ctx, "Failed to seed embedded pool", zap.Error(err))
		}

		emb := ledger.NewEmbedded(p, authority.Address(), owner)
		reader, submitter = emb, emb
		logger.InfoCtx(ctx, "Using embedded ledger", zap.Int("seeded_tokens", len(ids)))

	case config.LedgerModeChain:
		backend, err := adapter.NewEthBackendDialer().Dial(ctx, cfg.Ethereum.RPCURL)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to dial Ethereum RPC", zap.Error(err), zap.String("rpc_url", cfg.Ethereum.RPCURL))
		}

		client, err := chain.NewClient(backend, clock, chain.Config{
			Contract:     common.HexToAddress(cfg.Ethereum.Contract),
			Signer:       authority.Key(),
			DeployBlock:  cfg.Ethereum.DeployBlock,
			PollInterval: cfg.Ethereum.PollInterval,
		})
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create chain client", zap.Error(err))
		}
		defer client.Close()

		reader, submitter = client, client
		logger.InfoCtx(ctx, "Using chain ledger",
			zap.String("contract", cfg.Ethereum.Contract),
			zap.String("authority", authority.Address().Hex()),
		)

	default:
		logger.FatalCtx(ctx, "Unknown ledger mode", zap.String("mode", string(cfg.Ledger.Mode)))
	}

	// Claim pipeline
	statuses := relay.NewStatusStore(clock)
	executor := relay.NewExecutor(submitter, reader, authority, statuses)
	defer executor.Close()

	index := observations.NewIndex(reader, clock, cfg.Cache.ObservationTTL)
	gate := trustgate.New(clock,
		trustgate.WithThreshold(cfg.TrustGate.Threshold),
		trustgate.WithBlockDuration(cfg.TrustGate.BlockDuration),
	)
	eval := evaluator.NewClient(evaluator.Config{
		URL:              cfg.Evaluator.URL,
		APIKey:           cfg.Evaluator.APIKey,
		Timeout:          cfg.Evaluator.Timeout,
		ApproveThreshold: cfg.Evaluator.ApproveThreshold,
		HardFloor:        cfg.Evaluator.HardFloor,
	})
	m := metrics.New()
	orch := orchestrator.New(gate, eval, reader, executor, index, m, relay.Mode(cfg.Relay.Mode))

	// Rate limiting, distributed when Redis is configured
	var rc adapter.RedisClient
	if cfg.RateLimit.RedisURL != "" {
		rc, err = adapter.NewRedisClient(cfg.RateLimit.RedisURL)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create Redis client", zap.Error(err))
		}
	}
	limiter, err := ratelimit.New(ratelimit.Config{
		Classes: map[ratelimit.Class]ratelimit.ClassConfig{
			ratelimit.ClassGeneral: {Limit: cfg.RateLimit.GeneralLimit, Window: cfg.RateLimit.GeneralWindow},
			ratelimit.ClassClaim:   {Limit: cfg.RateLimit.ClaimLimit, Window: cfg.RateLimit.ClaimWindow},
		},
	}, rc, clock)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create rate limiter", zap.Error(err))
	}
	defer func() {
		if err := limiter.Close(); err != nil {
			logger.Warn("Failed to close rate limiter", zap.Error(err))
		}
	}()

	// Create and start server
	handler := rest.NewHandler(orch, reader, index, statuses, gate, m, cfg.Explorer.TxURLPrefix)
	srv := server.New(server.Config{
		Debug:          cfg.Debug,
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
	}, handler, limiter)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
