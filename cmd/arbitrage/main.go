// Package main is the entry point for the multi-chain arbitrage decision service.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fd1az/multichain-arb/business/arbitrage"
	"github.com/fd1az/multichain-arb/business/blockchain"
	"github.com/fd1az/multichain-arb/business/feedback"
	feedbackDI "github.com/fd1az/multichain-arb/business/feedback/di"
	"github.com/fd1az/multichain-arb/business/market"
	"github.com/fd1az/multichain-arb/business/pricing"
	"github.com/fd1az/multichain-arb/internal/apm"
	"github.com/fd1az/multichain-arb/internal/config"
	"github.com/fd1az/multichain-arb/internal/logger"
	"github.com/fd1az/multichain-arb/internal/metrics"
	"github.com/fd1az/multichain-arb/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("multichain-arb %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// TUI is the default, CLI is for debugging
	tuiMode := !*cliMode

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, cancel, *configPath, tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.App.TUIMode = tuiMode

	// the dashboard owns the terminal in TUI mode
	var out io.Writer = os.Stderr
	if tuiMode {
		out = io.Discard
	}
	log := logger.New(out, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, apm.TraceID)
	log.Info(ctx, "starting multi-chain arbitrage service",
		"version", version,
		"environment", cfg.App.Environment,
		"chains", len(cfg.Chains),
	)

	stopTelemetry := setupTelemetry(ctx, cfg.Telemetry, log)
	defer stopTelemetry()

	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	// Modules in dependency order
	modules := []monolith.Module{
		&market.Module{},     // market state and feature feeds
		&blockchain.Module{}, // chain watchers feed the market ingestor
		&pricing.Module{},    // reference USD prices
		&arbitrage.Module{},  // detection, evaluation and the decision cycle
		&feedback.Module{},   // tracks published intents, needs the engine
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	defer func() {
		if pg := feedbackDI.GetPostgres(mono.Services()); pg != nil {
			pg.Close()
		}
	}()

	healthServer := newHealthServer(cfg, mono, log)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.Health.Port)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = healthServer.Stop(shutdownCtx)
	}()

	if tuiMode {
		return runTUI(ctx, cancel, mono, modules)
	}

	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	log.Info(ctx, "all modules started, decision cycle running")

	<-ctx.Done()
	log.Info(ctx, "shutting down")
	return nil
}

// setupTelemetry installs the trace and meter providers and returns their
// shutdown.
func setupTelemetry(ctx context.Context, cfg config.TelemetryConfig, log logger.LoggerInterface) func() {
	if !cfg.Enabled {
		return func() {}
	}

	traceProvider := apm.NewTraceProvider(
		apm.WithServiceName(cfg.ServiceName),
		apm.WithProvider(apm.Provider(cfg.TraceProvider), cfg.OTLPEndpoint, cfg.OTLPHeaders, log),
	)
	log.Info(ctx, "tracing initialized", "provider", cfg.TraceProvider)

	providerCfg := metrics.ProviderCfg{Provider: metrics.PrometheusProvider}
	if metrics.Provider(cfg.MetricsProvider) == metrics.OtelCollector {
		providerCfg = metrics.NewOtelCollectorConfig(cfg.OTLPEndpoint, apm.ParseHeaders(cfg.OTLPHeaders), metrics.InsecureOtel)
	}
	meterProvider, err := metrics.NewMetricProvider(
		metrics.WithServiceName(cfg.ServiceName),
		metrics.WithProviderConfig(providerCfg),
	)
	if err != nil {
		log.Error(ctx, "metrics disabled", "error", err)
	}

	if providerCfg.Provider == metrics.PrometheusProvider && meterProvider != nil {
		port := cfg.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(ctx, log, metrics.WithPort(strconv.Itoa(port)))
	}

	return func() {
		_ = traceProvider.Stop()
		if meterProvider != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = meterProvider.Shutdown(shutdownCtx)
		}
	}
}
