package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/internal/config"
	"github.com/0xmhha/ethpeek/internal/logger"
	"github.com/0xmhha/ethpeek/pkg/cache"
	"github.com/0xmhha/ethpeek/pkg/client"
	"github.com/0xmhha/ethpeek/pkg/ens"
	"github.com/0xmhha/ethpeek/pkg/etherscan"
	"github.com/0xmhha/ethpeek/pkg/events"
	"github.com/0xmhha/ethpeek/pkg/fetch"
	"github.com/0xmhha/ethpeek/pkg/resolver"
	"github.com/0xmhha/ethpeek/pkg/sourcify"
	"github.com/0xmhha/ethpeek/pkg/stream"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
		chainName   = flag.String("chain", "", "Chain preset name (ethereum, sepolia, polygon, ...)")
		rpcEndpoint = flag.String("rpc", "", "Ethereum RPC endpoint URL")
		wsEndpoint  = flag.String("ws", "", "WebSocket endpoint URL for live subscriptions")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "Log format (json, console)")
		pollEvery   = flag.Duration("poll", 12*time.Second, "Head polling interval when no WebSocket endpoint is set")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("ethpeek version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile, *chainName, *rpcEndpoint, *wsEndpoint, *logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ethpeek",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("chain", cfg.Chain),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("ws_endpoint", cfg.RPC.WSEndpoint),
	)

	if err := run(cfg, log, *pollEvery); err != nil {
		log.Fatal("ethpeek failed", zap.Error(err))
	}
	log.Info("ethpeek stopped")
}

func run(cfg *config.Config, log *zap.Logger, pollEvery time.Duration) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	store, err := cache.New(cache.Config{
		Capacity:     cfg.Cache.Capacity,
		TTLOverrides: ttlOverrides(cfg),
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}

	ethClient, err := client.NewClient(&client.Config{
		Endpoint:   cfg.RPC.Endpoint,
		Timeout:    cfg.RPC.Timeout,
		Logger:     log,
		Cache:      store,
		Retries:    cfg.Fetch.Retries,
		RetryDelay: cfg.Fetch.RetryDelay,
	})
	if err != nil {
		return fmt.Errorf("connecting to node: %w", err)
	}
	defer ethClient.Close()

	chainID, err := ethClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("querying chain ID: %w", err)
	}
	log.Info("Connected to chain", zap.String("chain_id", chainID.String()))
	if cfg.RPC.ChainID != 0 && chainID.Uint64() != cfg.RPC.ChainID {
		log.Warn("Node chain ID differs from configuration",
			zap.Uint64("configured", cfg.RPC.ChainID),
			zap.Uint64("node", chainID.Uint64()),
		)
	}

	explorer := etherscan.NewClient(etherscan.Config{
		Endpoint: cfg.Etherscan.Endpoint,
		APIKey:   cfg.Etherscan.APIKey,
		Logger:   log,
	})

	abiResolver, err := resolver.New(resolver.Config{
		Chain:     ethClient,
		Cache:     store,
		Sourcify:  sourcify.NewClient(sourcify.Config{Logger: log}),
		Etherscan: explorer,
		ChainID:   chainID.Uint64(),
		Selector:  resolver.NewSelectorClient(resolver.SelectorConfig{Logger: log}),
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating ABI resolver: %w", err)
	}

	ensResolver := ens.NewResolver(ens.Config{
		Chain:  ethClient,
		Cache:  store,
		Logger: log,
	})

	bus := events.NewBus(events.BusConfig{
		Logger:  log,
		Metrics: events.NewMetrics(prometheus.DefaultRegisterer, ""),
	})

	service, err := fetch.NewService(fetch.Config{
		Chain:    ethClient,
		Cache:    store,
		Resolver: abiResolver,
		Ens:      ensResolver,
		History:  explorer,
		Bus:      bus,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating fetch service: %w", err)
	}

	streamService := stream.NewService(stream.Config{
		Endpoint: cfg.RPC.WSEndpoint,
		Bus:      bus,
		Logger:   log,
	})
	if err := streamService.Start(); err != nil {
		if !errors.Is(err, stream.ErrNoEndpoint) {
			return fmt.Errorf("starting subscription stream: %w", err)
		}
		log.Info("No WebSocket endpoint configured, polling only",
			zap.Duration("interval", pollEvery))
	}

	// The consumer loop: drain the bus and render events. Polling keeps
	// the head view moving on nodes without WebSocket support.
	go consume(log, bus)

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	service.FetchLatestBlockNumber()
	service.FetchRecentBlocks(cfg.Fetch.RecentBlocks)
	service.FetchGasInfo()

	for {
		select {
		case sig := <-sigChan:
			log.Info("Received shutdown signal", zap.String("signal", sig.String()))
			streamService.Stop()
			service.Wait()
			bus.Close()
			return nil
		case <-ticker.C:
			service.FetchLatestBlockNumber()
			service.FetchGasInfo()
		}
	}
}

// consume renders every bus event as a log line. A UI frontend would
// replace this loop with its own dispatch.
func consume(log *zap.Logger, bus *events.Bus) {
	for event := range bus.Events() {
		switch e := event.(type) {
		case events.LatestBlockEvent:
			log.Info("Chain head", zap.Uint64("number", e.Number))
		case events.RecentBlocksEvent:
			log.Info("Recent blocks", zap.Int("count", len(e.Blocks)))
		case events.GasInfoEvent:
			log.Info("Gas snapshot",
				zap.String("base_fee", e.Gas.BaseFee.String()),
				zap.String("standard", e.Gas.Standard.String()),
				zap.Bool("congested", e.Gas.Congested),
			)
		case events.NewHeadEvent:
			log.Info("New head", zap.Uint64("number", e.Header.Number.Uint64()))
		case events.PendingTxEvent:
			log.Debug("Pending transaction", zap.String("hash", e.Hash.Hex()))
		case events.StreamConnectedEvent:
			log.Info("Subscription stream connected", zap.String("endpoint", e.Endpoint))
		case events.StreamDisconnectedEvent:
			log.Warn("Subscription stream disconnected",
				zap.String("endpoint", e.Endpoint),
				zap.String("reason", e.Reason),
			)
		case events.ErrorEvent:
			log.Warn("Fetch failed",
				zap.String("key", e.Key.String()),
				zap.Error(e.Err),
			)
		default:
			log.Info("Event", zap.String("type", string(event.Type())))
		}
	}
}

func ttlOverrides(cfg *config.Config) map[cache.Category]time.Duration {
	overrides := make(map[cache.Category]time.Duration)
	if cfg.Cache.BlockTTL > 0 {
		overrides[cache.CategoryBlock] = cfg.Cache.BlockTTL
		overrides[cache.CategoryBlockDetail] = cfg.Cache.BlockTTL
	}
	if cfg.Cache.BalanceTTL > 0 {
		overrides[cache.CategoryBalance] = cfg.Cache.BalanceTTL
		overrides[cache.CategoryAddress] = cfg.Cache.BalanceTTL
	}
	if cfg.Cache.GasTTL > 0 {
		overrides[cache.CategoryGasInfo] = cfg.Cache.GasTTL
	}
	if cfg.Cache.AbiTTL > 0 {
		overrides[cache.CategoryAbi] = cfg.Cache.AbiTTL
		overrides[cache.CategorySelector] = cfg.Cache.AbiTTL
	}
	if cfg.Cache.EnsTTL > 0 {
		overrides[cache.CategoryEnsName] = cfg.Cache.EnsTTL
	}
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}

// loadConfig loads configuration from file and environment, then applies
// command-line overrides.
func loadConfig(configFile, chainName, rpcEndpoint, wsEndpoint, logLevel, logFormat string) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &config.Config{}
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if chainName != "" {
		cfg.Chain = chainName
	}
	if rpcEndpoint != "" {
		cfg.RPC.Endpoint = rpcEndpoint
	}
	if wsEndpoint != "" {
		cfg.RPC.WSEndpoint = wsEndpoint
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// initLogger initializes the logger based on configuration.
func initLogger(level, format string) (*zap.Logger, error) {
	cfg := logger.Config{
		Level:       level,
		Encoding:    format,
		Development: format == "console",
	}
	return logger.NewWithConfig(&cfg)
}
