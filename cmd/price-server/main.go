// Package main runs the price API: the assembled registry behind an HTTP
// server, with an optional Redis read-through cache flushed on every new
// chain head.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	httpapi "github.com/citrus-finance/citrus-oracle/internal/adapters/inbound/http"
	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/chainlink"
	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/erc20"
	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/ethws"
	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/postgres"
	redisadapter "github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/redis"
	snsadapter "github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/sns"
	"github.com/citrus-finance/citrus-oracle/internal/pkg/blockchain"
	"github.com/citrus-finance/citrus-oracle/internal/pkg/blockchain/multicall"
	"github.com/citrus-finance/citrus-oracle/internal/pkg/env"
	"github.com/citrus-finance/citrus-oracle/internal/pkg/hexutil"
	"github.com/citrus-finance/citrus-oracle/internal/ports/inbound"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
	"github.com/citrus-finance/citrus-oracle/internal/services/pricing"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	apiAddr     string
	healthAddr  string
	dbURL       string
	rpcURL      string
	wsURL       string
	redisAddr   string
	directCalls bool
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("price-server", flag.ContinueOnError)
	apiAddr := fs.String("addr", "", "HTTP API listen address")
	healthAddr := fs.String("health-addr", "", "health server listen address")
	dbURL := fs.String("db", "", "PostgreSQL connection URL")
	rpcURL := fs.String("rpc", "", "Ethereum JSON-RPC HTTP URL")
	wsURL := fs.String("ws", "", "Ethereum WebSocket URL for head subscriptions (optional)")
	redisAddr := fs.String("redis", "", "Redis address for the price cache (optional)")
	directCalls := fs.Bool("direct-calls", false, "batch plain eth_call instead of Multicall3 (for allowlisted feeds)")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		apiAddr:     *apiAddr,
		healthAddr:  *healthAddr,
		dbURL:       *dbURL,
		rpcURL:      *rpcURL,
		wsURL:       *wsURL,
		redisAddr:   *redisAddr,
		directCalls: *directCalls,
	}

	if cfg.apiAddr == "" {
		cfg.apiAddr = env.Get("HTTP_ADDR", ":8080")
	}
	if cfg.healthAddr == "" {
		cfg.healthAddr = env.Get("HEALTH_ADDR", ":8081")
	}
	if cfg.dbURL == "" {
		cfg.dbURL = env.Get("DATABASE_URL", "")
	}
	if cfg.dbURL == "" {
		return cliConfig{}, fmt.Errorf("database URL not provided (use -db flag or DATABASE_URL env var)")
	}
	if cfg.rpcURL == "" {
		cfg.rpcURL = env.Get("ETH_RPC_URL", "")
	}
	if cfg.rpcURL == "" {
		return cliConfig{}, fmt.Errorf("RPC URL not provided (use -rpc flag or ETH_RPC_URL env var)")
	}
	if cfg.wsURL == "" {
		cfg.wsURL = env.Get("ETH_WS_URL", "")
	}
	if cfg.redisAddr == "" {
		cfg.redisAddr = env.Get("REDIS_ADDR", "")
	}

	return cfg, nil
}

// readiness flips to ready once the registry is assembled.
type readiness struct {
	ready atomic.Bool
}

func (r *readiness) IsReady() bool   { return r.ready.Load() }
func (r *readiness) IsHealthy() bool { return true }

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	logger.Info("starting price server", "addr", cfg.apiAddr)

	principals, err := httpapi.ParsePrincipals(env.Get("AUTH_PRINCIPALS", ""))
	if err != nil {
		return fmt.Errorf("parsing AUTH_PRINCIPALS: %w", err)
	}
	if len(principals) == 0 {
		logger.Warn("no principals configured, admin endpoints will reject every request")
	}

	var shuttingDown atomic.Bool
	checker := &readiness{}
	healthServer := httpapi.NewHealthServer(httpapi.HealthServerConfig{
		Addr:   cfg.healthAddr,
		Logger: logger,
	}, checker, &shuttingDown)
	healthServer.Start()

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(cfg.dbURL))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	logger.Info("PostgreSQL connected")

	store, err := postgres.NewConfigRepository(pool, logger)
	if err != nil {
		return fmt.Errorf("creating config repository: %w", err)
	}

	multicaller, err := newMulticaller(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("Ethereum node connected", "directCalls", cfg.directCalls)

	reader, err := chainlink.NewReader(multicaller)
	if err != nil {
		return fmt.Errorf("creating feed reader: %w", err)
	}
	metadata, err := erc20.NewMetadata(multicaller)
	if err != nil {
		return fmt.Errorf("creating token metadata reader: %w", err)
	}

	assembleDeps := pricing.AssembleDeps{
		Store:    store,
		Reader:   reader,
		Metadata: metadata,
		Logger:   logger,
	}
	events, err := newEventSink(ctx, logger)
	if err != nil {
		return err
	}
	if events != nil {
		defer events.Close()
		assembleDeps.Events = events
	}

	deployment, err := pricing.Assemble(ctx, assembleDeps)
	if err != nil {
		return fmt.Errorf("assembling pricing deployment: %w", err)
	}

	var prices inbound.PriceService = deployment.Registry
	if cfg.redisAddr != "" {
		cacheCfg := redisadapter.ConfigDefaults()
		cacheCfg.Addr = cfg.redisAddr
		cacheCfg.Password = env.Get("REDIS_PASSWORD", "")
		cacheCfg.TTL = env.GetDuration("REDIS_TTL", cacheCfg.TTL)
		cache, err := redisadapter.NewPriceCache(cacheCfg, logger)
		if err != nil {
			return fmt.Errorf("creating price cache: %w", err)
		}
		defer cache.Close()

		prices, err = pricing.NewCachedPrices(deployment.Registry, cache, logger)
		if err != nil {
			return fmt.Errorf("wrapping price cache: %w", err)
		}
		logger.Info("price cache enabled", "redis", cfg.redisAddr)

		if cfg.wsURL != "" {
			if err := startCacheFlusher(ctx, cfg.wsURL, cache, logger); err != nil {
				return err
			}
		}
	}

	mux := http.NewServeMux()
	handler := httpapi.NewHandler(prices, deployment, principals, logger)
	handler.RegisterRoutes(mux)

	apiServer := &http.Server{
		Addr:         cfg.apiAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	checker.ready.Store(true)
	logger.Info("price server ready", "baseCurrency", deployment.Registry.BaseCurrency().Hex())

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shuttingDown.Store(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down API server", "error", err)
	}
	if err := healthServer.Shutdown(5 * time.Second); err != nil {
		logger.Error("error shutting down health server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newMulticaller connects to the node and picks the batching strategy.
// Direct-call mode keeps msg.sender zero for feeds behind reader allowlists.
func newMulticaller(ctx context.Context, cfg cliConfig) (outbound.Multicaller, error) {
	if cfg.directCalls {
		rpcClient, err := rpc.DialContext(ctx, cfg.rpcURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to Ethereum node: %w", err)
		}
		return multicall.NewDirectCaller(rpcClient), nil
	}

	ethClient, err := ethclient.DialContext(ctx, cfg.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to Ethereum node: %w", err)
	}
	mc, err := multicall.NewClient(ethClient, blockchain.Multicall3)
	if err != nil {
		return nil, fmt.Errorf("creating multicall client: %w", err)
	}
	return mc, nil
}

// newEventSink wires the SNS change-event sink when a topic is configured.
func newEventSink(ctx context.Context, logger *slog.Logger) (*snsadapter.EventSink, error) {
	topicARN := env.Get("SNS_TOPIC_ARN", "")
	if topicARN == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(env.Get("AWS_REGION", "eu-west-1")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	sink, err := snsadapter.NewEventSink(sns.NewFromConfig(awsCfg), snsadapter.Config{
		TopicARN: topicARN,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating event sink: %w", err)
	}
	return sink, nil
}

// startCacheFlusher subscribes to new heads and drops every cached price when
// one arrives, so cached quotes are never older than one block.
func startCacheFlusher(ctx context.Context, wsURL string, cache outbound.PriceCache, logger *slog.Logger) error {
	subCfg := ethws.ConfigDefaults()
	subCfg.WebSocketURL = wsURL
	subCfg.Logger = logger
	subscriber, err := ethws.NewSubscriber(subCfg)
	if err != nil {
		return fmt.Errorf("creating head subscriber: %w", err)
	}

	headers, err := subscriber.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to new heads: %w", err)
	}

	go func() {
		defer subscriber.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case header, ok := <-headers:
				if !ok {
					return
				}
				blockNum, _ := hexutil.ParseInt64(header.Number)
				if err := cache.Flush(ctx); err != nil {
					logger.Warn("cache flush failed", "block", blockNum, "error", err)
					continue
				}
				logger.Debug("cache flushed", "block", blockNum)
			}
		}
	}()

	logger.Info("cache flusher started", "ws", wsURL)
	return nil
}
