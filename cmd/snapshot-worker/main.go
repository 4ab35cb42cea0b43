// Package main runs the snapshot worker: an SQS consumer that re-resolves
// registry prices for each new block, stores the changed ones in PostgreSQL,
// optionally archives the full per-block snapshot to S3 and cross-checks
// against CoinGecko reference prices.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/chainlink"
	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/coingecko"
	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/erc20"
	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/postgres"
	s3adapter "github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/s3"
	sqsadapter "github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/sqs"
	"github.com/citrus-finance/citrus-oracle/internal/pkg/blockchain"
	"github.com/citrus-finance/citrus-oracle/internal/pkg/blockchain/multicall"
	"github.com/citrus-finance/citrus-oracle/internal/pkg/env"
	"github.com/citrus-finance/citrus-oracle/internal/services/pricing"
	"github.com/citrus-finance/citrus-oracle/internal/services/snapshot_worker"
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
	queueURL string
	dbURL    string
	rpcURL   string
	s3Bucket string
	s3Prefix string
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("snapshot-worker", flag.ContinueOnError)
	queueURL := fs.String("queue", "", "SQS queue URL delivering block events")
	dbURL := fs.String("db", "", "PostgreSQL connection URL")
	rpcURL := fs.String("rpc", "", "Ethereum JSON-RPC HTTP URL")
	s3Bucket := fs.String("s3-bucket", "", "S3 bucket for snapshot archives (optional)")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		queueURL: *queueURL,
		dbURL:    *dbURL,
		rpcURL:   *rpcURL,
		s3Bucket: *s3Bucket,
	}

	if cfg.queueURL == "" {
		cfg.queueURL = env.Get("AWS_SQS_QUEUE_URL", "")
	}
	if cfg.queueURL == "" {
		return cliConfig{}, fmt.Errorf("queue URL not provided (use -queue flag or AWS_SQS_QUEUE_URL env var)")
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
	if cfg.s3Bucket == "" {
		cfg.s3Bucket = env.Get("S3_ARCHIVE_BUCKET", "")
	}
	cfg.s3Prefix = env.Get("S3_ARCHIVE_PREFIX", "mainnet")

	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	logger.Info("starting snapshot worker", "queue", cfg.queueURL)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(env.Get("AWS_REGION", "eu-west-1")),
	)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	var sqsOptFns []func(*sqs.Options)
	if endpoint := env.Get("AWS_SQS_ENDPOINT", ""); endpoint != "" {
		sqsOptFns = append(sqsOptFns, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	consumer, err := sqsadapter.NewConsumerWithOptions(awsCfg, sqsadapter.Config{
		QueueURL: cfg.queueURL,
	}, logger, sqsOptFns...)
	if err != nil {
		return fmt.Errorf("creating SQS consumer: %w", err)
	}
	defer consumer.Close()

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
	snapshots, err := postgres.NewSnapshotRepository(pool, logger)
	if err != nil {
		return fmt.Errorf("creating snapshot repository: %w", err)
	}

	ethClient, err := ethclient.DialContext(ctx, cfg.rpcURL)
	if err != nil {
		return fmt.Errorf("connecting to Ethereum node: %w", err)
	}
	mc, err := multicall.NewClient(ethClient, blockchain.Multicall3)
	if err != nil {
		return fmt.Errorf("creating multicall client: %w", err)
	}

	reader, err := chainlink.NewReader(mc)
	if err != nil {
		return fmt.Errorf("creating feed reader: %w", err)
	}
	metadata, err := erc20.NewMetadata(mc)
	if err != nil {
		return fmt.Errorf("creating token metadata reader: %w", err)
	}

	deployment, err := pricing.Assemble(ctx, pricing.AssembleDeps{
		Store:    store,
		Reader:   reader,
		Metadata: metadata,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("assembling pricing deployment: %w", err)
	}

	deps := snapshot_worker.Deps{
		Consumer:  consumer,
		Resolver:  deployment.Registry,
		Configs:   store,
		Snapshots: snapshots,
	}

	if cfg.s3Bucket != "" {
		archive, err := s3adapter.NewArchiveWriter(awsCfg, s3adapter.Config{
			Bucket:    cfg.s3Bucket,
			KeyPrefix: cfg.s3Prefix,
		}, logger)
		if err != nil {
			return fmt.Errorf("creating snapshot archive: %w", err)
		}
		deps.Archive = archive
		logger.Info("snapshot archive enabled", "bucket", cfg.s3Bucket, "prefix", cfg.s3Prefix)
	}

	if apiKey := env.Get("COINGECKO_API_KEY", ""); apiKey != "" {
		refs, err := coingecko.NewClient(coingecko.ClientConfig{
			APIKey: apiKey,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("creating reference price client: %w", err)
		}
		deps.References = refs
		logger.Info("reference price cross-check enabled", "provider", refs.Name())
	}

	service, err := snapshot_worker.NewService(snapshot_worker.Config{
		Logger: logger,
	}, deps)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	logger.Info("service started, waiting for messages...")

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		if err := service.Stop(); err != nil {
			logger.Error("error stopping service", "error", err)
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timed out")
	}

	return nil
}
