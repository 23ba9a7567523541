package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binamm-indexer/internal/aggregate"
	"binamm-indexer/internal/config"
	"binamm-indexer/internal/feed"
	"binamm-indexer/internal/ingestion"
	"binamm-indexer/internal/observability"
	"binamm-indexer/internal/storage"
	chstore "binamm-indexer/internal/storage/clickhouse"
	"binamm-indexer/internal/storage/migrations"
	"binamm-indexer/internal/storage/postgres"
	"binamm-indexer/internal/valuation"
)

func main() {
	envFile := flag.String("env", ".env", "Path to .env file")
	wsEndpoint := flag.String("ws-endpoint", "", "Node WebSocket endpoint (overrides NODE_WS_ENDPOINT)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides POSTGRES_DSN)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse DSN for the swap archive (overrides CLICKHOUSE_DSN)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides METRICS_ADDR, empty keeps env default)")
	flag.Parse()

	cfg := config.Load(*envFile)
	if *wsEndpoint != "" {
		cfg.NodeWSEndpoint = *wsEndpoint
	}
	if *postgresDSN != "" {
		cfg.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.ClickhouseDSN = *clickhouseDSN
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	logger := log.New(os.Stdout, "[indexer] ", log.LstdFlags|log.Lshortfile)

	if err := cfg.ValidateIndexer(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	metrics := observability.NewMetrics("binamm_indexer")

	// Start metrics server
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err := run(ctx, logger, cfg, metrics)

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// run wires the live pipeline: feed -> decode -> aggregate -> storage.
func run(ctx context.Context, logger *log.Logger, cfg *config.Config, metrics *observability.Metrics) error {
	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgres(ctx, pool); err != nil {
		return fmt.Errorf("apply postgres migrations: %w", err)
	}

	poolStore := postgres.NewPoolStore(pool)
	bucketStore := postgres.NewBucketStore(pool)
	swapStore := postgres.NewSwapRecordStore(pool)
	liquidityStore := postgres.NewLiquidityRecordStore(pool)
	dcaStore := postgres.NewDcaOrderStore(pool)

	var archiver storage.SwapArchiver
	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()

		if err := migrations.RunClickhouse(ctx, conn); err != nil {
			return fmt.Errorf("apply clickhouse migrations: %w", err)
		}
		archiver = chstore.NewSwapArchiveStore(conn)
		logger.Println("Swap archive enabled")
	}

	feedCfg := feed.DefaultConfig()
	feedCfg.Metrics = metrics
	client, err := feed.NewClient(ctx, cfg.NodeWSEndpoint, &feedCfg, logger)
	if err != nil {
		return fmt.Errorf("connect to node feed: %w", err)
	}
	defer client.Close()

	router := valuation.NewStoreRouter(poolStore, bucketStore)
	valuer := valuation.NewService(router, cfg.StableToken, valuation.DefaultMaxHops)

	aggregator := aggregate.NewAggregator(aggregate.Options{
		BucketStore:    bucketStore,
		SwapStore:      swapStore,
		LiquidityStore: liquidityStore,
		Valuer:         valuer,
		Archiver:       archiver,
		Metrics:        metrics,
		Logger:         logger,
	})

	runner := ingestion.NewRunner(ingestion.Options{
		Source:     client,
		Pools:      poolStore,
		DcaOrders:  dcaStore,
		Aggregator: aggregator,
		Metrics:    metrics,
		Logger:     logger,

		FactoryAddress:    cfg.FactoryAddress,
		RouterAddress:     cfg.RouterAddress,
		DcaManagerAddress: cfg.DcaManagerAddress,
		GenesisMs:         cfg.GenesisMs,
	})

	return runner.Run(ctx)
}
