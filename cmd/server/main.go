package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"binamm-indexer/internal/api"
	"binamm-indexer/internal/config"
	"binamm-indexer/internal/observability"
	"binamm-indexer/internal/storage/migrations"
	"binamm-indexer/internal/storage/postgres"
)

func main() {
	envFile := flag.String("env", ".env", "Path to .env file")
	apiAddr := flag.String("api-addr", "", "HTTP listen address (overrides API_ADDR)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides POSTGRES_DSN)")
	redisAddr := flag.String("redis-addr", "", "Redis address for the bars cache (overrides REDIS_ADDR)")
	flag.Parse()

	cfg := config.Load(*envFile)
	if *apiAddr != "" {
		cfg.APIAddr = *apiAddr
	}
	if *postgresDSN != "" {
		cfg.PostgresDSN = *postgresDSN
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if err := cfg.ValidateServer(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgres(ctx, pool); err != nil {
		logger.Fatalf("Failed to apply migrations: %v", err)
	}

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer cache.Close()

		if err := cache.Ping(ctx).Err(); err != nil {
			logger.Printf("Redis unavailable, bars cache disabled: %v", err)
			cache = nil
		} else {
			logger.Printf("Bars cache enabled (redis %s, ttl %s)", cfg.RedisAddr, cfg.BarsCacheTTL)
		}
	}

	server := api.NewServer(api.Options{
		Buckets:   postgres.NewBucketStore(pool),
		Pools:     postgres.NewPoolStore(pool),
		Swaps:     postgres.NewSwapRecordStore(pool),
		Liquidity: postgres.NewLiquidityRecordStore(pool),

		Cache:    cache,
		CacheTTL: cfg.BarsCacheTTL,

		Metrics: observability.NewMetrics("binamm_api"),
		Logger:  logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
		cancel()
	}()

	logger.Printf("Starting API server on %s", cfg.APIAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}
