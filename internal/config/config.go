// Package config loads daemon configuration from environment
// variables, optionally seeded from a .env file. Both daemons share
// one Config; each validates only the fields it needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the indexer and API daemons.
type Config struct {
	// Node
	NodeWSEndpoint string // websocket endpoint of the blockchain node
	GenesisMs      int64  // network genesis timestamp, Unix ms

	// Contracts
	FactoryAddress    string
	RouterAddress     string
	DcaManagerAddress string
	StableToken       string // USD reference token address

	// Storage
	PostgresDSN   string
	ClickhouseDSN string // empty disables the swap archive
	RedisAddr     string // empty disables the bars cache
	RedisPassword string
	RedisDB       int

	// HTTP
	APIAddr     string
	MetricsAddr string

	BarsCacheTTL time.Duration
}

// Load reads configuration from the environment. When envPath names an
// existing .env file its values are loaded first; a missing file is
// not an error.
func Load(envPath string) *Config {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "config: could not load %s: %v\n", envPath, err)
		}
	}

	return &Config{
		NodeWSEndpoint: getEnvString("NODE_WS_ENDPOINT", ""),
		GenesisMs:      getEnvInt64("GENESIS_TIMESTAMP_MS", 0),

		FactoryAddress:    getEnvString("FACTORY_ADDRESS", ""),
		RouterAddress:     getEnvString("ROUTER_ADDRESS", ""),
		DcaManagerAddress: getEnvString("DCA_MANAGER_ADDRESS", ""),
		StableToken:       getEnvString("STABLE_TOKEN_ADDRESS", ""),

		PostgresDSN:   getEnvString("POSTGRES_DSN", ""),
		ClickhouseDSN: getEnvString("CLICKHOUSE_DSN", ""),
		RedisAddr:     getEnvString("REDIS_ADDR", ""),
		RedisPassword: getEnvString("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		APIAddr:     getEnvString("API_ADDR", ":8080"),
		MetricsAddr: getEnvString("METRICS_ADDR", ":9090"),

		BarsCacheTTL: getEnvDuration("BARS_CACHE_TTL", 10*time.Second),
	}
}

// ValidateIndexer checks the fields the ingestion daemon requires.
func (c *Config) ValidateIndexer() error {
	if c.NodeWSEndpoint == "" {
		return fmt.Errorf("NODE_WS_ENDPOINT is required")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	if c.FactoryAddress == "" {
		return fmt.Errorf("FACTORY_ADDRESS is required")
	}
	if c.RouterAddress == "" {
		return fmt.Errorf("ROUTER_ADDRESS is required")
	}
	if c.StableToken == "" {
		return fmt.Errorf("STABLE_TOKEN_ADDRESS is required")
	}
	return nil
}

// ValidateServer checks the fields the query API daemon requires.
func (c *Config) ValidateServer() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	return nil
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
