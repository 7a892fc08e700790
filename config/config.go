package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market data
	Providers       string // comma-separated provider names, e.g. "binance"
	Symbols         string // comma-separated symbols, e.g. "BTCUSDT,ETHUSDT"
	Intervals       string // comma-separated kline intervals, e.g. "1m,5m"
	HistoryLimit    int    // bounded candles retained per (provider,symbol,interval)
	BackfillLimit   int    // candles fetched per REST backfill
	ReconnectMaxSec int    // reconnect backoff cap in seconds

	// Serving
	ListenAddr  string
	MetricsAddr string

	// Optional Redis pub/sub mirror ("" = disabled)
	RedisAddr     string
	RedisPassword string

	// Bot
	TradingEnabled bool
	AccountBalance decimal.Decimal

	// Optional alert webhook ("" = log only)
	WebhookURL string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Providers:       getEnv("PROVIDERS", "binance"),
		Symbols:         getEnv("SYMBOLS", "BTCUSDT,ETHUSDT"),
		Intervals:       getEnv("INTERVALS", "1m,5m,15m"),
		HistoryLimit:    getEnvInt("HISTORY_LIMIT", 500),
		BackfillLimit:   getEnvInt("BACKFILL_LIMIT", 500),
		ReconnectMaxSec: getEnvInt("RECONNECT_MAX_SEC", 60),

		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		TradingEnabled: getEnvBool("TRADING_ENABLED", false),
		AccountBalance: getEnvDecimal("ACCOUNT_BALANCE", "10000"),

		WebhookURL: getEnv("WEBHOOK_URL", ""),
	}
}

// ParseList splits a comma-separated config value, trimming blanks.
func ParseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %s", key, v, fallback)
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}
