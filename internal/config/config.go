// Package config loads runtime configuration from flags and environment
// variables: flag.*Var bound to an envStr/envInt fallback, parsed once at
// startup.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
)

// Config holds all fireagg configuration.
type Config struct {
	// HTTP servers
	GatewayPort int
	APIPort     int
	MetricsPort int
	Host        string

	// Storage
	PostgresDSN        string
	TradeRetentionDays int

	// Bus
	BusMode  string // "inprocess" or "redis"
	RedisURL string

	// Orchestrator
	LaunchWorkers int

	// Exchanges to run producers for.
	Exchanges []string

	// Producer health. Parsed but not passed to producers, which use the
	// fixed producer.HealthCounterMax.
	HealthCounterMax int

	// Client gateway
	GatewaySendBuffer int

	// DB sinks
	SinkMaxFlushAttempts int

	// Trade archiver: always runs; uploads to S3 only when S3Bucket is set,
	// otherwise writes batches under ArchiveDir.
	S3Bucket             string
	S3Region             string
	ArchiveDir           string
	ArchiveMaxGB         int
	ArchiveIntervalHours int
	ArchiveAfterHours    int
}

func Load() *Config {
	c := &Config{}

	flag.IntVar(&c.GatewayPort, "gateway-port", envInt("GATEWAY_PORT", 8100), "client feed gateway websocket port")
	flag.IntVar(&c.APIPort, "api-port", envInt("API_PORT", 8101), "read API HTTP port")
	flag.IntVar(&c.MetricsPort, "metrics-port", envInt("METRICS_PORT", 9100), "prometheus /metrics port")
	flag.StringVar(&c.Host, "host", envStr("FIREAGG_HOST", "0.0.0.0"), "listen host for all HTTP servers")

	flag.StringVar(&c.PostgresDSN, "postgres-dsn", envStr("POSTGRES_DSN", "postgres://localhost:5432/fireagg"), "Postgres connection string")
	flag.IntVar(&c.TradeRetentionDays, "trade-retention", envInt("TRADE_RETENTION_DAYS", 30), "trade/spread/true-mid retention in days (0 = keep forever)")

	flag.StringVar(&c.BusMode, "bus-mode", envStr("BUS_MODE", "inprocess"), "message bus backend: inprocess or redis")
	flag.StringVar(&c.RedisURL, "redis-url", envStr("REDIS_URL", "redis://localhost:6379/0"), "Redis connection string (bus-mode=redis)")

	flag.IntVar(&c.LaunchWorkers, "launch-workers", envInt("LAUNCH_WORKERS", 5), "orchestrator launcher goroutine count")

	exchanges := flag.String("exchanges", envStr("EXCHANGES", "simulated"), "comma-separated list of exchange adapters to run producers for")

	flag.IntVar(&c.HealthCounterMax, "health-counter-max", envInt("HEALTH_COUNTER_MAX", 3), "producer health counter ceiling (not applied: producers use the fixed producer.HealthCounterMax)")
	flag.IntVar(&c.GatewaySendBuffer, "gateway-send-buffer", envInt("GATEWAY_SEND_BUFFER", 256), "per-client gateway send buffer size")

	flag.IntVar(&c.SinkMaxFlushAttempts, "sink-max-flush-attempts", envInt("SINK_MAX_FLUSH_ATTEMPTS", 5), "consecutive flush failures a DB sink tolerates before surfacing a fatal error")

	flag.StringVar(&c.S3Bucket, "s3-bucket", envStr("S3_BUCKET", ""), "S3 bucket for trade archival (empty = local-only)")
	flag.StringVar(&c.S3Region, "s3-region", envStr("S3_REGION", "us-east-1"), "AWS region for S3")
	flag.StringVar(&c.ArchiveDir, "archive-dir", envStr("ARCHIVE_DIR", "./archive"), "local directory for archived batches when S3Bucket is unset")
	flag.IntVar(&c.ArchiveMaxGB, "archive-max-gb", envInt("ARCHIVE_MAX_GB", 10), "local archive rotation ceiling in GB")
	flag.IntVar(&c.ArchiveIntervalHours, "archive-interval", envInt("ARCHIVE_INTERVAL_HOURS", 6), "hours between archive cycles")
	flag.IntVar(&c.ArchiveAfterHours, "archive-after", envInt("ARCHIVE_AFTER_HOURS", 24), "archive trades older than this many hours")

	flag.Parse()

	c.Exchanges = splitCSV(*exchanges)

	return c
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
