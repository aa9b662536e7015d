// README: Smoke and load runner against a live dispatch API; executes HTTP/DB/Redis checks and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench, err := NewRunner(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case statusPass:
			pass++
		case statusFail:
			fail++
		case statusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL       string
	DSN           string
	RedisAddr     string
	MigrationPath string
	JWTSecret     string
	JWTIssuer     string
	Strict        bool
	Timeout       time.Duration
	Concurrency   int
	Duration      time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", env("DISPATCH_BENCH_BASE_URL", "http://localhost:8080", str), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", env("DISPATCH_BENCH_DSN", "", str), "Postgres DSN (empty skips DB checks)")
	flag.StringVar(&cfg.RedisAddr, "redis", env("DISPATCH_BENCH_REDIS_ADDR", "", str), "Redis address (empty skips Redis checks)")
	flag.StringVar(&cfg.MigrationPath, "migration", env("DISPATCH_BENCH_MIGRATION", "migrations/0001_init.sql", str), "Migration SQL path")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", env("DISPATCH_JWT_SECRET", "", str), "Secret used to mint test tokens")
	flag.StringVar(&cfg.JWTIssuer, "jwt-issuer", env("DISPATCH_JWT_ISSUER", "dispatch", str), "Issuer of test tokens")
	flag.BoolVar(&cfg.Strict, "strict", env("DISPATCH_BENCH_STRICT", false, strconv.ParseBool), "Fail on skipped checks")
	flag.DurationVar(&cfg.Timeout, "timeout", env("DISPATCH_BENCH_TIMEOUT", 60*time.Second, time.ParseDuration), "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", env("DISPATCH_BENCH_CONCURRENCY", 20, strconv.Atoi), "Concurrency for race and load checks")
	flag.DurationVar(&cfg.Duration, "duration", env("DISPATCH_BENCH_DURATION", 10*time.Second, time.ParseDuration), "Duration for load checks")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg
}

// env returns the parsed value of key, or def when unset or unparsable.
func env[T any](key string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	parsed, err := parse(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring %s=%q: %v\n", key, v, err)
		return def
	}
	return parsed
}

func str(v string) (string, error) { return v, nil }
