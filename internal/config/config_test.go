package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
api:
  url: https://api.coingecko.com/api/v3/coins/markets
  api_key: demo-key
  vs_currency: usd
  per_page: 100
poller:
  interval: 1m
database:
  host: localhost
  port: 5433
  name: crypto
  user: crawler
  password: crawlerpass
publisher:
  kind: kafka
  brokers: [kafka1:9092, kafka2:9092]
  topic: crypto_events
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.URL != "https://api.coingecko.com/api/v3/coins/markets" {
		t.Errorf("API.URL = %q, want %q", cfg.API.URL, "https://api.coingecko.com/api/v3/coins/markets")
	}
	if cfg.API.PerPage != 100 {
		t.Errorf("API.PerPage = %d, want 100", cfg.API.PerPage)
	}
	if cfg.Poller.Interval != time.Minute {
		t.Errorf("Poller.Interval = %v, want 1m", cfg.Poller.Interval)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Database.Port = %d, want 5433", cfg.Database.Port)
	}
	if len(cfg.Publisher.Brokers) != 2 || cfg.Publisher.Brokers[1] != "kafka2:9092" {
		t.Errorf("Publisher.Brokers = %v, want [kafka1:9092 kafka2:9092]", cfg.Publisher.Brokers)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  host: localhost
  name: crypto
  user: crawler
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadEnvironmentOnly(t *testing.T) {
	t.Setenv("API_URL", "https://api.example.com/coins/markets")
	t.Setenv("API_KEY", "k")
	t.Setenv("VS_CURRENCY", "eur")
	t.Setenv("COIN_COUNT", "50")
	t.Setenv("REQUEST_INTERVAL_MS", "60000")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASSWORD", "p")
	t.Setenv("DB_DATABASE", "crypto")
	t.Setenv("KAFKA_BROKER", "b1:9092, b2:9092")
	t.Setenv("KAFKA_TOPIC", "coins")

	cfg, err := LoadAndValidate("")
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.API.VSCurrency != "eur" {
		t.Errorf("API.VSCurrency = %q, want %q", cfg.API.VSCurrency, "eur")
	}
	if cfg.API.PerPage != 50 {
		t.Errorf("API.PerPage = %d, want 50", cfg.API.PerPage)
	}
	if cfg.Poller.Interval != time.Minute {
		t.Errorf("Poller.Interval = %v, want 1m", cfg.Poller.Interval)
	}
	if cfg.Database.Port != 3307 {
		t.Errorf("Database.Port = %d, want 3307", cfg.Database.Port)
	}
	if len(cfg.Publisher.Brokers) != 2 || cfg.Publisher.Brokers[1] != "b2:9092" {
		t.Errorf("Publisher.Brokers = %v, want [b1:9092 b2:9092]", cfg.Publisher.Brokers)
	}
	if cfg.Publisher.Topic != "coins" {
		t.Errorf("Publisher.Topic = %q, want %q", cfg.Publisher.Topic, "coins")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("VS_CURRENCY", "jpy")

	path := writeTempFile(t, "api:\n  vs_currency: usd\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.VSCurrency != "jpy" {
		t.Errorf("API.VSCurrency = %q, want %q", cfg.API.VSCurrency, "jpy")
	}
}

func TestLoadBadInteger(t *testing.T) {
	t.Setenv("COIN_COUNT", "lots")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for non-integer COIN_COUNT")
	}
	if !strings.Contains(err.Error(), "COIN_COUNT") {
		t.Errorf("error = %q, should name COIN_COUNT", err.Error())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
database:
  host: localhost
  name: crypto
  user: crawler
  password: pass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.API.PerPage != DefaultPerPage {
		t.Errorf("API.PerPage = %d, want default %d", cfg.API.PerPage, DefaultPerPage)
	}
	if cfg.API.MaxRetries != 0 {
		t.Errorf("API.MaxRetries = %d, want 0", cfg.API.MaxRetries)
	}
	if cfg.Poller.Interval != DefaultPollInterval {
		t.Errorf("Poller.Interval = %v, want default %v", cfg.Poller.Interval, DefaultPollInterval)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Database.MaxConns != DefaultMaxConns {
		t.Errorf("Database.MaxConns = %d, want default %d", cfg.Database.MaxConns, DefaultMaxConns)
	}
	if cfg.Publisher.Kind != PublisherKafka {
		t.Errorf("Publisher.Kind = %q, want %q", cfg.Publisher.Kind, PublisherKafka)
	}
	if len(cfg.Publisher.Brokers) != 1 || cfg.Publisher.Brokers[0] != DefaultKafkaBroker {
		t.Errorf("Publisher.Brokers = %v, want [%s]", cfg.Publisher.Brokers, DefaultKafkaBroker)
	}
	if cfg.Snapshot.Path != DefaultSnapshotPath {
		t.Errorf("Snapshot.Path = %q, want default %q", cfg.Snapshot.Path, DefaultSnapshotPath)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestValidate(t *testing.T) {
	valid := func() CrawlerConfig {
		cfg := CrawlerConfig{
			API:      APIConfig{URL: "https://api.example.com", APIKey: "k", VSCurrency: "usd"},
			Database: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*CrawlerConfig)
		wantErr string
	}{
		{
			name:    "missing api url",
			mutate:  func(c *CrawlerConfig) { c.API.URL = "" },
			wantErr: "api.url is required",
		},
		{
			name:    "missing api key",
			mutate:  func(c *CrawlerConfig) { c.API.APIKey = "" },
			wantErr: "api.api_key is required",
		},
		{
			name:    "missing currency",
			mutate:  func(c *CrawlerConfig) { c.API.VSCurrency = "" },
			wantErr: "api.vs_currency is required",
		},
		{
			name:    "per page too large",
			mutate:  func(c *CrawlerConfig) { c.API.PerPage = 500 },
			wantErr: "api.per_page must be between 1 and 250, got 500",
		},
		{
			name:    "missing database host",
			mutate:  func(c *CrawlerConfig) { c.Database.Host = "" },
			wantErr: "database.host is required",
		},
		{
			name:    "missing database password",
			mutate:  func(c *CrawlerConfig) { c.Database.Password = "" },
			wantErr: "database.password is required",
		},
		{
			name:    "min_conns exceeds max_conns",
			mutate:  func(c *CrawlerConfig) { c.Database.MaxConns = 2; c.Database.MinConns = 5 },
			wantErr: "database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *CrawlerConfig) { c.Publisher.Brokers = nil },
			wantErr: "publisher.brokers is required",
		},
		{
			name:    "unknown publisher",
			mutate:  func(c *CrawlerConfig) { c.Publisher.Kind = "nats" },
			wantErr: `publisher.kind "nats" is not one of kafka, stdout, none`,
		},
		{
			name: "stdout publisher needs no brokers",
			mutate: func(c *CrawlerConfig) {
				c.Publisher.Kind = PublisherStdout
				c.Publisher.Brokers = nil
			},
		},
		{
			name:    "redis snapshot without addr",
			mutate:  func(c *CrawlerConfig) { c.Snapshot.Kind = SnapshotRedis },
			wantErr: "snapshot.redis.addr is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *CrawlerConfig) { c.Log.Level = "chatty" },
			wantErr: `log.level "chatty" is not one of debug, info, warn, error`,
		},
		{
			name:   "valid config",
			mutate: func(c *CrawlerConfig) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestLoadRelay(t *testing.T) {
	t.Setenv("RELAY_PORT", "8088")

	path := writeTempFile(t, "kafka:\n  brokers: [kafka1:29092]\n  topic: cal_avg_crypto_currency\n")

	cfg, err := LoadRelay(path)
	if err != nil {
		t.Fatalf("LoadRelay failed: %v", err)
	}

	if cfg.Relay.Port != 8088 {
		t.Errorf("Relay.Port = %d, want 8088", cfg.Relay.Port)
	}
	if cfg.Kafka.Topic != "cal_avg_crypto_currency" {
		t.Errorf("Kafka.Topic = %q, want %q", cfg.Kafka.Topic, "cal_avg_crypto_currency")
	}
	if cfg.Relay.History != DefaultRelayHistory {
		t.Errorf("Relay.History = %d, want default %d", cfg.Relay.History, DefaultRelayHistory)
	}
	if cfg.Relay.Destination != DefaultRelayDestination {
		t.Errorf("Relay.Destination = %q, want default %q", cfg.Relay.Destination, DefaultRelayDestination)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]string{
		"debug": "DEBUG",
		"WARN":  "WARN",
		"error": "ERROR",
		"":      "INFO",
	}
	for in, want := range tests {
		if got := (LogConfig{Level: in}).SlogLevel().String(); got != want {
			t.Errorf("SlogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestExampleConfigs(t *testing.T) {
	t.Setenv("API_KEY", "demo-key")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("REDIS_PASSWORD", "")

	cfg, err := LoadAndValidate("../../configs/crawler.example.yaml")
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}
	if cfg.API.APIKey != "demo-key" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "demo-key")
	}
	if cfg.Poller.Interval != 5*time.Minute {
		t.Errorf("Poller.Interval = %v, want 5m", cfg.Poller.Interval)
	}
	if cfg.Snapshot.MaxAge != 15*time.Minute {
		t.Errorf("Snapshot.MaxAge = %v, want 15m", cfg.Snapshot.MaxAge)
	}

	relayCfg, err := LoadRelay("../../configs/relay.example.yaml")
	if err != nil {
		t.Fatalf("LoadRelay() error = %v", err)
	}
	if relayCfg.Relay.History != 100 {
		t.Errorf("Relay.History = %d, want 100", relayCfg.Relay.History)
	}
}
