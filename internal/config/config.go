package config

import "time"

// CrawlerConfig is the root configuration for the crawler.
type CrawlerConfig struct {
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Poller    PollerConfig    `yaml:"poller"`
	Database  DBConfig        `yaml:"database"`
	Publisher PublisherConfig `yaml:"publisher"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// RelayConfig is the root configuration for the live relay.
type RelayConfig struct {
	Log   LogConfig   `yaml:"log"`
	Kafka KafkaConfig `yaml:"kafka"`
	Relay RelayServer `yaml:"relay"`
}

// LogConfig selects the slog level.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// APIConfig holds market data API settings.
type APIConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"` // sent as x-cg-demo-api-key
	VSCurrency string        `yaml:"vs_currency"`
	PerPage    int           `yaml:"per_page"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// PollerConfig holds scheduler settings.
type PollerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Publisher kinds.
const (
	PublisherKafka  = "kafka"
	PublisherStdout = "stdout"
	PublisherNone   = "none"
)

// PublisherConfig selects and configures the fanout sink.
type PublisherConfig struct {
	Kind         string        `yaml:"kind"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Snapshot store kinds.
const (
	SnapshotFile  = "file"
	SnapshotRedis = "redis"
	SnapshotNone  = "none"
)

// SnapshotConfig configures where the dashboard snapshot document goes.
type SnapshotConfig struct {
	Kind   string        `yaml:"kind"`
	Path   string        `yaml:"path"`
	MaxAge time.Duration `yaml:"max_age"` // older snapshots are flagged stale
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig holds a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// MetricsConfig holds the HTTP server for health, metrics and snapshots.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// KafkaConfig holds the relay's consumer settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// RelayServer holds the WebSocket endpoint settings.
type RelayServer struct {
	Port           int           `yaml:"port"`
	Path           string        `yaml:"path"`
	Destination    string        `yaml:"destination"`
	History        int           `yaml:"history"`
	SendBuffer     int           `yaml:"send_buffer"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}
