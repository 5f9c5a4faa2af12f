package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel         = "info"
	DefaultPerPage          = 250
	DefaultAPITimeout       = 30 * time.Second
	DefaultPollInterval     = 5 * time.Minute
	DefaultCycleTimeout     = 2 * time.Minute
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 1
	DefaultPublisherKind    = PublisherKafka
	DefaultKafkaBroker      = "localhost:9092"
	DefaultTopic            = "crypto_events"
	DefaultWriteTimeout     = 10 * time.Second
	DefaultSnapshotKind     = SnapshotFile
	DefaultSnapshotPath     = "crypto_data.json"
	DefaultSnapshotMaxAge   = 15 * time.Minute
	DefaultRedisKey         = "crypto:snapshot"
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultRelayGroupID     = "crypto-relay"
	DefaultRelayPort        = 9091
	DefaultRelayPath        = "/ws"
	DefaultRelayDestination = "/topic/crypto"
	DefaultRelayHistory     = 100
	DefaultRelaySendBuffer  = 256
	DefaultPingInterval     = 15 * time.Second
)

func (c *CrawlerConfig) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// API defaults. MaxRetries stays 0: the next tick is the retry.
	if c.API.PerPage == 0 {
		c.API.PerPage = DefaultPerPage
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.CycleTimeout == 0 {
		c.Poller.CycleTimeout = DefaultCycleTimeout
	}

	applyDBDefaults(&c.Database)

	// Publisher defaults
	if c.Publisher.Kind == "" {
		c.Publisher.Kind = DefaultPublisherKind
	}
	if c.Publisher.Kind == PublisherKafka && len(c.Publisher.Brokers) == 0 {
		c.Publisher.Brokers = []string{DefaultKafkaBroker}
	}
	if c.Publisher.Topic == "" {
		c.Publisher.Topic = DefaultTopic
	}
	if c.Publisher.WriteTimeout == 0 {
		c.Publisher.WriteTimeout = DefaultWriteTimeout
	}

	// Snapshot defaults
	if c.Snapshot.Kind == "" {
		c.Snapshot.Kind = DefaultSnapshotKind
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = DefaultSnapshotPath
	}
	if c.Snapshot.MaxAge == 0 {
		c.Snapshot.MaxAge = DefaultSnapshotMaxAge
	}
	if c.Snapshot.Redis.Key == "" {
		c.Snapshot.Redis.Key = DefaultRedisKey
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

func (c *RelayConfig) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = DefaultTopic
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = DefaultRelayGroupID
	}
	if c.Relay.Port == 0 {
		c.Relay.Port = DefaultRelayPort
	}
	if c.Relay.Path == "" {
		c.Relay.Path = DefaultRelayPath
	}
	if c.Relay.Destination == "" {
		c.Relay.Destination = DefaultRelayDestination
	}
	if c.Relay.History == 0 {
		c.Relay.History = DefaultRelayHistory
	}
	if c.Relay.SendBuffer == 0 {
		c.Relay.SendBuffer = DefaultRelaySendBuffer
	}
	if c.Relay.PingInterval == 0 {
		c.Relay.PingInterval = DefaultPingInterval
	}
	if c.Relay.WriteTimeout == 0 {
		c.Relay.WriteTimeout = DefaultWriteTimeout
	}
}
