package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *CrawlerConfig) Validate() error {
	if c.API.URL == "" {
		return errors.New("api.url is required")
	}
	if c.API.APIKey == "" {
		return errors.New("api.api_key is required")
	}
	if c.API.VSCurrency == "" {
		return errors.New("api.vs_currency is required")
	}
	if c.API.PerPage < 1 || c.API.PerPage > 250 {
		return fmt.Errorf("api.per_page must be between 1 and 250, got %d", c.API.PerPage)
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	switch c.Publisher.Kind {
	case PublisherKafka:
		if len(c.Publisher.Brokers) == 0 {
			return errors.New("publisher.brokers is required")
		}
		if c.Publisher.Topic == "" {
			return errors.New("publisher.topic is required")
		}
	case PublisherStdout, PublisherNone:
	default:
		return fmt.Errorf("publisher.kind %q is not one of kafka, stdout, none", c.Publisher.Kind)
	}

	switch c.Snapshot.Kind {
	case SnapshotFile:
		if c.Snapshot.Path == "" {
			return errors.New("snapshot.path is required")
		}
	case SnapshotRedis:
		if c.Snapshot.Redis.Addr == "" {
			return errors.New("snapshot.redis.addr is required")
		}
	case SnapshotNone:
	default:
		return fmt.Errorf("snapshot.kind %q is not one of file, redis, none", c.Snapshot.Kind)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return validateLevel(c.Log.Level)
}

// Validate checks the relay configuration.
func (c *RelayConfig) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required")
	}
	if c.Kafka.GroupID == "" {
		return errors.New("kafka.group_id is required")
	}
	if c.Relay.Port < 1 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port must be between 1 and 65535, got %d", c.Relay.Port)
	}
	if !strings.HasPrefix(c.Relay.Path, "/") {
		return fmt.Errorf("relay.path must start with /, got %q", c.Relay.Path)
	}
	if c.Relay.Destination == "" {
		return errors.New("relay.destination is required")
	}
	if c.Relay.History < 1 {
		return errors.New("relay.history must be >= 1")
	}
	if c.Relay.SendBuffer < 1 {
		return errors.New("relay.send_buffer must be >= 1")
	}
	return validateLevel(c.Log.Level)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func validateLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("log.level %q is not one of debug, info, warn, error", level)
}
