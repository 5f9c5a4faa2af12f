package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// applyEnv overlays environment variables onto values read from the file.
// Unset or empty variables leave the file value alone.
func (c *CrawlerConfig) applyEnv(lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("LOG_LEVEL", &c.Log.Level)

	env.str("API_URL", &c.API.URL)
	env.str("API_KEY", &c.API.APIKey)
	env.str("VS_CURRENCY", &c.API.VSCurrency)
	env.int("COIN_COUNT", &c.API.PerPage)
	env.millis("REQUEST_INTERVAL_MS", &c.Poller.Interval)

	env.str("DB_HOST", &c.Database.Host)
	env.int("DB_PORT", &c.Database.Port)
	env.str("DB_USER", &c.Database.User)
	env.str("DB_PASSWORD", &c.Database.Password)
	env.str("DB_DATABASE", &c.Database.Name)
	env.str("DB_SSLMODE", &c.Database.SSLMode)

	env.str("PUBLISHER_KIND", &c.Publisher.Kind)
	env.list("KAFKA_BROKER", &c.Publisher.Brokers)
	env.str("KAFKA_TOPIC", &c.Publisher.Topic)

	env.str("SNAPSHOT_KIND", &c.Snapshot.Kind)
	env.str("SNAPSHOT_PATH", &c.Snapshot.Path)
	env.str("REDIS_ADDR", &c.Snapshot.Redis.Addr)
	env.str("REDIS_PASSWORD", &c.Snapshot.Redis.Password)

	env.int("METRICS_PORT", &c.Metrics.Port)

	return env.err
}

func (c *RelayConfig) applyEnv(lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("LOG_LEVEL", &c.Log.Level)
	env.list("KAFKA_BROKER", &c.Kafka.Brokers)
	env.str("KAFKA_TOPIC", &c.Kafka.Topic)
	env.str("KAFKA_GROUP_ID", &c.Kafka.GroupID)
	env.int("RELAY_PORT", &c.Relay.Port)

	return env.err
}

// SlogLevel converts the configured level to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envReader keeps the first parse error so callers check once.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok || e.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("%s: %q is not an integer", key, v)
		return
	}
	*dst = n
}

func (e *envReader) millis(key string, dst *time.Duration) {
	var ms int
	e.int(key, &ms)
	if ms != 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}
