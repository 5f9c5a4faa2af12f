package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// -----------------------------------------------------------------------------
// Crawler
// -----------------------------------------------------------------------------

// Crawler holds the crawl pipeline metrics.
type Crawler struct {
	cycles        *prometheus.CounterVec
	records       *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	lastSuccess   prometheus.Gauge
}

// NewCrawler creates and registers the crawler metrics on reg.
func NewCrawler(reg prometheus.Registerer) *Crawler {
	c := &Crawler{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_cycles_total",
			Help: "Crawl cycles by outcome.",
		}, []string{"outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_records_total",
			Help: "Records handled by pipeline stage.",
		}, []string{"stage"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_cycle_duration_seconds",
			Help:    "Wall time of one crawl cycle.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_last_success_timestamp_seconds",
			Help: "Unix time of the last cycle that fetched data.",
		}),
	}
	reg.MustRegister(c.cycles, c.records, c.cycleDuration, c.lastSuccess)
	return c
}

// ObserveCycle records one finished cycle. ok marks the cycle as having
// fetched data, which advances the last success time to end.
func (c *Crawler) ObserveCycle(outcome string, ok bool, d time.Duration, end time.Time) {
	c.cycles.WithLabelValues(outcome).Inc()
	c.cycleDuration.Observe(d.Seconds())
	if ok {
		c.lastSuccess.Set(float64(end.Unix()))
	}
}

// AddRecords adds n records to stage.
func (c *Crawler) AddRecords(stage string, n int) {
	if n <= 0 {
		return
	}
	c.records.WithLabelValues(stage).Add(float64(n))
}

// -----------------------------------------------------------------------------
// Relay
// -----------------------------------------------------------------------------

// Relay holds the live relay metrics.
type Relay struct {
	subscribers prometheus.Gauge
	events      *prometheus.CounterVec
}

// Relay event results.
const (
	EventBroadcast = "broadcast"
	EventInvalid   = "invalid"
	EventDropped   = "dropped"
)

// NewRelay creates and registers the relay metrics on reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	r := &Relay{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_subscribers",
			Help: "Active relay subscriptions.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Topic events handled by the relay, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(r.subscribers, r.events)
	return r
}

// SetSubscribers sets the active subscription count.
func (r *Relay) SetSubscribers(n int) {
	r.subscribers.Set(float64(n))
}

// IncEvent counts one event with the given result.
func (r *Relay) IncEvent(result string) {
	r.events.WithLabelValues(result).Inc()
}
