// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Crawl cycle outcomes, durations and last success time
//   - Records fetched, rejected, saved and published per cycle
//   - Relay subscriber count and event throughput
//   - Go runtime and process stats
package metrics
