// Package poller schedules crawl cycles.
//
// The poller:
//   - Runs the first cycle immediately, then one per interval
//   - Never overlaps cycles; ticks missed by a slow cycle are dropped
//   - Lets a running cycle finish on shutdown and never starts another
package poller
