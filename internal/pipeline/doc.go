// Package pipeline runs one crawl cycle: fetch, normalize, persist,
// publish, snapshot.
//
// Every failure is local to the cycle. A fetch failure skips the cycle, a
// batch with no valid records skips the sinks, and persistence, publishing
// and snapshotting fail independently of each other.
package pipeline
