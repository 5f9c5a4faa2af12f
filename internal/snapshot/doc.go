// Package snapshot stores and serves the dashboard's market snapshot.
//
// The snapshot is the {coins, last_updated} document the dashboard polls.
// Stores keep the latest one in a file, in Redis, or nowhere; Cached keeps
// the last saved snapshot in memory in front of any of them. Handler serves
// it over HTTP and flags snapshots older than a maximum age as stale.
package snapshot
