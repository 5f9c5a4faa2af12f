// Package publisher fans normalized coin events out to downstream consumers.
//
// The kafka publisher sends each batch to a topic in one write, keyed by
// symbol. The stdout publisher prints one JSON line per event. The none
// publisher discards events.
package publisher
