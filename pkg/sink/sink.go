// Package sink provides implementations of the chronicle.Sink boundary:
// a zerolog console renderer, an append-only JSONL stream with rotation,
// a SQLite record store, a websocket live broadcaster, a Prometheus
// instrumentation wrapper, and a fan-out combinator.
package sink

import "errors"

// ErrPersistUnsupported is returned by Persist on sinks that have no
// separate persistence target (the live broadcaster, or the SQLite store
// whose database file is already durable). Multi skips sinks reporting it.
var ErrPersistUnsupported = errors.New("sink does not support persistence")
