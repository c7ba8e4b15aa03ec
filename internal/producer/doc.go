// Package producer is the entry point for domain events into the hub.
//
// Execution engines call the Adapter's lifecycle methods at defined points
// (status change, data collected, position changed, log line emitted); the
// adapter stamps and forwards events without ever returning an error to the
// engine. Engines in other processes publish JSON envelopes over Redis
// pub/sub, which RedisSource relays into the hub.
package producer
