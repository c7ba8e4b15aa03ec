// Package client maintains one logical persistent connection to the
// telemetry server with transparent reconnection.
//
// The locally held subscription set is the source of truth: it is re-applied
// in full after every successful (re)connect, which is the sole repair
// mechanism for server-side room membership. There is no event replay;
// events published while disconnected are missed.
package client
