// Package hub implements room-scoped WebSocket fan-out using the actor pattern.
//
// A single coordinator goroutine owns the room-membership map and processes
// subscribe/unsubscribe/publish/disconnect commands from a channel, so
// membership races are impossible by construction. Each connection drains its
// own bounded send queue on a dedicated writer goroutine; a connection whose
// queue overflows is force-closed rather than stalling siblings.
package hub
