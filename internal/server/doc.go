// Package server implements the HTTP server using Echo framework.
//
// Routes: WebSocket endpoint (/ws), health probes, Prometheus metrics, and a
// version endpoint. The WebSocket handler owns the read side of each
// connection (control messages); the hub owns the write side.
package server
