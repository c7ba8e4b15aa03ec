// Package event defines the telemetry event schema shared by producers,
// the broadcast hub, and dashboard clients.
//
// Each event kind carries a strongly-typed payload and maps to a fixed set of
// rooms; the mapping lives here so producers cannot mis-target events.
package event
