// Package monitor contains the page consumers that translate broadcast
// events into renderable state for dashboard views.
//
// Monitors subscribe through the sync manager, filter events locally by
// target id (rooms can be coarser than one entity), and keep minimal derived
// state: lifecycle status, elapsed-time counters, and capped buffers for
// chart and log rendering. Rendering itself happens behind small view
// interfaces so the sync core stays renderer-agnostic.
package monitor
