// Package api implements the HTTP REST API and WebSocket server for VenueCast Core.
//
// This package provides:
//   - REST endpoints for display status, commands, and operation history
//   - WebSocket hub for real-time status and batch completion broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between the operator UI and the command
// dispatcher. Commands are handed to the dispatcher and acknowledged
// with 202 before any device I/O happens; outcomes flow back through
// the status board and are broadcast to WebSocket clients by the
// event forwarder in cmd/venuecast. No handler ever blocks on a
// device.
//
// # Channels
//
// WebSocket clients subscribe to named channels:
//   - status: per-display status transitions (connecting, success,
//     failure, pairing_pending, idle decay)
//   - operations: batch lifecycle events for group commands
//
// # Graceful Degradation
//
// The server carries optional component checks (database, mqtt,
// influxdb, adb-server) surfaced through GET /health. A degraded
// optional component never takes the API down.
package api
