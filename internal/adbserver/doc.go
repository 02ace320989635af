// Package adbserver provides management of the adb host daemon.
//
// The adb server is the interface between VenueCast and TCP-ADB
// displays. Android's adb client auto-starts a background daemon on
// demand, which means no supervision, no restart policy, and nothing
// in the logs when it dies. This package runs the daemon as a
// VenueCast subprocess instead, providing:
//
//   - Configuration-driven startup (explicit port, explicit binary)
//   - Automatic restart on failure with exponential backoff
//   - Health monitoring over the daemon's own wire protocol
//   - Graceful shutdown coordination
//
// The daemon runs in the foreground (adb server nodaemon) so its
// lifetime, stdout and stderr belong to the supervising process.
//
// Example configuration (in config.yaml):
//
//	adb:
//	  binary: "adb"
//	  server:
//	    enabled: true
//	    port: 5037
//	    restart_on_failure: true
//	    max_restart_attempts: 10
//
// Management is optional. With enabled: false the manager does
// nothing and VenueCast relies on an externally started daemon or
// adb's implicit auto-start.
package adbserver
