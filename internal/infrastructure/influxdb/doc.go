// Package influxdb provides InfluxDB connectivity for VenueCast Core.
//
// It wraps the official influxdb-client-go v2 library with VenueCast-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Display power status transitions (power_status measurement)
//   - Group operation outcomes (batch_summary measurement)
//
// Long-horizon questions like "how often does the terrace TV miss its
// morning power-on" are answered here, not in the sqlite history.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "venuecast",
//	    Bucket: "displays",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record a status transition
//	client.WritePowerStatus("bar-left", "bar", "adb", "success", "awake", "success", 412)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// A status transition never waits on the network; a slow or absent InfluxDB
// costs nothing beyond the dropped telemetry.
package influxdb
