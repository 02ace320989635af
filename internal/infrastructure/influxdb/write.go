package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePowerStatus records one display status transition.
//
// This is the primary method for recording display power telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - displayID: Display identifier (e.g., "bar-left")
//   - group: The display's group (e.g., "bar"), empty if ungrouped
//   - protocol: Control protocol ("adb" or "webos")
//   - phase: Status phase (e.g., "success", "failure", "pairing_pending")
//   - powerState: Observed power state (e.g., "awake", "asleep", "unreachable")
//   - result: Operation result, empty for non-terminal transitions
//   - durationMS: Operation duration in milliseconds
//
// Example:
//
//	client.WritePowerStatus("bar-left", "bar", "adb", "success", "awake", "success", 412)
func (c *Client) WritePowerStatus(displayID, group, protocol, phase, powerState, result string, durationMS int64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"phase":       phase,
		"power_state": powerState,
		"duration_ms": durationMS,
	}
	if result != "" {
		fields["result"] = result
	}

	point := write.NewPoint(
		"power_status",
		map[string]string{
			"display_id": displayID,
			"group":      group,
			"protocol":   protocol,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBatchSummary records the outcome of a finished group operation.
//
// Batch IDs are high cardinality so they travel as a field, not a tag.
//
// Parameters:
//   - batchID: The batch identifier
//   - target: The resolved target ("all" or a group name)
//   - command: The command that ran (on, off, check)
//   - status: Final batch status (completed, partial, failed)
//   - total, succeeded, failed, skipped: Member tallies
//   - durationMS: Wall time from dispatch to the last member finishing
func (c *Client) WriteBatchSummary(batchID, target, command, status string, total, succeeded, failed, skipped int, durationMS int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"batch_summary",
		map[string]string{
			"target":  target,
			"command": command,
			"status":  status,
		},
		map[string]interface{}{
			"batch_id":    batchID,
			"total":       total,
			"succeeded":   succeeded,
			"failed":      failed,
			"skipped":     skipped,
			"duration_ms": durationMS,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "venuecast-01"},
//	    map[string]interface{}{"events_dropped": 3, "displays": 12})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
