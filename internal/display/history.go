package display

import (
	"context"
	"time"
)

// HistoryEntry represents a single completed power operation record.
//
// Each entry stores the outcome of one dispatched command against one
// display. Group operations produce one entry per member display,
// sharing a batch ID. This gives the operator a local audit trail of
// what was switched, when, and whether it worked.
type HistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DisplayID is the unique identifier of the display.
	DisplayID string `json:"display_id"`

	// Command is the operation that ran (on, off, check).
	Command string `json:"command"`

	// Result is the terminal outcome (success, failed, skipped, pairing_pending).
	Result string `json:"result"`

	// PowerState is the power state observed or assumed after the
	// operation, when known.
	PowerState string `json:"power_state,omitempty"`

	// Message carries the failure reason or skip explanation, if any.
	Message string `json:"message,omitempty"`

	// BatchID groups entries produced by a single group operation.
	BatchID string `json:"batch_id,omitempty"`

	// DurationMS is the operation wall time in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// CreatedAt is the timestamp of the record (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves power operation history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// Record persists one completed operation.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - entry: Completed operation to persist (ID and CreatedAt are
	//     assigned by the store)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	Record(ctx context.Context, entry HistoryEntry) error

	// GetHistory returns recent operations for the display.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - displayID: Unique display identifier
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []HistoryEntry: Ordered newest-first history entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, displayID string, limit int) ([]HistoryEntry, error)
}
