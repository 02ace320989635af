package display

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
//
// It stores one row per completed operation in the operation_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite history repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteHistoryRepository: Repository instance ready for use
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record inserts a new operation history row.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - entry: Completed operation to persist
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) Record(ctx context.Context, entry HistoryEntry) error {
	if entry.DisplayID == "" {
		return fmt.Errorf("display id is required")
	}
	if entry.Command == "" {
		return fmt.Errorf("command is required")
	}
	if entry.Result == "" {
		return fmt.Errorf("result is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO operation_history (display_id, command, result, power_state, message, batch_id, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.DisplayID,
		entry.Command,
		entry.Result,
		entry.PowerState,
		entry.Message,
		entry.BatchID,
		entry.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting operation history: %w", err)
	}

	return nil
}

// GetHistory returns recent operation history for a display, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - displayID: Unique display identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []HistoryEntry: History entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, displayID string, limit int) ([]HistoryEntry, error) {
	if displayID == "" {
		return nil, fmt.Errorf("display id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, display_id, command, result, power_state, message, batch_id, duration_ms, created_at
		 FROM operation_history
		 WHERE display_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		displayID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying operation history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var createdAt string

		if err := rows.Scan(
			&entry.ID,
			&entry.DisplayID,
			&entry.Command,
			&entry.Result,
			&entry.PowerState,
			&entry.Message,
			&entry.BatchID,
			&entry.DurationMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning operation history: %w", err)
		}

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operation history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes history entries older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (entries older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM operation_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting operation history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
