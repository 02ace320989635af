package display

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupHistoryTestDB creates an in-memory SQLite database with the operation_history table.
func setupHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE operation_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			display_id TEXT NOT NULL,
			command TEXT NOT NULL,
			result TEXT NOT NULL,
			power_state TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			batch_id TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_operation_history_display ON operation_history(display_id, created_at DESC);
		CREATE INDEX idx_operation_history_time ON operation_history(created_at DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// insertHistoryRow inserts a history row with a specific timestamp.
func insertHistoryRow(t *testing.T, db *sql.DB, displayID, command, result string, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO operation_history (display_id, command, result, created_at) VALUES (?, ?, ?, ?)",
		displayID,
		command,
		result,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert history row: %v", err)
	}
}

// TestHistoryRecord verifies operation history writes and retrieval.
func TestHistoryRecord(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	entry := HistoryEntry{
		DisplayID:  "inside-bar-left",
		Command:    "power_on",
		Result:     "success",
		PowerState: string(PowerStateAwake),
		BatchID:    "batch-1",
		DurationMS: 1420,
	}
	if err := repo.Record(ctx, entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "inside-bar-left", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	got := entries[0]
	if got.DisplayID != "inside-bar-left" {
		t.Errorf("DisplayID = %q, want %q", got.DisplayID, "inside-bar-left")
	}
	if got.Command != "power_on" {
		t.Errorf("Command = %q, want %q", got.Command, "power_on")
	}
	if got.Result != "success" {
		t.Errorf("Result = %q, want %q", got.Result, "success")
	}
	if got.PowerState != string(PowerStateAwake) {
		t.Errorf("PowerState = %q, want %q", got.PowerState, PowerStateAwake)
	}
	if got.BatchID != "batch-1" {
		t.Errorf("BatchID = %q, want %q", got.BatchID, "batch-1")
	}
	if got.DurationMS != 1420 {
		t.Errorf("DurationMS = %d, want 1420", got.DurationMS)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want non-zero")
	}
}

// TestHistoryRecord_RequiredFields verifies input checking.
func TestHistoryRecord_RequiredFields(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry HistoryEntry
	}{
		{
			name:  "missing display id",
			entry: HistoryEntry{Command: "check", Result: "success"},
		},
		{
			name:  "missing command",
			entry: HistoryEntry{DisplayID: "inside-bar-left", Result: "success"},
		},
		{
			name:  "missing result",
			entry: HistoryEntry{DisplayID: "inside-bar-left", Command: "check"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Record(ctx, tt.entry); err == nil {
				t.Error("Record() = nil, want error")
			}
		})
	}
}

// TestHistoryGetHistory verifies ordering and limit enforcement.
func TestHistoryGetHistory(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertHistoryRow(t, db, "inside-bar-left", "power_on", "success", now.Add(-2*time.Hour))
	insertHistoryRow(t, db, "inside-bar-left", "check", "success", now.Add(-1*time.Hour))
	insertHistoryRow(t, db, "inside-bar-left", "power_off", "failure", now)
	insertHistoryRow(t, db, "outside-terrace", "check", "success", now)

	entries, err := repo.GetHistory(ctx, "inside-bar-left", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}

	if !entries[0].CreatedAt.Equal(now) {
		t.Errorf("entry[0] CreatedAt = %s, want %s", entries[0].CreatedAt, now)
	}
	if entries[0].Command != "power_off" {
		t.Errorf("entry[0] Command = %q, want %q", entries[0].Command, "power_off")
	}
	if !entries[1].CreatedAt.Equal(now.Add(-1 * time.Hour)) {
		t.Errorf("entry[1] CreatedAt = %s, want %s", entries[1].CreatedAt, now.Add(-1*time.Hour))
	}
}

// TestHistoryPrune verifies old entries are removed.
func TestHistoryPrune(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertHistoryRow(t, db, "inside-bar-left", "power_on", "success", now.Add(-40*24*time.Hour))
	insertHistoryRow(t, db, "inside-bar-left", "power_off", "success", now.Add(-12*time.Hour))

	deleted, err := repo.PruneHistory(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	entries, err := repo.GetHistory(ctx, "inside-bar-left", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}
	if !entries[0].CreatedAt.Equal(now.Add(-12 * time.Hour)) {
		t.Errorf("remaining CreatedAt = %s, want %s", entries[0].CreatedAt, now.Add(-12*time.Hour))
	}
}
