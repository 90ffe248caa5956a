package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestLogger(t *testing.T) (*SQLiteLogger, *sql.DB) {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	l := NewSQLiteLogger(sqlDB)
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return l, sqlDB
}

func countEntries(t *testing.T, sqlDB *sql.DB, action string) int {
	t.Helper()
	var n int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM audit_log WHERE action = ?", action).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestLogWritesSynchronously(t *testing.T) {
	l, sqlDB := openTestLogger(t)
	defer l.Close()

	err := l.Log(context.Background(), &Entry{
		Action:    ActionDebateStarted,
		MentionID: "m1",
		UserID:    "alice",
		Detail:    "root=p1",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if n := countEntries(t, sqlDB, ActionDebateStarted); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

func TestLogAsyncFlushesOnClose(t *testing.T) {
	l, sqlDB := openTestLogger(t)

	for i := 0; i < 10; i++ {
		l.LogAsync(&Entry{Action: ActionEventSkipped, Detail: "test"})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n := countEntries(t, sqlDB, ActionEventSkipped); n != 10 {
		t.Errorf("entries after close = %d, want 10", n)
	}
}

func TestFillDefaults(t *testing.T) {
	l, sqlDB := openTestLogger(t)
	defer l.Close()

	e := &Entry{Action: ActionCursorAdvanced}
	if err := l.Log(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if e.EntryID == "" {
		t.Error("entry id not generated")
	}
	if e.Timestamp == 0 || e.Timestamp > time.Now().Unix() {
		t.Errorf("timestamp = %d", e.Timestamp)
	}
	if e.Status != "success" {
		t.Errorf("status = %q", e.Status)
	}

	failed := &Entry{Action: ActionCursorAdvanced, Error: "boom"}
	if err := l.Log(context.Background(), failed); err != nil {
		t.Fatal(err)
	}
	if failed.Status != "error" {
		t.Errorf("status with error = %q", failed.Status)
	}

	var status string
	err := sqlDB.QueryRow("SELECT status FROM audit_log WHERE entry_id = ?", failed.EntryID).Scan(&status)
	if err != nil {
		t.Fatal(err)
	}
	if status != "error" {
		t.Errorf("persisted status = %q", status)
	}
}
