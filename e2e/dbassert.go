package e2e

import (
	"database/sql"
	"fmt"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

// DBAssert provides direct SQLite assertions on the bot database. It keeps a
// persistent connection to avoid file descriptor exhaustion.
type DBAssert struct {
	path string

	mu   sync.Mutex
	conn *sql.DB
}

func NewDBAssert(dbPath string) *DBAssert {
	return &DBAssert{path: dbPath}
}

func (d *DBAssert) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

func (d *DBAssert) db() (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, nil
	}
	db, err := sql.Open("sqlite", "file:"+d.path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	d.conn = db
	return db, nil
}

// AssertRowCount verifies the number of rows matching a condition.
func (d *DBAssert) AssertRowCount(t *testing.T, table, where string, args []interface{}, expected int) {
	t.Helper()
	db, err := d.db()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}

	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)
	if where != "" {
		q += " WHERE " + where
	}
	var count int
	if err := db.QueryRow(q, args...).Scan(&count); err != nil {
		t.Fatalf("counting %s rows: %v", table, err)
	}
	if count != expected {
		t.Errorf("table %s (where %s): count = %d, want %d", table, where, count, expected)
	}
}

// QueryScalarString runs a single string-value query.
func (d *DBAssert) QueryScalarString(t *testing.T, query string, args ...interface{}) string {
	t.Helper()
	db, err := d.db()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	var result string
	if err := db.QueryRow(query, args...).Scan(&result); err != nil {
		t.Fatalf("scalar query: %v", err)
	}
	return result
}

// UserCredential returns the stored encrypted credential for a user.
func (d *DBAssert) UserCredential(t *testing.T, userID string) string {
	t.Helper()
	return d.QueryScalarString(t, "SELECT encrypted_credential FROM users WHERE id = ?", userID)
}
