package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// SinceIDKey is the bot_state key holding the polling cursor.
const SinceIDKey = "since_id"

// GetState reads a bot_state value. Returns "" when the key has never been set.
func (db *DB) GetState(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM bot_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading state %s: %w", key, err)
	}
	return value, nil
}

// SetState upserts a bot_state value.
func (db *DB) SetState(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO bot_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("writing state %s: %w", key, err)
	}
	return nil
}
