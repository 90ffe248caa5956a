package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User is a platform account that has linked an LLM credential. The ID is the
// platform identity (e.g. the numeric account id), not a generated key.
type User struct {
	ID                  string    `json:"id"`
	Handle              string    `json:"handle"`
	EncryptedCredential string    `json:"-"`
	CreatedAt           time.Time `json:"created_at"`
}

// UpsertUser stores or rotates a user's encrypted credential.
func (db *DB) UpsertUser(id, handle, encryptedCredential string, now time.Time) error {
	_, err := db.Exec(`
		INSERT INTO users (id, handle, encrypted_credential, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			encrypted_credential = excluded.encrypted_credential,
			handle = CASE WHEN excluded.handle != '' THEN excluded.handle ELSE users.handle END`,
		id, handle, encryptedCredential, FormatTime(now))
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", id, err)
	}
	return nil
}

// GetUser returns the user with the given platform id, or nil if not onboarded.
func (db *DB) GetUser(id string) (*User, error) {
	u := &User{}
	var createdAt string
	err := db.QueryRow(`
		SELECT id, handle, encrypted_credential, created_at
		FROM users WHERE id = ?`, id).Scan(
		&u.ID, &u.Handle, &u.EncryptedCredential, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	if u.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	return u, nil
}
