package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Turn is one entry in a branch's conversation history.
// Role is "user" or "assistant"; insertion order is chronological and is the
// order handed to the LLM.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DebateRoot is the post a debate is about. Keyed by the originating post id
// so concurrent triggers on the same post converge to one root.
type DebateRoot struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	OPHandle  string    `json:"op_handle"`
	CreatedAt time.Time `json:"created_at"`
}

// DebateBranch is one challenger's threaded conversation under a root.
// LastReplyID is the most recent bot-authored post in the thread; it is the
// join key that resolves the next continuation, and is unique across branches.
type DebateBranch struct {
	ID           string    `json:"id"`
	RootID       string    `json:"root_id"`
	ChallengerID string    `json:"challenger_id"`
	LastReplyID  string    `json:"last_reply_id"`
	History      []Turn    `json:"history"`
	CreatedAt    time.Time `json:"created_at"`
}

// EnsureRoot finds or creates the root for the given originating post.
// Idempotent: a second call with the same post id returns the existing root
// untouched.
func (db *DB) EnsureRoot(postID, topic, opHandle string, now time.Time) (*DebateRoot, error) {
	_, err := db.Exec(`
		INSERT INTO debate_roots (id, topic, op_handle, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		postID, topic, opHandle, FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("ensuring root %s: %w", postID, err)
	}
	return db.GetRoot(postID)
}

// GetRoot returns the root with the given post id.
func (db *DB) GetRoot(postID string) (*DebateRoot, error) {
	r := &DebateRoot{}
	var createdAt string
	err := db.QueryRow(`
		SELECT id, topic, op_handle, created_at
		FROM debate_roots WHERE id = ?`, postID).Scan(
		&r.ID, &r.Topic, &r.OPHandle, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("getting root %s: %w", postID, err)
	}
	if r.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRoots returns the most recent roots, newest first.
func (db *DB) ListRoots(limit int) ([]DebateRoot, error) {
	rows, err := db.Query(`
		SELECT id, topic, op_handle, created_at
		FROM debate_roots ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing roots: %w", err)
	}
	defer rows.Close()

	var roots []DebateRoot
	for rows.Next() {
		var r DebateRoot
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Topic, &r.OPHandle, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		roots = append(roots, r)
	}
	return roots, rows.Err()
}

// CreateBranch persists a new branch with its seeded history.
func (db *DB) CreateBranch(rootID, challengerID, lastReplyID string, history []Turn, now time.Time) (*DebateBranch, error) {
	b := &DebateBranch{
		ID:           uuid.NewString(),
		RootID:       rootID,
		ChallengerID: challengerID,
		LastReplyID:  lastReplyID,
		History:      history,
		CreatedAt:    now.UTC(),
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encoding history: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO debate_branches (id, root_id, challenger_id, last_reply_id, history, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, rootID, challengerID, lastReplyID, string(raw), FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("creating branch: %w", err)
	}
	return b, nil
}

// BranchByLastReply resolves a continuation: the branch whose most recent
// bot reply is the given post. Returns nil when the post is not the tip of
// any tracked thread.
func (db *DB) BranchByLastReply(postID string) (*DebateBranch, error) {
	return db.scanBranch(db.QueryRow(`
		SELECT id, root_id, challenger_id, last_reply_id, history, created_at
		FROM debate_branches WHERE last_reply_id = ?`, postID))
}

// GetBranch returns a branch by its id.
func (db *DB) GetBranch(id string) (*DebateBranch, error) {
	b, err := db.scanBranch(db.QueryRow(`
		SELECT id, root_id, challenger_id, last_reply_id, history, created_at
		FROM debate_branches WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("branch %s not found", id)
	}
	return b, nil
}

// BranchesByRoot returns all branches under a root, oldest first.
func (db *DB) BranchesByRoot(rootID string) ([]DebateBranch, error) {
	rows, err := db.Query(`
		SELECT id, root_id, challenger_id, last_reply_id, history, created_at
		FROM debate_branches WHERE root_id = ? ORDER BY created_at`, rootID)
	if err != nil {
		return nil, fmt.Errorf("listing branches for %s: %w", rootID, err)
	}
	defer rows.Close()

	var branches []DebateBranch
	for rows.Next() {
		var b DebateBranch
		var history, createdAt string
		if err := rows.Scan(&b.ID, &b.RootID, &b.ChallengerID, &b.LastReplyID, &history, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(history), &b.History); err != nil {
			return nil, fmt.Errorf("decoding history for branch %s: %w", b.ID, err)
		}
		if b.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// AppendExchange appends a user/assistant turn pair to a branch and advances
// its last_reply_id, in one transaction. The branch's previous last_reply_id
// stops matching continuations the moment this commits.
func (db *DB) AppendExchange(branchID string, userTurn, assistantTurn Turn, newLastReplyID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning exchange tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRow(`SELECT history FROM debate_branches WHERE id = ?`, branchID).Scan(&raw); err != nil {
		return fmt.Errorf("reading history for branch %s: %w", branchID, err)
	}
	var history []Turn
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return fmt.Errorf("decoding history for branch %s: %w", branchID, err)
	}
	history = append(history, userTurn, assistantTurn)
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE debate_branches SET history = ?, last_reply_id = ? WHERE id = ?`,
		string(encoded), newLastReplyID, branchID); err != nil {
		return fmt.Errorf("updating branch %s: %w", branchID, err)
	}
	return tx.Commit()
}

// CountBranchesSince counts branches created by a challenger inside
// (cutoff, now): the exact cutoff instant is excluded, as is anything at or
// after now.
func (db *DB) CountBranchesSince(challengerID string, cutoff, now time.Time) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM debate_branches
		WHERE challenger_id = ? AND created_at > ? AND created_at < ?`,
		challengerID, FormatTime(cutoff), FormatTime(now)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting branches for %s: %w", challengerID, err)
	}
	return count, nil
}

// CountRoots and CountBranches back the status endpoints.
func (db *DB) CountRoots() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM debate_roots`).Scan(&n)
	return n, err
}

func (db *DB) CountBranches() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM debate_branches`).Scan(&n)
	return n, err
}

func (db *DB) scanBranch(row *sql.Row) (*DebateBranch, error) {
	b := &DebateBranch{}
	var history, createdAt string
	err := row.Scan(&b.ID, &b.RootID, &b.ChallengerID, &b.LastReplyID, &history, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning branch: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &b.History); err != nil {
		return nil, fmt.Errorf("decoding history for branch %s: %w", b.ID, err)
	}
	if b.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	return b, nil
}
