package audit

import "context"

// Entry records a single bot action for the audit trail.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"`
	Action     string `json:"action"` // e.g. "debate_started", "rebuttal_posted"
	MentionID  string `json:"mention_id"`
	UserID     string `json:"user_id"`
	Detail     string `json:"detail"`
	Error      string `json:"error_message"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"` // "success", "skipped" or "error"
}

// Actions recorded by the orchestrator and poller.
const (
	ActionDebateStarted  = "debate_started"
	ActionRebuttalPosted = "rebuttal_posted"
	ActionNoticePosted   = "notice_posted"
	ActionEventSkipped   = "event_skipped"
	ActionCursorAdvanced = "cursor_advanced"
)

// Logger writes audit entries to storage.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	LogAsync(entry *Entry)
	Close() error
}
