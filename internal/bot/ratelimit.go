package bot

import (
	"time"

	"github.com/discoursa/discoursa/internal/db"
)

// Limiter answers "may this user start another debate right now?". It keeps
// no state of its own: the count is derived live from debate_branches on
// every call, trading efficiency for correctness at the bot's scale.
type Limiter struct {
	store  *db.DB
	limit  int
	window time.Duration
}

func NewLimiter(store *db.DB, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// AllowNewDebate reports whether userID has started fewer than the limit of
// debates in the trailing window. The window is half-open: a branch created
// exactly at now-window does not count, nor does anything at or after now.
func (l *Limiter) AllowNewDebate(userID string, now time.Time) (bool, error) {
	count, err := l.store.CountBranchesSince(userID, now.Add(-l.window), now)
	if err != nil {
		return false, err
	}
	return count < l.limit, nil
}
