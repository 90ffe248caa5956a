package bot

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/discoursa/discoursa/internal/db"
	"github.com/discoursa/discoursa/internal/platform"
	"github.com/discoursa/discoursa/pkg/audit"
)

// Poller fetches mention batches on a fixed interval and feeds them to the
// orchestrator, strictly one cycle at a time.
type Poller struct {
	store    *db.DB
	platform platform.Client
	orch     *Orchestrator
	audit    audit.Logger // optional
	pageSize int
	selfID   string
	busy     atomic.Bool
}

func NewPoller(store *db.DB, client platform.Client, orch *Orchestrator, auditLog audit.Logger, pageSize int, selfID string) *Poller {
	return &Poller{
		store:    store,
		platform: client,
		orch:     orch,
		audit:    auditLog,
		pageSize: pageSize,
		selfID:   selfID,
	}
}

// Poll runs one cycle: read cursor, fetch, advance cursor, process events
// oldest first. Overlapping invocations are rejected (skip-if-busy); events
// are processed strictly sequentially because branch resolution and history
// appends are not safe under concurrent mutation, and ordering decides which
// events see last_reply_ids advanced earlier in the same batch.
//
// The cursor is advanced and persisted BEFORE processing: a crash mid-batch
// loses those events rather than reprocessing them forever.
//
// Poll returns an error only for store failures; everything else is logged
// and absorbed.
func (p *Poller) Poll(ctx context.Context) error {
	if !p.busy.CompareAndSwap(false, true) {
		log.Printf("poller: previous cycle still running, skipping")
		return nil
	}
	defer p.busy.Store(false)

	sinceID, err := p.store.GetState(db.SinceIDKey)
	if err != nil {
		return fmt.Errorf("reading cursor: %w", err)
	}

	batch, err := p.platform.FetchMentions(ctx, sinceID, p.pageSize)
	if err != nil {
		log.Printf("poller: fetching mentions failed: %v", err)
		return nil
	}
	if len(batch.Events) == 0 {
		return nil
	}

	if batch.NewestID != "" {
		if err := p.store.SetState(db.SinceIDKey, batch.NewestID); err != nil {
			return fmt.Errorf("advancing cursor: %w", err)
		}
		if p.audit != nil {
			p.audit.LogAsync(&audit.Entry{
				Action: audit.ActionCursorAdvanced,
				Detail: "since_id=" + batch.NewestID,
			})
		}
	}

	// The platform returns newest first; process oldest first.
	for i := len(batch.Events) - 1; i >= 0; i-- {
		m := batch.Events[i]
		if m.AuthorID == p.selfID {
			continue
		}
		// HandleMention only errors on store failures, which are systemic:
		// stop the batch and surface them.
		if err := p.orch.HandleMention(ctx, m, batch.Includes); err != nil {
			return fmt.Errorf("processing mention %s: %w", m.ID, err)
		}
	}
	return nil
}

// Run polls on a fixed interval until ctx is cancelled. It returns early only
// on a store failure.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := p.Poll(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				return err
			}
		}
	}
}
