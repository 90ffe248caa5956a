package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/discoursa/discoursa/internal/db"
	"github.com/discoursa/discoursa/internal/llm"
	"github.com/discoursa/discoursa/internal/platform"
	"github.com/discoursa/discoursa/internal/secrets"
	"github.com/discoursa/discoursa/pkg/audit"
)

// Courtesy messages. These are the only two user-facing failure texts the
// bot ever posts; every other failure mode stays silent.
const (
	rateLimitNotice  = "You have reached your debate limit for the hour."
	onboardingNotice = "Please link your account at %s to start debates."
)

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	Store         *db.DB
	Platform      platform.Client
	Generator     llm.Generator
	Keeper        *secrets.Keeper
	Limiter       *Limiter
	Audit         audit.Logger // optional
	SelfID        string
	TriggerPhrase string
	LinkURL       string
	Now           func() time.Time // defaults to time.Now
}

// Orchestrator drives one mention through classification, LLM invocation,
// reply posting and state updates.
//
// Error contract: HandleMention returns an error only for store failures,
// which indicate the subsystem's consistency is suspect. Every failure of the
// platform or LLM capabilities, and every missing precondition, terminates
// the single event silently (at most a courtesy notice) and returns nil so
// the rest of the batch proceeds.
type Orchestrator struct {
	store    *db.DB
	platform platform.Client
	gen      llm.Generator
	keeper   *secrets.Keeper
	limiter  *Limiter
	audit    audit.Logger
	selfID   string
	trigger  string
	linkURL  string
	now      func() time.Time
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:    cfg.Store,
		platform: cfg.Platform,
		gen:      cfg.Generator,
		keeper:   cfg.Keeper,
		limiter:  cfg.Limiter,
		audit:    cfg.Audit,
		selfID:   cfg.SelfID,
		trigger:  cfg.TriggerPhrase,
		linkURL:  cfg.LinkURL,
		now:      now,
	}
}

// HandleMention processes one inbound mention. includes holds posts the
// platform already returned alongside the batch, keyed by post id.
func (o *Orchestrator) HandleMention(ctx context.Context, m platform.Mention, includes map[string]platform.Post) error {
	cls := Classify(m, o.selfID, o.trigger)
	switch cls.Action {
	case ActionNewDebate:
		return o.startDebate(ctx, m, cls, includes)
	case ActionContinuation:
		return o.continueDebate(ctx, m, cls)
	default:
		return nil
	}
}

// startDebate runs the new-debate chain:
// RateCheck → ResolveParent → ResolveUser → Decrypt → EnsureRoot →
// Generate → Post → Persist.
func (o *Orchestrator) startDebate(ctx context.Context, m platform.Mention, cls Classification, includes map[string]platform.Post) error {
	now := o.now()

	allowed, err := o.limiter.AllowNewDebate(cls.ChallengerID, now)
	if err != nil {
		return fmt.Errorf("rate check for %s: %w", cls.ChallengerID, err)
	}
	if !allowed {
		o.postNotice(ctx, rateLimitNotice, m.ID)
		o.record(audit.ActionNoticePosted, m, "rate limit reached")
		return nil
	}

	parent, ok := includes[cls.ParentPostID]
	if !ok {
		fetched, err := o.platform.FetchPost(ctx, cls.ParentPostID)
		if err != nil {
			log.Printf("bot: parent post %s unavailable, skipping: %v", cls.ParentPostID, err)
			o.skip(m, "parent fetch failed")
			return nil
		}
		parent = *fetched
	}

	user, err := o.store.GetUser(cls.ChallengerID)
	if err != nil {
		return fmt.Errorf("resolving challenger %s: %w", cls.ChallengerID, err)
	}
	if user == nil {
		o.postNotice(ctx, fmt.Sprintf(onboardingNotice, o.linkURL), m.ID)
		o.record(audit.ActionNoticePosted, m, "onboarding prompt")
		return nil
	}

	apiKey, err := o.keeper.Decrypt(user.EncryptedCredential)
	if err != nil {
		// Never surfaced to the user.
		log.Printf("bot: credential decrypt failed for %s, skipping", cls.ChallengerID)
		o.skip(m, "decrypt failed")
		return nil
	}

	root, err := o.store.EnsureRoot(parent.ID, parent.Text, parent.AuthorHandle, now)
	if err != nil {
		return fmt.Errorf("ensuring root %s: %w", parent.ID, err)
	}

	opening := o.gen.Opening(ctx, apiKey, parent.Text)

	// Reply to the challenger, quoting the post under debate. No branch may
	// exist without its posted opening.
	replyID, err := o.platform.PostReply(ctx, opening, m.ID, parent.ID)
	if err != nil {
		log.Printf("bot: posting opening failed, no branch created: %v", err)
		o.skip(m, "post failed")
		return nil
	}

	history := []db.Turn{
		{Role: "user", Content: "Debate this: " + parent.Text},
		{Role: "assistant", Content: opening},
	}
	branch, err := o.store.CreateBranch(root.ID, cls.ChallengerID, replyID, history, now)
	if err != nil {
		// The reply is already public; an unpersisted branch would be a
		// permanently dangling thread, so try once more before surfacing.
		branch, err = o.store.CreateBranch(root.ID, cls.ChallengerID, replyID, history, now)
		if err != nil {
			return fmt.Errorf("persisting branch after posted reply %s: %w", replyID, err)
		}
	}

	if o.audit != nil {
		o.audit.LogAsync(&audit.Entry{
			Action:    audit.ActionDebateStarted,
			MentionID: m.ID,
			UserID:    cls.ChallengerID,
			Detail:    "root=" + root.ID + " branch=" + branch.ID,
		})
	}
	log.Printf("bot: debate started root=%s branch=%s challenger=%s", root.ID, branch.ID, cls.ChallengerID)
	return nil
}

// continueDebate runs the continuation chain:
// ResolveBranch → AuthorizeChallenger → ResolveUser → Decrypt →
// AppendInbound → Generate → Post → Persist.
func (o *Orchestrator) continueDebate(ctx context.Context, m platform.Mention, cls Classification) error {
	branch, err := o.store.BranchByLastReply(cls.RepliedToID)
	if err != nil {
		return fmt.Errorf("resolving branch for %s: %w", cls.RepliedToID, err)
	}
	if branch == nil {
		// Not a tracked thread.
		return nil
	}

	if branch.ChallengerID != cls.ChallengerID {
		// Interlopers in the thread are not rebutted.
		o.skip(m, "not the challenger")
		return nil
	}

	user, err := o.store.GetUser(cls.ChallengerID)
	if err != nil {
		return fmt.Errorf("resolving challenger %s: %w", cls.ChallengerID, err)
	}
	if user == nil {
		return nil
	}

	apiKey, err := o.keeper.Decrypt(user.EncryptedCredential)
	if err != nil {
		log.Printf("bot: credential decrypt failed for %s, skipping", cls.ChallengerID)
		o.skip(m, "decrypt failed")
		return nil
	}

	// Working copy only; persisted history must stay consistent with what
	// was actually published.
	working := make([]llm.Message, 0, len(branch.History)+1)
	for _, turn := range branch.History {
		working = append(working, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	working = append(working, llm.Message{Role: "user", Content: m.Text})

	rebuttal := o.gen.Rebuttal(ctx, apiKey, working)

	replyID, err := o.platform.PostReply(ctx, rebuttal, m.ID, "")
	if err != nil {
		log.Printf("bot: posting rebuttal failed, turn not persisted: %v", err)
		o.skip(m, "post failed")
		return nil
	}

	userTurn := db.Turn{Role: "user", Content: m.Text}
	assistantTurn := db.Turn{Role: "assistant", Content: rebuttal}
	if err := o.store.AppendExchange(branch.ID, userTurn, assistantTurn, replyID); err != nil {
		// Same dangling-thread concern as branch creation: retry once.
		if err = o.store.AppendExchange(branch.ID, userTurn, assistantTurn, replyID); err != nil {
			return fmt.Errorf("persisting exchange after posted reply %s: %w", replyID, err)
		}
	}

	if o.audit != nil {
		o.audit.LogAsync(&audit.Entry{
			Action:    audit.ActionRebuttalPosted,
			MentionID: m.ID,
			UserID:    cls.ChallengerID,
			Detail:    "branch=" + branch.ID,
		})
	}
	return nil
}

// postNotice publishes a courtesy message, best effort. A failed notice never
// aborts event processing.
func (o *Orchestrator) postNotice(ctx context.Context, text, inReplyTo string) {
	if _, err := o.platform.PostReply(ctx, text, inReplyTo, ""); err != nil {
		log.Printf("bot: courtesy notice failed: %v", err)
	}
}

func (o *Orchestrator) skip(m platform.Mention, reason string) {
	if o.audit != nil {
		o.audit.LogAsync(&audit.Entry{
			Action:    audit.ActionEventSkipped,
			MentionID: m.ID,
			UserID:    m.AuthorID,
			Detail:    reason,
			Status:    "skipped",
		})
	}
}

func (o *Orchestrator) record(action string, m platform.Mention, detail string) {
	if o.audit != nil {
		o.audit.LogAsync(&audit.Entry{
			Action:    action,
			MentionID: m.ID,
			UserID:    m.AuthorID,
			Detail:    detail,
		})
	}
}
