// Package bot holds the mention-processing core: classification, rate
// limiting, the debate orchestrator, and the polling driver.
package bot

import (
	"strings"

	"github.com/discoursa/discoursa/internal/platform"
)

// Action is the classifier's verdict for one inbound mention.
type Action int

const (
	// ActionIgnore: self-authored, or no recognizable trigger/reference.
	ActionIgnore Action = iota
	// ActionNewDebate: trigger phrase present plus a replied-to or quoted
	// reference identifying the parent post.
	ActionNewDebate
	// ActionContinuation: no trigger phrase, but a replied-to reference that
	// may resolve to an open branch.
	ActionContinuation
)

func (a Action) String() string {
	switch a {
	case ActionNewDebate:
		return "new_debate"
	case ActionContinuation:
		return "continuation"
	default:
		return "ignore"
	}
}

// Classification carries the verdict and the ids the orchestrator needs.
type Classification struct {
	Action       Action
	ChallengerID string
	ParentPostID string // set for ActionNewDebate
	RepliedToID  string // set for ActionContinuation
}

// Classify decides what one mention means. It is stateless: resolving the
// replied-to post against open branches is the orchestrator's job.
//
// The decision table is ordered: the trigger-phrase check runs before
// reply-chain detection, so a mention that both contains the phrase and
// replies to a bot post starts a new debate.
func Classify(m platform.Mention, selfID, triggerPhrase string) Classification {
	if m.AuthorID == selfID {
		return Classification{Action: ActionIgnore}
	}

	if containsFold(m.Text, triggerPhrase) {
		for _, ref := range m.References {
			if ref.Type == platform.RefRepliedTo || ref.Type == platform.RefQuoted {
				return Classification{
					Action:       ActionNewDebate,
					ChallengerID: m.AuthorID,
					ParentPostID: ref.ID,
				}
			}
		}
		// Trigger phrase with nothing to debate.
		return Classification{Action: ActionIgnore}
	}

	for _, ref := range m.References {
		if ref.Type == platform.RefRepliedTo {
			return Classification{
				Action:       ActionContinuation,
				ChallengerID: m.AuthorID,
				RepliedToID:  ref.ID,
			}
		}
	}
	return Classification{Action: ActionIgnore}
}

func containsFold(text, phrase string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(phrase))
}
