// Package platform talks to the social platform's API: mentions timeline,
// single-post lookup, and reply/quote posting.
package platform

import (
	"context"
	"time"
)

// Reference types attached to a mention.
const (
	RefRepliedTo = "replied_to"
	RefQuoted    = "quoted"
)

// Reference points a mention at another post.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Mention is one inbound post that tagged the bot's account.
type Mention struct {
	ID         string      `json:"id"`
	AuthorID   string      `json:"author_id"`
	Text       string      `json:"text"`
	References []Reference `json:"referenced_tweets,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Post is a fetched post, either from the includes block or a direct lookup.
type Post struct {
	ID           string `json:"id"`
	AuthorID     string `json:"author_id"`
	AuthorHandle string `json:"author_handle,omitempty"`
	Text         string `json:"text"`
}

// MentionBatch is one page of the mentions timeline. Events arrive newest
// first, as the platform returns them; Includes carries posts referenced by
// the events, keyed by post id.
type MentionBatch struct {
	Events   []Mention
	Includes map[string]Post
	NewestID string
}

// Client is the capability surface the bot needs from the platform.
type Client interface {
	// FetchMentions returns mentions newer than sinceID ("" = from the
	// platform's default horizon), bounded by pageSize.
	FetchMentions(ctx context.Context, sinceID string, pageSize int) (*MentionBatch, error)
	// FetchPost looks up a single post by id.
	FetchPost(ctx context.Context, id string) (*Post, error)
	// PostReply publishes text as a reply to inReplyTo, optionally quoting
	// quoteID ("" = no quote). Returns the new post's id.
	PostReply(ctx context.Context, text, inReplyTo, quoteID string) (string, error)
}
