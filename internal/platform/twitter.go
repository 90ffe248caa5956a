package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxRateLimitWait caps how long one call sleeps on a 429 before giving up.
const maxRateLimitWait = 60 * time.Second

// XClient implements Client against the X API v2.
type XClient struct {
	baseURL   string
	bearer    string
	botUserID string
	client    *http.Client
}

func NewXClient(baseURL, bearerToken, botUserID string) *XClient {
	return &XClient{
		baseURL:   baseURL,
		bearer:    bearerToken,
		botUserID: botUserID,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (x *XClient) FetchMentions(ctx context.Context, sinceID string, pageSize int) (*MentionBatch, error) {
	q := url.Values{}
	q.Set("expansions", "author_id,referenced_tweets.id")
	q.Set("tweet.fields", "created_at,conversation_id,text,author_id,referenced_tweets")
	q.Set("user.fields", "username")
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}
	if pageSize > 0 {
		q.Set("max_results", strconv.Itoa(pageSize))
	}

	var resp mentionsResponse
	endpoint := fmt.Sprintf("%s/2/users/%s/mentions?%s", x.baseURL, x.botUserID, q.Encode())
	if err := x.do(ctx, "GET", endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching mentions: %w", err)
	}

	batch := &MentionBatch{
		Includes: make(map[string]Post),
		NewestID: resp.Meta.NewestID,
	}

	handles := make(map[string]string)
	for _, u := range resp.Includes.Users {
		handles[u.ID] = u.Username
	}
	for _, t := range resp.Includes.Tweets {
		batch.Includes[t.ID] = Post{
			ID:           t.ID,
			AuthorID:     t.AuthorID,
			AuthorHandle: handles[t.AuthorID],
			Text:         t.Text,
		}
	}

	for _, t := range resp.Data {
		m := Mention{
			ID:       t.ID,
			AuthorID: t.AuthorID,
			Text:     t.Text,
		}
		if t.CreatedAt != "" {
			if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
				m.CreatedAt = ts
			}
		}
		for _, ref := range t.ReferencedTweets {
			m.References = append(m.References, Reference{Type: ref.Type, ID: ref.ID})
		}
		batch.Events = append(batch.Events, m)
	}
	return batch, nil
}

func (x *XClient) FetchPost(ctx context.Context, id string) (*Post, error) {
	q := url.Values{}
	q.Set("expansions", "author_id")
	q.Set("tweet.fields", "text,author_id")
	q.Set("user.fields", "username")

	var resp tweetLookupResponse
	endpoint := fmt.Sprintf("%s/2/tweets/%s?%s", x.baseURL, id, q.Encode())
	if err := x.do(ctx, "GET", endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching post %s: %w", id, err)
	}
	if resp.Data.ID == "" {
		return nil, fmt.Errorf("post %s not found", id)
	}

	post := &Post{
		ID:       resp.Data.ID,
		AuthorID: resp.Data.AuthorID,
		Text:     resp.Data.Text,
	}
	for _, u := range resp.Includes.Users {
		if u.ID == post.AuthorID {
			post.AuthorHandle = u.Username
		}
	}
	return post, nil
}

func (x *XClient) PostReply(ctx context.Context, text, inReplyTo, quoteID string) (string, error) {
	body := createTweetRequest{Text: text, QuoteTweetID: quoteID}
	if inReplyTo != "" {
		body.Reply = &tweetReply{InReplyToTweetID: inReplyTo}
	}

	var resp createTweetResponse
	if err := x.do(ctx, "POST", x.baseURL+"/2/tweets", body, &resp); err != nil {
		return "", fmt.Errorf("posting reply: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("posting reply: no id in response")
	}
	return resp.Data.ID, nil
}

// do issues one API call, decoding JSON into out. A single 429 is absorbed by
// waiting for the advertised reset (capped) and retrying once.
func (x *XClient) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	retried := false
	for {
		var reader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+x.bearer)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := x.client.Do(req)
		if err != nil {
			return err
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests && !retried {
			retried = true
			if err := sleepUntilReset(ctx, resp.Header.Get("x-rate-limit-reset")); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, trim(respBody, 200))
		}
		return json.Unmarshal(respBody, out)
	}
}

func sleepUntilReset(ctx context.Context, resetHeader string) error {
	wait := 5 * time.Second
	if epoch, err := strconv.ParseInt(resetHeader, 10, 64); err == nil {
		wait = time.Until(time.Unix(epoch, 0))
		// A reset in the past still deserves a breather.
		if wait < time.Second {
			wait = time.Second
		}
	}
	if wait > maxRateLimitWait {
		wait = maxRateLimitWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func trim(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// X API v2 wire types
type mentionsResponse struct {
	Data []struct {
		ID               string `json:"id"`
		AuthorID         string `json:"author_id"`
		Text             string `json:"text"`
		CreatedAt        string `json:"created_at"`
		ReferencedTweets []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"referenced_tweets"`
	} `json:"data"`
	Includes struct {
		Tweets []struct {
			ID       string `json:"id"`
			AuthorID string `json:"author_id"`
			Text     string `json:"text"`
		} `json:"tweets"`
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
	Meta struct {
		NewestID string `json:"newest_id"`
	} `json:"meta"`
}

type tweetLookupResponse struct {
	Data struct {
		ID       string `json:"id"`
		AuthorID string `json:"author_id"`
		Text     string `json:"text"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

type createTweetRequest struct {
	Text         string      `json:"text"`
	Reply        *tweetReply `json:"reply,omitempty"`
	QuoteTweetID string      `json:"quote_tweet_id,omitempty"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createTweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}
