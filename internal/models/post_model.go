package models

import "time"

type Post struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      string           `db:"type" json:"type"`
	Caption   string           `db:"caption" json:"caption"`
	Media     []string         `db:"media" json:"media"`
	Platforms []string         `db:"platforms" json:"platforms"`
	PostedAt  time.Time        `db:"posted_at" json:"posted_at"`
	JobID     string           `db:"job_id" json:"job_id,omitempty"`
	Status    string           `db:"status" json:"status"`
	Results   []PlatformResult `json:"results,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// PlatformResult records the outcome of publishing a post to one platform.
type PlatformResult struct {
	ID         int64     `db:"id" json:"-"`
	PostID     string    `db:"post_id" json:"post_id"`
	Platform   string    `db:"platform" json:"platform"`
	Status     string    `db:"status" json:"status"`
	ExternalID string    `db:"external_id" json:"external_id,omitempty"`
	Link       string    `db:"link" json:"link,omitempty"`
	ErrorCode  string    `db:"error_code" json:"error_code,omitempty"`
	Detail     string    `db:"detail" json:"detail,omitempty"`
	Retryable  bool      `db:"-" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

const (
	PostTypePics  = "pics"
	PostTypeVid   = "vid"
	PostTypeStory = "story"
)

const (
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPosted     = "posted"
	PostStatusPartial    = "partial"
	PostStatusFailed     = "failed"
	PostStatusCancelled  = "cancelled"
)

const (
	ResultStatusSuccess = "success"
	ResultStatusError   = "error"
)

// SummarizeResults derives the post status from a set of per-platform results.
func SummarizeResults(results []PlatformResult) string {
	var ok, failed int
	for _, r := range results {
		if r.Status == ResultStatusSuccess {
			ok++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return PostStatusPosted
	case ok == 0:
		return PostStatusFailed
	default:
		return PostStatusPartial
	}
}
