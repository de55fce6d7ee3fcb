package models

import (
	"encoding/json"
	"time"
)

type JobType string

const (
	JobTypePostPics JobType = "post:pics"
	JobTypePostVid  JobType = "post:vid"
)

var JobTypes = []JobType{JobTypePostPics, JobTypePostVid}

func (t JobType) Valid() bool {
	for _, jt := range JobTypes {
		if jt == t {
			return true
		}
	}
	return false
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) String() string {
	return string(s)
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

// running -> pending is the retry path; it always bumps the job version.
var ValidTransitions = []Transition{
	{From: JobStatusPending, To: JobStatusRunning},
	{From: JobStatusPending, To: JobStatusCancelled},
	{From: JobStatusRunning, To: JobStatusCompleted},
	{From: JobStatusRunning, To: JobStatusFailed},
	{From: JobStatusRunning, To: JobStatusPending},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

type Job struct {
	ID          string          `db:"id" json:"id"`
	Type        JobType         `db:"type" json:"type"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	RunAt       time.Time       `db:"run_at" json:"run_at"`
	Status      JobStatus       `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	MaxAttempts int             `db:"max_attempts" json:"max_attempts"`
	Version     int             `db:"version" json:"version"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	LockedBy    string          `db:"locked_by" json:"locked_by,omitempty"`
	LockedAt    *time.Time      `db:"locked_at" json:"locked_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// JobPayload references the post a publish job acts on. The post row stays
// the single source of truth for caption, media and platforms.
type JobPayload struct {
	PostID string `json:"post_id"`
}
