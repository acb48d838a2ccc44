// Package jobs persists export jobs and runs them one at a time.
package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tourneyreel/studio/internal/export"
)

var ErrNotFound = errors.New("export job not found")

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	FormatMP4 = "mp4"
)

type Job struct {
	ID         string              `json:"id"`
	CampaignID string              `json:"campaign_id"`
	Title      string              `json:"title,omitempty"`
	Format     string              `json:"format"`
	Status     string              `json:"status"`
	Phase      export.Phase        `json:"phase,omitempty"`
	Progress   int                 `json:"progress"`
	Message    string              `json:"message,omitempty"`
	Error      string              `json:"error,omitempty"`
	OutputURL  string              `json:"output_url,omitempty"`
	Request    export.MergeRequest `json:"request"`
	// SessionVersion is the session's edit count when the request was
	// built. After a successful export the draft is dropped only if no
	// edit happened since.
	SessionVersion uint64    `json:"session_version,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewJob returns a pending job for req. The request is copied into the job
// so later edits to the session do not change what gets rendered.
func NewJob(campaignID, title string, req export.MergeRequest) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Title:      title,
		Format:     FormatMP4,
		Status:     StatusPending,
		Request:    req,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Terminal reports whether the job will not change any more.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
