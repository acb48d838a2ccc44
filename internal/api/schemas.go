package api

import (
	"time"

	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/export"
	"github.com/tourneyreel/studio/internal/gallery"
	"github.com/tourneyreel/studio/internal/jobs"
	"github.com/tourneyreel/studio/internal/media"
	"github.com/tourneyreel/studio/internal/playback"
	"github.com/tourneyreel/studio/internal/transition"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State       string              `json:"state"`
	LastError   string              `json:"last_error,omitempty"`
	Sessions    []string            `json:"sessions"`
	PendingJobs int                 `json:"pending_jobs"`
	ActiveJob   *JobResponse        `json:"active_job,omitempty"`
	Tools       *media.Capabilities `json:"tools,omitempty"`
}

type SessionResponse struct {
	CampaignID string              `json:"campaign_id"`
	Restored   bool                `json:"restored,omitempty"`
	Version    uint64              `json:"version"`
	State      editor.State        `json:"state"`
	Drag       *editor.DragSession `json:"drag,omitempty"`
	Playback   *playback.Status    `json:"playback,omitempty"`
}

type AddMediaRequest struct {
	URL string `json:"url"`
}

type AddMediaResponse struct {
	ID      string        `json:"id"`
	Pending bool          `json:"pending"`
	State   *editor.State `json:"state,omitempty"`
}

type DragBeginRequest struct {
	Kind     editor.DragKind `json:"kind"`
	TargetID string          `json:"target_id,omitempty"`
	X        float64         `json:"x"`
}

type DragUpdateRequest struct {
	X float64 `json:"x"`
}

type TransitionPreview struct {
	Type       string           `json:"type"`
	Progress   float64          `json:"progress"`
	NextClipID string           `json:"next_clip_id,omitempty"`
	Outgoing   transition.Style `json:"outgoing"`
	Incoming   transition.Style `json:"incoming"`
}

type PreviewResponse struct {
	Time       float64            `json:"time"`
	ClipID     string             `json:"clip_id,omitempty"`
	SourceURL  string             `json:"source_url,omitempty"`
	SourceTime float64            `json:"source_time"`
	Muted      bool               `json:"muted,omitempty"`
	Transition *TransitionPreview `json:"transition,omitempty"`
}

type CreateExportRequest struct {
	Title         string `json:"title,omitempty"`
	RemoveSilence bool   `json:"remove_silence"`
}

type JobResponse struct {
	ID         string       `json:"id"`
	CampaignID string       `json:"campaign_id"`
	Title      string       `json:"title,omitempty"`
	Status     string       `json:"status"`
	Phase      export.Phase `json:"phase,omitempty"`
	Progress   int          `json:"progress"`
	Message    string       `json:"message,omitempty"`
	Error      string       `json:"error,omitempty"`
	OutputURL  string       `json:"output_url,omitempty"`
	ClipCount  int          `json:"clip_count"`
	CreatedAt  string       `json:"created_at"`
	UpdatedAt  string       `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type AssetResponse struct {
	ID              string  `json:"id"`
	CampaignID      string  `json:"campaign_id"`
	JobID           string  `json:"job_id,omitempty"`
	Kind            string  `json:"kind"`
	URL             string  `json:"url"`
	Filename        string  `json:"filename"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	CreatedAt       string  `json:"created_at"`
}

type AssetsResponse struct {
	Assets []AssetResponse `json:"assets"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *jobs.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		CampaignID: j.CampaignID,
		Title:      j.Title,
		Status:     j.Status,
		Phase:      j.Phase,
		Progress:   j.Progress,
		Message:    j.Message,
		Error:      j.Error,
		OutputURL:  j.OutputURL,
		ClipCount:  len(j.Request.Clips),
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

func AssetToResponse(a *gallery.Asset) AssetResponse {
	return AssetResponse{
		ID:              a.ID,
		CampaignID:      a.CampaignID,
		JobID:           a.JobID,
		Kind:            a.Kind,
		URL:             a.URL,
		Filename:        a.Filename,
		DurationSeconds: a.DurationSeconds,
		SizeBytes:       a.SizeBytes,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
	}
}
