package export

import (
	"errors"
	"time"

	"github.com/tourneyreel/studio/internal/timeline"
)

// ErrEmptyTimeline is returned when there is nothing to render.
var ErrEmptyTimeline = errors.New("timeline has no clips")

// Phase is the coarse progress stage reported to the UI.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseProcessing Phase = "processing"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

type Progress struct {
	Phase   Phase  `json:"phase"`
	Percent int    `json:"progress"`
	Message string `json:"message,omitempty"`
}

// ProgressFunc receives progress updates. It is called from the goroutine
// running the export and must not block for long.
type ProgressFunc func(Progress)

type MergeTransition struct {
	Type     timeline.TransitionType `json:"type" validate:"required"`
	Duration float64                 `json:"duration" validate:"gt=0"`
}

// MergeClip is one video segment, in timeline order.
type MergeClip struct {
	URL           string           `json:"url" validate:"required"`
	TrimStart     float64          `json:"trimStart" validate:"gte=0"`
	TrimEnd       float64          `json:"trimEnd" validate:"gtfield=TrimStart"`
	Mute          bool             `json:"mute"`
	TransitionOut *MergeTransition `json:"transitionOut,omitempty"`
}

// MergeAudio is the single background audio overlay. TrimEnd of zero means
// the whole source.
type MergeAudio struct {
	URL       string  `json:"url" validate:"required"`
	OffsetMs  int64   `json:"offsetMs" validate:"gte=0"`
	Volume    float64 `json:"volume" validate:"gte=0,lte=1"`
	TrimStart float64 `json:"trimStart,omitempty" validate:"gte=0"`
	TrimEnd   float64 `json:"trimEnd,omitempty" validate:"gte=0"`
}

type MergeRequest struct {
	Clips         []MergeClip `json:"clips" validate:"required,min=1,dive"`
	Audio         *MergeAudio `json:"audio,omitempty"`
	RemoveSilence bool        `json:"removeSilence"`
}

// Result describes a finished, uploaded export.
type Result struct {
	URL             string        `json:"url"`
	Filename        string        `json:"filename"`
	DurationSeconds float64       `json:"duration_seconds"`
	SizeBytes       int64         `json:"size_bytes"`
	Elapsed         time.Duration `json:"elapsed"`
	EDLURL          string        `json:"edl_url,omitempty"`
	LocalPath       string        `json:"local_path,omitempty"`
}
