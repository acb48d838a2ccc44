// Package editor is the timeline editing state machine. State values are
// replaced whole on every change: Apply takes a state and an action and
// returns the next state, recomputing every derived field in one place.
package editor

import (
	"errors"
	"time"

	"github.com/tourneyreel/studio/internal/timeline"
)

var (
	// ErrSplitTooClose rejects a split that would leave a piece shorter than
	// timeline.MinClipDuration. The state is left unchanged.
	ErrSplitTooClose = errors.New("split point too close to clip edge")

	ErrUnknownAction     = errors.New("unknown action")
	ErrUnknownTransition = errors.New("unknown transition type")
	ErrInvalidPlayMode   = errors.New("invalid play mode")
	ErrMissingID         = errors.New("missing id")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrSessionClosed     = errors.New("editing session closed")
	ErrNoDrag            = errors.New("no drag in progress")
	ErrTargetNotFound    = errors.New("drag target not found")
)

type PlayMode string

const (
	PlayNone  PlayMode = "none"
	PlayVideo PlayMode = "video"
	PlayAudio PlayMode = "audio"
	PlayAll   PlayMode = "all"
)

func (m PlayMode) valid() bool {
	return m == PlayVideo || m == PlayAudio || m == PlayAll
}

// Focus records which selection is being edited. Both selected ids may be
// set at once; only the focused one is the active editing context.
type Focus string

const (
	FocusNone  Focus = ""
	FocusClip  Focus = "clip"
	FocusAudio Focus = "audio"
)

// State is one editing session's timeline.
type State struct {
	Clips           []timeline.Clip       `json:"clips"`
	AudioTracks     []timeline.AudioTrack `json:"audio_tracks"`
	CurrentTime     float64               `json:"current_time"`
	IsPlaying       bool                  `json:"is_playing"`
	PlayMode        PlayMode              `json:"play_mode"`
	SelectedClipID  string                `json:"selected_clip_id,omitempty"`
	SelectedAudioID string                `json:"selected_audio_id,omitempty"`
	Focus           Focus                 `json:"focus,omitempty"`
	TotalDuration   float64               `json:"total_duration"`
}

// NewState returns an empty, stopped timeline.
func NewState() State {
	return State{
		Clips:       []timeline.Clip{},
		AudioTracks: []timeline.AudioTrack{},
		PlayMode:    PlayNone,
	}
}

func (s State) clone() State {
	s.Clips = timeline.CloneClips(s.Clips)
	s.AudioTracks = timeline.CloneTracks(s.AudioTracks)
	return s
}

// Clip returns the clip with id.
func (s State) Clip(id string) (timeline.Clip, bool) {
	if i := timeline.IndexOfClip(s.Clips, id); i >= 0 {
		return s.Clips[i], true
	}
	return timeline.Clip{}, false
}

// Track returns the audio track with id.
func (s State) Track(id string) (timeline.AudioTrack, bool) {
	if i := timeline.IndexOfTrack(s.AudioTracks, id); i >= 0 {
		return s.AudioTracks[i], true
	}
	return timeline.AudioTrack{}, false
}

// VideoDuration is the video sequence length of s.
func (s State) VideoDuration() float64 {
	return timeline.VideoDuration(s.Clips)
}

// Snapshot is the persisted form of a draft.
type Snapshot struct {
	Clips           []timeline.Clip       `json:"clips"`
	AudioTracks     []timeline.AudioTrack `json:"audio_tracks"`
	CurrentTime     float64               `json:"current_time"`
	SelectedClipID  string                `json:"selected_clip_id,omitempty"`
	SelectedAudioID string                `json:"selected_audio_id,omitempty"`
	TotalDuration   float64               `json:"total_duration"`
	SavedAt         time.Time             `json:"saved_at"`
}

// Snapshot captures the persistable part of s.
func (s State) Snapshot(now time.Time) Snapshot {
	c := s.clone()
	return Snapshot{
		Clips:           c.Clips,
		AudioTracks:     c.AudioTracks,
		CurrentTime:     c.CurrentTime,
		SelectedClipID:  c.SelectedClipID,
		SelectedAudioID: c.SelectedAudioID,
		TotalDuration:   c.TotalDuration,
		SavedAt:         now,
	}
}

// FromSnapshot rebuilds a stopped state from a draft. Derived fields are
// recomputed rather than trusted.
func FromSnapshot(snap Snapshot) State {
	s := NewState()
	if snap.Clips != nil {
		s.Clips = timeline.CloneClips(snap.Clips)
	}
	if snap.AudioTracks != nil {
		s.AudioTracks = timeline.CloneTracks(snap.AudioTracks)
	}
	s.CurrentTime = snap.CurrentTime
	if _, ok := s.Clip(snap.SelectedClipID); ok {
		s.SelectedClipID = snap.SelectedClipID
		s.Focus = FocusClip
	}
	if _, ok := s.Track(snap.SelectedAudioID); ok {
		s.SelectedAudioID = snap.SelectedAudioID
		if s.Focus == FocusNone {
			s.Focus = FocusAudio
		}
	}
	for i := range s.Clips {
		c := &s.Clips[i]
		c.TrimStart, c.TrimEnd = clampBothEdges(c.TrimStart, c.TrimEnd, c.OriginalDuration)
	}
	for i := range s.AudioTracks {
		a := &s.AudioTracks[i]
		a.TrimStart, a.TrimEnd = clampBothEdges(a.TrimStart, a.TrimEnd, a.OriginalDuration)
		a.OffsetSeconds = max(0, a.OffsetSeconds)
		a.Volume = timeline.Clamp(a.Volume, 0, 1)
	}
	return finalize(s)
}
