package editor

import (
	"math"

	"github.com/tourneyreel/studio/internal/timeline"
)

// AddClip appends a clip covering the whole source. A non-positive
// duration is replaced by the video fallback.
type AddClip struct {
	ID        string  `json:"id"`
	SourceURL string  `json:"source_url"`
	Duration  float64 `json:"duration"`
}

func (AddClip) Type() string { return "add_clip" }

func (a AddClip) apply(s State) (State, error) {
	if a.ID == "" {
		return s, ErrMissingID
	}
	if _, ok := s.Clip(a.ID); ok {
		return s, ErrDuplicateID
	}
	d := sourceDuration(a.Duration, timeline.FallbackVideoDuration)
	s.Clips = append(s.Clips, timeline.Clip{
		ID:               a.ID,
		SourceURL:        a.SourceURL,
		OriginalDuration: d,
		TrimStart:        0,
		TrimEnd:          d,
	})
	return s, nil
}

// sourceDuration replaces an unusable probe result with fallback and
// raises sources shorter than MinClipDuration to it, so every new entity
// already satisfies the minimum length.
func sourceDuration(d, fallback float64) float64 {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return fallback
	}
	return max(d, timeline.MinClipDuration)
}

// AddAudioTrack places a new track at offset 0 with full volume.
type AddAudioTrack struct {
	ID        string  `json:"id"`
	SourceURL string  `json:"source_url"`
	Duration  float64 `json:"duration"`
}

func (AddAudioTrack) Type() string { return "add_audio_track" }

func (a AddAudioTrack) apply(s State) (State, error) {
	if a.ID == "" {
		return s, ErrMissingID
	}
	if _, ok := s.Track(a.ID); ok {
		return s, ErrDuplicateID
	}
	d := sourceDuration(a.Duration, timeline.FallbackAudioDuration)
	s.AudioTracks = append(s.AudioTracks, timeline.AudioTrack{
		ID:               a.ID,
		SourceURL:        a.SourceURL,
		OriginalDuration: d,
		TrimStart:        0,
		TrimEnd:          d,
		OffsetSeconds:    0,
		Volume:           1,
	})
	return s, nil
}

// SetClipTrim sets a clip's trim window in source seconds. Values are
// clamped, never rejected.
type SetClipTrim struct {
	ClipID    string  `json:"clip_id"`
	TrimStart float64 `json:"trim_start"`
	TrimEnd   float64 `json:"trim_end"`
}

func (SetClipTrim) Type() string { return "set_clip_trim" }

func (a SetClipTrim) apply(s State) (State, error) {
	i := timeline.IndexOfClip(s.Clips, a.ClipID)
	if i < 0 {
		return s, nil
	}
	c := &s.Clips[i]
	c.TrimStart, c.TrimEnd = clampTrim(c.TrimStart, c.TrimEnd, a.TrimStart, a.TrimEnd, c.OriginalDuration)
	return s, nil
}

// SetAudioTrim sets a track's trim window in source seconds.
type SetAudioTrim struct {
	TrackID   string  `json:"track_id"`
	TrimStart float64 `json:"trim_start"`
	TrimEnd   float64 `json:"trim_end"`
}

func (SetAudioTrim) Type() string { return "set_audio_trim" }

func (a SetAudioTrim) apply(s State) (State, error) {
	i := timeline.IndexOfTrack(s.AudioTracks, a.TrackID)
	if i < 0 {
		return s, nil
	}
	t := &s.AudioTracks[i]
	t.TrimStart, t.TrimEnd = clampTrim(t.TrimStart, t.TrimEnd, a.TrimStart, a.TrimEnd, t.OriginalDuration)
	return s, nil
}

// SplitAtPlayhead cuts the entity under the playhead in two. The focused
// selection wins when it covers the playhead; otherwise the clip there, then
// the audio track there. NewID names the right-hand piece, which becomes
// the selection.
type SplitAtPlayhead struct {
	NewID string `json:"new_id"`
}

func (SplitAtPlayhead) Type() string { return "split_at_playhead" }

func (a SplitAtPlayhead) apply(s State) (State, error) {
	if a.NewID == "" {
		return s, ErrMissingID
	}
	if _, ok := s.Clip(a.NewID); ok {
		return s, ErrDuplicateID
	}
	if _, ok := s.Track(a.NewID); ok {
		return s, ErrDuplicateID
	}

	t := s.CurrentTime
	clipIdx, clipLocal := timeline.ClipAt(s.Clips, t)
	trackIdx := timeline.TrackAt(s.AudioTracks, t)

	switch s.Focus {
	case FocusClip:
		if i := timeline.IndexOfClip(s.Clips, s.SelectedClipID); i >= 0 {
			start := timeline.TimelineOffset(s.Clips, i)
			if t >= start && t < start+timeline.ClipDuration(s.Clips[i]) {
				return splitClip(s, i, t-start, a.NewID)
			}
		}
	case FocusAudio:
		if i := timeline.IndexOfTrack(s.AudioTracks, s.SelectedAudioID); i >= 0 && s.AudioTracks[i].Contains(t) {
			return splitTrack(s, i, t, a.NewID)
		}
	}

	if clipIdx >= 0 {
		return splitClip(s, clipIdx, clipLocal, a.NewID)
	}
	if trackIdx >= 0 {
		return splitTrack(s, trackIdx, t, a.NewID)
	}
	return s, nil
}

func splitClip(s State, i int, local float64, newID string) (State, error) {
	c := s.Clips[i]
	d := timeline.ClipDuration(c)
	if local < timeline.MinClipDuration || d-local < timeline.MinClipDuration {
		return s, ErrSplitTooClose
	}
	at := c.TrimStart + local

	left := c
	left.TrimEnd = at
	left.TransitionOut = nil

	right := c
	right.ID = newID
	right.TrimStart = at

	clips := make([]timeline.Clip, 0, len(s.Clips)+1)
	clips = append(clips, s.Clips[:i]...)
	clips = append(clips, left, right)
	clips = append(clips, s.Clips[i+1:]...)
	s.Clips = clips

	s.SelectedClipID = newID
	s.Focus = FocusClip
	return s, nil
}

func splitTrack(s State, i int, t float64, newID string) (State, error) {
	tr := s.AudioTracks[i]
	local := t - tr.OffsetSeconds
	if local < timeline.MinClipDuration || tr.Duration()-local < timeline.MinClipDuration {
		return s, ErrSplitTooClose
	}
	at := tr.TrimStart + local

	left := tr
	left.TrimEnd = at

	right := tr
	right.ID = newID
	right.TrimStart = at
	right.OffsetSeconds = tr.OffsetSeconds + local

	tracks := make([]timeline.AudioTrack, 0, len(s.AudioTracks)+1)
	tracks = append(tracks, s.AudioTracks[:i]...)
	tracks = append(tracks, left, right)
	tracks = append(tracks, s.AudioTracks[i+1:]...)
	s.AudioTracks = tracks

	s.SelectedAudioID = newID
	s.Focus = FocusAudio
	return s, nil
}

// MoveClip moves a clip to ToIndex, clamped to the sequence.
type MoveClip struct {
	ClipID  string `json:"clip_id"`
	ToIndex int    `json:"to_index"`
}

func (MoveClip) Type() string { return "move_clip" }

func (a MoveClip) apply(s State) (State, error) {
	from := timeline.IndexOfClip(s.Clips, a.ClipID)
	if from < 0 {
		return s, nil
	}
	to := a.ToIndex
	if to < 0 {
		to = 0
	}
	if to > len(s.Clips)-1 {
		to = len(s.Clips) - 1
	}
	if from == to {
		return s, nil
	}
	c := s.Clips[from]
	clips := append(s.Clips[:from:from], s.Clips[from+1:]...)
	clips = append(clips[:to], append([]timeline.Clip{c}, clips[to:]...)...)
	s.Clips = clips
	return s, nil
}

// DeleteClip removes a clip and its outgoing transition.
type DeleteClip struct {
	ClipID string `json:"clip_id"`
}

func (DeleteClip) Type() string { return "delete_clip" }

func (a DeleteClip) apply(s State) (State, error) {
	i := timeline.IndexOfClip(s.Clips, a.ClipID)
	if i < 0 {
		return s, nil
	}
	s.Clips = append(s.Clips[:i:i], s.Clips[i+1:]...)
	if s.SelectedClipID == a.ClipID {
		s.SelectedClipID = ""
	}
	return stopIfPlaying(s), nil
}

type DeleteAudioTrack struct {
	TrackID string `json:"track_id"`
}

func (DeleteAudioTrack) Type() string { return "delete_audio_track" }

func (a DeleteAudioTrack) apply(s State) (State, error) {
	i := timeline.IndexOfTrack(s.AudioTracks, a.TrackID)
	if i < 0 {
		return s, nil
	}
	s.AudioTracks = append(s.AudioTracks[:i:i], s.AudioTracks[i+1:]...)
	if s.SelectedAudioID == a.TrackID {
		s.SelectedAudioID = ""
	}
	return stopIfPlaying(s), nil
}

// Deleting media out from under the player cancels playback.
func stopIfPlaying(s State) State {
	s.IsPlaying = false
	s.PlayMode = PlayNone
	return s
}

type ToggleClipMute struct {
	ClipID string `json:"clip_id"`
}

func (ToggleClipMute) Type() string { return "toggle_clip_mute" }

func (a ToggleClipMute) apply(s State) (State, error) {
	if i := timeline.IndexOfClip(s.Clips, a.ClipID); i >= 0 {
		s.Clips[i].Muted = !s.Clips[i].Muted
	}
	return s, nil
}

// SetAudioVolume sets a track's gain, clamped to [0,1].
type SetAudioVolume struct {
	TrackID string  `json:"track_id"`
	Volume  float64 `json:"volume"`
}

func (SetAudioVolume) Type() string { return "set_audio_volume" }

func (a SetAudioVolume) apply(s State) (State, error) {
	if i := timeline.IndexOfTrack(s.AudioTracks, a.TrackID); i >= 0 {
		v := a.Volume
		if math.IsNaN(v) {
			v = 0
		}
		s.AudioTracks[i].Volume = timeline.Clamp(v, 0, 1)
	}
	return s, nil
}

// SetTransition sets the blend from a clip into the next one. Type "none"
// or a non-positive duration removes it. The duration is stored as given;
// the overlap actually used is bounded by timeline.Overlaps so both
// neighbours keep the minimum clip duration.
type SetTransition struct {
	ClipID         string                  `json:"clip_id"`
	TransitionType timeline.TransitionType `json:"transition_type"`
	Duration       float64                 `json:"duration"`
}

func (SetTransition) Type() string { return "set_transition" }

func (a SetTransition) apply(s State) (State, error) {
	if a.TransitionType != "" && !a.TransitionType.IsKnown() {
		return s, ErrUnknownTransition
	}
	i := timeline.IndexOfClip(s.Clips, a.ClipID)
	if i < 0 {
		return s, nil
	}
	tr := &timeline.Transition{Type: a.TransitionType, Duration: a.Duration}
	if !tr.Active() {
		s.Clips[i].TransitionOut = nil
		return s, nil
	}
	s.Clips[i].TransitionOut = tr
	return s, nil
}

// MoveAudio places a track at an absolute offset, floored at 0.
type MoveAudio struct {
	TrackID       string  `json:"track_id"`
	OffsetSeconds float64 `json:"offset_seconds"`
}

func (MoveAudio) Type() string { return "move_audio" }

func (a MoveAudio) apply(s State) (State, error) {
	if i := timeline.IndexOfTrack(s.AudioTracks, a.TrackID); i >= 0 {
		s.AudioTracks[i].OffsetSeconds = math.Max(0, a.OffsetSeconds)
	}
	return s, nil
}

// Seek moves the playhead. The time is clamped to the program.
type Seek struct {
	Time float64 `json:"time"`
}

func (Seek) Type() string { return "seek" }

func (a Seek) apply(s State) (State, error) {
	if !math.IsNaN(a.Time) {
		s.CurrentTime = a.Time
	}
	return s, nil
}

// Play starts playback in Mode. Playing the mode that is already playing
// stops instead. Playing from the very end restarts from 0.
type Play struct {
	Mode PlayMode `json:"mode"`
}

func (Play) Type() string { return "play" }

func (a Play) apply(s State) (State, error) {
	if !a.Mode.valid() {
		return s, ErrInvalidPlayMode
	}
	if s.IsPlaying && s.PlayMode == a.Mode {
		return stopIfPlaying(s), nil
	}
	total := timeline.TotalMediaDuration(s.Clips, s.AudioTracks)
	if total == 0 {
		return s, nil
	}
	if s.CurrentTime >= total {
		s.CurrentTime = 0
	}
	s.IsPlaying = true
	s.PlayMode = a.Mode
	return s, nil
}

type Stop struct{}

func (Stop) Type() string { return "stop" }

func (Stop) apply(s State) (State, error) {
	return stopIfPlaying(s), nil
}

// SelectClip focuses a clip. An empty id clears the clip selection.
type SelectClip struct {
	ClipID string `json:"clip_id"`
}

func (SelectClip) Type() string { return "select_clip" }

func (a SelectClip) apply(s State) (State, error) {
	if a.ClipID == "" {
		s.SelectedClipID = ""
		return s, nil
	}
	if _, ok := s.Clip(a.ClipID); ok {
		s.SelectedClipID = a.ClipID
		s.Focus = FocusClip
	}
	return s, nil
}

type SelectAudio struct {
	TrackID string `json:"track_id"`
}

func (SelectAudio) Type() string { return "select_audio" }

func (a SelectAudio) apply(s State) (State, error) {
	if a.TrackID == "" {
		s.SelectedAudioID = ""
		return s, nil
	}
	if _, ok := s.Track(a.TrackID); ok {
		s.SelectedAudioID = a.TrackID
		s.Focus = FocusAudio
	}
	return s, nil
}

// Advance is committed by the playback driver once per frame. It is
// ignored when playback has been cancelled in the meantime. When From is
// set it is also ignored if the playhead has moved away from *From, so a
// user seek is never overwritten by a frame computed before it.
type Advance struct {
	Time float64  `json:"time"`
	From *float64 `json:"from,omitempty"`
}

func (Advance) Type() string { return "advance" }

func (a Advance) apply(s State) (State, error) {
	if !s.IsPlaying || math.IsNaN(a.Time) {
		return s, nil
	}
	if a.From != nil && math.Abs(s.CurrentTime-*a.From) > 1e-9 {
		return s, nil
	}
	s.CurrentTime = a.Time
	return s, nil
}

// Finish ends playback at Time.
type Finish struct {
	Time float64 `json:"time"`
}

func (Finish) Type() string { return "finish" }

func (a Finish) apply(s State) (State, error) {
	if !s.IsPlaying {
		return s, nil
	}
	if !math.IsNaN(a.Time) {
		s.CurrentTime = a.Time
	}
	return stopIfPlaying(s), nil
}

// editsTimeline reports whether a can change clips or audio tracks.
func editsTimeline(a Action) bool {
	switch a.(type) {
	case Seek, Play, Stop, SelectClip, SelectAudio, Advance, Finish:
		return false
	}
	return true
}
