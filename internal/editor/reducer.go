package editor

import (
	"math"

	"github.com/tourneyreel/studio/internal/timeline"
)

// Action is one user or driver intent. Actions are applied with Apply.
type Action interface {
	// Type is the wire name of the action.
	Type() string
	apply(s State) (State, error)
}

// Apply returns the state that results from applying a to s. On error s is
// returned unchanged. The input is never mutated.
func Apply(s State, a Action) (State, error) {
	if a == nil {
		return s, ErrUnknownAction
	}
	next, err := a.apply(s.clone())
	if err != nil {
		return s, err
	}
	return finalize(next), nil
}

// finalize re-derives everything that is not independently settable: total
// duration, the playhead clamp and selection. Configured transitions are left
// as set; their effective overlap is derived by timeline.Overlaps.
func finalize(s State) State {
	if s.Clips == nil {
		s.Clips = []timeline.Clip{}
	}
	if s.AudioTracks == nil {
		s.AudioTracks = []timeline.AudioTrack{}
	}
	s.TotalDuration = timeline.TotalMediaDuration(s.Clips, s.AudioTracks)
	s.CurrentTime = timeline.Clamp(s.CurrentTime, 0, s.TotalDuration)
	if !s.IsPlaying {
		s.PlayMode = PlayNone
	}
	if s.TotalDuration == 0 {
		s.IsPlaying = false
		s.PlayMode = PlayNone
	}
	if _, ok := s.Clip(s.SelectedClipID); !ok {
		s.SelectedClipID = ""
	}
	if _, ok := s.Track(s.SelectedAudioID); !ok {
		s.SelectedAudioID = ""
	}
	if (s.Focus == FocusClip && s.SelectedClipID == "") || (s.Focus == FocusAudio && s.SelectedAudioID == "") {
		s.Focus = FocusNone
	}
	return s
}

func minDuration(original float64) float64 {
	return math.Min(timeline.MinClipDuration, original)
}

// clampBothEdges brings an arbitrary trim window inside [0, original] with
// at least the minimum duration, preferring to keep start.
func clampBothEdges(start, end, original float64) (float64, float64) {
	if original <= 0 {
		return 0, 0
	}
	md := minDuration(original)
	start = timeline.Clamp(start, 0, original-md)
	end = timeline.Clamp(end, start+md, original)
	return start, end
}

// clampStartEdge moves only the start edge; end is assumed valid.
func clampStartEdge(start, end, original float64) float64 {
	return timeline.Clamp(start, 0, end-minDuration(original))
}

// clampEndEdge moves only the end edge; start is assumed valid.
func clampEndEdge(start, end, original float64) float64 {
	return timeline.Clamp(end, start+minDuration(original), original)
}

// clampTrim applies a requested trim window. When only one edge moved, only
// that edge is clamped, so dragging a handle past its limit pins it there
// rather than shifting the other handle.
func clampTrim(curStart, curEnd, newStart, newEnd, original float64) (float64, float64) {
	startMoved := newStart != curStart
	endMoved := newEnd != curEnd
	switch {
	case startMoved && !endMoved:
		return clampStartEdge(newStart, curEnd, original), curEnd
	case endMoved && !startMoved:
		return curStart, clampEndEdge(curStart, newEnd, original)
	default:
		return clampBothEdges(newStart, newEnd, original)
	}
}
