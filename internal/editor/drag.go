package editor

import (
	"fmt"

	"github.com/tourneyreel/studio/internal/timeline"
)

// DragKind names what a pointer gesture is moving.
type DragKind string

const (
	DragTrimStart      DragKind = "trim_start"
	DragTrimEnd        DragKind = "trim_end"
	DragAudioTrimStart DragKind = "audio_trim_start"
	DragAudioTrimEnd   DragKind = "audio_trim_end"
	DragAudioMove      DragKind = "audio_move"
	DragPlayhead       DragKind = "playhead"
)

// DragSession is a gesture in progress. It remembers the values at the
// moment the pointer went down so every update is computed from the origin
// and yields an absolute action.
type DragSession struct {
	Kind     DragKind `json:"kind"`
	TargetID string   `json:"target_id,omitempty"`
	OriginX  float64  `json:"origin_x"`

	originStart  float64
	originEnd    float64
	originOffset float64
	originTime   float64
}

// BeginDrag captures the origin for a gesture on s.
func BeginDrag(s State, kind DragKind, targetID string, x float64) (*DragSession, error) {
	d := &DragSession{Kind: kind, TargetID: targetID, OriginX: x}

	switch kind {
	case DragTrimStart, DragTrimEnd:
		c, ok := s.Clip(targetID)
		if !ok {
			return nil, fmt.Errorf("%w: clip %q", ErrTargetNotFound, targetID)
		}
		d.originStart, d.originEnd = c.TrimStart, c.TrimEnd
	case DragAudioTrimStart, DragAudioTrimEnd, DragAudioMove:
		t, ok := s.Track(targetID)
		if !ok {
			return nil, fmt.Errorf("%w: track %q", ErrTargetNotFound, targetID)
		}
		d.originStart, d.originEnd, d.originOffset = t.TrimStart, t.TrimEnd, t.OffsetSeconds
	case DragPlayhead:
		d.TargetID = ""
		d.originTime = s.CurrentTime
	default:
		return nil, fmt.Errorf("unknown drag kind %q", kind)
	}
	return d, nil
}

// Update converts the pointer position x into the action to apply. The
// reducer clamps the result.
func (d *DragSession) Update(x float64) Action {
	delta := timeline.PixelsToSeconds(x - d.OriginX)

	switch d.Kind {
	case DragTrimStart:
		return SetClipTrim{ClipID: d.TargetID, TrimStart: d.originStart + delta, TrimEnd: d.originEnd}
	case DragTrimEnd:
		return SetClipTrim{ClipID: d.TargetID, TrimStart: d.originStart, TrimEnd: d.originEnd + delta}
	case DragAudioTrimStart:
		return SetAudioTrim{TrackID: d.TargetID, TrimStart: d.originStart + delta, TrimEnd: d.originEnd}
	case DragAudioTrimEnd:
		return SetAudioTrim{TrackID: d.TargetID, TrimStart: d.originStart, TrimEnd: d.originEnd + delta}
	case DragAudioMove:
		return MoveAudio{TrackID: d.TargetID, OffsetSeconds: d.originOffset + delta}
	default:
		return Seek{Time: d.originTime + delta}
	}
}
