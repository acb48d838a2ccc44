// Package timeline holds the clip and audio track records placed on an edit
// timeline, and the pure arithmetic that derives offsets, widths and program
// duration from them. Offsets are never stored; they are always computed.
package timeline

const (
	// MinClipDuration is the shortest trimmed region a clip or track may have, in seconds.
	MinClipDuration = 0.5

	// PxPerSec is the fixed timeline scale used to convert drag deltas.
	PxPerSec = 40.0

	// MinClipWidth keeps very short clips clickable.
	MinClipWidth = 20.0

	// FallbackVideoDuration and FallbackAudioDuration are used when a
	// source cannot be probed.
	FallbackVideoDuration = 8.0
	FallbackAudioDuration = 10.0
)

type TransitionType string

const (
	TransitionNone       TransitionType = "none"
	TransitionFade       TransitionType = "fade"
	TransitionDissolve   TransitionType = "dissolve"
	TransitionWipeLeft   TransitionType = "wipe-left"
	TransitionWipeRight  TransitionType = "wipe-right"
	TransitionWipeUp     TransitionType = "wipe-up"
	TransitionWipeDown   TransitionType = "wipe-down"
	TransitionSlideLeft  TransitionType = "slide-left"
	TransitionSlideRight TransitionType = "slide-right"
	TransitionSlideUp    TransitionType = "slide-up"
	TransitionSlideDown  TransitionType = "slide-down"
	TransitionZoomIn     TransitionType = "zoom-in"
	TransitionZoomOut    TransitionType = "zoom-out"
)

var knownTransitions = map[TransitionType]bool{
	TransitionNone:       true,
	TransitionFade:       true,
	TransitionDissolve:   true,
	TransitionWipeLeft:   true,
	TransitionWipeRight:  true,
	TransitionWipeUp:     true,
	TransitionWipeDown:   true,
	TransitionSlideLeft:  true,
	TransitionSlideRight: true,
	TransitionSlideUp:    true,
	TransitionSlideDown:  true,
	TransitionZoomIn:     true,
	TransitionZoomOut:    true,
}

// IsKnown reports whether t is one of the supported transition types.
func (t TransitionType) IsKnown() bool {
	return knownTransitions[t]
}

// Transition describes the blend from a clip into the next one.
type Transition struct {
	Type     TransitionType `json:"type"`
	Duration float64        `json:"duration"`
}

// Active reports whether the transition has any effect. A nil transition,
// type "none" and a non-positive duration are all equivalent to no transition.
func (t *Transition) Active() bool {
	return t != nil && t.Type != "" && t.Type != TransitionNone && t.Duration > 0
}

// Clip is one trimmed reference to a source video, placed in program order.
type Clip struct {
	ID               string      `json:"id"`
	SourceURL        string      `json:"source_url"`
	OriginalDuration float64     `json:"original_duration"`
	TrimStart        float64     `json:"trim_start"`
	TrimEnd          float64     `json:"trim_end"`
	Muted            bool        `json:"muted"`
	TransitionOut    *Transition `json:"transition_out,omitempty"`
}

// AudioTrack is one trimmed reference to an audio asset placed at an
// absolute timeline offset.
type AudioTrack struct {
	ID               string  `json:"id"`
	SourceURL        string  `json:"source_url"`
	OriginalDuration float64 `json:"original_duration"`
	TrimStart        float64 `json:"trim_start"`
	TrimEnd          float64 `json:"trim_end"`
	OffsetSeconds    float64 `json:"offset_seconds"`
	Volume           float64 `json:"volume"`
}

// Duration is the trimmed length of the track.
func (a AudioTrack) Duration() float64 {
	return a.TrimEnd - a.TrimStart
}

// End is the timeline position where the trimmed region stops.
func (a AudioTrack) End() float64 {
	return a.OffsetSeconds + a.Duration()
}

// Contains reports whether timeline time t falls inside the track's span.
func (a AudioTrack) Contains(t float64) bool {
	return t >= a.OffsetSeconds && t < a.End()
}

// CloneClips returns a copy of clips whose transitions are not shared with
// the input.
func CloneClips(clips []Clip) []Clip {
	if clips == nil {
		return nil
	}
	out := make([]Clip, len(clips))
	for i, c := range clips {
		out[i] = c
		if c.TransitionOut != nil {
			tr := *c.TransitionOut
			out[i].TransitionOut = &tr
		}
	}
	return out
}

// CloneTracks returns a copy of tracks.
func CloneTracks(tracks []AudioTrack) []AudioTrack {
	if tracks == nil {
		return nil
	}
	out := make([]AudioTrack, len(tracks))
	copy(out, tracks)
	return out
}
