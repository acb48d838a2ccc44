// Package transition computes the visual blend shown while one clip hands
// over to the next, and maps transition types onto ffmpeg xfade names for
// rendering.
package transition

import (
	"fmt"
	"math"

	"github.com/tourneyreel/studio/internal/timeline"
)

// Style is a renderer-neutral description of how to draw one layer. The
// zero Style draws the layer untouched.
type Style struct {
	Opacity   *float64 `json:"opacity,omitempty"`
	ClipPath  string   `json:"clip_path,omitempty"`
	Transform string   `json:"transform,omitempty"`
}

// IsZero reports whether s has no effect.
func (s Style) IsZero() bool {
	return s.Opacity == nil && s.ClipPath == "" && s.Transform == ""
}

func opacity(v float64) *float64 {
	return &v
}

// Preview returns the outgoing and incoming layer styles for a transition of
// type typ at progress p. p is clamped to [0,1]. Unknown types and "none"
// return zero styles.
func Preview(typ timeline.TransitionType, p float64) (out, in Style) {
	p = timeline.Clamp(p, 0, 1)
	rest := 1 - p

	switch typ {
	case timeline.TransitionFade, timeline.TransitionDissolve:
		return Style{Opacity: opacity(rest)}, Style{Opacity: opacity(p)}

	case timeline.TransitionWipeLeft:
		return Style{}, Style{ClipPath: inset(0, 0, 0, rest)}
	case timeline.TransitionWipeRight:
		return Style{}, Style{ClipPath: inset(0, rest, 0, 0)}
	case timeline.TransitionWipeUp:
		return Style{}, Style{ClipPath: inset(rest, 0, 0, 0)}
	case timeline.TransitionWipeDown:
		return Style{}, Style{ClipPath: inset(0, 0, rest, 0)}

	case timeline.TransitionSlideLeft:
		return Style{Transform: translate("X", -p)}, Style{Transform: translate("X", rest)}
	case timeline.TransitionSlideRight:
		return Style{Transform: translate("X", p)}, Style{Transform: translate("X", -rest)}
	case timeline.TransitionSlideUp:
		return Style{Transform: translate("Y", -p)}, Style{Transform: translate("Y", rest)}
	case timeline.TransitionSlideDown:
		return Style{Transform: translate("Y", p)}, Style{Transform: translate("Y", -rest)}

	case timeline.TransitionZoomIn:
		return Style{Opacity: opacity(rest), Transform: scale(1 + 0.5*p)},
			Style{Opacity: opacity(p), Transform: scale(0.5 + 0.5*p)}
	case timeline.TransitionZoomOut:
		return Style{Opacity: opacity(rest), Transform: scale(1 - 0.5*p)},
			Style{Opacity: opacity(p), Transform: scale(1.5 - 0.5*p)}
	}
	return Style{}, Style{}
}

// Window returns the source-time interval [start, end) of clips[i] during
// which its out-transition is visible. ok is false when the clip does not
// overlap its successor.
func Window(clips []timeline.Clip, i int) (start, end float64, ok bool) {
	d := timeline.OverlapAt(clips, i)
	if d <= 0 {
		return 0, 0, false
	}
	c := clips[i]
	return math.Max(c.TrimStart, c.TrimEnd-d), c.TrimEnd, true
}

// Progress maps a source time of the outgoing clip clips[i] to transition
// progress. ok is false outside the window.
func Progress(clips []timeline.Clip, i int, sourceTime float64) (float64, bool) {
	start, end, ok := Window(clips, i)
	if !ok || sourceTime < start || sourceTime >= end {
		return 0, false
	}
	return (sourceTime - start) / (end - start), true
}

func inset(top, right, bottom, left float64) string {
	return fmt.Sprintf("inset(%s %s %s %s)", pct(top), pct(right), pct(bottom), pct(left))
}

func translate(axis string, frac float64) string {
	return fmt.Sprintf("translate%s(%s)", axis, pct(frac))
}

func scale(v float64) string {
	return fmt.Sprintf("scale(%s)", trim(v))
}

func pct(frac float64) string {
	return trim(frac*100) + "%"
}

// trim formats v with at most three decimals and no trailing zeros.
func trim(v float64) string {
	v = math.Round(v*1000) / 1000
	if v == 0 {
		v = 0 // drop negative zero
	}
	return fmt.Sprintf("%g", v)
}
