package transition

import "github.com/tourneyreel/studio/internal/timeline"

var xfadeNames = map[timeline.TransitionType]string{
	timeline.TransitionFade:       "fade",
	timeline.TransitionDissolve:   "dissolve",
	timeline.TransitionWipeLeft:   "wipeleft",
	timeline.TransitionWipeRight:  "wiperight",
	timeline.TransitionWipeUp:     "wipeup",
	timeline.TransitionWipeDown:   "wipedown",
	timeline.TransitionSlideLeft:  "slideleft",
	timeline.TransitionSlideRight: "slideright",
	timeline.TransitionSlideUp:    "slideup",
	timeline.TransitionSlideDown:  "slidedown",
	timeline.TransitionZoomIn:     "zoomin",
	// xfade has no zoom-out; circleclose reads closest on screen.
	timeline.TransitionZoomOut: "circleclose",
}

// XfadeName returns the ffmpeg xfade transition for typ. Unknown types fall
// back to a plain fade.
func XfadeName(typ timeline.TransitionType) string {
	if name, ok := xfadeNames[typ]; ok {
		return name
	}
	return "fade"
}
