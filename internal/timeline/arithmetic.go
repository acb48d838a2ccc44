package timeline

import "math"

// ClipDuration is the trimmed length of a clip.
func ClipDuration(c Clip) float64 {
	return c.TrimEnd - c.TrimStart
}

// TransitionDuration is the configured out-transition length of c, or zero
// when the clip has no active transition. The overlap actually played is
// given by Overlaps.
func TransitionDuration(c Clip) float64 {
	if !c.TransitionOut.Active() {
		return 0
	}
	return c.TransitionOut.Duration
}

// Overlaps returns, per clip, how many seconds of its tail blend into the
// next clip. The configured duration is bounded so that every clip keeps
// MinClipDuration of its own after its incoming and outgoing overlaps and the
// next clip is long enough to blend into. The last clip never overlaps.
// Clips are not modified: the configured duration comes back in full once
// its neighbours are long enough again.
func Overlaps(clips []Clip) []float64 {
	out := make([]float64, len(clips))
	incoming := 0.0
	for i := 0; i+1 < len(clips); i++ {
		d := TransitionDuration(clips[i])
		limit := math.Min(ClipDuration(clips[i])-incoming, ClipDuration(clips[i+1])) - MinClipDuration
		if d <= 0 || limit <= 0 {
			incoming = 0
			continue
		}
		out[i] = math.Min(d, limit)
		incoming = out[i]
	}
	return out
}

// OverlapAt is Overlaps(clips)[i], or zero when i is out of range.
func OverlapAt(clips []Clip, i int) float64 {
	if i < 0 || i >= len(clips) {
		return 0
	}
	return Overlaps(clips)[i]
}

// TimelineOffset returns where clip i starts on the program timeline. An
// overlap of d between clip k and k+1 pulls clip k+1 forward by d, so the
// two blend instead of adding runtime.
func TimelineOffset(clips []Clip, i int) float64 {
	if i > len(clips) {
		i = len(clips)
	}
	ov := Overlaps(clips)
	offset := 0.0
	for k := 0; k < i; k++ {
		offset += ClipDuration(clips[k]) - ov[k]
	}
	return math.Max(0, offset)
}

// ClipWidthPx converts a duration to its on-screen width.
func ClipWidthPx(duration float64) float64 {
	return math.Max(MinClipWidth, duration*PxPerSec)
}

// PixelsToSeconds converts a horizontal drag delta to seconds.
func PixelsToSeconds(px float64) float64 {
	return px / PxPerSec
}

// VideoDuration is the summed clip length minus every overlap.
func VideoDuration(clips []Clip) float64 {
	ov := Overlaps(clips)
	total := 0.0
	for i, c := range clips {
		total += ClipDuration(c) - ov[i]
	}
	return math.Max(0, total)
}

// AudioDuration is the furthest end point of any audio track.
func AudioDuration(tracks []AudioTrack) float64 {
	end := 0.0
	for _, t := range tracks {
		end = math.Max(end, t.End())
	}
	return end
}

// TotalMediaDuration is the length of the program: the longer of the video
// sequence and the audio tracks. It is the only source of an editor's total
// duration.
func TotalMediaDuration(clips []Clip, tracks []AudioTrack) float64 {
	return math.Max(VideoDuration(clips), AudioDuration(tracks))
}

// ClipAt returns the index of the first clip whose timeline span contains t,
// and t relative to that clip's trimmed start. Inside a transition overlap the
// outgoing clip wins. It returns -1 when no clip covers t.
func ClipAt(clips []Clip, t float64) (int, float64) {
	ov := Overlaps(clips)
	start := 0.0
	for i, c := range clips {
		if t >= start && t < start+ClipDuration(c) {
			return i, t - start
		}
		start += ClipDuration(c) - ov[i]
	}
	return -1, 0
}

// TrackAt returns the index of the first audio track playing at timeline time
// t, or -1.
func TrackAt(tracks []AudioTrack, t float64) int {
	for i, tr := range tracks {
		if tr.Contains(t) {
			return i
		}
	}
	return -1
}

// IndexOfClip returns the position of the clip with id, or -1.
func IndexOfClip(clips []Clip, id string) int {
	for i, c := range clips {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// IndexOfTrack returns the position of the track with id, or -1.
func IndexOfTrack(tracks []AudioTrack, id string) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
