package export

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/timeline"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BuildRequest serializes the timeline in st. Only the first audio track is
// carried; the renderer mixes a single overlay.
func BuildRequest(st editor.State, removeSilence bool) (MergeRequest, error) {
	if len(st.Clips) == 0 {
		return MergeRequest{}, ErrEmptyTimeline
	}

	req := MergeRequest{
		Clips:         make([]MergeClip, 0, len(st.Clips)),
		RemoveSilence: removeSilence,
	}
	overlaps := timeline.Overlaps(st.Clips)
	for i, c := range st.Clips {
		mc := MergeClip{
			URL:       c.SourceURL,
			TrimStart: c.TrimStart,
			TrimEnd:   c.TrimEnd,
			Mute:      c.Muted,
		}
		if overlaps[i] > 0 {
			mc.TransitionOut = &MergeTransition{Type: c.TransitionOut.Type, Duration: overlaps[i]}
		}
		req.Clips = append(req.Clips, mc)
	}

	if len(st.AudioTracks) > 0 {
		a := st.AudioTracks[0]
		req.Audio = &MergeAudio{
			URL:       a.SourceURL,
			OffsetMs:  int64(math.Round(a.OffsetSeconds * 1000)),
			Volume:    a.Volume,
			TrimStart: a.TrimStart,
			TrimEnd:   a.TrimEnd,
		}
	}
	return req, nil
}

// Validate checks the request shape before anything is rendered.
func (r MergeRequest) Validate() error {
	if len(r.Clips) == 0 {
		return ErrEmptyTimeline
	}
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid merge request: %s", strings.Join(parts, "; "))
		}
		return fmt.Errorf("invalid merge request: %w", err)
	}
	for i, c := range r.Clips {
		if c.TransitionOut != nil && !c.TransitionOut.Type.IsKnown() {
			return fmt.Errorf("invalid merge request: clip %d has unknown transition %q", i, c.TransitionOut.Type)
		}
	}
	if a := r.Audio; a != nil && a.TrimEnd > 0 && a.TrimEnd <= a.TrimStart {
		return fmt.Errorf("invalid merge request: audio trim end must be after trim start")
	}
	return nil
}

// VideoDuration is the rendered video length; transitions overlap
// neighbouring clips. The last clip's transition has nothing to blend into.
func (r MergeRequest) VideoDuration() float64 {
	var total float64
	for i, c := range r.Clips {
		total += c.TrimEnd - c.TrimStart
		if i < len(r.Clips)-1 && c.TransitionOut != nil {
			total -= c.TransitionOut.Duration
		}
	}
	return math.Max(0, total)
}

// Duration is the expected output length. Audio without a trim end has an
// unknown length and does not extend it.
func (r MergeRequest) Duration() float64 {
	d := r.VideoDuration()
	if a := r.Audio; a != nil && a.TrimEnd > a.TrimStart {
		d = math.Max(d, float64(a.OffsetMs)/1000+a.TrimEnd-a.TrimStart)
	}
	return d
}

// Timeline converts the request back into clips, e.g. for EDL output.
func (r MergeRequest) Timeline() []timeline.Clip {
	clips := make([]timeline.Clip, len(r.Clips))
	for i, c := range r.Clips {
		clips[i] = timeline.Clip{
			ID:        fmt.Sprintf("clip-%03d", i+1),
			SourceURL: c.URL,
			TrimStart: c.TrimStart,
			TrimEnd:   c.TrimEnd,
			Muted:     c.Mute,

			OriginalDuration: c.TrimEnd,
		}
		if c.TransitionOut != nil {
			clips[i].TransitionOut = &timeline.Transition{Type: c.TransitionOut.Type, Duration: c.TransitionOut.Duration}
		}
	}
	return clips
}
