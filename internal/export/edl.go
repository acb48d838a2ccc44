package export

import (
	"fmt"
	"math"
	"net/url"
	"path"
	"strings"

	"github.com/tourneyreel/studio/internal/logging"
	"github.com/tourneyreel/studio/internal/timeline"
)

const defaultFrameRate = 30

// GenerateEDL writes clips as a CMX3600 edit list. A clip entered through a
// transition becomes a dissolve event whose length is the overlap.
func GenerateEDL(clips []timeline.Clip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = defaultFrameRate
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", SanitizeName(title, 70))}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	overlaps := timeline.Overlaps(clips)
	for i, clip := range clips {
		event := i + 1
		srcIn := secToTimecode(clip.TrimStart, fps)
		srcOut := secToTimecode(clip.TrimEnd, fps)
		start := timeline.TimelineOffset(clips, i)
		recIn := secToTimecode(start, fps)
		recOut := secToTimecode(start+timeline.ClipDuration(clip), fps)

		if i > 0 && overlaps[i-1] > 0 {
			prev := clips[i-1]
			frames := int(math.Round(overlaps[i-1] * float64(fps)))
			prevOut := secToTimecode(prev.TrimEnd-overlaps[i-1], fps)
			lines = append(lines,
				fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", event, "AX", "V", prevOut, prevOut, recIn, recIn),
				fmt.Sprintf("%03d  %-8s %-5s D    %03d %s %s %s %s", event, "AX", "V", frames, srcIn, srcOut, recIn, recOut),
				fmt.Sprintf("* TRANSITION:  %s", prev.TransitionOut.Type),
			)
		} else {
			lines = append(lines,
				fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", event, "AX", "V", srcIn, srcOut, recIn, recOut),
			)
		}
		lines = append(lines,
			fmt.Sprintf("* FROM CLIP NAME:  %s", clipName(clip.SourceURL)),
			fmt.Sprintf("* MEDIA PATH:  %s", logging.SanitizeURL(clip.SourceURL)),
		)
		if clip.Muted {
			lines = append(lines, "* AUDIO:  MUTED")
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func clipName(src string) string {
	p := src
	if u, err := url.Parse(src); err == nil && u.Path != "" {
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return "clip"
	}
	return SanitizeName(name, 60)
}

func secToTimecode(sec float64, fps int) string {
	return msToTimecode(int(math.Round(sec*1000)), fps)
}

func msToTimecode(ms int, fps int) string {
	if ms < 0 {
		ms = 0
	}
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
