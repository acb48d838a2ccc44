package export

import (
	"strings"
	"testing"

	"github.com/tourneyreel/studio/internal/timeline"
)

func TestGenerateEDL_SingleClip(t *testing.T) {
	clips := []timeline.Clip{{
		ID:        "c1",
		SourceURL: "https://cdn.example.com/media/intro.mp4?sig=secret",
		TrimStart: 0,
		TrimEnd:   2,
	}}

	edl := GenerateEDL(clips, "Project One", 30.0)

	if !strings.Contains(edl, "TITLE: Project One") {
		t.Fatalf("missing title in EDL: %q", edl)
	}
	if !strings.Contains(edl, "FCM: NON-DROP FRAME") {
		t.Fatalf("missing non-drop-frame FCM: %q", edl)
	}
	if !strings.Contains(edl, "001  AX       V     C        00:00:00:00 00:00:02:00 00:00:00:00 00:00:02:00") {
		t.Fatalf("missing event line: %q", edl)
	}
	if !strings.Contains(edl, "* FROM CLIP NAME:  intro.mp4") {
		t.Fatalf("missing clip name comment: %q", edl)
	}
	if strings.Contains(edl, "secret") {
		t.Fatalf("query string leaked into EDL: %q", edl)
	}
}

func TestGenerateEDL_MultipleClips(t *testing.T) {
	clips := []timeline.Clip{
		{ID: "a", SourceURL: "/a.mp4", TrimStart: 0, TrimEnd: 1},
		{ID: "b", SourceURL: "/b.mp4", TrimStart: 1, TrimEnd: 2.5, Muted: true},
	}

	edl := GenerateEDL(clips, "Multi", 30.0)

	if !strings.Contains(edl, "001  AX       V     C        00:00:00:00 00:00:01:00 00:00:00:00 00:00:01:00") {
		t.Fatalf("first event line mismatch: %q", edl)
	}
	if !strings.Contains(edl, "002  AX       V     C        00:00:01:00 00:00:02:15 00:00:01:00 00:00:02:15") {
		t.Fatalf("second event line mismatch or bad record offset: %q", edl)
	}
	if !strings.Contains(edl, "* AUDIO:  MUTED") {
		t.Fatalf("muted clip not marked: %q", edl)
	}
}

func TestGenerateEDL_Dissolve(t *testing.T) {
	clips := []timeline.Clip{
		{ID: "a", SourceURL: "/a.mp4", TrimStart: 0, TrimEnd: 4, TransitionOut: &timeline.Transition{Type: timeline.TransitionDissolve, Duration: 1}},
		{ID: "b", SourceURL: "/b.mp4", TrimStart: 0, TrimEnd: 4},
	}

	edl := GenerateEDL(clips, "Dissolve", 30.0)

	// b enters at 3s, one second before a ends.
	if !strings.Contains(edl, "002  AX       V     C        00:00:03:00 00:00:03:00 00:00:03:00 00:00:03:00") {
		t.Fatalf("missing outgoing cut line: %q", edl)
	}
	if !strings.Contains(edl, "002  AX       V     D    030 00:00:00:00 00:00:04:00 00:00:03:00 00:00:07:00") {
		t.Fatalf("missing dissolve line: %q", edl)
	}
	if !strings.Contains(edl, "* TRANSITION:  dissolve") {
		t.Fatalf("missing transition comment: %q", edl)
	}
}

func TestGenerateEDL_DropFrame(t *testing.T) {
	clips := []timeline.Clip{{ID: "c", SourceURL: "/x.mp4", TrimEnd: 1}}
	edl := GenerateEDL(clips, "Drop", 29.97)

	if !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Fatalf("expected drop frame FCM, got: %q", edl)
	}
}

func TestMsToTimecode(t *testing.T) {
	tests := []struct {
		name string
		ms   int
		fps  int
		want string
	}{
		{name: "zero", ms: 0, fps: 30, want: "00:00:00:00"},
		{name: "negative", ms: -20, fps: 30, want: "00:00:00:00"},
		{name: "one second", ms: 1000, fps: 30, want: "00:00:01:00"},
		{name: "fractional second", ms: 500, fps: 30, want: "00:00:00:15"},
		{name: "one minute", ms: 60000, fps: 30, want: "00:01:00:00"},
		{name: "one hour", ms: 3600000, fps: 30, want: "01:00:00:00"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := msToTimecode(tc.ms, tc.fps)
			if got != tc.want {
				t.Fatalf("msToTimecode(%d, %d) = %q, want %q", tc.ms, tc.fps, got, tc.want)
			}
		})
	}
}
