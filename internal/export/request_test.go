package export

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/timeline"
)

func editedState() editor.State {
	st := editor.NewState()
	st.Clips = []timeline.Clip{
		{ID: "a", SourceURL: "https://cdn/a.mp4", OriginalDuration: 6, TrimStart: 1, TrimEnd: 5,
			TransitionOut: &timeline.Transition{Type: timeline.TransitionFade, Duration: 1}},
		{ID: "b", SourceURL: "https://cdn/b.mp4", OriginalDuration: 4, TrimStart: 0, TrimEnd: 4, Muted: true,
			TransitionOut: &timeline.Transition{Type: timeline.TransitionNone, Duration: 1}},
	}
	st.AudioTracks = []timeline.AudioTrack{
		{ID: "m1", SourceURL: "https://cdn/m1.mp3", OriginalDuration: 10, TrimStart: 2, TrimEnd: 10, OffsetSeconds: 1.5, Volume: 0.6},
		{ID: "m2", SourceURL: "https://cdn/m2.mp3", OriginalDuration: 10, TrimEnd: 10, Volume: 1},
	}
	return st
}

func TestBuildRequest(t *testing.T) {
	req, err := BuildRequest(editedState(), true)
	if err != nil {
		t.Fatalf("BuildRequest error = %v", err)
	}
	if len(req.Clips) != 2 {
		t.Fatalf("clips = %d", len(req.Clips))
	}
	a, b := req.Clips[0], req.Clips[1]
	if a.URL != "https://cdn/a.mp4" || a.TrimStart != 1 || a.TrimEnd != 5 || a.Mute {
		t.Errorf("clip a = %+v", a)
	}
	if a.TransitionOut == nil || a.TransitionOut.Type != timeline.TransitionFade || a.TransitionOut.Duration != 1 {
		t.Errorf("clip a transition = %+v", a.TransitionOut)
	}
	if !b.Mute || b.TransitionOut != nil {
		t.Errorf("clip b = %+v (inactive transition must be dropped)", b)
	}
	if req.Audio == nil || req.Audio.URL != "https://cdn/m1.mp3" || req.Audio.OffsetMs != 1500 || req.Audio.Volume != 0.6 {
		t.Errorf("audio = %+v, want first track only", req.Audio)
	}
	if !req.RemoveSilence {
		t.Error("RemoveSilence lost")
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate error = %v", err)
	}
}

func TestBuildRequest_UsesBoundedOverlap(t *testing.T) {
	st := editor.NewState()
	st.Clips = []timeline.Clip{
		{ID: "a", SourceURL: "https://cdn/a.mp4", OriginalDuration: 5, TrimEnd: 5,
			TransitionOut: &timeline.Transition{Type: timeline.TransitionFade, Duration: 3}},
		{ID: "b", SourceURL: "https://cdn/b.mp4", OriginalDuration: 2, TrimEnd: 2,
			TransitionOut: &timeline.Transition{Type: timeline.TransitionFade, Duration: 1}},
	}
	req, err := BuildRequest(st, false)
	if err != nil {
		t.Fatalf("BuildRequest error = %v", err)
	}
	if tr := req.Clips[0].TransitionOut; tr == nil || tr.Duration != 1.5 {
		t.Errorf("clip a transition = %+v, want 1.5s", tr)
	}
	if req.Clips[1].TransitionOut != nil {
		t.Errorf("last clip transition = %+v, want none", req.Clips[1].TransitionOut)
	}
	if got := req.VideoDuration(); got != timeline.VideoDuration(st.Clips) {
		t.Errorf("VideoDuration = %v, want %v", got, timeline.VideoDuration(st.Clips))
	}
}

func TestBuildRequest_Empty(t *testing.T) {
	if _, err := BuildRequest(editor.NewState(), false); !errors.Is(err, ErrEmptyTimeline) {
		t.Fatalf("err = %v, want ErrEmptyTimeline", err)
	}
}

func TestMergeRequest_Durations(t *testing.T) {
	req, _ := BuildRequest(editedState(), false)
	if got := req.VideoDuration(); math.Abs(got-7) > 1e-9 {
		t.Errorf("VideoDuration = %v, want 7", got)
	}
	// audio: 1.5 + (10 - 2) = 9.5
	if got := req.Duration(); math.Abs(got-9.5) > 1e-9 {
		t.Errorf("Duration = %v, want 9.5", got)
	}

	req.Audio.TrimEnd = 0
	req.Audio.TrimStart = 0
	if got := req.Duration(); math.Abs(got-7) > 1e-9 {
		t.Errorf("Duration with open-ended audio = %v, want 7", got)
	}
}

func TestMergeRequest_Validate(t *testing.T) {
	valid := func() MergeRequest {
		req, _ := BuildRequest(editedState(), false)
		return req
	}

	tests := []struct {
		name   string
		mutate func(*MergeRequest)
		want   string
	}{
		{"missing url", func(r *MergeRequest) { r.Clips[0].URL = "" }, "URL"},
		{"inverted trim", func(r *MergeRequest) { r.Clips[0].TrimEnd = 0.5 }, "TrimEnd"},
		{"negative trim", func(r *MergeRequest) { r.Clips[0].TrimStart = -1 }, "TrimStart"},
		{"loud audio", func(r *MergeRequest) { r.Audio.Volume = 1.5 }, "Volume"},
		{"negative offset", func(r *MergeRequest) { r.Audio.OffsetMs = -1 }, "OffsetMs"},
		{"unknown transition", func(r *MergeRequest) { r.Clips[0].TransitionOut.Type = "spin" }, "spin"},
		{"zero transition", func(r *MergeRequest) { r.Clips[0].TransitionOut.Duration = 0 }, "Duration"},
		{"audio trim", func(r *MergeRequest) { r.Audio.TrimEnd = 1 }, "audio trim"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(&req)
			err := req.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}

	if err := (MergeRequest{}).Validate(); !errors.Is(err, ErrEmptyTimeline) {
		t.Errorf("empty request: %v", err)
	}
}

func TestMergeRequest_Timeline(t *testing.T) {
	req, _ := BuildRequest(editedState(), false)
	clips := req.Timeline()
	if len(clips) != 2 || clips[0].TransitionOut == nil || !clips[1].Muted {
		t.Fatalf("Timeline = %+v", clips)
	}
	if got := timeline.VideoDuration(clips); math.Abs(got-req.VideoDuration()) > 1e-9 {
		t.Errorf("durations disagree: %v vs %v", got, req.VideoDuration())
	}
}
