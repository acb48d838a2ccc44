package playback

import (
	"math"
	"testing"
	"time"

	"github.com/tourneyreel/studio/internal/editor"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(sec float64) {
	c.t = c.t.Add(time.Duration(sec * float64(time.Second)))
}

// countingSink records how often the driver loads and seeks.
type countingSink struct {
	*ClockSink
	loads int
	seeks int
}

func (s *countingSink) Load(url string) {
	s.loads++
	s.ClockSink.Load(url)
}

func (s *countingSink) Seek(t float64) {
	s.seeks++
	s.ClockSink.Seek(t)
}

type rig struct {
	t       *testing.T
	clock   *fakeClock
	session *editor.Session
	video   *countingSink
	audio   *countingSink
	driver  *Driver
}

func newRig(t *testing.T, latency time.Duration) *rig {
	t.Helper()
	clk := newFakeClock()
	r := &rig{
		t:       t,
		clock:   clk,
		session: editor.NewSession("camp-1", nil, nil),
		video:   &countingSink{ClockSink: newClockSink(clk.now, latency)},
		audio:   &countingSink{ClockSink: newClockSink(clk.now, latency)},
	}
	r.driver = NewDriver(r.session, r.video, r.audio, nil)
	return r
}

func (r *rig) dispatch(a editor.Action) editor.State {
	r.t.Helper()
	st, err := r.session.Dispatch(a)
	if err != nil {
		r.t.Fatalf("Dispatch(%s) error = %v", a.Type(), err)
	}
	return st
}

// tick advances the clock by sec and runs one frame.
func (r *rig) tick(sec float64) editor.State {
	r.clock.advance(sec)
	r.driver.Tick(r.clock.now())
	return r.session.State()
}

// runUntil ticks in steps of sec until playback stops or limit frames ran.
func (r *rig) runUntil(sec float64, limit int) editor.State {
	r.t.Helper()
	st := r.session.State()
	for i := 0; i < limit && st.IsPlaying; i++ {
		st = r.tick(sec)
	}
	if st.IsPlaying {
		r.t.Fatalf("still playing after %d frames at t=%v", limit, st.CurrentTime)
	}
	return st
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestDriver_AudioOutlastsVideo(t *testing.T) {
	r := newRig(t, 0)
	r.dispatch(editor.AddClip{ID: "c1", SourceURL: "v.mp4", Duration: 5})
	r.dispatch(editor.AddAudioTrack{ID: "m1", SourceURL: "m.mp3", Duration: 6})
	r.dispatch(editor.MoveAudio{TrackID: "m1", OffsetSeconds: 2})
	st := r.dispatch(editor.Play{Mode: editor.PlayAll})
	if !approx(st.TotalDuration, 8) {
		t.Fatalf("TotalDuration = %v, want 8", st.TotalDuration)
	}

	st = r.tick(0)
	if !approx(st.CurrentTime, 0) || r.video.Paused() {
		t.Fatalf("after first frame: t=%v video paused=%v", st.CurrentTime, r.video.Paused())
	}

	for i := 0; i < 6; i++ {
		st = r.tick(0.5)
	}
	if !approx(st.CurrentTime, 3) {
		t.Fatalf("CurrentTime = %v, want 3", st.CurrentTime)
	}
	if r.audio.Source() != "m.mp3" || r.audio.Paused() {
		t.Fatalf("audio not playing at t=3: src=%q paused=%v", r.audio.Source(), r.audio.Paused())
	}

	for i := 0; i < 4; i++ {
		st = r.tick(0.5)
	}
	if !approx(st.CurrentTime, 5) {
		t.Fatalf("CurrentTime = %v, want 5", st.CurrentTime)
	}
	if !r.video.Paused() {
		t.Error("video still playing past its last clip")
	}
	if !r.driver.Status().WallClock {
		t.Error("driver did not switch to the wall clock after the video ended")
	}

	st = r.tick(1)
	if !approx(st.CurrentTime, 6) || !st.IsPlaying || r.audio.Paused() {
		t.Fatalf("at 6s: t=%v playing=%v audio paused=%v", st.CurrentTime, st.IsPlaying, r.audio.Paused())
	}

	st = r.runUntil(0.5, 10)
	if !approx(st.CurrentTime, 8) {
		t.Errorf("finished at %v, want 8", st.CurrentTime)
	}
	if st.PlayMode != editor.PlayNone {
		t.Errorf("PlayMode = %q after finish", st.PlayMode)
	}
	if !r.audio.Paused() || !r.video.Paused() {
		t.Error("sinks still playing after finish")
	}
}

func TestDriver_SameSourceCrossingSeeksInPlace(t *testing.T) {
	r := newRig(t, 0)
	r.dispatch(editor.AddClip{ID: "c1", SourceURL: "v.mp4", Duration: 10})
	r.dispatch(editor.AddClip{ID: "c2", SourceURL: "v.mp4", Duration: 10})
	r.dispatch(editor.SetClipTrim{ClipID: "c1", TrimStart: 0, TrimEnd: 4})
	r.dispatch(editor.SetClipTrim{ClipID: "c2", TrimStart: 6, TrimEnd: 10})
	r.dispatch(editor.Play{Mode: editor.PlayVideo})

	r.tick(0)
	for i := 0; i < 8; i++ {
		r.tick(0.5)
	}
	st := r.session.State()
	if !approx(st.CurrentTime, 4) {
		t.Fatalf("CurrentTime = %v, want 4", st.CurrentTime)
	}
	if got := r.video.CurrentTime(); !approx(got, 6) {
		t.Fatalf("video position = %v, want 6", got)
	}

	st = r.tick(0.5)
	if !approx(st.CurrentTime, 4.5) {
		t.Errorf("CurrentTime = %v, want 4.5", st.CurrentTime)
	}
	if r.video.loads != 1 {
		t.Errorf("loads = %d, want 1", r.video.loads)
	}

	st = r.runUntil(0.5, 20)
	if !approx(st.CurrentTime, 8) {
		t.Errorf("finished at %v, want 8", st.CurrentTime)
	}
}

func TestDriver_CrossingWaitsForLoad(t *testing.T) {
	r := newRig(t, 200*time.Millisecond)
	r.dispatch(editor.AddClip{ID: "c1", SourceURL: "a.mp4", Duration: 3})
	r.dispatch(editor.AddClip{ID: "c2", SourceURL: "b.mp4", Duration: 3})
	r.dispatch(editor.Play{Mode: editor.PlayVideo})

	st := r.tick(0)
	if !approx(st.CurrentTime, 0) {
		t.Fatalf("moved before the first source was ready: %v", st.CurrentTime)
	}
	st = r.tick(0.25)
	if !approx(st.CurrentTime, 0) || r.video.Paused() {
		t.Fatalf("after ready: t=%v paused=%v", st.CurrentTime, r.video.Paused())
	}

	for i := 0; i < 6; i++ {
		st = r.tick(0.5)
	}
	if !approx(st.CurrentTime, 3) || r.video.Source() != "b.mp4" {
		t.Fatalf("at boundary: t=%v src=%q", st.CurrentTime, r.video.Source())
	}

	st = r.tick(0.1)
	if !approx(st.CurrentTime, 3) {
		t.Errorf("playhead moved while next source loading: %v", st.CurrentTime)
	}
	st = r.tick(0.15)
	if !approx(st.CurrentTime, 3) || r.video.Paused() {
		t.Errorf("after second load: t=%v paused=%v", st.CurrentTime, r.video.Paused())
	}
	st = r.tick(1)
	if !approx(st.CurrentTime, 4) {
		t.Errorf("CurrentTime = %v, want 4", st.CurrentTime)
	}
}

func TestDriver_TransitionCrossingIsContinuous(t *testing.T) {
	r := newRig(t, 0)
	r.dispatch(editor.AddClip{ID: "c1", SourceURL: "v.mp4", Duration: 4})
	r.dispatch(editor.AddClip{ID: "c2", SourceURL: "v.mp4", Duration: 4})
	r.dispatch(editor.SetTransition{ClipID: "c1", TransitionType: "fade", Duration: 1})
	st := r.dispatch(editor.Play{Mode: editor.PlayVideo})
	if !approx(st.TotalDuration, 7) {
		t.Fatalf("TotalDuration = %v, want 7", st.TotalDuration)
	}

	r.tick(0)
	for i := 0; i < 4; i++ {
		st = r.tick(1)
	}
	// c2 starts at 3, so the crossing lands one second into it.
	if !approx(st.CurrentTime, 4) {
		t.Fatalf("CurrentTime = %v, want 4", st.CurrentTime)
	}
	if got := r.video.CurrentTime(); !approx(got, 1) {
		t.Errorf("video position = %v, want 1", got)
	}
}

func TestDriver_StopCancelsImmediately(t *testing.T) {
	r := newRig(t, 0)
	r.dispatch(editor.AddClip{ID: "c1", SourceURL: "v.mp4", Duration: 5})
	r.dispatch(editor.AddAudioTrack{ID: "m1", SourceURL: "m.mp3", Duration: 5})
	r.dispatch(editor.Play{Mode: editor.PlayAll})
	r.tick(0)
	r.tick(0.5)
	r.tick(0.5)
	if r.video.Paused() || r.audio.Paused() {
		t.Fatal("sinks not playing")
	}

	r.dispatch(editor.Stop{})
	st := r.tick(0.5)
	if !r.video.Paused() || !r.audio.Paused() {
		t.Error("sinks still playing after stop")
	}
	if r.driver.Status().Playing {
		t.Error("driver still reports playing")
	}
	if !approx(st.CurrentTime, 1) {
		t.Errorf("CurrentTime = %v, want 1", st.CurrentTime)
	}

	r.tick(0.5)
	if got := r.session.State().CurrentTime; !approx(got, 1) {
		t.Errorf("playhead moved after stop: %v", got)
	}
}

func TestDriver_UserSeekWins(t *testing.T) {
	r := newRig(t, 0)
	r.dispatch(editor.AddClip{ID: "c1", SourceURL: "v.mp4", Duration: 10})
	r.dispatch(editor.Play{Mode: editor.PlayVideo})
	r.tick(0)
	r.tick(0.5)

	r.dispatch(editor.Seek{Time: 7})
	st := r.tick(0.5)
	if !approx(st.CurrentTime, 7) {
		t.Fatalf("CurrentTime = %v, want 7", st.CurrentTime)
	}
	st = r.tick(0.5)
	if !approx(st.CurrentTime, 7.5) {
		t.Errorf("CurrentTime = %v, want 7.5", st.CurrentTime)
	}
	if got := r.video.CurrentTime(); !approx(got, 7.5) {
		t.Errorf("video position = %v, want 7.5", got)
	}
}

func TestDriver_AudioDriftResync(t *testing.T) {
	r := newRig(t, 0)
	r.dispatch(editor.AddAudioTrack{ID: "m1", SourceURL: "m.mp3", Duration: 10})
	r.dispatch(editor.Play{Mode: editor.PlayAudio})

	r.tick(0)
	r.tick(0.5)
	if got := r.audio.CurrentTime(); !approx(got, 0.5) || r.audio.Paused() {
		t.Fatalf("audio = %v paused=%v", got, r.audio.Paused())
	}
	if r.video.Source() != "" {
		t.Error("video sink touched in audio mode")
	}

	r.audio.ClockSink.Seek(3)
	r.tick(0.5)
	if got := r.audio.CurrentTime(); !approx(got, 1) {
		t.Errorf("after large drift audio = %v, want 1", got)
	}

	r.audio.ClockSink.Seek(1.2)
	seeks := r.audio.seeks
	r.tick(0.5)
	if got := r.audio.CurrentTime(); !approx(got, 1.7) {
		t.Errorf("small drift corrected: audio = %v, want 1.7", got)
	}
	if r.audio.seeks != seeks {
		t.Errorf("seeks = %d, want %d", r.audio.seeks, seeks)
	}
}

func TestDriver_AudioVolumeApplied(t *testing.T) {
	r := newRig(t, 0)
	r.dispatch(editor.AddAudioTrack{ID: "m1", SourceURL: "m.mp3", Duration: 10})
	r.dispatch(editor.SetAudioVolume{TrackID: "m1", Volume: 0.25})
	r.dispatch(editor.Play{Mode: editor.PlayAudio})
	r.tick(0)
	if got := r.audio.Volume(); !approx(got, 0.25) {
		t.Errorf("Volume = %v, want 0.25", got)
	}
}

func TestDriver_MutedClip(t *testing.T) {
	r := newRig(t, 0)
	r.dispatch(editor.AddClip{ID: "c1", SourceURL: "v.mp4", Duration: 5})
	r.dispatch(editor.ToggleClipMute{ClipID: "c1"})
	r.dispatch(editor.Play{Mode: editor.PlayVideo})
	r.tick(0)
	if !r.video.Muted() {
		t.Error("muted clip played with sound")
	}
}

func TestDriver_ParksWhileStopped(t *testing.T) {
	r := newRig(t, 0)
	r.dispatch(editor.AddClip{ID: "c1", SourceURL: "v.mp4", Duration: 5})
	r.dispatch(editor.Seek{Time: 2})

	r.tick(0)
	r.tick(0.016)
	if got := r.video.CurrentTime(); !approx(got, 2) {
		t.Fatalf("parked at %v, want 2", got)
	}
	if !r.video.Paused() {
		t.Error("parking started playback")
	}

	seeks := r.video.seeks
	r.tick(0.016)
	r.tick(0.016)
	if r.video.seeks != seeks {
		t.Errorf("seeked again without a change: %d -> %d", seeks, r.video.seeks)
	}

	r.dispatch(editor.Seek{Time: 4})
	r.tick(0.016)
	if got := r.video.CurrentTime(); !approx(got, 4) {
		t.Errorf("parked at %v after seek, want 4", got)
	}
}

func TestDriver_ParksOnLastFramePastVideo(t *testing.T) {
	r := newRig(t, 0)
	r.dispatch(editor.AddClip{ID: "c1", SourceURL: "v.mp4", Duration: 4})
	r.dispatch(editor.AddAudioTrack{ID: "m1", SourceURL: "m.mp3", Duration: 8})
	r.dispatch(editor.Seek{Time: 6})

	r.tick(0)
	r.tick(0.016)
	if got := r.video.CurrentTime(); !approx(got, 4) {
		t.Errorf("video parked at %v, want 4", got)
	}
	if got := r.audio.CurrentTime(); !approx(got, 6) {
		t.Errorf("audio parked at %v, want 6", got)
	}
}
