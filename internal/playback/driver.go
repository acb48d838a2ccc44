package playback

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/logging"
	"github.com/tourneyreel/studio/internal/timeline"
)

const (
	// DriftTolerance is how far the audio sink may wander from the master
	// clock before it is re-seeked.
	DriftTolerance = 0.3

	// DefaultFrameInterval approximates one display refresh.
	DefaultFrameInterval = 16 * time.Millisecond

	seekEpsilon = 1e-6
	parkEpsilon = 1e-3
)

// Store is the session the driver follows.
type Store interface {
	State() editor.State
	Dispatch(a editor.Action) (editor.State, error)
}

// Status is a point-in-time view of the driver, for diagnostics.
type Status struct {
	Playing     bool            `json:"playing"`
	Mode        editor.PlayMode `json:"mode"`
	VideoSource string          `json:"video_source,omitempty"`
	AudioSource string          `json:"audio_source,omitempty"`
	WallClock   bool            `json:"wall_clock"`
}

type parkKey struct {
	videoSrc  string
	videoWant float64
	audioSrc  string
	audioWant float64
}

// Driver keeps a video sink and an audio sink in step with a session's
// playhead. Tick is called once per frame; it reads fresh state and commits
// at most one playhead update.
//
// While video is part of the play mode and the playhead is inside the video
// sequence, the video sink is the master clock. Otherwise (audio mode, or
// the tail of "all" mode after the video ran out) the wall clock is.
type Driver struct {
	store  Store
	video  MediaSink
	audio  MediaSink
	logger *slog.Logger

	mu            sync.Mutex
	playing       bool
	mode          editor.PlayMode
	lastCommitted float64

	clipID       string
	pendingVideo *float64
	pendingAudio bool
	audioTrackID string

	wall      bool
	wallBase  float64
	wallStart time.Time

	parked bool
	park   parkKey
}

func NewDriver(store Store, video, audio MediaSink, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Driver{
		store:  store,
		video:  video,
		audio:  audio,
		logger: logging.WithComponent(logger, "playback"),
		mode:   editor.PlayNone,
	}
}

// Run calls Tick every interval until ctx is done, then pauses both sinks.
func (d *Driver) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.cancel()
			d.mu.Unlock()
			return
		case now := <-ticker.C:
			d.Tick(now)
		}
	}
}

// Status reports what the driver is doing.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Playing:     d.playing,
		Mode:        d.mode,
		VideoSource: d.video.Source(),
		AudioSource: d.audio.Source(),
		WallClock:   d.playing && d.wall,
	}
}

// Tick advances playback to now.
func (d *Driver) Tick(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.store.State()
	if !st.IsPlaying {
		if d.playing {
			d.cancel()
		}
		d.parkAt(st)
		return
	}

	if !d.playing || st.PlayMode != d.mode || math.Abs(st.CurrentTime-d.lastCommitted) > seekEpsilon {
		d.start(st, now)
	}

	t, finished := d.step(st, now)
	if finished {
		if _, err := d.store.Dispatch(editor.Finish{Time: t}); err != nil {
			d.logger.Warn("failed to commit end of playback", "error", err)
		}
		d.cancel()
		return
	}

	if d.mode == editor.PlayAudio || d.mode == editor.PlayAll {
		d.syncAudio(st, t)
	}

	from := d.lastCommitted
	next, err := d.store.Dispatch(editor.Advance{Time: t, From: &from})
	if err != nil {
		d.logger.Warn("failed to commit playhead", "error", err)
		d.cancel()
		return
	}
	d.lastCommitted = timeline.Clamp(t, 0, next.TotalDuration)
}

// start (re)positions the sinks for playback from st.CurrentTime. Any load
// or seek still pending from before is dropped.
func (d *Driver) start(st editor.State, now time.Time) {
	d.pauseAll()
	d.pendingVideo = nil
	d.pendingAudio = false
	d.audioTrackID = ""
	d.clipID = ""
	d.parked = false

	d.playing = true
	d.mode = st.PlayMode
	d.lastCommitted = st.CurrentTime

	t := st.CurrentTime
	d.wall = true
	d.wallBase = t
	d.wallStart = now

	if d.mode == editor.PlayVideo || d.mode == editor.PlayAll {
		if i, local := timeline.ClipAt(st.Clips, t); i >= 0 {
			d.wall = false
			c := st.Clips[i]
			d.enterClip(c, c.TrimStart+local)
		}
	}
}

// enterClip points the video sink at c's source position. A clip sharing
// the loaded source is seeked in place; otherwise the source is swapped and
// the seek waits until the sink reports ready.
func (d *Driver) enterClip(c timeline.Clip, sourceTime float64) {
	d.clipID = c.ID
	d.video.SetMuted(c.Muted)
	if d.video.Source() == c.SourceURL && d.pendingVideo == nil && d.video.Ready() {
		d.video.Seek(sourceTime)
		d.video.Play()
		return
	}
	if d.video.Source() != c.SourceURL {
		d.video.Load(c.SourceURL)
	}
	target := sourceTime
	d.pendingVideo = &target
}

// step returns the playhead for this frame and whether playback is over.
func (d *Driver) step(st editor.State, now time.Time) (float64, bool) {
	if !d.wall {
		if t, done, ok := d.stepVideo(st, now); ok {
			return t, done
		}
	}

	t := d.wallBase + now.Sub(d.wallStart).Seconds()
	end := d.endTime(st)
	if t >= end {
		return timeline.Clamp(math.Max(end, d.wallBase), 0, st.TotalDuration), true
	}
	return t, false
}

// stepVideo follows the video sink. ok is false when the driver switched
// to the wall clock during this frame and step should continue from there.
func (d *Driver) stepVideo(st editor.State, now time.Time) (t float64, done, ok bool) {
	i := timeline.IndexOfClip(st.Clips, d.clipID)
	if i < 0 {
		// The active clip was edited away underneath us.
		d.video.Pause()
		d.wall, d.wallBase, d.wallStart = true, d.lastCommitted, now
		return 0, false, false
	}
	c := st.Clips[i]
	off := timeline.TimelineOffset(st.Clips, i)

	var pos float64
	if d.pendingVideo != nil {
		if !d.video.Ready() {
			return off + (*d.pendingVideo - c.TrimStart), false, true
		}
		pos = *d.pendingVideo
		d.pendingVideo = nil
		d.video.Seek(pos)
		d.video.Play()
	} else {
		pos = d.video.CurrentTime()
		if d.video.Paused() {
			d.video.Play()
		}
	}

	if pos < c.TrimEnd {
		return off + math.Max(0, pos-c.TrimStart), false, true
	}

	carry := pos - c.TrimEnd
	if i+1 < len(st.Clips) {
		next := st.Clips[i+1]
		// The next clip started the overlap before c ended.
		target := next.TrimStart + timeline.OverlapAt(st.Clips, i) + carry
		target = timeline.Clamp(target, next.TrimStart, next.TrimEnd)
		d.enterClip(next, target)
		return timeline.TimelineOffset(st.Clips, i+1) + (target - next.TrimStart), false, true
	}

	// Last clip ended.
	d.video.Pause()
	videoEnd := off + timeline.ClipDuration(c)
	if d.mode == editor.PlayVideo || timeline.AudioDuration(st.AudioTracks) <= videoEnd {
		return timeline.Clamp(math.Max(videoEnd, d.endTime(st)), 0, st.TotalDuration), true, true
	}
	d.clipID = ""
	d.wall = true
	d.wallBase = videoEnd
	d.wallStart = now.Add(-time.Duration(carry * float64(time.Second)))
	return 0, false, false
}

func (d *Driver) endTime(st editor.State) float64 {
	switch d.mode {
	case editor.PlayVideo:
		return timeline.VideoDuration(st.Clips)
	case editor.PlayAudio:
		return timeline.AudioDuration(st.AudioTracks)
	default:
		return st.TotalDuration
	}
}

// syncAudio makes the audio sink play whatever track covers timeline time
// t, re-seeking only when it drifted past DriftTolerance.
func (d *Driver) syncAudio(st editor.State, t float64) {
	k := timeline.TrackAt(st.AudioTracks, t)
	if k < 0 {
		if !d.audio.Paused() {
			d.audio.Pause()
		}
		d.audioTrackID = ""
		d.pendingAudio = false
		return
	}
	tr := st.AudioTracks[k]
	want := tr.TrimStart + (t - tr.OffsetSeconds)
	d.audio.SetVolume(tr.Volume)

	if d.audio.Source() != tr.SourceURL {
		d.audio.Load(tr.SourceURL)
		d.pendingAudio = true
		d.audioTrackID = tr.ID
		return
	}
	if d.pendingAudio {
		if !d.audio.Ready() {
			return
		}
		d.pendingAudio = false
		d.audio.Seek(want)
		d.audio.Play()
		d.audioTrackID = tr.ID
		return
	}
	if d.audioTrackID != tr.ID || math.Abs(d.audio.CurrentTime()-want) > DriftTolerance {
		d.audio.Seek(want)
	}
	d.audioTrackID = tr.ID
	if d.audio.Paused() {
		d.audio.Play()
	}
}

// cancel stops everything immediately. Nothing queued survives it.
func (d *Driver) cancel() {
	d.pauseAll()
	d.playing = false
	d.mode = editor.PlayNone
	d.pendingVideo = nil
	d.pendingAudio = false
	d.clipID = ""
	d.audioTrackID = ""
	d.wall = false
	d.parked = false
}

func (d *Driver) pauseAll() {
	if !d.video.Paused() {
		d.video.Pause()
	}
	if !d.audio.Paused() {
		d.audio.Pause()
	}
}

// parkAt shows the frame under the playhead without playing. Sinks are only
// touched when the wanted position changed or a load is still settling.
func (d *Driver) parkAt(st editor.State) {
	key := parkKey{}
	var clip *timeline.Clip
	if n := len(st.Clips); n > 0 {
		i, local := timeline.ClipAt(st.Clips, st.CurrentTime)
		if i < 0 {
			i, local = n-1, timeline.ClipDuration(st.Clips[n-1])
		}
		clip = &st.Clips[i]
		key.videoSrc, key.videoWant = clip.SourceURL, clip.TrimStart+local
	}
	if k := timeline.TrackAt(st.AudioTracks, st.CurrentTime); k >= 0 {
		tr := st.AudioTracks[k]
		key.audioSrc, key.audioWant = tr.SourceURL, tr.TrimStart+(st.CurrentTime-tr.OffsetSeconds)
	}

	if d.parked && key == d.park && d.pendingVideo == nil && !d.pendingAudio {
		return
	}

	settled := true
	if clip != nil {
		d.video.SetMuted(clip.Muted)
		settled = parkSink(d.video, key.videoSrc, key.videoWant) && settled
	}
	if key.audioSrc != "" {
		settled = parkSink(d.audio, key.audioSrc, key.audioWant) && settled
	}

	d.pendingVideo = nil
	d.pendingAudio = false
	if !settled {
		// Re-run next frame until the load completes.
		d.parked = false
		return
	}
	d.parked = true
	d.park = key
}

// parkSink positions s at want on src. It reports false while a load is
// still in progress.
func parkSink(s MediaSink, src string, want float64) bool {
	if s.Source() != src {
		s.Load(src)
		return false
	}
	if !s.Ready() {
		return false
	}
	if math.Abs(s.CurrentTime()-want) > parkEpsilon {
		s.Seek(want)
	}
	return true
}
