// Package playback drives two media sinks, one video and one audio, so
// that they follow an editing session's playhead. The driver is the only
// code allowed to seek, play or pause the sinks.
package playback

import (
	"sync"
	"time"
)

// MediaSink is a single media element. Calls never block; Load starts
// loading and Ready reports when the new source can be seeked and played.
type MediaSink interface {
	Source() string
	Load(url string)
	Ready() bool
	// CurrentTime is the position in the loaded source, in seconds.
	CurrentTime() float64
	Seek(t float64)
	Play()
	Pause()
	Paused() bool
	SetMuted(muted bool)
	SetVolume(v float64)
}

// ClockSink is a MediaSink without a decoder: its position advances with
// the wall clock while playing. The agent uses it to run server-side
// playback for sessions whose clients only render state.
type ClockSink struct {
	now     func() time.Time
	latency time.Duration

	mu       sync.Mutex
	src      string
	loadedAt time.Time
	base     float64
	started  time.Time
	playing  bool
	muted    bool
	volume   float64
}

// NewClockSink returns a sink that becomes ready latency after each Load.
func NewClockSink(latency time.Duration) *ClockSink {
	return newClockSink(time.Now, latency)
}

func newClockSink(now func() time.Time, latency time.Duration) *ClockSink {
	return &ClockSink{now: now, latency: latency, volume: 1}
}

func (c *ClockSink) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src
}

func (c *ClockSink) Load(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.src = url
	c.loadedAt = c.now()
	c.base = 0
	c.playing = false
}

func (c *ClockSink) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src != "" && c.now().Sub(c.loadedAt) >= c.latency
}

func (c *ClockSink) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position()
}

func (c *ClockSink) position() float64 {
	if !c.playing {
		return c.base
	}
	return c.base + c.now().Sub(c.started).Seconds()
}

func (c *ClockSink) Seek(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = t
	c.started = c.now()
}

func (c *ClockSink) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing || c.src == "" {
		return
	}
	c.started = c.now()
	c.playing = true
}

func (c *ClockSink) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = c.position()
	c.playing = false
}

func (c *ClockSink) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.playing
}

func (c *ClockSink) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

func (c *ClockSink) SetVolume(v float64) {
	c.mu.Lock()
	c.volume = v
	c.mu.Unlock()
}

// Muted and Volume expose the last applied settings.
func (c *ClockSink) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *ClockSink) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}
