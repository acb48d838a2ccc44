package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/logging"
)

// SinkFactory returns a fresh pair of sinks for one session.
type SinkFactory func() (video, audio MediaSink)

// Registry runs one Driver per open editing session. Its Attach method is
// an editor.AttachFunc.
type Registry struct {
	ctx      context.Context
	sinks    SinkFactory
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	drivers map[string]*Driver
}

// NewRegistry starts drivers under ctx. A nil factory uses clock sinks
// that load in loadLatency.
func NewRegistry(ctx context.Context, sinks SinkFactory, interval time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	if sinks == nil {
		sinks = func() (MediaSink, MediaSink) {
			return NewClockSink(loadLatency), NewClockSink(loadLatency)
		}
	}
	return &Registry{
		ctx:      ctx,
		sinks:    sinks,
		interval: interval,
		logger:   logger,
		drivers:  make(map[string]*Driver),
	}
}

const loadLatency = 50 * time.Millisecond

func (r *Registry) Attach(s *editor.Session) func() {
	video, audio := r.sinks()
	d := NewDriver(s, video, audio, logging.WithCampaignID(r.logger, s.CampaignID()))

	ctx, cancel := context.WithCancel(r.ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx, r.interval)
	}()

	r.mu.Lock()
	r.drivers[s.CampaignID()] = d
	r.mu.Unlock()

	return func() {
		cancel()
		<-done
		r.mu.Lock()
		if r.drivers[s.CampaignID()] == d {
			delete(r.drivers, s.CampaignID())
		}
		r.mu.Unlock()
	}
}

// Status reports the driver of a campaign's session, if one is open.
func (r *Registry) Status(campaignID string) (Status, bool) {
	r.mu.Lock()
	d, ok := r.drivers[campaignID]
	r.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return d.Status(), true
}
