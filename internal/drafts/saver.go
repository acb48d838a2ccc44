package drafts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tourneyreel/studio/internal/editor"
	"github.com/tourneyreel/studio/internal/logging"
)

const (
	DefaultDebounce = 750 * time.Millisecond

	saveTimeout = 5 * time.Second
)

// Writer is the persistence side of a Saver.
type Writer interface {
	Save(ctx context.Context, campaignID string, snap editor.Snapshot) error
}

// Saver coalesces bursts of changes into one write per campaign. Only the
// latest snapshot of a burst is written. Failures are logged and dropped;
// the next change schedules a fresh attempt.
type Saver struct {
	w        Writer
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingSave
	gen     uint64

	// held for the duration of every write
	writeMu sync.Mutex
}

type pendingSave struct {
	snap  editor.Snapshot
	timer *time.Timer
	gen   uint64
}

func NewSaver(w Writer, debounce time.Duration, logger *slog.Logger) *Saver {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Saver{
		w:        w,
		debounce: debounce,
		logger:   logging.WithComponent(logger, "drafts"),
		pending:  make(map[string]*pendingSave),
	}
}

// Schedule queues snap for campaignID and restarts its debounce timer. It
// never blocks on I/O.
func (s *Saver) Schedule(campaignID string, snap editor.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	gen := s.gen
	if p, ok := s.pending[campaignID]; ok {
		p.timer.Stop()
	}
	s.pending[campaignID] = &pendingSave{
		snap:  snap,
		gen:   gen,
		timer: time.AfterFunc(s.debounce, func() { s.fire(campaignID, gen) }),
	}
}

// Cancel drops any queued save for campaignID and waits for a write that
// is already running, so a following delete is final.
func (s *Saver) Cancel(campaignID string) {
	s.mu.Lock()
	if p, ok := s.pending[campaignID]; ok {
		p.timer.Stop()
		delete(s.pending, campaignID)
	}
	s.mu.Unlock()

	s.writeMu.Lock()
	s.writeMu.Unlock()
}

// Pending reports how many campaigns have a queued save.
func (s *Saver) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes every queued snapshot now. Used on shutdown.
func (s *Saver) Flush(ctx context.Context) {
	s.mu.Lock()
	queued := s.pending
	s.pending = make(map[string]*pendingSave)
	for _, p := range queued {
		p.timer.Stop()
	}
	s.mu.Unlock()

	for id, p := range queued {
		s.write(ctx, id, p.snap)
	}
}

func (s *Saver) fire(campaignID string, gen uint64) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	p, ok := s.pending[campaignID]
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, campaignID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	s.save(ctx, campaignID, p.snap)
}

func (s *Saver) write(ctx context.Context, campaignID string, snap editor.Snapshot) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.save(ctx, campaignID, snap)
}

func (s *Saver) save(ctx context.Context, campaignID string, snap editor.Snapshot) {
	if err := s.w.Save(ctx, campaignID, snap); err != nil {
		logging.WithCampaignID(s.logger, campaignID).Warn("failed to save draft", "error", err)
		return
	}
	s.logger.Debug("draft saved", "campaign_id", campaignID, "clips", len(snap.Clips), "audio_tracks", len(snap.AudioTracks))
}
