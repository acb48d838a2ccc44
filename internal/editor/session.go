package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tourneyreel/studio/internal/logging"
)

// Resolver supplies source durations. It must not fail; unknown durations
// come back as fallbacks.
type Resolver interface {
	ResolveVideo(ctx context.Context, url string) float64
	ResolveAudio(ctx context.Context, url string) float64
}

// ChangeFunc observes settled state changes of a session.
type ChangeFunc func(campaignID string, snap Snapshot)

// Session serializes every mutation of one campaign's timeline. Each change
// replaces the whole state value under the lock.
type Session struct {
	campaignID string
	resolver   Resolver
	onChange   ChangeFunc
	newID      func() string
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	state   State
	drag    *DragSession
	closed  bool
	version uint64
	edits   uint64
	pending sync.WaitGroup
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithChangeFunc registers fn for settled changes. Frame advances from the
// playback driver are not reported. fn runs with the session locked.
func WithChangeFunc(fn ChangeFunc) SessionOption {
	return func(s *Session) { s.onChange = fn }
}

// WithIDFunc overrides id generation.
func WithIDFunc(fn func() string) SessionOption {
	return func(s *Session) { s.newID = fn }
}

func NewSession(campaignID string, resolver Resolver, logger *slog.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Session{
		campaignID: campaignID,
		resolver:   resolver,
		newID:      uuid.NewString,
		now:        time.Now,
		logger:     logging.WithCampaignID(logging.WithComponent(logger, "editor"), campaignID),
		state:      NewState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) CampaignID() string {
	return s.campaignID
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Current returns a copy of the state together with its edit count.
func (s *Session) Current() (State, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone(), s.edits
}

// Edits counts applied changes to the timeline. Playhead and selection
// changes are not counted.
func (s *Session) Edits() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edits
}

// Version increases on every applied change.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Dispatch applies a to the session. Missing ids on actions that create
// entities are generated here so Apply stays deterministic.
func (s *Session) Dispatch(a Action) (State, error) {
	if sp, ok := a.(SplitAtPlayhead); ok && sp.NewID == "" {
		sp.NewID = s.newID()
		a = sp
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, ErrSessionClosed
	}
	next, err := Apply(s.state, a)
	if err != nil {
		cur := s.state.clone()
		s.mu.Unlock()
		return cur, err
	}
	s.state = next
	s.version++
	if editsTimeline(a) {
		s.edits++
	}
	// Reported under the lock so a concurrent Close cannot be overtaken by
	// a late save. ChangeFunc must not block.
	if s.onChange != nil && a.Type() != (Advance{}).Type() {
		s.onChange(s.campaignID, next.Snapshot(s.now()))
	}
	out := next.clone()
	s.mu.Unlock()
	return out, nil
}

// AddClip resolves the duration of url out of band and appends the clip
// once it is known. The returned channel is closed after the clip has been
// merged (or dropped because the session closed).
func (s *Session) AddClip(ctx context.Context, url string) (string, <-chan struct{}) {
	id := s.newID()
	return id, s.resolveThen(ctx, func(ctx context.Context) Action {
		return AddClip{ID: id, SourceURL: url, Duration: s.resolver.ResolveVideo(ctx, url)}
	})
}

// AddAudio is AddClip for audio tracks.
func (s *Session) AddAudio(ctx context.Context, url string) (string, <-chan struct{}) {
	id := s.newID()
	return id, s.resolveThen(ctx, func(ctx context.Context) Action {
		return AddAudioTrack{ID: id, SourceURL: url, Duration: s.resolver.ResolveAudio(ctx, url)}
	})
}

func (s *Session) resolveThen(ctx context.Context, build func(context.Context) Action) <-chan struct{} {
	done := make(chan struct{})
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer close(done)
		a := build(ctx)
		if _, err := s.Dispatch(a); err != nil {
			s.logger.Warn("dropping resolved media", "action", a.Type(), "error", err)
		}
	}()
	return done
}

// Wait blocks until every pending add has been merged.
func (s *Session) Wait() {
	s.pending.Wait()
}

// BeginDrag starts a gesture. A playhead drag stops playback first so the
// frame loop and the drag never both move the playhead.
func (s *Session) BeginDrag(kind DragKind, targetID string, x float64) (State, error) {
	s.mu.Lock()
	cur := s.state
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return State{}, ErrSessionClosed
	}

	if kind == DragPlayhead && cur.IsPlaying {
		var err error
		if cur, err = s.Dispatch(Stop{}); err != nil {
			return cur, err
		}
	}

	d, err := BeginDrag(cur, kind, targetID, x)
	if err != nil {
		return cur, err
	}
	s.mu.Lock()
	s.drag = d
	s.mu.Unlock()
	return cur, nil
}

// UpdateDrag applies the gesture at pointer position x.
func (s *Session) UpdateDrag(x float64) (State, error) {
	s.mu.Lock()
	d := s.drag
	s.mu.Unlock()
	if d == nil {
		return s.State(), ErrNoDrag
	}
	return s.Dispatch(d.Update(x))
}

// EndDrag releases the gesture. Ending without a drag is harmless.
func (s *Session) EndDrag() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drag = nil
	return s.state.clone()
}

// Dragging returns the gesture in progress, if any.
func (s *Session) Dragging() *DragSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return nil
	}
	d := *s.drag
	return &d
}

// Snapshot returns the persistable draft.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot(s.now())
}

// Restore replaces the state with a saved draft. Playback is stopped and
// derived fields are recomputed.
func (s *Session) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = FromSnapshot(snap)
	s.drag = nil
	s.version++
	s.edits++
}

// Close rejects further changes, including adds still resolving.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.drag = nil
	s.mu.Unlock()
}

// closeAt closes the session only if its edit count is still n.
func (s *Session) closeAt(n uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.edits != n {
		return false
	}
	s.closed = true
	s.drag = nil
	return true
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
