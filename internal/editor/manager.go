package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tourneyreel/studio/internal/logging"
)

// DraftStore loads and deletes persisted drafts. Load returns nil, nil
// when the campaign has no draft.
type DraftStore interface {
	Load(ctx context.Context, campaignID string) (*Snapshot, error)
	Delete(ctx context.Context, campaignID string) error
}

// DraftSaver persists drafts in the background.
type DraftSaver interface {
	Schedule(campaignID string, snap Snapshot)
	Cancel(campaignID string)
}

// AttachFunc is called once for every new session, e.g. to start its
// playback loop. The returned func is called when the session goes away.
type AttachFunc func(s *Session) (detach func())

type ManagerConfig struct {
	Resolver Resolver
	Drafts   DraftStore
	Saver    DraftSaver
	Attach   AttachFunc
	Logger   *slog.Logger
}

// Manager owns one Session per campaign.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session *Session
	detach  func()
}

func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "sessions"),
		sessions: make(map[string]*entry),
	}
}

// Open returns the campaign's session, creating it and restoring its draft
// on first use. restored reports whether a draft was loaded.
func (m *Manager) Open(ctx context.Context, campaignID string) (s *Session, restored bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[campaignID]; ok {
		return e.session, false, nil
	}

	var opts []SessionOption
	if m.cfg.Saver != nil {
		opts = append(opts, WithChangeFunc(m.cfg.Saver.Schedule))
	}
	s = NewSession(campaignID, m.cfg.Resolver, m.cfg.Logger, opts...)

	if m.cfg.Drafts != nil {
		snap, err := m.cfg.Drafts.Load(ctx, campaignID)
		if err != nil {
			// A broken draft must not block editing.
			logging.WithCampaignID(m.logger, campaignID).Warn("failed to load draft", "error", err)
		} else if snap != nil {
			s.Restore(*snap)
			restored = true
		}
	}

	e := &entry{session: s}
	if m.cfg.Attach != nil {
		e.detach = m.cfg.Attach(s)
	}
	m.sessions[campaignID] = e
	return s, restored, nil
}

// Get returns an already open session.
func (m *Manager) Get(campaignID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[campaignID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Discard throws the campaign's editing state away: the open session, any
// pending save and the stored draft. Used for "start fresh" and after a
// successful export.
func (m *Manager) Discard(ctx context.Context, campaignID string) error {
	m.mu.Lock()
	e, ok := m.sessions[campaignID]
	delete(m.sessions, campaignID)
	m.mu.Unlock()

	if ok {
		e.close()
	}
	return m.dropDraft(ctx, campaignID)
}

// DiscardIfUnchanged is Discard for a timeline read with Session.Current
// at queuedAt. An open session must still have the same edit count.
// Without one, the stored draft must not have been saved after queuedAt.
// It reports whether anything was discarded.
func (m *Manager) DiscardIfUnchanged(ctx context.Context, campaignID string, edits uint64, queuedAt time.Time) (bool, error) {
	m.mu.Lock()
	e, ok := m.sessions[campaignID]
	if ok {
		if !e.session.closeAt(edits) {
			m.mu.Unlock()
			return false, nil
		}
		delete(m.sessions, campaignID)
	}
	m.mu.Unlock()

	if ok {
		if e.detach != nil {
			e.detach()
		}
	} else if m.cfg.Drafts != nil {
		snap, err := m.cfg.Drafts.Load(ctx, campaignID)
		if err != nil {
			return false, fmt.Errorf("failed to load draft: %w", err)
		}
		if snap != nil && snap.SavedAt.After(queuedAt) {
			return false, nil
		}
	}
	return true, m.dropDraft(ctx, campaignID)
}

func (m *Manager) dropDraft(ctx context.Context, campaignID string) error {
	if m.cfg.Saver != nil {
		m.cfg.Saver.Cancel(campaignID)
	}
	if m.cfg.Drafts != nil {
		if err := m.cfg.Drafts.Delete(ctx, campaignID); err != nil {
			return fmt.Errorf("failed to delete draft: %w", err)
		}
	}
	logging.WithCampaignID(m.logger, campaignID).Info("editing session discarded")
	return nil
}

// Campaigns lists campaigns with an open session.
func (m *Manager) Campaigns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every session. Drafts are kept.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.close()
	}
}

func (e *entry) close() {
	e.session.Close()
	if e.detach != nil {
		e.detach()
	}
}
