// Package drafts persists editing sessions between runs, one draft per
// campaign.
package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tourneyreel/studio/internal/editor"
)

// Summary describes a stored draft without decoding it.
type Summary struct {
	CampaignID string    `json:"campaign_id"`
	SavedAt    time.Time `json:"saved_at"`
	Bytes      int       `json:"bytes"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Load returns the campaign's draft, or nil when there is none.
func (s *Store) Load(ctx context.Context, campaignID string) (*editor.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM drafts WHERE campaign_id = ?", campaignID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read draft: %w", err)
	}

	var snap editor.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	return &snap, nil
}

// Save replaces the campaign's draft.
func (s *Store) Save(ctx context.Context, campaignID string, snap editor.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (campaign_id, payload, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(campaign_id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
	`, campaignID, string(payload), savedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write draft: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, campaignID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM drafts WHERE campaign_id = ?", campaignID)
	return err
}

// List returns all stored drafts, most recent first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT campaign_id, saved_at, length(payload)
		FROM drafts ORDER BY saved_at DESC, campaign_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var savedAt string
		if err := rows.Scan(&sum.CampaignID, &savedAt, &sum.Bytes); err != nil {
			return nil, err
		}
		sum.SavedAt, _ = time.Parse(time.RFC3339, savedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}
