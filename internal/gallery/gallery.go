// Package gallery records the assets an export produced, per campaign.
package gallery

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("asset not found")

const (
	KindVideo = "video"
	KindEDL   = "edl"
)

type Asset struct {
	ID              string    `json:"id"`
	CampaignID      string    `json:"campaign_id"`
	JobID           string    `json:"job_id,omitempty"`
	Kind            string    `json:"kind"`
	URL             string    `json:"url"`
	Filename        string    `json:"filename"`
	DurationSeconds float64   `json:"duration_seconds"`
	SizeBytes       int64     `json:"size_bytes"`
	CreatedAt       time.Time `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, a *Asset) error
	Get(ctx context.Context, id string) (*Asset, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*Asset, error)
	ListByJob(ctx context.Context, jobID string) ([]*Asset, error)
	Delete(ctx context.Context, id string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, a *Asset) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (id, campaign_id, job_id, kind, url, filename, duration_seconds, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.CampaignID, nullString(a.JobID), a.Kind, a.URL, a.Filename, a.DurationSeconds, a.SizeBytes,
		a.CreatedAt.Format(time.RFC3339))
	return err
}

const assetColumns = "id, campaign_id, job_id, kind, url, filename, duration_seconds, size_bytes, created_at"

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Asset, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE id = ?", id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *SQLiteRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*Asset, error) {
	return r.list(ctx, "SELECT "+assetColumns+" FROM assets WHERE campaign_id = ? ORDER BY created_at DESC, id", campaignID)
}

func (r *SQLiteRepository) ListByJob(ctx context.Context, jobID string) ([]*Asset, error) {
	return r.list(ctx, "SELECT "+assetColumns+" FROM assets WHERE job_id = ? ORDER BY kind DESC, id", jobID)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*Asset, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []*Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(s scanner) (*Asset, error) {
	var a Asset
	var jobID sql.NullString
	var createdAt string
	if err := s.Scan(&a.ID, &a.CampaignID, &jobID, &a.Kind, &a.URL, &a.Filename, &a.DurationSeconds, &a.SizeBytes, &createdAt); err != nil {
		return nil, err
	}
	a.JobID = jobID.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
