package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tourneyreel/studio/internal/export"
)

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit int) ([]*Job, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*Job, error)
	ListPending(ctx context.Context) ([]*Job, error)
	// Claim moves a pending job to running. It reports false if the job
	// was no longer pending.
	Claim(ctx context.Context, id string) (bool, error)
	UpdateProgress(ctx context.Context, id string, p export.Progress) error
	Complete(ctx context.Context, id, outputURL string) error
	Fail(ctx context.Context, id, errorMsg string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, campaign_id, title, format, status, phase, progress, message, error, output_url, request_json, session_version, created_at, updated_at`

func (r *SQLiteRepository) Create(ctx context.Context, j *Job) error {
	payload, err := json.Marshal(j.Request)
	if err != nil {
		return fmt.Errorf("failed to encode merge request: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO export_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.CampaignID, nullString(j.Title), j.Format, j.Status, string(j.Phase), j.Progress,
		nullString(j.Message), nullString(j.Error), nullString(j.OutputURL), string(payload),
		int64(j.SessionVersion), j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM export_jobs WHERE id = ?", id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, "SELECT "+jobColumns+" FROM export_jobs ORDER BY created_at DESC, id LIMIT ?", limit)
}

func (r *SQLiteRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*Job, error) {
	return r.list(ctx, "SELECT "+jobColumns+" FROM export_jobs WHERE campaign_id = ? ORDER BY created_at DESC, id", campaignID)
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]*Job, error) {
	return r.list(ctx, "SELECT "+jobColumns+" FROM export_jobs WHERE status = 'pending' ORDER BY created_at ASC, rowid ASC")
}

func (r *SQLiteRepository) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs SET status = 'running', phase = ?, progress = 0, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, string(export.PhaseLoading), now(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *SQLiteRepository) UpdateProgress(ctx context.Context, id string, p export.Progress) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs SET phase = ?, progress = ?, message = ?, updated_at = ? WHERE id = ?
	`, string(p.Phase), p.Percent, nullString(p.Message), now(), id)
	return err
}

func (r *SQLiteRepository) Complete(ctx context.Context, id, outputURL string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = 'completed', phase = ?, progress = 100, output_url = ?, error = NULL, updated_at = ?
		WHERE id = ?
	`, string(export.PhaseDone), outputURL, now(), id)
	return err
}

func (r *SQLiteRepository) Fail(ctx context.Context, id, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = 'failed', phase = ?, error = ?, message = ?, updated_at = ?
		WHERE id = ?
	`, string(export.PhaseError), errorMsg, errorMsg, now(), id)
	return err
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var title, message, errMsg, outputURL sql.NullString
	var phase, payload, createdAt, updatedAt string
	var version int64

	err := s.Scan(&j.ID, &j.CampaignID, &title, &j.Format, &j.Status, &phase, &j.Progress,
		&message, &errMsg, &outputURL, &payload, &version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &j.Request); err != nil {
		return nil, fmt.Errorf("corrupt request for job %s: %w", j.ID, err)
	}
	j.Title = title.String
	j.Phase = export.Phase(phase)
	j.Message = message.String
	j.Error = errMsg.String
	j.OutputURL = outputURL.String
	j.SessionVersion = uint64(version)
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
