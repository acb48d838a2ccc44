// Package posts stores social posts scheduled for exported campaign
// assets.
package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("scheduled post not found")

const (
	StatusScheduled = "scheduled"
	StatusPublished = "published"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

type Post struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	CampaignID   string     `json:"campaign_id,omitempty"`
	ContentType  string     `json:"content_type"`
	ContentID    string     `json:"content_id,omitempty"`
	ContentURL   string     `json:"content_url,omitempty"`
	Caption      string     `json:"caption,omitempty"`
	Platform     string     `json:"platform"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Timezone     string     `json:"timezone"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CreateInput is the payload for a new post.
type CreateInput struct {
	UserID      string    `json:"user_id" validate:"required"`
	CampaignID  string    `json:"campaign_id"`
	ContentType string    `json:"content_type" validate:"required,oneof=video image edl"`
	ContentID   string    `json:"content_id"`
	ContentURL  string    `json:"content_url" validate:"omitempty,url"`
	Caption     string    `json:"caption" validate:"max=2200"`
	Platform    string    `json:"platform" validate:"required,oneof=tiktok instagram youtube twitter facebook"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Timezone    string    `json:"timezone" validate:"omitempty,timezone"`
}

// UpdateInput is a partial update; nil fields keep their stored value.
type UpdateInput struct {
	ContentURL   *string    `json:"content_url" validate:"omitempty,url"`
	Caption      *string    `json:"caption" validate:"omitempty,max=2200"`
	Platform     *string    `json:"platform" validate:"omitempty,oneof=tiktok instagram youtube twitter facebook"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
	Timezone     *string    `json:"timezone" validate:"omitempty,timezone"`
	Status       *string    `json:"status" validate:"omitempty,oneof=scheduled published failed cancelled"`
	ErrorMessage *string    `json:"error_message"`
	PublishedAt  *time.Time `json:"published_at"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status string
	From   time.Time
	To     time.Time
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid post: " + strings.Join(e.Fields, ", ")
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return ve
}

func (in CreateInput) Validate() error { return check(in) }

func (in UpdateInput) Validate() error { return check(in) }

type Repository interface {
	List(ctx context.Context, userID string, f Filter) ([]*Post, error)
	Get(ctx context.Context, userID, id string) (*Post, error)
	Create(ctx context.Context, in CreateInput) (*Post, error)
	Update(ctx context.Context, userID, id string, in UpdateInput) (*Post, error)
	Delete(ctx context.Context, userID, id string) error
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const postColumns = `id, user_id, campaign_id, content_type, content_id, content_url, caption, platform,
	scheduled_at, timezone, status, error_message, published_at, created_at, updated_at`

func (r *SQLiteRepository) List(ctx context.Context, userID string, f Filter) ([]*Post, error) {
	query := "SELECT " + postColumns + " FROM scheduled_posts WHERE user_id = ?"
	args := []any{userID}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		query += " AND scheduled_at >= ?"
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		query += " AND scheduled_at <= ?"
		args = append(args, formatTime(f.To))
	}
	query += " ORDER BY scheduled_at ASC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *SQLiteRepository) Get(ctx context.Context, userID, id string) (*Post, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+postColumns+" FROM scheduled_posts WHERE id = ? AND user_id = ?", id, userID)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *SQLiteRepository) Create(ctx context.Context, in CreateInput) (*Post, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}
	now := formatTime(r.now())
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_posts (id, user_id, campaign_id, content_type, content_id, content_url, caption,
			platform, scheduled_at, timezone, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, in.UserID, nullString(in.CampaignID), in.ContentType, nullString(in.ContentID), nullString(in.ContentURL),
		nullString(in.Caption), in.Platform, formatTime(in.ScheduledAt), tz, StatusScheduled, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert post: %w", err)
	}
	return r.Get(ctx, in.UserID, id)
}

// Update applies the non-nil fields of in. Fields left nil keep their
// stored values.
func (r *SQLiteRepository) Update(ctx context.Context, userID, id string, in UpdateInput) (*Post, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_posts SET
			content_url = COALESCE(?, content_url),
			caption = COALESCE(?, caption),
			platform = COALESCE(?, platform),
			scheduled_at = COALESCE(?, scheduled_at),
			timezone = COALESCE(?, timezone),
			status = COALESCE(?, status),
			error_message = COALESCE(?, error_message),
			published_at = COALESCE(?, published_at),
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`, optString(in.ContentURL), optString(in.Caption), optString(in.Platform), optTime(in.ScheduledAt),
		optString(in.Timezone), optString(in.Status), optString(in.ErrorMessage), optTime(in.PublishedAt),
		formatTime(r.now()), id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, userID, id)
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM scheduled_posts WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (*Post, error) {
	var p Post
	var campaignID, contentID, contentURL, caption, errMsg, publishedAt sql.NullString
	var scheduledAt, createdAt, updatedAt string

	err := s.Scan(&p.ID, &p.UserID, &campaignID, &p.ContentType, &contentID, &contentURL, &caption, &p.Platform,
		&scheduledAt, &p.Timezone, &p.Status, &errMsg, &publishedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.CampaignID = campaignID.String
	p.ContentID = contentID.String
	p.ContentURL = contentURL.String
	p.Caption = caption.String
	p.ErrorMessage = errMsg.String
	p.ScheduledAt, _ = time.Parse(time.RFC3339, scheduledAt)
	if publishedAt.Valid {
		t, err := time.Parse(time.RFC3339, publishedAt.String)
		if err == nil {
			p.PublishedAt = &t
		}
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func optString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func optTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
