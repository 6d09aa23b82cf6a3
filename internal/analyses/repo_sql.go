package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ballet-compare/internal/shared/storage/db"
)

// SQLRepo implements Repo over database/sql for Postgres and SQLite.
type SQLRepo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

const analysisColumns = `id, status, score, basic_feedback, commentary,
       ideal_file_name, ideal_video_key, ideal_size, ideal_mime_type,
       user_file_name, user_video_key, user_size, user_mime_type,
       dispatch_mode, error_message, started_at, completed_at, created_at, updated_at`

// Create inserts a new analysis.
func (r *SQLRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO analyses (
	id, status, ideal_file_name, ideal_video_key, ideal_size, ideal_mime_type,
	user_file_name, user_video_key, user_size, user_mime_type,
	dispatch_mode, created_at, updated_at
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	updatedAt := analysis.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = analysis.CreatedAt
	}
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(query),
		analysis.ID,
		analysis.Status,
		analysis.IdealVideo.FileName,
		analysis.IdealVideo.StorageKey,
		analysis.IdealVideo.SizeBytes,
		analysis.IdealVideo.MimeType,
		analysis.UserVideo.FileName,
		analysis.UserVideo.StorageKey,
		analysis.UserVideo.SizeBytes,
		analysis.UserVideo.MimeType,
		analysis.DispatchMode,
		analysis.CreatedAt,
		updatedAt,
	)
	return err
}

// GetByID returns an analysis by ID.
func (r *SQLRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	query := `SELECT ` + analysisColumns + `
FROM analyses
WHERE id = ?
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, r.Dialect.Rebind(query), analysisID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

func (r *SQLRepo) UpdateStatus(ctx context.Context, analysisID, status string, at time.Time) error {
	const query = `
UPDATE analyses
SET status = ?,
    started_at = CASE WHEN CAST(? AS TEXT) = 'processing' AND started_at IS NULL THEN ? ELSE started_at END,
    updated_at = ?
WHERE id = ?`
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(query), status, status, at, at, analysisID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *SQLRepo) Complete(ctx context.Context, analysisID string, result Result, completedAt time.Time) error {
	basic := result.Feedback.Basic
	if basic == nil {
		basic = []string{}
	}
	payload, err := json.Marshal(basic)
	if err != nil {
		return fmt.Errorf("marshal basic feedback: %w", err)
	}
	const query = `
UPDATE analyses
SET status = ?, score = ?, basic_feedback = ?, commentary = ?,
    error_message = NULL, completed_at = ?, updated_at = ?
WHERE id = ?`
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(query),
		StatusCompleted,
		result.Score,
		string(payload),
		result.Feedback.ChatGPT,
		completedAt,
		completedAt,
		analysisID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *SQLRepo) Fail(ctx context.Context, analysisID, status, message string, completedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
WHERE id = ?`
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(query), status, message, completedAt, completedAt, analysisID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// ListRecent returns analyses newest first.
func (r *SQLRepo) ListRecent(ctx context.Context, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + analysisColumns + `
FROM analyses
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var score sql.NullFloat64
	var basicFeedback sql.NullString
	var commentary sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.Status,
		&score,
		&basicFeedback,
		&commentary,
		&a.IdealVideo.FileName,
		&a.IdealVideo.StorageKey,
		&a.IdealVideo.SizeBytes,
		&a.IdealVideo.MimeType,
		&a.UserVideo.FileName,
		&a.UserVideo.StorageKey,
		&a.UserVideo.SizeBytes,
		&a.UserVideo.MimeType,
		&a.DispatchMode,
		&errorMessage,
		&startedAt,
		&completedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return Analysis{}, err
	}
	if score.Valid {
		result := Result{Score: score.Float64, Feedback: Feedback{Basic: []string{}}}
		if basicFeedback.Valid && basicFeedback.String != "" {
			if err := json.Unmarshal([]byte(basicFeedback.String), &result.Feedback.Basic); err != nil {
				return Analysis{}, fmt.Errorf("decode basic feedback: %w", err)
			}
		}
		if commentary.Valid {
			result.Feedback.ChatGPT = commentary.String
		}
		a.Result = &result
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		a.ErrorMessage = &msg
	}
	if startedAt.Valid {
		t := startedAt.Time
		a.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return a, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
