package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
)

// PlatformResultRepository keeps one row per publish attempt per platform.
type PlatformResultRepository interface {
	Create(ctx context.Context, tx *sql.Tx, result *models.PlatformResult) (int64, error)
	ListByPostID(ctx context.Context, postID string) ([]models.PlatformResult, error)
	ListByPostIDs(ctx context.Context, postIDs []string) (map[string][]models.PlatformResult, error)
	SucceededPlatforms(ctx context.Context, postID string) ([]string, error)
}

type platformResultRepository struct {
	db *sql.DB
}

func NewPlatformResultRepository(db *sql.DB) PlatformResultRepository {
	return &platformResultRepository{db: db}
}

const resultColumns = `id, post_id, platform, status, external_id, link, error_code, detail, created_at`

func (r *platformResultRepository) Create(ctx context.Context, tx *sql.Tx, result *models.PlatformResult) (int64, error) {
	query := `
		INSERT INTO platform_results (post_id, platform, status, external_id, link, error_code, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := conn(r.db, tx).QueryRowContext(ctx, query,
		result.PostID,
		result.Platform,
		result.Status,
		result.ExternalID,
		result.Link,
		result.ErrorCode,
		result.Detail,
	).Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return result.ID, nil
}

func (r *platformResultRepository) ListByPostID(ctx context.Context, postID string) ([]models.PlatformResult, error) {
	query := `SELECT ` + resultColumns + ` FROM platform_results WHERE post_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var results []models.PlatformResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *platformResultRepository) ListByPostIDs(ctx context.Context, postIDs []string) (map[string][]models.PlatformResult, error) {
	byPost := make(map[string][]models.PlatformResult, len(postIDs))
	if len(postIDs) == 0 {
		return byPost, nil
	}

	query := `SELECT ` + resultColumns + ` FROM platform_results WHERE post_id = ANY($1) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(postIDs))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		byPost[res.PostID] = append(byPost[res.PostID], res)
	}
	return byPost, rows.Err()
}

func (r *platformResultRepository) SucceededPlatforms(ctx context.Context, postID string) ([]string, error) {
	query := `SELECT DISTINCT platform FROM platform_results WHERE post_id = $1 AND status = $2`
	rows, err := r.db.QueryContext(ctx, query, postID, models.ResultStatusSuccess)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var platforms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

func scanResult(row scanner) (models.PlatformResult, error) {
	var res models.PlatformResult
	err := row.Scan(&res.ID, &res.PostID, &res.Platform, &res.Status, &res.ExternalID, &res.Link,
		&res.ErrorCode, &res.Detail, &res.CreatedAt)
	return res, err
}
