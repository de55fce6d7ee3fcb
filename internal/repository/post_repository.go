package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id string) (*models.Post, error)
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) error
	GetByUserID(ctx context.Context, userID string) ([]*models.Post, error)
	Update(ctx context.Context, tx *sql.Tx, post *models.Post) error
	UpdatePostStatus(ctx context.Context, status string, postID string) error
	SetJobID(ctx context.Context, tx *sql.Tx, postID, jobID string) error
	CheckByUserID(ctx context.Context, postID, userID string) (bool, error)
	Remove(ctx context.Context, tx *sql.Tx, id string) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, type, caption, media, platforms, posted_at, job_id, status, created_at, updated_at`

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	query := `
		INSERT INTO posts (id, user_id, type, caption, media, platforms, posted_at, job_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := conn(r.db, tx).QueryRowContext(ctx, query,
		post.ID,
		post.UserID,
		post.Type,
		post.Caption,
		pq.Array(post.Media),
		pq.Array(post.Platforms),
		post.PostedAt,
		nullString(post.JobID),
		post.Status,
	).Scan(&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID string) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY posted_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

// Update saves the user-editable fields: caption, posted_at and job_id.
func (r *postRepository) Update(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	query := `
		UPDATE posts
		SET caption = $1,
			posted_at = $2,
			job_id = $3,
			updated_at = $4
		WHERE id = $5
	`
	_, err := conn(r.db, tx).ExecContext(ctx, query, post.Caption, post.PostedAt, nullString(post.JobID), time.Now(), post.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) UpdatePostStatus(ctx context.Context, status string, postID string) error {
	query := `
		UPDATE posts
		SET status = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) SetJobID(ctx context.Context, tx *sql.Tx, postID, jobID string) error {
	query := `UPDATE posts SET job_id = $1, updated_at = $2 WHERE id = $3`
	_, err := conn(r.db, tx).ExecContext(ctx, query, nullString(jobID), time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID string) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) Remove(ctx context.Context, tx *sql.Tx, id string) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := conn(r.db, tx).ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func scanPost(row scanner) (*models.Post, error) {
	var post models.Post
	var jobID sql.NullString
	err := row.Scan(&post.ID, &post.UserID, &post.Type, &post.Caption, pq.Array(&post.Media), pq.Array(&post.Platforms),
		&post.PostedAt, &jobID, &post.Status, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	post.JobID = jobID.String
	return &post, nil
}
