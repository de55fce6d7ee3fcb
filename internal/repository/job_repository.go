package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// JobRepository is the durable side of the scheduler. Every state change is a
// single conditional UPDATE guarded by the job version, so a stale task or a
// concurrent writer matches zero rows and gets nil back.
type JobRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	Reschedule(ctx context.Context, id string, version int, runAt time.Time) (*models.Job, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
	Claim(ctx context.Context, id string, version int, workerID string) (*models.Job, error)
	MarkCompleted(ctx context.Context, id string, version int) error
	MarkFailed(ctx context.Context, id string, version int, lastErr string) error
	Retry(ctx context.Context, id string, version int, runAt time.Time, lastErr string) (*models.Job, error)
	ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error)
	ListPending(ctx context.Context, limit int) ([]*models.Job, error)
	ListFailed(ctx context.Context, limit int) ([]*models.Job, error)
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, type, payload, run_at, status, attempts, max_attempts, version, last_error, locked_by, locked_at, created_at, updated_at`

func (r *jobRepository) Insert(ctx context.Context, tx *sql.Tx, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, type, payload, run_at, status, attempts, max_attempts, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := conn(r.db, tx).QueryRowContext(ctx, query,
		job.ID,
		job.Type,
		[]byte(job.Payload),
		job.RunAt,
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.Version,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

func (r *jobRepository) Reschedule(ctx context.Context, id string, version int, runAt time.Time) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET run_at = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3 AND status = 'pending'
		RETURNING ` + jobColumns
	return r.queryOne(ctx, query, runAt, id, version)
}

func (r *jobRepository) Cancel(ctx context.Context, id string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + jobColumns
	return r.queryOne(ctx, query, id)
}

// Claim moves a pending job to running. Only the task carrying the current
// version can claim it.
func (r *jobRepository) Claim(ctx context.Context, id string, version int, workerID string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'running', attempts = attempts + 1, locked_by = $1, locked_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND version = $3 AND status = 'pending'
		RETURNING ` + jobColumns
	return r.queryOne(ctx, query, workerID, id, version)
}

func (r *jobRepository) MarkCompleted(ctx context.Context, id string, version int) error {
	query := `
		UPDATE jobs
		SET status = 'completed', last_error = '', updated_at = NOW()
		WHERE id = $1 AND version = $2 AND status = 'running'
	`
	return r.execGuarded(ctx, query, id, version)
}

func (r *jobRepository) MarkFailed(ctx context.Context, id string, version int, lastErr string) error {
	query := `
		UPDATE jobs
		SET status = 'failed', last_error = $1, updated_at = NOW()
		WHERE id = $2 AND version = $3 AND status = 'running'
	`
	return r.execGuarded(ctx, query, lastErr, id, version)
}

// Retry puts a running job back to pending under a new version.
func (r *jobRepository) Retry(ctx context.Context, id string, version int, runAt time.Time, lastErr string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'pending', run_at = $1, last_error = $2, version = version + 1,
			locked_by = '', locked_at = NULL, updated_at = NOW()
		WHERE id = $3 AND version = $4 AND status = 'running'
		RETURNING ` + jobColumns
	return r.queryOne(ctx, query, runAt, lastErr, id, version)
}

// ReleaseStale returns jobs stuck in running since before olderThan to
// pending, for example after a worker crashed mid-publish.
func (r *jobRepository) ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET status = 'pending', version = version + 1, locked_by = '', locked_at = NULL, updated_at = NOW()
		WHERE status = 'running' AND locked_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func (r *jobRepository) ListPending(ctx context.Context, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'pending' ORDER BY run_at LIMIT $1`
	return r.queryMany(ctx, query, limit)
}

func (r *jobRepository) ListFailed(ctx context.Context, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'failed' ORDER BY updated_at DESC LIMIT $1`
	return r.queryMany(ctx, query, limit)
}

func (r *jobRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.Job, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return job, nil
}

func (r *jobRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*models.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *jobRepository) execGuarded(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func scanJob(row scanner) (*models.Job, error) {
	var job models.Job
	var payload []byte
	var lockedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Type, &payload, &job.RunAt, &job.Status, &job.Attempts, &job.MaxAttempts,
		&job.Version, &job.LastError, &job.LockedBy, &lockedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Payload = payload
	if lockedAt.Valid {
		t := lockedAt.Time
		job.LockedAt = &t
	}
	return &job, nil
}
