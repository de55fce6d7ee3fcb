package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

const (
	DefaultRetryBaseDelay = 30 * time.Second
	DefaultRetryMaxDelay  = 30 * time.Minute
)

// PostRunner publishes the post a job refers to.
type PostRunner interface {
	ExecutePost(ctx context.Context, postID string) ([]models.PlatformResult, error)
}

type WorkerConfig struct {
	WorkerID       string
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

type Worker struct {
	jobs   repository.JobRepository
	queue  TaskQueue
	runner PostRunner
	cfg    WorkerConfig
	now    func() time.Time
}

func NewWorker(jobs repository.JobRepository, queue TaskQueue, runner PostRunner, cfg WorkerConfig) *Worker {
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = DefaultRetryMaxDelay
	}
	return &Worker{
		jobs:   jobs,
		queue:  queue,
		runner: runner,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Register installs one handler per job type.
func (w *Worker) Register(mux *asynq.ServeMux) {
	for _, t := range models.JobTypes {
		mux.HandleFunc(string(t), w.HandleTask)
	}
}

func (w *Worker) HandleTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("bad task payload: %v: %w", err, asynq.SkipRetry)
	}

	job, err := w.jobs.Claim(ctx, payload.JobID, payload.Version, w.cfg.WorkerID)
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", payload.JobID, err)
	}
	if job == nil {
		log.Printf("Skipping task %s: job was cancelled, rescheduled or already taken", TaskID(payload.JobID, payload.Version))
		return nil
	}

	log.Printf("Job %s (%s) started, attempt %d/%d", job.ID, job.Type, job.Attempts, job.MaxAttempts)

	var post models.JobPayload
	if err := json.Unmarshal(job.Payload, &post); err != nil {
		return w.fail(ctx, job, fmt.Errorf("bad job payload: %w", err))
	}

	results, err := w.runner.ExecutePost(ctx, post.PostID)
	retryable, failure := outcome(results, err)
	if failure == nil {
		if err := w.jobs.MarkCompleted(ctx, job.ID, job.Version); err != nil {
			slog.Info(err.Error())
			return err
		}
		log.Printf("Job %s completed", job.ID)
		return nil
	}

	if retryable && job.Attempts < job.MaxAttempts {
		return w.retry(ctx, job, failure)
	}
	return w.fail(ctx, job, failure)
}

func (w *Worker) retry(ctx context.Context, job *models.Job, cause error) error {
	delay := Backoff(job.Attempts, w.cfg.RetryBaseDelay, w.cfg.RetryMaxDelay)
	next, err := w.jobs.Retry(ctx, job.ID, job.Version, w.now().Add(delay), cause.Error())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if next == nil {
		return fmt.Errorf("job %s changed while scheduling a retry: %w", job.ID, repository.ErrConflict)
	}

	// the row is already pending; the reconciler enqueues it if this fails
	if err := w.queue.Enqueue(ctx, next); err != nil && !IsAlreadyQueued(err) {
		slog.Info(err.Error())
	}

	log.Printf("Job %s failed (%v), retrying in %s", job.ID, cause, delay)
	return nil
}

func (w *Worker) fail(ctx context.Context, job *models.Job, cause error) error {
	if err := w.jobs.MarkFailed(ctx, job.ID, job.Version, cause.Error()); err != nil {
		slog.Info(err.Error())
		return err
	}
	slog.Info(fmt.Sprintf("job %s failed after %d attempts: %v", job.ID, job.Attempts, cause))
	return fmt.Errorf("job %s failed: %v: %w", job.ID, cause, asynq.SkipRetry)
}

// outcome folds a publish run into a single error, or nil when every
// platform succeeded. The run is retryable when any failure is.
func outcome(results []models.PlatformResult, err error) (bool, error) {
	if err != nil {
		return models.IsRetryable(err), err
	}

	var msgs []string
	retryable := false
	for _, r := range results {
		if r.Status == models.ResultStatusSuccess {
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", r.Platform, r.Detail))
		retryable = retryable || r.Retryable
	}
	if len(msgs) == 0 {
		return false, nil
	}
	return retryable, errors.New(strings.Join(msgs, "; "))
}

// Backoff is the delay before retry number attempt: base doubled per
// attempt, capped at limit.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}

// NewServer builds the asynq server the worker handlers run in.
func NewServer(redisURI string, concurrency int, shutdownTimeout time.Duration) (*asynq.Server, error) {
	if redisURI == "" {
		return nil, models.NewInternalServerError("REDIS_URI is not set", nil)
	}
	opt, err := asynq.ParseRedisURI(redisURI)
	if err != nil {
		return nil, models.NewInternalServerError("invalid REDIS_URI", err)
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency:     concurrency,
		ShutdownTimeout: shutdownTimeout,
		Queues:          map[string]int{DefaultQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			slog.Error("task failed", "type", task.Type(), "payload", string(task.Payload()), "error", err)
		}),
	}), nil
}
