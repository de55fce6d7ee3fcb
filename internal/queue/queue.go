package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
)

const DefaultQueue = "default"

// TaskPayload is what travels through Redis. The job row holds everything
// else; the version lets the worker recognise superseded tasks.
type TaskPayload struct {
	JobID   string `json:"job_id"`
	Version int    `json:"version"`
}

// TaskID is the asynq task id for one version of a job. It is deterministic
// so enqueueing the same version twice is a harmless conflict.
func TaskID(jobID string, version int) string {
	return fmt.Sprintf("%s:%d", jobID, version)
}

// TaskQueue delivers job versions to workers at their run time.
type TaskQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
	Delete(ctx context.Context, jobID string, version int) error
	// Dead reports whether the task for this version is still held by the
	// queue but will never run again (archived or completed).
	Dead(ctx context.Context, jobID string, version int) (bool, error)
}

// RedisQueue is the asynq-backed TaskQueue. The client and inspector are
// created together on first use and shared by every caller after that.
type RedisQueue struct {
	redisURI string
	queue    string

	once      sync.Once
	client    *asynq.Client
	inspector *asynq.Inspector
	initErr   error
}

func NewRedisQueue(redisURI string) *RedisQueue {
	return &RedisQueue{redisURI: redisURI, queue: DefaultQueue}
}

func (q *RedisQueue) connect() (*asynq.Client, *asynq.Inspector, error) {
	q.once.Do(func() {
		if q.redisURI == "" {
			q.initErr = models.NewInternalServerError("REDIS_URI is not set", nil)
			return
		}
		opt, err := asynq.ParseRedisURI(q.redisURI)
		if err != nil {
			slog.Info(err.Error())
			q.initErr = models.NewInternalServerError("invalid REDIS_URI", err)
			return
		}
		q.client = asynq.NewClient(opt)
		q.inspector = asynq.NewInspector(opt)
	})
	return q.client, q.inspector, q.initErr
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *models.Job) error {
	client, _, err := q.connect()
	if err != nil {
		return err
	}

	taskPayload, err := json.Marshal(TaskPayload{JobID: job.ID, Version: job.Version})
	if err != nil {
		return err
	}

	task := asynq.NewTask(string(job.Type), taskPayload)

	_, err = client.EnqueueContext(ctx, task,
		asynq.TaskID(TaskID(job.ID, job.Version)),
		asynq.ProcessAt(job.RunAt),
		asynq.Queue(q.queue),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}

	log.Printf("Task scheduled: %s at %s", TaskID(job.ID, job.Version), job.RunAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

// Delete removes a queued task. A task that already ran or never existed is
// not an error.
func (q *RedisQueue) Delete(ctx context.Context, jobID string, version int) error {
	_, inspector, err := q.connect()
	if err != nil {
		return err
	}

	err = inspector.DeleteTask(q.queue, TaskID(jobID, version))
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return fmt.Errorf("failed to delete task %s: %w", TaskID(jobID, version), err)
	}
	return nil
}

func (q *RedisQueue) Dead(ctx context.Context, jobID string, version int) (bool, error) {
	_, inspector, err := q.connect()
	if err != nil {
		return false, err
	}

	info, err := inspector.GetTaskInfo(q.queue, TaskID(jobID, version))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect task %s: %w", TaskID(jobID, version), err)
	}
	return info.State == asynq.TaskStateArchived || info.State == asynq.TaskStateCompleted, nil
}

func (q *RedisQueue) Close() error {
	var errs []error
	if q.client != nil {
		errs = append(errs, q.client.Close())
	}
	if q.inspector != nil {
		errs = append(errs, q.inspector.Close())
	}
	return errors.Join(errs...)
}

// IsAlreadyQueued reports whether err means the task is already in Redis.
func IsAlreadyQueued(err error) bool {
	return errors.Is(err, asynq.ErrTaskIDConflict)
}
