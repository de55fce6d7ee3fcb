package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

const DefaultMaxAttempts = 5

const (
	// StaleAfter is how long a job may stay running before the reconciler
	// assumes its worker died.
	StaleAfter      = 30 * time.Minute
	reconcileBatch  = 500
	rescheduleTries = 3
)

// Scheduler owns the durable job rows and keeps the task queue in step with
// them. The row is always written first; the queue only ever carries
// (job id, version) pairs.
type Scheduler struct {
	jobs        repository.JobRepository
	queue       TaskQueue
	maxAttempts int
	now         func() time.Time
}

func NewScheduler(jobs repository.JobRepository, queue TaskQueue, maxAttempts int) *Scheduler {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Scheduler{
		jobs:        jobs,
		queue:       queue,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (s *Scheduler) ScheduleJob(ctx context.Context, runAt time.Time, jobType models.JobType, payload models.JobPayload) (*models.Job, error) {
	if !jobType.Valid() {
		return nil, models.NewValidationError(fmt.Sprintf("unknown job type %q", jobType))
	}
	if payload.PostID == "" {
		return nil, models.NewValidationError("job payload needs a post id")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     data,
		RunAt:       runAt,
		Status:      models.JobStatusPending,
		MaxAttempts: s.maxAttempts,
		Version:     1,
	}

	if err := s.jobs.Insert(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.enqueue(ctx, job); err != nil {
		if _, cerr := s.jobs.Cancel(ctx, job.ID); cerr != nil {
			slog.Info(cerr.Error())
		}
		return nil, err
	}

	log.Printf("Job %s (%s) scheduled for %s", job.ID, job.Type, runAt.Format(time.RFC3339))
	return job, nil
}

// RescheduleJob moves a pending job to runAt. The job keeps its id, type and
// payload and gets a new version, so the task queued for the old time is
// refused by the worker even if deleting it fails.
func (s *Scheduler) RescheduleJob(ctx context.Context, jobID string, runAt time.Time) (*models.Job, error) {
	for i := 0; i < rescheduleTries; i++ {
		job, err := s.jobs.GetByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil || job.Status != models.JobStatusPending {
			return nil, models.NewNotFoundError("pending job")
		}

		updated, err := s.jobs.Reschedule(ctx, job.ID, job.Version, runAt)
		if err != nil {
			return nil, err
		}
		if updated == nil {
			// claimed or moved by someone else in between; look again
			continue
		}

		if err := s.enqueue(ctx, updated); err != nil {
			return nil, err
		}
		if err := s.queue.Delete(ctx, job.ID, job.Version); err != nil {
			slog.Info(err.Error())
		}

		log.Printf("Job %s rescheduled to %s (version %d)", updated.ID, runAt.Format(time.RFC3339), updated.Version)
		return updated, nil
	}
	return nil, models.NewInternalServerError("job changed while rescheduling", repository.ErrConflict)
}

func (s *Scheduler) CancelJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.jobs.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, models.NewNotFoundError("pending job")
	}

	if err := s.queue.Delete(ctx, job.ID, job.Version); err != nil {
		slog.Info(err.Error())
	}

	log.Printf("Job %s cancelled", job.ID)
	return job, nil
}

func (s *Scheduler) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, models.NewNotFoundError("job")
	}
	return job, nil
}

func (s *Scheduler) ListFailed(ctx context.Context, limit int) ([]*models.Job, error) {
	return s.jobs.ListFailed(ctx, limit)
}

// Requeue starts a fresh pending job from a failed or cancelled one. The old
// row is kept as the record of what happened.
func (s *Scheduler) Requeue(ctx context.Context, jobID string, runAt time.Time) (*models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusFailed && job.Status != models.JobStatusCancelled {
		return nil, models.NewValidationError(fmt.Sprintf("job %s is %s; only failed or cancelled jobs can be requeued", job.ID, job.Status))
	}

	var payload models.JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, models.NewValidationError("job payload is not a post reference")
	}

	return s.ScheduleJob(ctx, runAt, job.Type, payload)
}

// Reconcile pushes every pending job to the queue and releases jobs whose
// worker disappeared. Tasks already queued conflict on their id and are
// skipped, so running it often is safe.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	released, err := s.jobs.ReleaseStale(ctx, s.now().Add(-StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale jobs: %w", err)
	}
	if released > 0 {
		log.Printf("Released %d stale jobs", released)
	}

	jobs, err := s.jobs.ListPending(ctx, reconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	enqueued := 0
	for _, job := range jobs {
		err := s.queue.Enqueue(ctx, job)
		if IsAlreadyQueued(err) {
			err = s.revive(ctx, job)
		}
		if err == nil {
			enqueued++
			continue
		}
		if IsAlreadyQueued(err) {
			continue
		}
		slog.Info(err.Error())
	}
	return enqueued, nil
}

// revive replaces a task that conflicts on its id but will never run again,
// such as one archived after its claim kept failing. A live task is left in
// place and the conflict is returned.
func (s *Scheduler) revive(ctx context.Context, job *models.Job) error {
	conflict := fmt.Errorf("job %s: %w", TaskID(job.ID, job.Version), asynq.ErrTaskIDConflict)

	dead, err := s.queue.Dead(ctx, job.ID, job.Version)
	if err != nil {
		return err
	}
	if !dead {
		return conflict
	}

	if err := s.queue.Delete(ctx, job.ID, job.Version); err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return err
	}
	log.Printf("Job %s re-enqueued after its task was archived", job.ID)
	return nil
}

func (s *Scheduler) enqueue(ctx context.Context, job *models.Job) error {
	if err := s.queue.Enqueue(ctx, job); err != nil && !IsAlreadyQueued(err) {
		return err
	}
	return nil
}
