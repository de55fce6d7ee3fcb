package queue

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
)

// memoryJobs mirrors the guarded updates of the Postgres job repository.
type memoryJobs struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	claimErr error
}

func newMemoryJobs() *memoryJobs {
	return &memoryJobs{jobs: map[string]*models.Job{}}
}

func (m *memoryJobs) get(id string) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		cp := *j
		return &cp
	}
	return nil
}

func (m *memoryJobs) update(id string, version int, from models.JobStatus, apply func(j *models.Job)) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != from || (version != 0 && j.Version != version) {
		return nil
	}
	apply(j)
	cp := *j
	return &cp
}

func (m *memoryJobs) Insert(ctx context.Context, tx *sql.Tx, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryJobs) GetByID(ctx context.Context, id string) (*models.Job, error) {
	return m.get(id), nil
}

func (m *memoryJobs) Reschedule(ctx context.Context, id string, version int, runAt time.Time) (*models.Job, error) {
	return m.update(id, version, models.JobStatusPending, func(j *models.Job) {
		j.RunAt = runAt
		j.Version++
	}), nil
}

func (m *memoryJobs) Cancel(ctx context.Context, id string) (*models.Job, error) {
	return m.update(id, 0, models.JobStatusPending, func(j *models.Job) {
		j.Status = models.JobStatusCancelled
	}), nil
}

func (m *memoryJobs) Claim(ctx context.Context, id string, version int, workerID string) (*models.Job, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	return m.update(id, version, models.JobStatusPending, func(j *models.Job) {
		j.Status = models.JobStatusRunning
		j.Attempts++
		j.LockedBy = workerID
	}), nil
}

func (m *memoryJobs) MarkCompleted(ctx context.Context, id string, version int) error {
	if m.update(id, version, models.JobStatusRunning, func(j *models.Job) { j.Status = models.JobStatusCompleted }) == nil {
		return fmt.Errorf("no running job %s", id)
	}
	return nil
}

func (m *memoryJobs) MarkFailed(ctx context.Context, id string, version int, lastErr string) error {
	if m.update(id, version, models.JobStatusRunning, func(j *models.Job) {
		j.Status = models.JobStatusFailed
		j.LastError = lastErr
	}) == nil {
		return fmt.Errorf("no running job %s", id)
	}
	return nil
}

func (m *memoryJobs) Retry(ctx context.Context, id string, version int, runAt time.Time, lastErr string) (*models.Job, error) {
	return m.update(id, version, models.JobStatusRunning, func(j *models.Job) {
		j.Status = models.JobStatusPending
		j.RunAt = runAt
		j.LastError = lastErr
		j.Version++
		j.LockedBy = ""
	}), nil
}

func (m *memoryJobs) ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryJobs) ListPending(ctx context.Context, limit int) ([]*models.Job, error) {
	return m.list(models.JobStatusPending), nil
}

func (m *memoryJobs) ListFailed(ctx context.Context, limit int) ([]*models.Job, error) {
	return m.list(models.JobStatusFailed), nil
}

func (m *memoryJobs) list(status models.JobStatus) []*models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, j := range m.jobs {
		if j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out
}

// memoryQueue records tasks by id and refuses duplicate ids like asynq does.
type memoryQueue struct {
	mu      sync.Mutex
	tasks   map[string]*asynq.Task
	dead    map[string]bool
	deleted []string
	err     error
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{tasks: map[string]*asynq.Task{}, dead: map[string]bool{}}
}

// archive marks a queued task as archived, the way asynq does once its
// retries run out. It keeps its id.
func (q *memoryQueue) archive(jobID string, version int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead[TaskID(jobID, version)] = true
}

func (q *memoryQueue) Dead(ctx context.Context, jobID string, version int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := TaskID(jobID, version)
	_, ok := q.tasks[id]
	return ok && q.dead[id], nil
}

func (q *memoryQueue) Enqueue(ctx context.Context, job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	id := TaskID(job.ID, job.Version)
	if _, ok := q.tasks[id]; ok {
		return fmt.Errorf("enqueue %s: %w", id, asynq.ErrTaskIDConflict)
	}
	payload := fmt.Sprintf(`{"job_id":%q,"version":%d}`, job.ID, job.Version)
	q.tasks[id] = asynq.NewTask(string(job.Type), []byte(payload))
	return nil
}

func (q *memoryQueue) Delete(ctx context.Context, jobID string, version int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := TaskID(jobID, version)
	q.deleted = append(q.deleted, id)
	delete(q.tasks, id)
	delete(q.dead, id)
	return nil
}

func (q *memoryQueue) task(jobID string, version int) *asynq.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks[TaskID(jobID, version)]
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	results [][]models.PlatformResult
	err     error
}

func (r *fakeRunner) ExecutePost(ctx context.Context, postID string) ([]models.PlatformResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, postID)
	if r.err != nil {
		return nil, r.err
	}
	if len(r.results) == 0 {
		return []models.PlatformResult{{Platform: models.ProviderInstagram, Status: models.ResultStatusSuccess}}, nil
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res, nil
}
