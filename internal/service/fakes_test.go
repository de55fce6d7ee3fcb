package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

type fakeInstagram struct {
	calls *[]string
	err   error
}

func (f *fakeInstagram) CreatePost(ctx context.Context, urls []string, caption string) (*platform.Result, error) {
	*f.calls = append(*f.calls, "instagram:post:"+urls[0])
	if f.err != nil {
		return nil, f.err
	}
	return &platform.Result{ID: "ig-1"}, nil
}

func (f *fakeInstagram) CreateReel(ctx context.Context, videoURL, caption string) (*platform.Result, error) {
	*f.calls = append(*f.calls, "instagram:reel:"+videoURL)
	if f.err != nil {
		return nil, f.err
	}
	return &platform.Result{ID: "ig-reel"}, nil
}

type fakeTiktok struct {
	calls *[]string
	err   error
}

func (f *fakeTiktok) CreatePhotoPost(ctx context.Context, urls []string, caption string) (*platform.Result, error) {
	*f.calls = append(*f.calls, "tiktok:photo:"+urls[0])
	if f.err != nil {
		return nil, f.err
	}
	return &platform.Result{ID: "tt-1", Link: "https://www.tiktok.com/@me/photo/tt-1"}, nil
}

func (f *fakeTiktok) CreateVideoPost(ctx context.Context, videoURL, caption string) (*platform.Result, error) {
	*f.calls = append(*f.calls, "tiktok:video:"+videoURL+"|"+caption)
	if f.err != nil {
		return nil, f.err
	}
	return &platform.Result{ID: "tt-vid"}, nil
}

type fakeClients struct {
	calls []string
	igErr error
	ttErr error
}

func (f *fakeClients) Instagram(acc *models.Account) InstagramPublisher {
	return &fakeInstagram{calls: &f.calls, err: f.igErr}
}

func (f *fakeClients) Tiktok(acc *models.Account) TiktokPublisher {
	return &fakeTiktok{calls: &f.calls, err: f.ttErr}
}

type fakePostRepo struct {
	mu        sync.Mutex
	posts     map[string]*models.Post
	updateErr error
	setJobErr error
}

func newFakePostRepo(posts ...*models.Post) *fakePostRepo {
	r := &fakePostRepo{posts: map[string]*models.Post{}}
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return r
}

func (r *fakePostRepo) GetByID(ctx context.Context, id string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *post
	r.posts[post.ID] = &cp
	return nil
}

func (r *fakePostRepo) GetByUserID(ctx context.Context, userID string) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.posts {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePostRepo) Update(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	cp := *post
	r.posts[post.ID] = &cp
	return nil
}

func (r *fakePostRepo) UpdatePostStatus(ctx context.Context, status string, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.posts[postID]; ok {
		p.Status = status
	}
	return nil
}

func (r *fakePostRepo) SetJobID(ctx context.Context, tx *sql.Tx, postID, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setJobErr != nil {
		return r.setJobErr
	}
	if p, ok := r.posts[postID]; ok {
		p.JobID = jobID
	}
	return nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	return ok && p.UserID == userID, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, tx *sql.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.posts, id)
	return nil
}

type fakeResultRepo struct {
	results []models.PlatformResult
}

func (r *fakeResultRepo) Create(ctx context.Context, tx *sql.Tx, result *models.PlatformResult) (int64, error) {
	result.ID = int64(len(r.results) + 1)
	r.results = append(r.results, *result)
	return result.ID, nil
}

func (r *fakeResultRepo) ListByPostID(ctx context.Context, postID string) ([]models.PlatformResult, error) {
	var out []models.PlatformResult
	for _, res := range r.results {
		if res.PostID == postID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (r *fakeResultRepo) ListByPostIDs(ctx context.Context, postIDs []string) (map[string][]models.PlatformResult, error) {
	out := map[string][]models.PlatformResult{}
	for _, id := range postIDs {
		out[id], _ = r.ListByPostID(ctx, id)
	}
	return out, nil
}

func (r *fakeResultRepo) SucceededPlatforms(ctx context.Context, postID string) ([]string, error) {
	var out []string
	for _, res := range r.results {
		if res.PostID == postID && res.Status == models.ResultStatusSuccess && !contains(out, res.Platform) {
			out = append(out, res.Platform)
		}
	}
	return out, nil
}

type fakeAccountRepo struct {
	accounts []*models.Account
	removed  []string
}

func (r *fakeAccountRepo) Upsert(ctx context.Context, tx *sql.Tx, acc *models.Account) (string, error) {
	acc.ID = "acc-" + acc.Provider
	r.accounts = append(r.accounts, acc)
	return acc.ID, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	for _, a := range r.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) GetByProvider(ctx context.Context, provider, providerAccountID string) (*models.Account, error) {
	for _, a := range r.accounts {
		if a.Provider == provider && a.ProviderAccountID == providerAccountID {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) ListByUserID(ctx context.Context, userID string) ([]*models.Account, error) {
	var out []*models.Account
	for _, a := range r.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListExpiring(ctx context.Context, before int64) ([]*models.Account, error) {
	return nil, nil
}

func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID string) (bool, error) {
	for _, a := range r.accounts {
		if a.ID == accountID && a.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAccountRepo) SetToken(ctx context.Context, acc *models.Account, oldAccessToken string) error {
	return nil
}

func (r *fakeAccountRepo) Remove(ctx context.Context, id string) error {
	r.removed = append(r.removed, id)
	return nil
}

type fakeScheduler struct {
	scheduled     []models.JobPayload
	rescheduled   map[string]time.Time
	cancelled     []string
	err           error
	rescheduleErr error
}

func (f *fakeScheduler) ScheduleJob(ctx context.Context, runAt time.Time, jobType models.JobType, payload models.JobPayload) (*models.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.scheduled = append(f.scheduled, payload)
	return &models.Job{ID: "job-1", Type: jobType, RunAt: runAt, Status: models.JobStatusPending, Version: 1}, nil
}

func (f *fakeScheduler) RescheduleJob(ctx context.Context, jobID string, runAt time.Time) (*models.Job, error) {
	if f.rescheduleErr != nil {
		return nil, f.rescheduleErr
	}
	if f.rescheduled == nil {
		f.rescheduled = map[string]time.Time{}
	}
	f.rescheduled[jobID] = runAt
	return &models.Job{ID: jobID, RunAt: runAt, Status: models.JobStatusPending, Version: 2}, nil
}

func (f *fakeScheduler) CancelJob(ctx context.Context, jobID string) (*models.Job, error) {
	f.cancelled = append(f.cancelled, jobID)
	return &models.Job{ID: jobID, Status: models.JobStatusCancelled}, nil
}
