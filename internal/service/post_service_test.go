package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postFixture struct {
	posts     *fakePostRepo
	results   *fakeResultRepo
	accounts  *fakeAccountRepo
	scheduler *fakeScheduler
	clients   *fakeClients
	svc       PostService
}

func newPostFixture(posts ...*models.Post) *postFixture {
	f := &postFixture{
		posts:   newFakePostRepo(posts...),
		results: &fakeResultRepo{},
		accounts: &fakeAccountRepo{accounts: []*models.Account{
			{ID: "a-ig", UserID: "u-1", Provider: models.ProviderInstagram},
			{ID: "a-tt", UserID: "u-1", Provider: models.ProviderTiktok},
		}},
		scheduler: &fakeScheduler{},
		clients:   &fakeClients{},
	}
	publisher := NewPublishService(f.clients, "https://media.example.com", "")
	f.svc = NewPostService(f.posts, f.results, f.accounts, f.scheduler, publisher)
	return f
}

func TestCreatePost_Validation(t *testing.T) {
	tests := []struct {
		name string
		pc   *transfer.PostCreation
		kind models.ErrorKind
	}{
		{name: "nil", pc: nil, kind: models.KindValidation},
		{name: "no files", pc: &transfer.PostCreation{Type: "pics", Platforms: []string{"instagram"}}, kind: models.KindValidation},
		{name: "unknown type", pc: &transfer.PostCreation{Type: "reel", FileNames: []string{"a.jpg"}, Platforms: []string{"instagram"}}, kind: models.KindValidation},
		{name: "video with two files", pc: &transfer.PostCreation{Type: "vid", FileNames: []string{"a.mp4", "b.mp4"}, Platforms: []string{"tiktok"}}, kind: models.KindValidation},
		{name: "duplicate platform", pc: &transfer.PostCreation{Type: "pics", FileNames: []string{"a.jpg"}, Platforms: []string{"instagram", "instagram"}}, kind: models.KindValidation},
		{name: "unknown platform", pc: &transfer.PostCreation{Type: "pics", FileNames: []string{"a.jpg"}, Platforms: []string{"youtube"}}, kind: models.KindValidation},
		{name: "scheduled without time", pc: &transfer.PostCreation{Type: "pics", FileNames: []string{"a.jpg"}, Platforms: []string{"instagram"}, Scheduled: true}, kind: models.KindValidation},
		{name: "story", pc: &transfer.PostCreation{Type: "story", FileNames: []string{"a.jpg"}, Platforms: []string{"instagram"}}, kind: models.KindNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPostFixture()
			_, err := f.svc.CreatePost(context.Background(), "u-1", tt.pc)
			require.Error(t, err)
			assert.True(t, models.IsKind(err, tt.kind), err.Error())
			assert.Empty(t, f.clients.calls)
			assert.Empty(t, f.posts.posts)
		})
	}
}

func TestCreatePost_NoLinkedAccount(t *testing.T) {
	f := newPostFixture()

	_, err := f.svc.CreatePost(context.Background(), "u-2", &transfer.PostCreation{
		Type: "pics", FileNames: []string{"a.jpg"}, Platforms: []string{"instagram"},
	})

	assert.True(t, models.IsKind(err, models.KindUnauthorized))
	assert.Empty(t, f.posts.posts)
}

func TestCreatePost_Scheduled(t *testing.T) {
	f := newPostFixture()
	at := time.Now().Add(24 * time.Hour)

	created, err := f.svc.CreatePost(context.Background(), "u-1", &transfer.PostCreation{
		Type: "pics", FileNames: []string{"a.jpg"}, Caption: "later", Platforms: []string{"instagram"},
		Scheduled: true, Datetime: at,
	})
	require.NoError(t, err)

	assert.Equal(t, "job-1", created.Post.JobID)
	assert.Equal(t, models.PostStatusScheduled, created.Post.Status)
	require.Len(t, f.scheduler.scheduled, 1)
	assert.Equal(t, created.Post.ID, f.scheduler.scheduled[0].PostID)
	assert.Empty(t, f.clients.calls)

	stored, _ := f.posts.GetByID(context.Background(), created.Post.ID)
	assert.Equal(t, "job-1", stored.JobID)
}

func TestCreatePost_ScheduleFailureRemovesPost(t *testing.T) {
	f := newPostFixture()
	f.scheduler.err = models.NewInternalServerError("REDIS_URI is not set", nil)

	_, err := f.svc.CreatePost(context.Background(), "u-1", &transfer.PostCreation{
		Type: "vid", FileNames: []string{"v.mp4"}, Platforms: []string{"tiktok"},
		Scheduled: true, Datetime: time.Now().Add(time.Hour),
	})

	assert.True(t, models.IsKind(err, models.KindInternal))
	assert.Empty(t, f.posts.posts)
}

func TestCreatePost_JobReferenceFailureCancelsJob(t *testing.T) {
	f := newPostFixture()
	f.posts.setJobErr = errors.New("pq: connection reset")

	_, err := f.svc.CreatePost(context.Background(), "u-1", &transfer.PostCreation{
		Type: "pics", FileNames: []string{"a.jpg"}, Platforms: []string{"instagram"},
		Scheduled: true, Datetime: time.Now().Add(time.Hour),
	})

	require.Error(t, err)
	assert.Equal(t, []string{"job-1"}, f.scheduler.cancelled)
	assert.Empty(t, f.posts.posts)
}

func TestCreatePost_Immediate(t *testing.T) {
	f := newPostFixture()
	f.clients.igErr = errors.New("connection reset")

	created, err := f.svc.CreatePost(context.Background(), "u-1", &transfer.PostCreation{
		Type: "pics", FileNames: []string{"a.jpg"}, Platforms: []string{"instagram", "tiktok"},
	})
	require.NoError(t, err)

	require.Len(t, created.Results, 2)
	assert.Equal(t, models.PostStatusPartial, created.Post.Status)
	assert.Len(t, f.results.results, 2)
	assert.Empty(t, f.scheduler.scheduled)
}

func TestEditPost_ReschedulesJob(t *testing.T) {
	at := time.Now().Add(time.Hour)
	f := newPostFixture(&models.Post{ID: "p-1", UserID: "u-1", Type: "pics", JobID: "job-7", PostedAt: at, Caption: "old"})

	newAt := at.Add(2 * time.Hour)
	caption := "new"
	post, err := f.svc.EditPost(context.Background(), "u-1", &transfer.PostUpdate{PostID: "p-1", Caption: &caption, PostedAt: &newAt})
	require.NoError(t, err)

	assert.Equal(t, newAt, f.scheduler.rescheduled["job-7"])
	assert.Equal(t, "new", post.Caption)
	stored, _ := f.posts.GetByID(context.Background(), "p-1")
	assert.Equal(t, "new", stored.Caption)
	assert.Equal(t, newAt, stored.PostedAt)
}

func TestEditPost_UpdateFailureLeavesJobAlone(t *testing.T) {
	at := time.Now().Add(time.Hour)
	f := newPostFixture(&models.Post{ID: "p-1", UserID: "u-1", Type: "pics", JobID: "job-7", PostedAt: at})
	f.posts.updateErr = errors.New("pq: connection reset")

	newAt := at.Add(time.Hour)
	_, err := f.svc.EditPost(context.Background(), "u-1", &transfer.PostUpdate{PostID: "p-1", PostedAt: &newAt})

	require.Error(t, err)
	assert.Empty(t, f.scheduler.rescheduled)
}

func TestEditPost_RescheduleFailureRestoresTime(t *testing.T) {
	at := time.Now().Add(time.Hour)
	f := newPostFixture(&models.Post{ID: "p-1", UserID: "u-1", Type: "pics", JobID: "job-7", PostedAt: at, Caption: "old"})
	f.scheduler.rescheduleErr = models.NewNotFoundError("pending job")

	newAt := at.Add(time.Hour)
	_, err := f.svc.EditPost(context.Background(), "u-1", &transfer.PostUpdate{PostID: "p-1", PostedAt: &newAt})

	assert.True(t, models.IsKind(err, models.KindNotFound))
	stored, _ := f.posts.GetByID(context.Background(), "p-1")
	assert.Equal(t, at, stored.PostedAt)
}

func TestEditPost_SameTimeDoesNotReschedule(t *testing.T) {
	at := time.Now().Add(time.Hour)
	f := newPostFixture(&models.Post{ID: "p-1", UserID: "u-1", Type: "pics", JobID: "job-7", PostedAt: at})

	caption := "only caption"
	_, err := f.svc.EditPost(context.Background(), "u-1", &transfer.PostUpdate{PostID: "p-1", Caption: &caption, PostedAt: &at})
	require.NoError(t, err)
	assert.Empty(t, f.scheduler.rescheduled)
}

func TestEditPost_OtherUsersPost(t *testing.T) {
	f := newPostFixture(&models.Post{ID: "p-1", UserID: "u-1"})

	_, err := f.svc.EditPost(context.Background(), "u-2", &transfer.PostUpdate{PostID: "p-1"})
	assert.True(t, models.IsKind(err, models.KindNotFound))
}

func TestRemovePost_CancelsJob(t *testing.T) {
	f := newPostFixture(&models.Post{ID: "p-1", UserID: "u-1", JobID: "job-3"})

	require.NoError(t, f.svc.Remove(context.Background(), "u-1", "p-1"))
	assert.Equal(t, []string{"job-3"}, f.scheduler.cancelled)
	assert.Empty(t, f.posts.posts)
}

func TestExecutePost_UsesPostAtFireTime(t *testing.T) {
	f := newPostFixture(&models.Post{ID: "p-1", UserID: "u-1", Type: "vid", Media: []string{"v.mp4"},
		Platforms: []string{"tiktok"}, Caption: "original", Status: models.PostStatusScheduled})

	caption := "edited"
	_, err := f.svc.EditPost(context.Background(), "u-1", &transfer.PostUpdate{PostID: "p-1", Caption: &caption})
	require.NoError(t, err)

	results, err := f.svc.ExecutePost(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"tiktok:video:https://media.example.com/v.mp4|edited"}, f.clients.calls)

	stored, _ := f.posts.GetByID(context.Background(), "p-1")
	assert.Equal(t, models.PostStatusPosted, stored.Status)
}

func TestExecutePost_SkipsSucceededPlatforms(t *testing.T) {
	f := newPostFixture(&models.Post{ID: "p-1", UserID: "u-1", Type: "pics", Media: []string{"a.jpg"},
		Platforms: []string{"instagram", "tiktok"}})
	f.results.results = []models.PlatformResult{{PostID: "p-1", Platform: "instagram", Status: models.ResultStatusSuccess}}
	f.clients.ttErr = &models.ExternalAPIError{Provider: "tiktok", HTTPStatus: http.StatusServiceUnavailable}

	results, err := f.svc.ExecutePost(context.Background(), "p-1")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "tiktok", results[0].Platform)
	assert.True(t, results[0].Retryable)
	assert.Equal(t, []string{"tiktok:photo:https://media.example.com/a.jpg"}, f.clients.calls)

	stored, _ := f.posts.GetByID(context.Background(), "p-1")
	assert.Equal(t, models.PostStatusPartial, stored.Status)
}

func TestExecutePost_MissingPost(t *testing.T) {
	f := newPostFixture()

	_, err := f.svc.ExecutePost(context.Background(), "gone")
	assert.True(t, models.IsKind(err, models.KindNotFound))
}
