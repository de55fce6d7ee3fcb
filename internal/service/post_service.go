package service

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// MaxCarouselItems is the largest carousel Instagram accepts.
const MaxCarouselItems = 10

// JobScheduler is the part of the scheduler posts depend on.
type JobScheduler interface {
	ScheduleJob(ctx context.Context, runAt time.Time, jobType models.JobType, payload models.JobPayload) (*models.Job, error)
	RescheduleJob(ctx context.Context, jobID string, runAt time.Time) (*models.Job, error)
	CancelJob(ctx context.Context, jobID string) (*models.Job, error)
}

type PostService interface {
	CreatePost(ctx context.Context, userID string, pc *transfer.PostCreation) (*transfer.PostCreated, error)
	EditPost(ctx context.Context, userID string, pu *transfer.PostUpdate) (*models.Post, error)
	List(ctx context.Context, userID string) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID string) (*models.Post, error)
	Remove(ctx context.Context, userID, postID string) error
	// ExecutePost publishes a stored post to the platforms it has not yet
	// reached. The worker calls it when a job fires.
	ExecutePost(ctx context.Context, postID string) ([]models.PlatformResult, error)
}

type postService struct {
	pr        repository.PostRepository
	rr        repository.PlatformResultRepository
	ar        repository.AccountRepository
	scheduler JobScheduler
	publisher PublishService
	now       func() time.Time
}

func NewPostService(
	pr repository.PostRepository,
	rr repository.PlatformResultRepository,
	ar repository.AccountRepository,
	scheduler JobScheduler,
	publisher PublishService) PostService {
	return &postService{
		pr:        pr,
		rr:        rr,
		ar:        ar,
		scheduler: scheduler,
		publisher: publisher,
		now:       time.Now,
	}
}

func validatePostCreation(ctx context.Context, pc *transfer.PostCreation) error {
	err := validation.ValidateStructWithContext(ctx, pc,
		validation.Field(&pc.Type, validation.Required,
			validation.In(models.PostTypePics, models.PostTypeVid, models.PostTypeStory)),
		validation.Field(&pc.FileNames, validation.Required,
			validation.When(pc.Type == models.PostTypeVid, validation.Length(1, 1).Error("a video post takes exactly one file")),
			validation.When(pc.Type == models.PostTypePics, validation.Length(1, MaxCarouselItems)),
			validation.Each(validation.Required)),
		validation.Field(&pc.Platforms, validation.Required,
			validation.By(distinct),
			validation.Each(validation.In(models.ProviderInstagram, models.ProviderTiktok))),
		validation.Field(&pc.Datetime, validation.When(pc.Scheduled, validation.Required)),
	)
	if err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}

// distinct rejects a platform named more than once.
func distinct(value interface{}) error {
	names, _ := value.([]string)
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return fmt.Errorf("%s is listed more than once", name)
		}
		seen[name] = true
	}
	return nil
}

func (s *postService) CreatePost(ctx context.Context, userID string, pc *transfer.PostCreation) (*transfer.PostCreated, error) {
	if pc == nil {
		err := models.NewValidationError("post creation data is nil")
		slog.Info(err.Error())
		return nil, err
	}
	if err := validatePostCreation(ctx, pc); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if pc.Type == models.PostTypeStory {
		return nil, models.NewNotImplementedError("story posts")
	}

	accounts, err := s.ar.ListByUserID(ctx, userID)
	if err != nil {
		return nil, models.NewInternalServerError("error getting linked accounts", err)
	}
	if !anyLinked(accounts, pc.Platforms) {
		err := models.NewUnauthorizedError("no linked account for the selected platforms")
		slog.Info(err.Error())
		return nil, err
	}

	post := &models.Post{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      pc.Type,
		Caption:   pc.Caption,
		Media:     pc.FileNames,
		Platforms: pc.Platforms,
		PostedAt:  s.now(),
		Status:    models.PostStatusPublishing,
	}
	if pc.Scheduled {
		post.PostedAt = pc.Datetime
		post.Status = models.PostStatusScheduled
	}

	if err := s.pr.Create(ctx, nil, post); err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}

	if pc.Scheduled {
		job, err := s.scheduler.ScheduleJob(ctx, post.PostedAt, jobTypeFor(post.Type), models.JobPayload{PostID: post.ID})
		if err != nil {
			if rmErr := s.pr.Remove(ctx, nil, post.ID); rmErr != nil {
				slog.Info(rmErr.Error())
			}
			return nil, fmt.Errorf("error scheduling post: %w", err)
		}
		if err := s.pr.SetJobID(ctx, nil, post.ID, job.ID); err != nil {
			if _, cErr := s.scheduler.CancelJob(ctx, job.ID); cErr != nil {
				slog.Info(cErr.Error())
			}
			if rmErr := s.pr.Remove(ctx, nil, post.ID); rmErr != nil {
				slog.Info(rmErr.Error())
			}
			return nil, fmt.Errorf("error saving job reference: %w", err)
		}
		post.JobID = job.ID
		log.Printf("Post %s scheduled for %s as job %s", post.ID, post.PostedAt.Format(time.RFC3339), job.ID)
		return &transfer.PostCreated{Post: post}, nil
	}

	results, err := s.publish(ctx, post, accounts, nil)
	if err != nil {
		return nil, err
	}
	return &transfer.PostCreated{Post: post, Results: results}, nil
}

// EditPost changes the caption and publish time of a post. Media and
// platforms are fixed once created. A changed time moves the pending job.
func (s *postService) EditPost(ctx context.Context, userID string, pu *transfer.PostUpdate) (*models.Post, error) {
	if pu == nil || pu.PostID == "" {
		err := models.NewValidationError("post_id is required")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.ownedPost(ctx, pu.PostID, userID)
	if err != nil {
		return nil, err
	}

	if pu.Caption != nil {
		post.Caption = *pu.Caption
	}

	previous := post.PostedAt
	moved := pu.PostedAt != nil && !pu.PostedAt.Equal(post.PostedAt)
	if moved {
		post.PostedAt = *pu.PostedAt
	}

	// the row is written first so the job never runs at a time the post
	// does not show
	if err := s.pr.Update(ctx, nil, post); err != nil {
		return nil, fmt.Errorf("error updating post: %w", err)
	}

	if moved && post.JobID != "" {
		job, err := s.scheduler.RescheduleJob(ctx, post.JobID, post.PostedAt)
		if err != nil {
			post.PostedAt = previous
			if uErr := s.pr.Update(ctx, nil, post); uErr != nil {
				slog.Info(uErr.Error())
			}
			return nil, fmt.Errorf("error rescheduling post: %w", err)
		}
		log.Printf("Post %s rescheduled to %s", post.ID, job.RunAt.Format(time.RFC3339))
	}
	return post, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID string) (*models.Post, error) {
	if postID == "" {
		err := models.NewValidationError("post id is required")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	post.Results, err = s.rr.ListByPostID(ctx, post.ID)
	if err != nil {
		return nil, models.NewInternalServerError("error getting post results", err)
	}
	return post, nil
}

func (s *postService) List(ctx context.Context, userID string) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, models.NewInternalServerError("error getting posts", err)
	}

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	byPost, err := s.rr.ListByPostIDs(ctx, ids)
	if err != nil {
		return nil, models.NewInternalServerError("error getting post results", err)
	}
	for _, p := range posts {
		p.Results = byPost[p.ID]
	}
	return posts, nil
}

// Remove cancels the post's pending job, if any, and deletes the post. A job
// that already started is left to finish.
func (s *postService) Remove(ctx context.Context, userID, postID string) error {
	if postID == "" {
		err := models.NewValidationError("post_id is required")
		slog.Info(err.Error())
		return err
	}

	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return err
	}

	if post.JobID != "" {
		if _, err := s.scheduler.CancelJob(ctx, post.JobID); err != nil && !models.IsKind(err, models.KindNotFound) {
			return fmt.Errorf("error cancelling job: %w", err)
		}
	}

	if err := s.pr.Remove(ctx, nil, post.ID); err != nil {
		return fmt.Errorf("error removing post: %w", err)
	}
	return nil
}

func (s *postService) ExecutePost(ctx context.Context, postID string) ([]models.PlatformResult, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error loading post: %w", err)
	}
	if post == nil {
		return nil, models.NewNotFoundError("post")
	}

	accounts, err := s.ar.ListByUserID(ctx, post.UserID)
	if err != nil {
		return nil, fmt.Errorf("error loading accounts: %w", err)
	}

	succeeded, err := s.rr.SucceededPlatforms(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("error loading previous results: %w", err)
	}

	return s.publish(ctx, post, accounts, succeeded)
}

// publish runs the post on every platform not listed in succeeded, stores
// each result and derives the post status from the outcome.
func (s *postService) publish(ctx context.Context, post *models.Post, accounts []*models.Account, succeeded []string) ([]models.PlatformResult, error) {
	var remaining []string
	for _, p := range post.Platforms {
		if !contains(succeeded, p) {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == 0 {
		log.Printf("Post %s already published everywhere", post.ID)
		return nil, s.setStatus(ctx, post, models.PostStatusPosted)
	}

	if post.Status != models.PostStatusPublishing {
		if err := s.setStatus(ctx, post, models.PostStatusPublishing); err != nil {
			return nil, err
		}
	}

	var results []models.PlatformResult
	switch post.Type {
	case models.PostTypePics:
		results = s.publisher.PostPics(ctx, post.Media, post.Caption, remaining, accounts)
	case models.PostTypeVid:
		if len(post.Media) == 0 {
			return nil, models.NewValidationError("video post has no file")
		}
		results = s.publisher.PostVid(ctx, post.Media[0], post.Caption, remaining, accounts)
	default:
		return nil, models.NewNotImplementedError(post.Type + " posts")
	}

	summary := make([]models.PlatformResult, 0, len(succeeded)+len(results))
	for _, p := range succeeded {
		summary = append(summary, models.PlatformResult{Platform: p, Status: models.ResultStatusSuccess})
	}
	for i := range results {
		results[i].PostID = post.ID
		if _, err := s.rr.Create(ctx, nil, &results[i]); err != nil {
			slog.Info(fmt.Sprintf("failed to save %s result for post %s: %v", results[i].Platform, post.ID, err))
		}
		summary = append(summary, results[i])
	}

	if err := s.setStatus(ctx, post, models.SummarizeResults(summary)); err != nil {
		return results, err
	}
	post.Results = results
	return results, nil
}

func (s *postService) setStatus(ctx context.Context, post *models.Post, status string) error {
	if err := s.pr.UpdatePostStatus(ctx, status, post.ID); err != nil {
		return fmt.Errorf("error updating post status: %w", err)
	}
	post.Status = status
	return nil
}

func (s *postService) ownedPost(ctx context.Context, postID, userID string) (*models.Post, error) {
	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		err := models.NewNotFoundError("post")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, models.NewInternalServerError("error getting post info", err)
	}
	if post == nil {
		return nil, models.NewNotFoundError("post")
	}
	return post, nil
}

func jobTypeFor(postType string) models.JobType {
	if postType == models.PostTypeVid {
		return models.JobTypePostVid
	}
	return models.JobTypePostPics
}

func anyLinked(accounts []*models.Account, platforms []string) bool {
	for _, p := range platforms {
		if models.FindAccount(accounts, p) != nil {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
