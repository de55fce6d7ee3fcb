package service

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

// PublishService fans one post out to its platforms. Platforms are handled
// one after another in the order given; a failure on one never stops the
// next, and nothing already published is rolled back.
type PublishService interface {
	PostPics(ctx context.Context, fileNames []string, caption string, platforms []string, accounts []*models.Account) []models.PlatformResult
	PostVid(ctx context.Context, fileName, caption string, platforms []string, accounts []*models.Account) []models.PlatformResult
}

type publishService struct {
	clients        ClientFactory
	mediaURL       string
	tiktokMediaURL string
}

// NewPublishService builds media URLs from mediaURL for Instagram and from
// tiktokMediaURL for TikTok, which only pulls from verified domains.
func NewPublishService(clients ClientFactory, mediaURL, tiktokMediaURL string) PublishService {
	if tiktokMediaURL == "" {
		tiktokMediaURL = mediaURL
	}
	return &publishService{
		clients:        clients,
		mediaURL:       mediaURL,
		tiktokMediaURL: tiktokMediaURL,
	}
}

func (s *publishService) PostPics(ctx context.Context, fileNames []string, caption string, platforms []string, accounts []*models.Account) []models.PlatformResult {
	return s.fanOut(ctx, platforms, accounts, func(provider string, acc *models.Account) (*platform.Result, error) {
		switch provider {
		case models.ProviderInstagram:
			return s.clients.Instagram(acc).CreatePost(ctx, mediaURLs(s.mediaURL, fileNames), caption)
		case models.ProviderTiktok:
			return s.clients.Tiktok(acc).CreatePhotoPost(ctx, mediaURLs(s.tiktokMediaURL, fileNames), caption)
		}
		return nil, unknownPlatform(provider)
	})
}

func (s *publishService) PostVid(ctx context.Context, fileName, caption string, platforms []string, accounts []*models.Account) []models.PlatformResult {
	return s.fanOut(ctx, platforms, accounts, func(provider string, acc *models.Account) (*platform.Result, error) {
		switch provider {
		case models.ProviderInstagram:
			return s.clients.Instagram(acc).CreateReel(ctx, mediaURL(s.mediaURL, fileName), caption)
		case models.ProviderTiktok:
			return s.clients.Tiktok(acc).CreateVideoPost(ctx, mediaURL(s.tiktokMediaURL, fileName), caption)
		}
		return nil, unknownPlatform(provider)
	})
}

type publishFunc func(provider string, acc *models.Account) (*platform.Result, error)

func (s *publishService) fanOut(ctx context.Context, platforms []string, accounts []*models.Account, publish publishFunc) []models.PlatformResult {
	results := make([]models.PlatformResult, 0, len(platforms))
	attempted := make(map[string]bool, len(platforms))
	for _, provider := range platforms {
		if attempted[provider] {
			continue
		}
		attempted[provider] = true

		if !models.IsProvider(provider) {
			results = append(results, failure(provider, unknownPlatform(provider)))
			continue
		}

		acc := models.FindAccount(accounts, provider)
		if acc == nil {
			err := models.NewUnauthorizedError(fmt.Sprintf("no %s account linked", provider))
			slog.Info(err.Error())
			results = append(results, failure(provider, err))
			continue
		}

		if err := ctx.Err(); err != nil {
			results = append(results, failure(provider, err))
			continue
		}

		res, err := publish(provider, acc)
		if err != nil {
			slog.Info(fmt.Sprintf("failed to publish to %s: %v", provider, err))
			results = append(results, failure(provider, err))
			continue
		}

		log.Printf("Published to %s: %s", provider, res.ID)
		results = append(results, models.PlatformResult{
			Platform:   provider,
			Status:     models.ResultStatusSuccess,
			ExternalID: res.ID,
			Link:       res.Link,
		})
	}
	return results
}

func failure(provider string, err error) models.PlatformResult {
	return models.PlatformResult{
		Platform:  provider,
		Status:    models.ResultStatusError,
		ErrorCode: string(models.ErrorCode(err)),
		Detail:    err.Error(),
		Retryable: models.IsRetryable(err),
	}
}

func unknownPlatform(provider string) error {
	return models.NewValidationError("unsupported platform: " + provider)
}

func mediaURL(base, fileName string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(fileName)
}

func mediaURLs(base string, fileNames []string) []string {
	urls := make([]string, len(fileNames))
	for i, name := range fileNames {
		urls[i] = mediaURL(base, name)
	}
	return urls
}
