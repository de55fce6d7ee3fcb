package job

import (
	"context"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

const (
	// RefreshAhead is how far ahead of expiry the sweep refreshes tokens.
	RefreshAhead     = 30 * time.Minute
	concurrencyLimit = 10
)

type ExpiringAccounts interface {
	ListExpiring(ctx context.Context, before int64) ([]*models.Account, error)
}

type Refreshers interface {
	Refresher(acc *models.Account) (platform.RefreshFunc, error)
}

type TokenRefresher interface {
	RefreshWithin(ctx context.Context, acc *models.Account, window time.Duration, refresh platform.RefreshFunc) error
}

// TokenRefreshJob refreshes tokens that expire soon so publishing rarely has
// to refresh inline.
type TokenRefreshJob struct {
	accounts   ExpiringAccounts
	refreshers Refreshers
	tokens     TokenRefresher
	now        func() time.Time
}

func NewTokenRefreshJob(accounts ExpiringAccounts, refreshers Refreshers, tokens TokenRefresher) *TokenRefreshJob {
	return &TokenRefreshJob{
		accounts:   accounts,
		refreshers: refreshers,
		tokens:     tokens,
		now:        time.Now,
	}
}

// RefreshTokens is the cron entry point.
func (c *TokenRefreshJob) RefreshTokens() {
	c.Run(context.Background())
}

// Run refreshes every expiring account and returns how many were refreshed.
func (c *TokenRefreshJob) Run(ctx context.Context) int {
	accounts, err := c.accounts.ListExpiring(ctx, c.now().Add(RefreshAhead).Unix())
	if err != nil {
		slog.Info(err.Error())
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		refreshed int
	)
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		refresh, err := c.refreshers.Refresher(acc)
		if err != nil {
			slog.Info(err.Error())
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.Account) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.tokens.RefreshWithin(ctx, acc, RefreshAhead, refresh); err != nil {
				slog.Info("Unable to refresh tokens for "+acc.Provider, "account", acc.ID, "error", err)
				return
			}
			mu.Lock()
			refreshed++
			mu.Unlock()
		}(acc)
	}
	wg.Wait()

	if len(accounts) > 0 {
		log.Printf("Token sweep: %d of %d expiring accounts refreshed", refreshed, len(accounts))
	}
	return refreshed
}
