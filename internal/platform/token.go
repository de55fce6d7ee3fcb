package platform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/models"
)

// RefreshMargin is how close to expiry a token may get before it is
// refreshed ahead of a request.
const RefreshMargin = 5 * time.Minute

// AccountStore is the durable record the manager reads and writes tokens
// through.
type AccountStore interface {
	GetByProvider(ctx context.Context, provider, providerAccountID string) (*models.Account, error)
	// SetToken persists acc's token fields only if the stored access token
	// still equals oldAccessToken.
	SetToken(ctx context.Context, acc *models.Account, oldAccessToken string) error
}

// RefreshFunc calls the platform's refresh endpoint for acc.
type RefreshFunc func(ctx context.Context, acc *models.Account) (*Token, error)

type TokenManager struct {
	store  AccountStore
	locker lock.Locker
	now    func() time.Time
}

func NewTokenManager(store AccountStore, locker lock.Locker) *TokenManager {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &TokenManager{
		store:  store,
		locker: locker,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

// Fresh reports whether acc's access token stays valid for longer than window.
func (m *TokenManager) Fresh(acc *models.Account, window time.Duration) bool {
	return acc.ExpiresAt != 0 && acc.ExpiresAt > m.now().Add(window).Unix()
}

// EnsureValidToken makes acc's access token usable for at least
// RefreshMargin. A fresh token costs no I/O.
func (m *TokenManager) EnsureValidToken(ctx context.Context, acc *models.Account, refresh RefreshFunc) error {
	return m.RefreshWithin(ctx, acc, RefreshMargin, refresh)
}

// RefreshWithin refreshes acc if its token expires within window. Refreshes
// of one account are serialized; a waiter that finds the stored token
// already refreshed adopts it instead of calling the platform again.
func (m *TokenManager) RefreshWithin(ctx context.Context, acc *models.Account, window time.Duration, refresh RefreshFunc) error {
	if m.Fresh(acc, window) {
		return nil
	}

	unlock, err := m.locker.Lock(ctx, lockKey(acc))
	if err != nil {
		return models.NewTokenRefreshError(acc.Provider, fmt.Errorf("failed to lock account: %w", err))
	}
	defer unlock()

	stored, err := m.store.GetByProvider(ctx, acc.Provider, acc.ProviderAccountID)
	if err != nil {
		return models.NewTokenRefreshError(acc.Provider, err)
	}
	if stored == nil {
		return models.NewTokenRefreshError(acc.Provider, errors.New("account no longer exists"))
	}

	adoptToken(acc, stored)
	if m.Fresh(acc, window) {
		return nil
	}

	oldAccessToken := acc.AccessToken
	token, err := refresh(ctx, acc)
	if err != nil {
		slog.Info(err.Error())
		if models.IsKind(err, models.KindTokenRefresh) {
			return err
		}
		return models.NewTokenRefreshError(acc.Provider, err)
	}

	updated := *acc
	now := m.now()
	updated.AccessToken = token.AccessToken
	updated.ExpiresAt = 0
	if token.ExpiresIn > 0 {
		updated.ExpiresAt = now.Add(time.Duration(token.ExpiresIn) * time.Second).Unix()
	}
	if token.RefreshToken != "" {
		updated.RefreshToken = token.RefreshToken
	}
	if token.RefreshExpiresIn > 0 {
		updated.RefreshExpiresAt = now.Add(time.Duration(token.RefreshExpiresIn) * time.Second).Unix()
	}

	if err := m.store.SetToken(ctx, &updated, oldAccessToken); err != nil {
		return models.NewTokenRefreshError(acc.Provider, fmt.Errorf("failed to persist token: %w", err))
	}

	*acc = updated
	log.Printf("Refreshed %s token for account %s", acc.Provider, acc.ProviderAccountID)
	return nil
}

func adoptToken(acc, stored *models.Account) {
	acc.AccessToken = stored.AccessToken
	acc.RefreshToken = stored.RefreshToken
	acc.ExpiresAt = stored.ExpiresAt
	acc.RefreshExpiresAt = stored.RefreshExpiresAt
}

func lockKey(acc *models.Account) string {
	return "token:" + acc.Provider + ":" + acc.ProviderAccountID
}
