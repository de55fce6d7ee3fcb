package service

import (
	"context"
	"testing"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLinker struct {
	state string
}

func (f *fakeLinker) AuthURL(provider, state string) (string, error) {
	f.state = state
	return "https://auth.example.com/" + provider + "?state=" + state, nil
}

func (f *fakeLinker) Link(ctx context.Context, provider, code string) (*models.Account, error) {
	return &models.Account{Provider: provider, ProviderAccountID: "open-1", AccessToken: "tok-" + code}, nil
}

func (f *fakeLinker) Refresher(acc *models.Account) (platform.RefreshFunc, error) {
	return nil, nil
}

func TestPlatformService_LinkRoundTrip(t *testing.T) {
	linker := &fakeLinker{}
	accounts := &fakeAccountRepo{}
	svc := NewPlatformService("secret", linker, accounts)

	_, err := svc.GetAuthURL(context.Background(), models.ProviderTiktok, "u-1")
	require.NoError(t, err)

	acc, err := svc.Callback(context.Background(), models.ProviderTiktok, "abc", linker.state)
	require.NoError(t, err)

	assert.Equal(t, "u-1", acc.UserID)
	assert.Equal(t, "tok-abc", acc.AccessToken)
	require.Len(t, accounts.accounts, 1)
}

func TestPlatformService_CallbackRejectsForgedState(t *testing.T) {
	accounts := &fakeAccountRepo{}
	svc := NewPlatformService("secret", &fakeLinker{}, accounts)

	forged, err := utils.GenerateToken("other-secret", "u-1", stateTTL)
	require.NoError(t, err)

	_, err = svc.Callback(context.Background(), models.ProviderTiktok, "abc", forged)
	assert.True(t, models.IsKind(err, models.KindUnauthorized))
	assert.Empty(t, accounts.accounts)

	_, err = svc.Callback(context.Background(), models.ProviderTiktok, "", forged)
	assert.True(t, models.IsKind(err, models.KindValidation))
}

func TestPlatformService_Delete(t *testing.T) {
	accounts := &fakeAccountRepo{accounts: []*models.Account{{ID: "a-1", UserID: "u-1"}}}
	svc := NewPlatformService("secret", &fakeLinker{}, accounts)

	err := svc.Delete(context.Background(), "u-2", "a-1")
	assert.True(t, models.IsKind(err, models.KindNotFound))

	require.NoError(t, svc.Delete(context.Background(), "u-1", "a-1"))
	assert.Equal(t, []string{"a-1"}, accounts.removed)
}
