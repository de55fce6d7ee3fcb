package service

import (
	"context"
	"log"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/platform/instagram"
	"github.com/maheshrc27/postflow/internal/platform/tiktok"
	"golang.org/x/time/rate"
)

type InstagramPublisher interface {
	CreatePost(ctx context.Context, urls []string, caption string) (*platform.Result, error)
	CreateReel(ctx context.Context, videoURL, caption string) (*platform.Result, error)
}

type TiktokPublisher interface {
	CreatePhotoPost(ctx context.Context, urls []string, caption string) (*platform.Result, error)
	CreateVideoPost(ctx context.Context, videoURL, caption string) (*platform.Result, error)
}

// ClientFactory builds a platform client bound to one linked account.
type ClientFactory interface {
	Instagram(acc *models.Account) InstagramPublisher
	Tiktok(acc *models.Account) TiktokPublisher
}

// AccountLinker turns an OAuth callback code into a linked account.
type AccountLinker interface {
	AuthURL(provider, state string) (string, error)
	Link(ctx context.Context, provider, code string) (*models.Account, error)
	Refresher(acc *models.Account) (platform.RefreshFunc, error)
}

// PlatformClients owns the per-provider configuration and rate limiters that
// every client for that provider shares.
type PlatformClients struct {
	ig        instagram.Config
	tt        tiktok.Config
	tokens    *platform.TokenManager
	igLimiter *rate.Limiter
	ttLimiter *rate.Limiter
}

func NewPlatformClients(cfg *config.Config, tokens *platform.TokenManager) *PlatformClients {
	return &PlatformClients{
		ig: instagram.Config{
			APIVersion:   cfg.InstagramAPIVersion,
			ClientID:     cfg.InstagramClientID,
			ClientSecret: cfg.InstagramClientSecret,
			RedirectURI:  cfg.InstagramRedirectURI,
			PollInterval: cfg.ContainerPollInterval,
			PollTimeout:  cfg.ContainerPollTimeout,
		},
		tt: tiktok.Config{
			ClientKey:    cfg.TiktokClientKey,
			ClientSecret: cfg.TiktokClientSecret,
			RedirectURI:  cfg.TiktokRedirectURI,
			PrivacyLevel: cfg.TiktokPrivacyLevel,
		},
		tokens:    tokens,
		igLimiter: platform.NewLimiter(cfg.InstagramRatePerSec),
		ttLimiter: platform.NewLimiter(cfg.TiktokRatePerSec),
	}
}

func (p *PlatformClients) Instagram(acc *models.Account) InstagramPublisher {
	return p.instagram(acc)
}

func (p *PlatformClients) Tiktok(acc *models.Account) TiktokPublisher {
	return p.tiktok(acc)
}

func (p *PlatformClients) instagram(acc *models.Account) *instagram.Client {
	return instagram.NewClient(p.ig, acc, p.tokens, p.igLimiter)
}

func (p *PlatformClients) tiktok(acc *models.Account) *tiktok.Client {
	return tiktok.NewClient(p.tt, acc, p.tokens, p.ttLimiter)
}

func (p *PlatformClients) AuthURL(provider, state string) (string, error) {
	switch provider {
	case models.ProviderInstagram:
		return instagram.AuthCodeURL(p.ig, state), nil
	case models.ProviderTiktok:
		return tiktok.AuthCodeURL(p.tt, state), nil
	default:
		return "", models.NewValidationError("unsupported platform: " + provider)
	}
}

// Link exchanges code for a token and fills in the profile of the account
// it belongs to. The returned account is not yet persisted.
func (p *PlatformClients) Link(ctx context.Context, provider, code string) (*models.Account, error) {
	var token *platform.Token
	var err error
	switch provider {
	case models.ProviderInstagram:
		token, err = instagram.ExchangeCode(ctx, p.ig, code)
	case models.ProviderTiktok:
		token, err = tiktok.ExchangeCode(ctx, p.tt, code)
	default:
		return nil, models.NewValidationError("unsupported platform: " + provider)
	}
	if err != nil {
		return nil, err
	}

	acc := &models.Account{
		Provider:          provider,
		ProviderAccountID: token.ProviderUserID,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		TokenType:         token.TokenType,
		Scope:             token.Scope,
	}
	now := time.Now()
	if token.ExpiresIn > 0 {
		acc.ExpiresAt = now.Add(time.Duration(token.ExpiresIn) * time.Second).Unix()
	}
	if token.RefreshExpiresIn > 0 {
		acc.RefreshExpiresAt = now.Add(time.Duration(token.RefreshExpiresIn) * time.Second).Unix()
	}

	switch provider {
	case models.ProviderInstagram:
		user, err := p.instagram(acc).GetUser(ctx)
		if err != nil {
			return nil, err
		}
		if user.UserID != "" {
			acc.ProviderAccountID = user.UserID
		}
		acc.Username = user.Username
		acc.AvatarURL = user.ProfilePicture
	case models.ProviderTiktok:
		user, err := p.tiktok(acc).GetUser(ctx)
		if err != nil {
			return nil, err
		}
		acc.ProviderAccountID = user.OpenID
		acc.Username = user.Username
		if acc.Username == "" {
			acc.Username = user.DisplayName
		}
		acc.AvatarURL = user.AvatarURL
	}

	log.Printf("Linked %s account %s", provider, acc.Username)
	return acc, nil
}

// Refresher returns the refresh call for acc's provider.
func (p *PlatformClients) Refresher(acc *models.Account) (platform.RefreshFunc, error) {
	switch acc.Provider {
	case models.ProviderInstagram:
		return p.instagram(acc).RefreshToken, nil
	case models.ProviderTiktok:
		return p.tiktok(acc).RefreshToken, nil
	default:
		return nil, models.NewValidationError("unsupported platform: " + acc.Provider)
	}
}
