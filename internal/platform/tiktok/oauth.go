package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
	"golang.org/x/time/rate"
)

const (
	AuthorizeURL = "https://www.tiktok.com/v2/auth/authorize"
	Scopes       = "user.info.basic,user.info.profile,video.publish,video.upload"
)

// AuthCodeURL is where the user is sent to grant publishing access.
func AuthCodeURL(cfg Config, state string) string {
	params := url.Values{}
	params.Add("client_key", cfg.ClientKey)
	params.Add("scope", Scopes)
	params.Add("response_type", "code")
	params.Add("redirect_uri", cfg.RedirectURI)
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", AuthorizeURL, params.Encode())
}

// ExchangeCode trades an authorization code for access and refresh tokens.
func ExchangeCode(ctx context.Context, cfg Config, code string) (*platform.Token, error) {
	cfg = cfg.withDefaults()

	data := url.Values{}
	data.Set("client_key", cfg.ClientKey)
	data.Set("client_secret", cfg.ClientSecret)
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", cfg.RedirectURI)

	return requestToken(ctx, cfg, nil, data)
}

func requestToken(ctx context.Context, cfg Config, limiter *rate.Limiter, data url.Values) (*platform.Token, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/oauth/token/", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := platform.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	var tokenResponse transfer.TiktokTokenResponse
	if err := json.Unmarshal(body, &tokenResponse); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	if tokenResponse.Error != "" || resp.StatusCode != http.StatusOK || tokenResponse.AccessToken == "" {
		code := tokenResponse.Error
		if code == "" {
			code = http.StatusText(resp.StatusCode)
		}
		apiErr := &models.ExternalAPIError{
			Provider:   models.ProviderTiktok,
			HTTPStatus: resp.StatusCode,
			Code:       code,
			Message:    tokenResponse.ErrorDescription,
			LogID:      tokenResponse.LogID,
		}
		slog.Info(apiErr.Error())
		return nil, apiErr
	}

	return &platform.Token{
		AccessToken:      tokenResponse.AccessToken,
		RefreshToken:     tokenResponse.RefreshToken,
		ExpiresIn:        tokenResponse.ExpiresIn,
		RefreshExpiresIn: tokenResponse.RefreshExpiresIn,
		TokenType:        tokenResponse.TokenType,
		Scope:            tokenResponse.Scope,
		ProviderUserID:   tokenResponse.OpenID,
	}, nil
}
