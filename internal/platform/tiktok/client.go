// Package tiktok direct-posts photos and videos through the TikTok Open API.
// TikTok pulls the media from our public URLs itself, so there is nothing to
// poll on our side.
package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL      = "https://open.tiktokapis.com/v2"
	DefaultPrivacyLevel = "SELF_ONLY"

	codeOK = "ok"
)

type Config struct {
	BaseURL      string
	ClientKey    string
	ClientSecret string
	RedirectURI  string
	PrivacyLevel string
	HTTPClient   *http.Client
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PrivacyLevel == "" {
		c.PrivacyLevel = DefaultPrivacyLevel
	}
	if c.HTTPClient == nil {
		c.HTTPClient = platform.NewHTTPClient()
	}
	return c
}

// Client acts on behalf of one linked TikTok account.
type Client struct {
	cfg     Config
	acc     *models.Account
	tokens  *platform.TokenManager
	limiter *rate.Limiter
}

func NewClient(cfg Config, acc *models.Account, tokens *platform.TokenManager, limiter *rate.Limiter) *Client {
	if limiter == nil {
		limiter = platform.NewLimiter(0)
	}
	return &Client{
		cfg:     cfg.withDefaults(),
		acc:     acc,
		tokens:  tokens,
		limiter: limiter,
	}
}

// CreatePhotoPost direct-posts a photo carousel. The first image is the cover.
func (c *Client) CreatePhotoPost(ctx context.Context, urls []string, caption string) (*platform.Result, error) {
	if len(urls) == 0 {
		return nil, models.NewValidationError(platform.ErrEmptyMedia.Error())
	}

	body := transfer.PhotoUploadRequest{
		PostInfo: transfer.PhotoPostInfo{
			Description:  caption,
			PrivacyLevel: c.cfg.PrivacyLevel,
		},
		SourceInfo: transfer.PhotoSourceInfo{
			Source:          "PULL_FROM_URL",
			PhotoCoverIndex: 0,
			PhotoImages:     urls,
		},
		PostMode:  "DIRECT_POST",
		MediaType: "PHOTO",
	}

	return c.initPost(ctx, "/post/publish/content/init/", body)
}

// CreateVideoPost direct-posts a single video.
func (c *Client) CreateVideoPost(ctx context.Context, videoURL, caption string) (*platform.Result, error) {
	if videoURL == "" {
		return nil, models.NewValidationError(platform.ErrEmptyMedia.Error())
	}

	body := transfer.VideoUploadRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:        caption,
			PrivacyLevel: c.cfg.PrivacyLevel,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: videoURL,
		},
	}

	return c.initPost(ctx, "/post/publish/video/init/", body)
}

// GetUser looks up the profile behind the account's token.
func (c *Client) GetUser(ctx context.Context) (*transfer.TiktokUser, error) {
	var result transfer.TikTokResponse
	if err := c.request(ctx, http.MethodGet, "/user/info/?fields=open_id,avatar_url,display_name,username", nil, &result); err != nil {
		return nil, err
	}
	if err := checkError(http.StatusOK, result.Error); err != nil {
		return nil, err
	}
	return &result.Data.User, nil
}

// RefreshToken uses the stored refresh token to get a new access token. It
// is the RefreshFunc handed to the token manager.
func (c *Client) RefreshToken(ctx context.Context, acc *models.Account) (*platform.Token, error) {
	if acc.RefreshToken == "" {
		return nil, models.NewTokenRefreshError(models.ProviderTiktok, errors.New("refresh token is missing"))
	}

	data := url.Values{}
	data.Set("client_key", c.cfg.ClientKey)
	data.Set("client_secret", c.cfg.ClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", acc.RefreshToken)

	return requestToken(ctx, c.cfg, c.limiter, data)
}

func (c *Client) initPost(ctx context.Context, endpoint string, body any) (*platform.Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	var result transfer.TikTokUploadResponse
	if err := c.request(ctx, http.MethodPost, endpoint, payload, &result); err != nil {
		return nil, err
	}

	id := result.Data.PostID
	if id == "" {
		id = result.Data.PublishID
	}
	if id == "" {
		return nil, errors.New("no publish ID returned from TikTok")
	}

	log.Printf("Tiktok publish %s accepted for account %s", id, c.acc.ProviderAccountID)
	return &platform.Result{ID: id, Link: result.Data.PostLink}, nil
}

func (c *Client) request(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	if c.tokens != nil {
		if err := c.tokens.EnsureValidToken(ctx, c.acc, c.RefreshToken); err != nil {
			return err
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.acc.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := platform.ReadBody(resp)
	if err != nil {
		return err
	}

	var envelope struct {
		Error transfer.TiktokError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode >= 300 {
			return externalError(resp.StatusCode, transfer.TiktokError{Code: strconv.Itoa(resp.StatusCode), Message: strings.TrimSpace(string(body))})
		}
		return fmt.Errorf("error parsing response: %w", err)
	}
	if err := checkError(resp.StatusCode, envelope.Error); err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return externalError(resp.StatusCode, transfer.TiktokError{Code: strconv.Itoa(resp.StatusCode), Message: http.StatusText(resp.StatusCode)})
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}

// checkError treats an empty code like "ok"; older endpoints omit it.
func checkError(status int, e transfer.TiktokError) error {
	if e.Code == "" || e.Code == codeOK {
		return nil
	}
	return externalError(status, e)
}

func externalError(status int, e transfer.TiktokError) error {
	apiErr := &models.ExternalAPIError{
		Provider:   models.ProviderTiktok,
		HTTPStatus: status,
		Code:       e.Code,
		Message:    e.Message,
		LogID:      e.LogID,
		Transient:  e.Code == "rate_limit_exceeded" || e.Code == "internal_error",
	}
	slog.Info(apiErr.Error())
	return apiErr
}
