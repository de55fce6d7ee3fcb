// Package instagram publishes images, carousels and reels through the
// Instagram Graph API.
package instagram

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
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL      = "https://graph.instagram.com"
	DefaultAuthURL      = "https://api.instagram.com"
	DefaultAPIVersion   = "v22.0"
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 5 * time.Minute

	statusInProgress = "IN_PROGRESS"
)

type Config struct {
	BaseURL      string
	AuthURL      string
	APIVersion   string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	PollInterval time.Duration
	PollTimeout  time.Duration
	HTTPClient   *http.Client
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = platform.NewHTTPClient()
	}
	return c
}

// Client acts on behalf of one linked Instagram account.
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

// CreatePost publishes one image, or a carousel when more than one url is
// given. Carousel items carry no caption; the carousel container does.
func (c *Client) CreatePost(ctx context.Context, urls []string, caption string) (*platform.Result, error) {
	if len(urls) == 0 {
		return nil, models.NewValidationError(platform.ErrEmptyMedia.Error())
	}

	if len(urls) == 1 {
		containerID, err := c.createContainer(ctx, transfer.InstagramContainerRequest{
			ImageURL: urls[0],
			Caption:  caption,
		})
		if err != nil {
			return nil, err
		}
		return c.publish(ctx, containerID)
	}

	children := make([]string, 0, len(urls))
	for _, u := range urls {
		containerID, err := c.createContainer(ctx, transfer.InstagramContainerRequest{
			ImageURL:       u,
			IsCarouselItem: true,
		})
		if err != nil {
			return nil, err
		}
		children = append(children, containerID)
	}

	carouselID, err := c.createContainer(ctx, transfer.InstagramContainerRequest{
		MediaType: "CAROUSEL",
		Children:  children,
		Caption:   caption,
	})
	if err != nil {
		return nil, err
	}

	return c.publish(ctx, carouselID)
}

// CreateReel uploads a video container, waits until Instagram finishes
// processing it and publishes it.
func (c *Client) CreateReel(ctx context.Context, videoURL, caption string) (*platform.Result, error) {
	if videoURL == "" {
		return nil, models.NewValidationError(platform.ErrEmptyMedia.Error())
	}

	containerID, err := c.createContainer(ctx, transfer.InstagramContainerRequest{
		VideoURL:  videoURL,
		MediaType: "REELS",
		Caption:   caption,
	})
	if err != nil {
		return nil, err
	}

	status, err := c.awaitContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if status != "FINISHED" {
		log.Printf("Instagram container %s ended in %s, attempting publish", containerID, status)
	}

	return c.publish(ctx, containerID)
}

// GetUser looks up the profile behind the account's token.
func (c *Client) GetUser(ctx context.Context) (*transfer.InstagramUserInfo, error) {
	var user transfer.InstagramUserInfo
	params := url.Values{}
	params.Set("fields", "user_id,username,name,profile_picture_url")
	if err := c.get(ctx, c.versioned("me"), params, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RefreshToken exchanges the current long-lived token for a new one. It is
// the RefreshFunc handed to the token manager.
func (c *Client) RefreshToken(ctx context.Context, acc *models.Account) (*platform.Token, error) {
	if acc.AccessToken == "" {
		return nil, models.NewTokenRefreshError(models.ProviderInstagram, errors.New("no access token to refresh"))
	}

	params := url.Values{}
	params.Set("grant_type", "ig_refresh_token")
	params.Set("access_token", acc.AccessToken)

	var result transfer.InstagramTokenResponse
	if err := c.send(ctx, http.MethodGet, c.cfg.BaseURL+"/refresh_access_token?"+params.Encode(), nil, &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, errors.New("refresh response did not include an access token")
	}

	return &platform.Token{
		AccessToken: result.AccessToken,
		ExpiresIn:   result.ExpiresIn,
		TokenType:   result.TokenType,
	}, nil
}

func (c *Client) createContainer(ctx context.Context, req transfer.InstagramContainerRequest) (string, error) {
	var media transfer.InstagramMediaResponse
	err := c.post(ctx, c.versioned(c.acc.ProviderAccountID, "media"), func(token string) any {
		req.AccessToken = token
		return req
	}, &media)
	if err != nil {
		return "", fmt.Errorf("error creating container: %w", err)
	}
	if media.ID == "" {
		return "", errors.New("no container ID returned from Instagram")
	}
	return media.ID, nil
}

// awaitContainer polls the container status, first immediately and then
// every PollInterval, until it leaves IN_PROGRESS or PollTimeout elapses.
func (c *Client) awaitContainer(ctx context.Context, containerID string) (string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("fields", "status_code")

	for {
		var status transfer.InstagramContainerStatus
		err := c.get(pollCtx, c.versioned(containerID), params, &status)
		if err != nil {
			if ctx.Err() == nil && pollCtx.Err() != nil {
				return "", c.pollTimeout(containerID)
			}
			return "", fmt.Errorf("error polling container: %w", err)
		}

		code := status.StatusCode
		if code == "" {
			code = status.Status
		}
		if code != statusInProgress {
			return code, nil
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", c.pollTimeout(containerID)
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

func (c *Client) pollTimeout(containerID string) error {
	return models.NewTimeoutError(fmt.Sprintf("instagram container %s not ready after %s", containerID, c.cfg.PollTimeout))
}

func (c *Client) publish(ctx context.Context, containerID string) (*platform.Result, error) {
	var media transfer.InstagramMediaResponse
	err := c.post(ctx, c.versioned(c.acc.ProviderAccountID, "media_publish"), func(token string) any {
		return transfer.InstagramPublishRequest{AccessToken: token, CreationID: containerID}
	}, &media)
	if err != nil {
		return nil, fmt.Errorf("error publishing container: %w", err)
	}

	log.Printf("Published Instagram media %s for account %s", media.ID, c.acc.ProviderAccountID)
	return &platform.Result{ID: media.ID}, nil
}

func (c *Client) versioned(parts ...string) string {
	return c.cfg.BaseURL + "/" + c.cfg.APIVersion + "/" + strings.Join(parts, "/")
}

func (c *Client) authorize(ctx context.Context) error {
	if c.tokens != nil {
		if err := c.tokens.EnsureValidToken(ctx, c.acc, c.RefreshToken); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.authorize(ctx); err != nil {
		return err
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("access_token", c.acc.AccessToken)

	return c.send(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil, out)
}

// post builds the body only after the token check so a refreshed token is
// the one sent.
func (c *Client) post(ctx context.Context, endpoint string, body func(token string) any, out any) error {
	if err := c.authorize(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body(c.acc.AccessToken))
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	return c.send(ctx, http.MethodPost, endpoint, payload, out)
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

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

	return decodeResponse(resp.StatusCode, body, out)
}

// decodeResponse turns an error body, or any non-2xx status, into an
// ExternalAPIError.
func decodeResponse(status int, body []byte, out any) error {
	var errResp transfer.InstagramErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		e := errResp.Error
		msg := e.ErrorUserMsg
		if msg == "" {
			msg = e.Message
		}
		apiErr := &models.ExternalAPIError{
			Provider:   models.ProviderInstagram,
			HTTPStatus: status,
			Code:       strconv.Itoa(e.Code),
			Message:    msg,
			LogID:      e.FbtraceID,
			Transient:  e.IsTransient,
		}
		if e.ErrorSubcode != 0 {
			apiErr.Subcode = strconv.Itoa(e.ErrorSubcode)
		}
		slog.Info(apiErr.Error())
		return apiErr
	}

	if status < 200 || status >= 300 {
		apiErr := &models.ExternalAPIError{
			Provider:   models.ProviderInstagram,
			HTTPStatus: status,
			Code:       strconv.Itoa(status),
			Message:    strings.TrimSpace(string(body)),
		}
		slog.Info(apiErr.Error())
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}
