// Package platform holds what the Instagram and TikTok clients share: the
// token lifecycle manager, outbound rate limiting and the publish result.
package platform

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const DefaultHTTPTimeout = 60 * time.Second

// Result identifies a published post on a platform. Link is empty when the
// platform does not return one synchronously.
type Result struct {
	ID   string `json:"id"`
	Link string `json:"link,omitempty"`
}

// Token is a freshly issued credential. ExpiresIn values are seconds from
// now; zero means the platform did not say.
type Token struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	RefreshExpiresIn int64
	TokenType        string
	Scope            string
	ProviderUserID   string
}

// NewLimiter allows perSec requests per second with an equal burst. A
// non-positive rate disables limiting.
func NewLimiter(perSec int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSec), perSec)
}

func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// ReadBody reads at most 1MB of a response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return body, nil
}

var ErrEmptyMedia = errors.New("at least one media url is required")
