package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const AuthorizeURL = "https://www.instagram.com/oauth/authorize"

// AuthCodeURL is where the user is sent to grant publishing access.
func AuthCodeURL(cfg Config, state string) string {
	params := url.Values{}
	params.Add("client_id", cfg.ClientID)
	params.Add("scope", "instagram_business_basic,instagram_business_content_publish")
	params.Add("response_type", "code")
	params.Add("redirect_uri", cfg.RedirectURI)
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", AuthorizeURL, params.Encode())
}

// ExchangeCode trades an authorization code for a long-lived token. The
// short-lived token from the first step is never stored.
func ExchangeCode(ctx context.Context, cfg Config, code string) (*platform.Token, error) {
	cfg = cfg.withDefaults()

	data := url.Values{}
	data.Set("client_id", cfg.ClientID)
	data.Set("client_secret", cfg.ClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", cfg.RedirectURI)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.AuthURL+"/oauth/access_token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var short transfer.InstagramTokenResponse
	if err := doJSON(cfg.HTTPClient, req, &short); err != nil {
		return nil, fmt.Errorf("failed to get short-lived token: %w", err)
	}

	params := url.Values{}
	params.Set("grant_type", "ig_exchange_token")
	params.Set("client_secret", cfg.ClientSecret)
	params.Set("access_token", short.AccessToken)

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/access_token?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var long transfer.InstagramTokenResponse
	if err := doJSON(cfg.HTTPClient, req, &long); err != nil {
		return nil, fmt.Errorf("failed to get long-lived token: %w", err)
	}

	return &platform.Token{
		AccessToken:    long.AccessToken,
		ExpiresIn:      long.ExpiresIn,
		TokenType:      long.TokenType,
		Scope:          short.Permissions,
		ProviderUserID: strconv.FormatInt(short.UserID, 10),
	}, nil
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	body, err := platform.ReadBody(resp)
	if err != nil {
		return err
	}

	// The OAuth host reports errors as {error_type, code, error_message}.
	if resp.StatusCode != http.StatusOK {
		var oauthErr struct {
			ErrorType    string `json:"error_type"`
			Code         int    `json:"code"`
			ErrorMessage string `json:"error_message"`
		}
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.ErrorMessage != "" {
			return fmt.Errorf("%s: %s", oauthErr.ErrorType, oauthErr.ErrorMessage)
		}
	}

	return decodeResponse(resp.StatusCode, body, out)
}
