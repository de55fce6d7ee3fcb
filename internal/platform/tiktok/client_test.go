package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshAccount() *models.Account {
	return &models.Account{
		Provider:          models.ProviderTiktok,
		ProviderAccountID: "open-1",
		AccessToken:       "act.1",
		RefreshToken:      "rft.1",
		ExpiresAt:         time.Now().Add(time.Hour).Unix(),
	}
}

func TestCreatePhotoPost(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/post/publish/content/init/", r.URL.Path)
		assert.Equal(t, "Bearer act.1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"data":{"publish_id":"p_pub_1"},"error":{"code":"ok","message":"","log_id":"L1"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}, freshAccount(), nil, nil)
	res, err := c.CreatePhotoPost(context.Background(), []string{"https://media.example.com/a.jpg", "https://media.example.com/b.jpg"}, "my caption")
	require.NoError(t, err)
	assert.Equal(t, "p_pub_1", res.ID)

	assert.Equal(t, "PHOTO", body["media_type"])
	assert.Equal(t, "DIRECT_POST", body["post_mode"])
	postInfo := body["post_info"].(map[string]any)
	assert.Equal(t, "my caption", postInfo["description"])
	assert.Equal(t, "SELF_ONLY", postInfo["privacy_level"])
	source := body["source_info"].(map[string]any)
	assert.Equal(t, "PULL_FROM_URL", source["source"])
	assert.Equal(t, float64(0), source["photo_cover_index"])
	assert.Equal(t, []any{"https://media.example.com/a.jpg", "https://media.example.com/b.jpg"}, source["photo_images"])
}

func TestCreateVideoPost(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/post/publish/video/init/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"data":{"post_id":"7301","post_link":"https://www.tiktok.com/@me/video/7301"},"error":{"code":"ok"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client(), PrivacyLevel: "PUBLIC_TO_EVERYONE"}, freshAccount(), nil, nil)
	res, err := c.CreateVideoPost(context.Background(), "https://media.example.com/v.mp4", "title")
	require.NoError(t, err)
	assert.Equal(t, "7301", res.ID)
	assert.Equal(t, "https://www.tiktok.com/@me/video/7301", res.Link)

	postInfo := body["post_info"].(map[string]any)
	assert.Equal(t, "title", postInfo["title"])
	assert.Equal(t, "PUBLIC_TO_EVERYONE", postInfo["privacy_level"])
	source := body["source_info"].(map[string]any)
	assert.Equal(t, "https://media.example.com/v.mp4", source["video_url"])
}

func TestCreatePhotoPost_ErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":"url_ownership_unverified","message":"domain not verified","log_id":"L9"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}, freshAccount(), nil, nil)
	_, err := c.CreatePhotoPost(context.Background(), []string{"https://x/a.jpg"}, "")
	require.Error(t, err)

	var apiErr *models.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "url_ownership_unverified", apiErr.Code)
	assert.Equal(t, "L9", apiErr.LogID)
	assert.Equal(t, http.StatusForbidden, apiErr.HTTPStatus)
	assert.False(t, models.IsRetryable(err))
}

func TestCreatePhotoPost_RateLimitedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":"rate_limit_exceeded","message":"slow down"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}, freshAccount(), nil, nil)
	_, err := c.CreatePhotoPost(context.Background(), []string{"https://x/a.jpg"}, "")
	require.Error(t, err)
	assert.True(t, models.IsRetryable(err))
}

func TestRefreshToken_MissingRefreshTokenMakesNoCall(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	acc := freshAccount()
	acc.RefreshToken = ""
	c := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}, acc, nil, nil)

	_, err := c.RefreshToken(context.Background(), acc)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindTokenRefresh))
	assert.Equal(t, int32(0), hits)
}

type oneAccountStore struct {
	acc    models.Account
	writes int
}

func (s *oneAccountStore) GetByProvider(ctx context.Context, provider, providerAccountID string) (*models.Account, error) {
	cp := s.acc
	return &cp, nil
}

func (s *oneAccountStore) SetToken(ctx context.Context, acc *models.Account, oldAccessToken string) error {
	s.writes++
	s.acc = *acc
	return nil
}

func TestCreateVideoPost_RefreshesStaleTokenFirst(t *testing.T) {
	var order []string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token/", func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "refresh")
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rft.1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "key", r.PostForm.Get("client_key"))
		fmt.Fprint(w, `{"access_token":"act.2","expires_in":86400,"refresh_token":"rft.2","refresh_expires_in":31536000,"open_id":"open-1","token_type":"Bearer"}`)
	})
	mux.HandleFunc("/post/publish/video/init/", func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "post")
		assert.Equal(t, "Bearer act.2", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":{"publish_id":"v_pub_1"},"error":{"code":"ok"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acc := freshAccount()
	acc.ExpiresAt = time.Now().Add(time.Minute).Unix()
	store := &oneAccountStore{acc: *acc}
	tokens := platform.NewTokenManager(store, nil)

	c := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client(), ClientKey: "key"}, acc, tokens, nil)
	_, err := c.CreateVideoPost(context.Background(), "https://media.example.com/v.mp4", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"refresh", "post"}, order)
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, "act.2", store.acc.AccessToken)
	assert.Equal(t, "rft.2", store.acc.RefreshToken)
	assert.Greater(t, store.acc.ExpiresAt, time.Now().Add(23*time.Hour).Unix())
}

func TestExchangeCode_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Authorization code is expired.","log_id":"L2"}`)
	}))
	defer srv.Close()

	_, err := ExchangeCode(context.Background(), Config{BaseURL: srv.URL, HTTPClient: srv.Client()}, "old-code")
	var apiErr *models.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_grant", apiErr.Code)
}
