package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePostService struct {
	created *transfer.PostCreation
	userID  string
	removed string
	err     error
}

func (f *fakePostService) CreatePost(ctx context.Context, userID string, pc *transfer.PostCreation) (*transfer.PostCreated, error) {
	f.userID = userID
	f.created = pc
	if f.err != nil {
		return nil, f.err
	}
	return &transfer.PostCreated{
		Post:    &models.Post{ID: "post-1", UserID: userID},
		Results: []models.PlatformResult{{Platform: models.ProviderInstagram, Status: models.ResultStatusSuccess}},
	}, nil
}

func (f *fakePostService) EditPost(ctx context.Context, userID string, pu *transfer.PostUpdate) (*models.Post, error) {
	return nil, f.err
}

func (f *fakePostService) List(ctx context.Context, userID string) ([]*models.Post, error) {
	return []*models.Post{{ID: "a", UserID: userID}, {ID: "b", UserID: userID}}, f.err
}

func (f *fakePostService) PostInfo(ctx context.Context, postID, userID string) (*models.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Post{ID: postID, UserID: userID}, nil
}

func (f *fakePostService) Remove(ctx context.Context, userID, postID string) error {
	f.removed = postID
	return f.err
}

func (f *fakePostService) ExecutePost(ctx context.Context, postID string) ([]models.PlatformResult, error) {
	return nil, f.err
}

func newPostApp(s *fakePostService) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	})
	h := NewPostHandler(s)
	app.Post("/api/posts/create", h.CreatePost)
	app.Put("/api/posts/update", h.UpdatePost)
	app.Get("/api/posts", h.ListPosts)
	app.Post("/api/posts/remove", h.RemovePost)
	return app
}

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestCreatePost(t *testing.T) {
	s := &fakePostService{}
	app := newPostApp(s)

	req := httptest.NewRequest("POST", "/api/posts/create", strings.NewReader(
		`{"type":"pics","file_names":["a.jpg"],"caption":"hi","platforms":["instagram"],"scheduled":false}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decode(t, resp.Body)
	assert.Equal(t, "Post published", body["message"])
	assert.Len(t, body["results"], 1)
	assert.Equal(t, "user-1", s.userID)
	assert.Equal(t, []string{"a.jpg"}, s.created.FileNames)
	assert.Equal(t, []string{"instagram"}, s.created.Platforms)
}

func TestCreatePost_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "validation", err: models.NewValidationError("file_names: cannot be blank."), status: 400, code: "validation_error"},
		{name: "no account", err: models.NewUnauthorizedError("no linked account"), status: 401, code: "unauthorized"},
		{name: "story", err: models.NewNotImplementedError("story posts"), status: 501, code: "not_implemented"},
		{name: "unexpected", err: errors.New("pq: connection reset"), status: 500, code: "internal_server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newPostApp(&fakePostService{err: tt.err})
			req := httptest.NewRequest("POST", "/api/posts/create", strings.NewReader(`{"type":"pics"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decode(t, resp.Body)
			assert.Equal(t, tt.code, body["code"])
			assert.NotContains(t, body["error"], "pq:")
		})
	}
}

func TestCreatePost_BadBody(t *testing.T) {
	s := &fakePostService{}
	app := newPostApp(s)
	req := httptest.NewRequest("POST", "/api/posts/create", strings.NewReader(`{"type":`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Nil(t, s.created)
}

func TestListPosts(t *testing.T) {
	app := newPostApp(&fakePostService{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/posts", nil))
	require.NoError(t, err)
	var posts []models.Post
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&posts))
	assert.Len(t, posts, 2)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/posts?id=xyz", nil))
	require.NoError(t, err)
	var post models.Post
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&post))
	assert.Equal(t, "xyz", post.ID)
}

func TestRemovePost(t *testing.T) {
	s := &fakePostService{}
	app := newPostApp(s)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/posts/remove?id=p1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "p1", s.removed)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/posts/remove", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUpdatePost_NotFound(t *testing.T) {
	app := newPostApp(&fakePostService{err: models.NewNotFoundError("post")})
	req := httptest.NewRequest("PUT", "/api/posts/update", strings.NewReader(`{"post_id":"nope","caption":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "post not found", decode(t, resp.Body)["error"])
}

func TestErrorHandler_UnknownRoute(t *testing.T) {
	app := newPostApp(&fakePostService{})

	resp, err := app.Test(httptest.NewRequest("GET", "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
