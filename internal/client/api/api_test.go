package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"webpub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AddsScheme(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", New("localhost:8080/").BaseURL())
	assert.Equal(t, "https://api.test/v1", New("https://api.test/v1").BaseURL())
}

func TestLoginAndMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a@b.com", body["username"])
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			_ = json.NewEncoder(w).Encode(models.TokenPair{AccessToken: "tok", TokenType: "bearer"})
		case "/auth/me":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(models.User{ID: "1", Email: "a@b.com"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	pair, err := c.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", pair.AccessToken)

	user, err := c.Me(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", user.Email)
}

func TestErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Me(context.Background(), "")

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Not authenticated", apiErr.Detail)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
	assert.False(t, errors.Is(err, ErrUnreachable))
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	err := New(addr).Health(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Zero(t, StatusOf(err))
}

func TestResourceHelpers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/posts":
			assert.Equal(t, "c1", r.URL.Query().Get("channel_id"))
			_ = json.NewEncoder(w).Encode([]models.Post{{ID: "p1"}})
		case r.Method == http.MethodPost && r.URL.Path == "/posts":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(models.Post{ID: "p2"})
		case r.Method == http.MethodPut && r.URL.Path == "/posts/p2":
			_ = json.NewEncoder(w).Encode(models.Post{ID: "p2", Content: "edited"})
		case r.Method == http.MethodDelete && r.URL.Path == "/posts/p2":
			_, _ = w.Write([]byte(`{"detail":"Post deleted successfully"}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	list, err := List[*models.Post](ctx, c, "tok", "/posts", url.Values{"channel_id": {"c1"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID)

	created, err := Create[*models.Post](ctx, c, "tok", "/posts", map[string]string{"content": "x"})
	require.NoError(t, err)
	assert.Equal(t, "p2", created.ID)

	updated, err := Update[*models.Post](ctx, c, "tok", "/posts", "p2", map[string]string{"content": "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)

	assert.NoError(t, c.Delete(ctx, "tok", "/posts", "p2"))
}

func TestExtraEndpoints(t *testing.T) {
	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/notifications":
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			assert.Equal(t, "5", r.URL.Query().Get("perPage"))
			assert.Equal(t, "false", r.URL.Query().Get("read"))
			_ = json.NewEncoder(w).Encode(models.NotificationPage{
				Notifications: []*models.Notification{{ID: "n6"}},
				Page:          2,
				PerPage:       5,
				Total:         6,
				UnreadCount:   6,
			})
		case r.Method == http.MethodPost && r.URL.Path == "/posts/p1/schedule":
			var in struct {
				ScheduledAt time.Time `json:"scheduledAt"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			_ = json.NewEncoder(w).Encode(models.Post{ID: "p1", Status: models.PostScheduled, ScheduledTime: in.ScheduledAt})
		case r.Method == http.MethodGet && r.URL.Path == "/channels/c1/stats":
			_ = json.NewEncoder(w).Encode(models.ChannelStats{ChannelID: "c1", PostsTotal: 4})
		case r.Method == http.MethodPut && r.URL.Path == "/auth/profile":
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, map[string]string{"full_name": "New"}, in)
			_ = json.NewEncoder(w).Encode(models.User{ID: "u1", FullName: in["full_name"]})
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	page, err := c.Notifications(ctx, "tok", 2, 5, url.Values{"read": {"false"}})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	require.Len(t, page.Notifications, 1)

	p, err := c.SchedulePost(ctx, "tok", "p1", at)
	require.NoError(t, err)
	assert.Equal(t, models.PostScheduled, p.Status)
	assert.True(t, at.Equal(p.ScheduledTime))

	st, err := c.ChannelStats(ctx, "tok", "c1")
	require.NoError(t, err)
	assert.Equal(t, 4, st.PostsTotal)

	name := "New"
	u, err := c.UpdateProfile(ctx, "tok", nil, &name)
	require.NoError(t, err)
	assert.Equal(t, "New", u.FullName)
}
