package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"webpub/internal/auth"
	"webpub/internal/lib/jwt"
	"webpub/internal/lib/logger/handlers/slogdiscard"
	"webpub/internal/metrics"
	"webpub/internal/models"
	"webpub/internal/notify"
	"webpub/internal/resources"
	"webpub/internal/storage/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "router-test-secret"

type capturePublisher struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (p *capturePublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeUploader struct {
	key  string
	body string
}

func (u *fakeUploader) Upload(_ context.Context, key, _ string, body io.Reader) (string, error) {
	b, _ := io.ReadAll(body)
	u.key, u.body = key, string(b)
	return "https://cdn.test/" + key, nil
}

type testEnv struct {
	handler http.Handler
	auth    *auth.Auth
	hub     *notify.Hub
	mail    *capturePublisher
}

type envOption func(*Deps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	log := slogdiscard.NewDiscardLogger()
	store := memory.New()
	mail := &capturePublisher{}

	a, err := auth.New(log, store, store, mail, auth.Options{
		Secret:     testSecret,
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		ResetTTL:   time.Hour,
		PublicURL:  "http://app.test",
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	hub := notify.NewHub(8)

	d := Deps{
		Env:  "local",
		Auth: a,
		Resources: resources.NewServices(log,
			memory.NewCollection[models.Channel](),
			memory.NewCollection[models.Post](),
			memory.NewCollection[models.Notification](),
			2,
			hub,
		),
		Hub:     hub,
		Metrics: metrics.New(),
	}
	for _, o := range opts {
		o(&d)
	}

	return &testEnv{handler: NewRouter(log, d), auth: a, hub: hub, mail: mail}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	return rec
}

func (e *testEnv) signupAndLogin(t *testing.T, email string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"email": email, "password": "pw1234", "full_name": "Test User",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": email, "password": "pw1234",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pair models.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))

	return pair.AccessToken
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())

	return body.Detail
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func TestSignupLoginMe(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"email": "a@b.com", "password": "pw1234", "full_name": "A B",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeInto[map[string]any](t, rec)
	assert.NotEmpty(t, created["id"])
	assert.Equal(t, "a@b.com", created["email"])
	assert.Equal(t, "A B", created["full_name"])
	assert.Equal(t, true, created["is_active"])
	assert.NotContains(t, rec.Body.String(), "pass")

	rec = e.do(t, http.MethodPost, "/auth/login", map[string]string{
		"username": "a@b.com", "password": "pw1234",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	pair := decodeInto[models.TokenPair](t, rec)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	rec = e.do(t, http.MethodGet, "/auth/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	user := decodeInto[map[string]any](t, rec)
	assert.Equal(t, created["id"], user["id"])
	assert.Equal(t, "a@b.com", user["email"])
	assert.Equal(t, "A B", user["full_name"])
	assert.Equal(t, true, user["is_active"])
}

func TestLogin_FormEncoded(t *testing.T) {
	e := newTestEnv(t)
	e.signupAndLogin(t, "form@b.com")

	form := url.Values{"username": {"form@b.com"}, "password": {"pw1234"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeInto[models.TokenPair](t, rec).AccessToken)
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newTestEnv(t)
	e.signupAndLogin(t, "a@b.com")

	wrong := e.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "a@b.com", "password": "nope"}, "")
	unknown := e.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "x@b.com", "password": "nope"}, "")

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "Incorrect email or password", detail(t, wrong))
}

func TestBadBodies(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/auth/signup", map[string]string{"email": "not-an-email", "password": "pw1234", "full_name": "X"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "field email is not a valid email", detail(t, rec))

	rec = e.do(t, http.MethodPost, "/auth/signup", map[string]string{"email": "a@b.com", "password": strings.Repeat("p", 73), "full_name": "X"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "field password must be at most 72 characters", detail(t, rec))

	rec = e.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "a@b.com"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignup_Duplicate(t *testing.T) {
	e := newTestEnv(t)
	e.signupAndLogin(t, "dup@b.com")

	rec := e.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"email": "DUP@b.com", "password": "another", "full_name": "Other",
	}, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered", detail(t, rec))
}

func TestMe_Unauthenticated(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"Not authenticated"}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/auth/me", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", detail(t, rec))
}

func TestMe_ExpiredAndUnknownSubject(t *testing.T) {
	e := newTestEnv(t)
	e.signupAndLogin(t, "a@b.com")

	expired, err := jwt.NewToken("00000000-0000-0000-0000-000000000009", jwt.TypeAccess, -time.Minute, testSecret)
	require.NoError(t, err)

	rec := e.do(t, http.MethodGet, "/auth/me", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", detail(t, rec))

	ghost, err := jwt.NewToken("00000000-0000-0000-0000-000000000009", jwt.TypeAccess, time.Minute, testSecret)
	require.NoError(t, err)

	rec = e.do(t, http.MethodGet, "/auth/me", nil, ghost)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", detail(t, rec))
}

func TestRefresh(t *testing.T) {
	e := newTestEnv(t)
	e.signupAndLogin(t, "a@b.com")

	rec := e.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "a@b.com", "password": "pw1234"}, "")
	pair := decodeInto[models.TokenPair](t, rec)

	rec = e.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	fresh := decodeInto[models.TokenPair](t, rec)
	rec = e.do(t, http.MethodGet, "/auth/me", nil, fresh.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": pair.AccessToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotAndResetPassword(t *testing.T) {
	e := newTestEnv(t)
	e.signupAndLogin(t, "a@b.com")

	known := e.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "a@b.com"}, "")
	unknown := e.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@b.com"}, "")

	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.JSONEq(t, `{"message":"`+auth.ForgotPasswordMessage+`"}`, known.Body.String())

	e.auth.Wait()
	require.Len(t, e.mail.msgs, 1)
	link, err := url.Parse(e.mail.msgs[0].Link)
	require.NoError(t, err)
	token := link.Query().Get("token")

	rec := e.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"token": token, "new_password": "brand-new"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"token": token, "new_password": "again!"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired token", detail(t, rec))

	rec = e.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "a@b.com", "password": "brand-new"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// resetToken requests a reset link for email and returns the token from the mailed link.
func (e *testEnv) resetToken(t *testing.T, email string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	e.auth.Wait()

	e.mail.mu.Lock()
	defer e.mail.mu.Unlock()
	require.NotEmpty(t, e.mail.msgs)

	link, err := url.Parse(e.mail.msgs[len(e.mail.msgs)-1].Link)
	require.NoError(t, err)

	return link.Query().Get("token")
}

func TestResetToken_IsNotABearerCredential(t *testing.T) {
	e := newTestEnv(t)
	e.signupAndLogin(t, "victim@b.com")

	token := e.resetToken(t, "victim@b.com")
	require.NotEmpty(t, token)

	rec := e.do(t, http.MethodGet, "/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", detail(t, rec))

	rec = e.do(t, http.MethodPost, "/channels", map[string]any{"channel_id": "@stolen"}, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/channels", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": token}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"token": token, "new_password": "brand-new"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPassword_AnyBodyGetsTheSameReply(t *testing.T) {
	e := newTestEnv(t)

	want := `{"message":"` + auth.ForgotPasswordMessage + `"}`

	rec := e.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "not-an-email"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, want, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password", strings.NewReader("{broken"))
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, want, rec.Body.String())

	e.auth.Wait()
	assert.Empty(t, e.mail.msgs)
}

func TestLogoutAndHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/auth/logout", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out", detail(t, rec))

	rec = e.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	h := decodeInto[map[string]any](t, rec)
	assert.Equal(t, "ok", h["status"])
	assert.Equal(t, "local", h["env"])
	assert.NotEmpty(t, h["timestamp"])
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/auth/login", "/channels", "/does-not-exist"} {
		rec := e.do(t, http.MethodOptions, path, nil, "")

		assert.Equal(t, http.StatusNoContent, rec.Code, path)
		assert.Empty(t, rec.Body.String(), path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Content-Type, Authorization", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	}

	rec := e.do(t, http.MethodGet, "/auth/me", nil, "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteAndMethod(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Not Found"}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/auth/login", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"detail":"Method Not Allowed"}`, rec.Body.String())
}

func TestBasePath(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) { d.BasePath = "/api/" })

	rec := e.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) { d.RateLimit = true })

	var last int
	for i := 0; i < 4; i++ {
		last = e.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "a@b.com"}, "").Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestChannels_CRUDAndLimit(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "owner@b.com")
	other := e.signupAndLogin(t, "other@b.com")

	rec := e.do(t, http.MethodGet, "/channels", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/channels", map[string]any{"channel_id": "@news", "channel_name": "News"}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ch := decodeInto[models.Channel](t, rec)
	assert.True(t, ch.IsActive)

	rec = e.do(t, http.MethodPost, "/channels", map[string]any{"channel_name": "no id"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/channels/"+ch.ID, nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Channel not found", detail(t, rec))

	rec = e.do(t, http.MethodPut, "/channels/"+ch.ID, map[string]any{"channel_name": "Daily"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeInto[models.Channel](t, rec)
	assert.Equal(t, "Daily", updated.ChannelName)
	assert.Equal(t, "@news", updated.ChannelID)

	rec = e.do(t, http.MethodPost, "/channels", map[string]any{"channel_id": "@two"}, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodPost, "/channels", map[string]any{"channel_id": "@three"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Maximum channel limit reached", detail(t, rec))

	rec = e.do(t, http.MethodGet, "/channels", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeInto[[]models.Channel](t, rec), 2)

	rec = e.do(t, http.MethodDelete, "/channels/"+ch.ID, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Channel deleted successfully", detail(t, rec))

	rec = e.do(t, http.MethodGet, "/channels", nil, other)
	assert.Empty(t, decodeInto[[]models.Channel](t, rec))
}

func TestPosts(t *testing.T) {
	up := &fakeUploader{}
	e := newTestEnv(t, func(d *Deps) { d.Uploader = up })
	token := e.signupAndLogin(t, "owner@b.com")

	rec := e.do(t, http.MethodPost, "/posts", map[string]any{"channel_id": "missing", "content": "hi"}, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Channel not found", detail(t, rec))

	rec = e.do(t, http.MethodPost, "/channels", map[string]any{"channel_id": "@news"}, token)
	ch := decodeInto[models.Channel](t, rec)

	rec = e.do(t, http.MethodPost, "/posts", map[string]any{"channel_id": ch.ID, "content": "hello"}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decodeInto[models.Post](t, rec)
	assert.Equal(t, models.PostDraft, post.Status)

	rec = e.do(t, http.MethodPut, "/posts/"+post.ID, map[string]any{"status": "bogus"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPut, "/posts/"+post.ID, map[string]any{"status": "approved"}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", decodeInto[models.Post](t, rec).Content)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="pic.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write([]byte("PNGDATA"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/posts/"+post.ID+"/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	withImage := decodeInto[models.Post](t, rec)
	assert.Equal(t, "https://cdn.test/"+up.key, withImage.ImageURL)
	assert.Equal(t, "PNGDATA", up.body)
	assert.Equal(t, models.PostApproved, withImage.Status)

	rec = e.do(t, http.MethodGet, "/posts?status=draft", nil, token)
	assert.Empty(t, decodeInto[[]models.Post](t, rec))
	rec = e.do(t, http.MethodGet, "/posts?status=all", nil, token)
	assert.Len(t, decodeInto[[]models.Post](t, rec), 1)
}

func TestPostImage_Disabled(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "owner@b.com")

	rec := e.do(t, http.MethodPost, "/posts/whatever/image", nil, token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNotifications(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "owner@b.com")

	rec := e.do(t, http.MethodPost, "/notifications", map[string]any{"title": "one"}, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeInto[models.Notification](t, rec)
	assert.False(t, first.Read)

	rec = e.do(t, http.MethodPost, "/notifications", map[string]any{"title": "two"}, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodPost, "/notifications/"+first.ID+"/read", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeInto[models.Notification](t, rec).Read)

	rec = e.do(t, http.MethodGet, "/notifications?read=false", nil, token)
	unread := decodeInto[models.NotificationPage](t, rec)
	assert.Len(t, unread.Notifications, 1)
	assert.Equal(t, 1, unread.UnreadCount)

	rec = e.do(t, http.MethodPost, "/notifications/mark-all-read", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeInto[map[string]any](t, rec)["updated"])

	rec = e.do(t, http.MethodPost, "/notifications/missing/read", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifications_Pages(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "owner@b.com")

	for i := 0; i < 5; i++ {
		rec := e.do(t, http.MethodPost, "/notifications", map[string]any{"title": fmt.Sprintf("n%d", i)}, token)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := e.do(t, http.MethodGet, "/notifications?page=1&perPage=2", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeInto[models.NotificationPage](t, rec)
	assert.Len(t, first.Notifications, 2)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 2, first.PerPage)
	assert.Equal(t, 5, first.Total)
	assert.True(t, first.HasMore)
	assert.Equal(t, 5, first.UnreadCount)

	rec = e.do(t, http.MethodGet, "/notifications?page=3&perPage=2", nil, token)
	last := decodeInto[models.NotificationPage](t, rec)
	assert.Len(t, last.Notifications, 1)
	assert.False(t, last.HasMore)

	rec = e.do(t, http.MethodGet, "/notifications", nil, token)
	all := decodeInto[models.NotificationPage](t, rec)
	assert.Equal(t, 10, all.PerPage)
	assert.Len(t, all.Notifications, 5)

	rec = e.do(t, http.MethodGet, "/notifications?page=two", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "field page must be an integer", detail(t, rec))
}

func TestPosts_Schedule(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "owner@b.com")

	rec := e.do(t, http.MethodPost, "/channels", map[string]any{"channel_id": "@news"}, token)
	ch := decodeInto[models.Channel](t, rec)
	rec = e.do(t, http.MethodPost, "/posts", map[string]any{"channel_id": ch.ID, "content": "hello"}, token)
	post := decodeInto[models.Post](t, rec)

	at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	rec = e.do(t, http.MethodPost, "/posts/"+post.ID+"/schedule", map[string]any{"scheduledAt": at}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scheduled := decodeInto[models.Post](t, rec)
	assert.Equal(t, models.PostScheduled, scheduled.Status)
	assert.True(t, at.Equal(scheduled.ScheduledTime))

	rec = e.do(t, http.MethodPost, "/posts/"+post.ID+"/schedule", map[string]any{"scheduledAt": time.Now().Add(-time.Hour)}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Scheduled time must be in the future", detail(t, rec))

	rec = e.do(t, http.MethodPost, "/posts/"+post.ID+"/schedule", map[string]any{}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	other := e.signupAndLogin(t, "other@b.com")
	rec = e.do(t, http.MethodPost, "/posts/"+post.ID+"/schedule", map[string]any{"scheduledAt": at}, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Post not found", detail(t, rec))
}

func TestChannels_Stats(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "owner@b.com")

	rec := e.do(t, http.MethodPost, "/channels", map[string]any{"channel_id": "@news"}, token)
	ch := decodeInto[models.Channel](t, rec)

	at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	for _, body := range []map[string]any{
		{"channel_id": ch.ID, "content": "a"},
		{"channel_id": ch.ID, "content": "b", "status": "scheduled", "scheduled_time": at},
		{"channel_id": ch.ID, "content": "c", "status": "published"},
	} {
		rec = e.do(t, http.MethodPost, "/posts", body, token)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/channels/"+ch.ID+"/stats", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeInto[models.ChannelStats](t, rec)
	assert.Equal(t, ch.ID, stats.ChannelID)
	assert.Equal(t, 3, stats.PostsTotal)
	assert.Equal(t, 1, stats.PostsByStatus[models.PostDraft])
	assert.Equal(t, 1, stats.PostsByStatus[models.PostScheduled])
	assert.Zero(t, stats.SubscribersCount)
	require.NotNil(t, stats.NextScheduledTime)
	assert.True(t, at.Equal(*stats.NextScheduledTime))

	other := e.signupAndLogin(t, "other@b.com")
	rec = e.do(t, http.MethodGet, "/channels/"+ch.ID+"/stats", nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Channel not found", detail(t, rec))
}

func TestUpdateProfile(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "owner@b.com")
	e.signupAndLogin(t, "other@b.com")

	rec := e.do(t, http.MethodPut, "/auth/profile", map[string]any{"full_name": "Renamed"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPut, "/auth/profile", map[string]any{"full_name": "Renamed"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	u := decodeInto[models.User](t, rec)
	assert.Equal(t, "Renamed", u.FullName)
	assert.Equal(t, "owner@b.com", u.Email)

	rec = e.do(t, http.MethodPut, "/auth/profile", map[string]any{"email": "Other@b.com"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered", detail(t, rec))

	rec = e.do(t, http.MethodPut, "/auth/profile", map[string]any{"email": "nope"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "field email is not a valid email", detail(t, rec))

	rec = e.do(t, http.MethodGet, "/auth/me", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", decodeInto[models.User](t, rec).FullName)
}

func TestNotifications_LiveChannel(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "live@b.com")

	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	rec := e.do(t, http.MethodGet, "/auth/me", nil, token)
	uid := decodeInto[models.User](t, rec).ID

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notifications/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return e.hub.Subscribers(uid) == 1 }, 2*time.Second, 10*time.Millisecond)

	rec = e.do(t, http.MethodPost, "/notifications", map[string]any{"title": "ping"}, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.Notification
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "ping", got.Title)
}

func TestNotifications_LiveChannelRequiresToken(t *testing.T) {
	e := newTestEnv(t)

	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notifications/ws"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodGet, "/health", nil, "")

	rec := e.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "webpub_http_requests_total")
}
