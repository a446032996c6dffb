package authstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"webpub/internal/client/api"
	"webpub/internal/client/session"
	"webpub/internal/lib/logger/handlers/slogdiscard"
	"webpub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingServer wraps h and counts every request that reaches it.
func countingServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var n atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, &n
}

func notFoundEverywhere(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
}

func fakeService(t *testing.T) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/auth/signup":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(models.User{ID: "u1", Email: "a@b.com"})
		case "/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "pw1234" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"Incorrect email or password"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(models.TokenPair{AccessToken: "good", TokenType: "bearer"})
		case "/auth/me":
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"Invalid token"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(models.User{ID: "u1", Email: "a@b.com", FullName: "A B", IsActive: true})
		case "/auth/logout":
			_, _ = w.Write([]byte(`{"detail":"Logged out"}`))
		case "/auth/profile":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["email"] == "taken@b.com" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"detail":"Email already registered"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(models.User{ID: "u1", Email: "a@b.com", FullName: body["full_name"], IsActive: true})
		default:
			notFoundEverywhere(w, r)
		}
	}
}

func newStore(t *testing.T, baseURL string, keeper session.TokenKeeper) (*Store, *session.Session) {
	t.Helper()

	sess := session.New(keeper)
	return New(slogdiscard.NewDiscardLogger(), api.New(baseURL), sess), sess
}

func TestLogin_Live(t *testing.T) {
	srv, _ := countingServer(t, fakeService(t))
	keeper := session.FileKeeper{Path: filepath.Join(t.TempDir(), "token.json")}
	s, sess := newStore(t, srv.URL, keeper)

	require.NoError(t, s.Login(context.Background(), "a@b.com", "pw1234", true))

	st := s.State()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, Authenticated, st.Phase)
	assert.Equal(t, "A B", st.User.FullName)
	assert.Equal(t, session.Live, sess.Mode())

	saved, err := keeper.Load()
	require.NoError(t, err)
	assert.Equal(t, "good", saved)
}

func TestLogin_WrongPassword(t *testing.T) {
	srv, _ := countingServer(t, fakeService(t))
	s, sess := newStore(t, srv.URL, nil)

	err := s.Login(context.Background(), "a@b.com", "nope", false)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))

	st := s.State()
	assert.Equal(t, Anonymous, st.Phase)
	assert.False(t, st.IsAuthenticated)
	assert.False(t, st.Loading)
	assert.Equal(t, "Incorrect email or password", st.Error)
	assert.Equal(t, session.Live, sess.Mode())
}

func TestLogin_404FallsBackToLocalAndStaysOffline(t *testing.T) {
	srv, hits := countingServer(t, notFoundEverywhere)
	s, sess := newStore(t, srv.URL, nil)
	ctx := context.Background()

	require.NoError(t, s.Login(ctx, LocalEmail, LocalPassword, false))
	assert.Equal(t, session.Local, sess.Mode())
	assert.Equal(t, LocalUserID, s.State().User.ID)

	seen := hits.Load()
	require.Equal(t, int64(2), seen, "login plus one health check")

	for i := 0; i < 3; i++ {
		s.Logout(ctx)
		require.NoError(t, s.Login(ctx, LocalEmail, LocalPassword, false))
	}

	assert.Equal(t, seen, hits.Load())
	assert.Equal(t, session.Local, sess.Mode())
	assert.Error(t, s.Login(ctx, LocalEmail, "wrong", false))
	assert.Equal(t, "Incorrect email or password", s.State().Error)
}

func TestLogin_404WithHealthyServiceStaysLive(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		notFoundEverywhere(w, r)
	})
	s, sess := newStore(t, srv.URL, nil)

	err := s.Login(context.Background(), LocalEmail, LocalPassword, false)
	assert.Equal(t, http.StatusNotFound, api.StatusOf(err))
	assert.Equal(t, session.Live, sess.Mode())
	assert.False(t, s.State().IsAuthenticated)
}

func TestLogin_UnreachableFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	s, sess := newStore(t, addr, nil)

	require.NoError(t, s.Login(context.Background(), LocalEmail, LocalPassword, false))
	assert.True(t, sess.IsLocal())
}

func TestRegister_Local(t *testing.T) {
	srv, hits := countingServer(t, notFoundEverywhere)
	s, sess := newStore(t, srv.URL, nil)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "New@b.com", "secret1", "New User"))
	require.True(t, sess.IsLocal())

	st := s.State()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "new@b.com", st.User.Email)
	assert.Equal(t, "New User", st.User.FullName)

	seen := hits.Load()

	s.Logout(ctx)
	require.NoError(t, s.Login(ctx, "new@b.com", "secret1", false))
	assert.Error(t, s.Register(ctx, "new@b.com", "other1", "Dup"))
	assert.Equal(t, "Email already registered", s.State().Error)
	assert.Equal(t, seen, hits.Load())
}

func TestRegister_Live(t *testing.T) {
	srv, _ := countingServer(t, fakeService(t))
	s, _ := newStore(t, srv.URL, nil)

	require.NoError(t, s.Register(context.Background(), "a@b.com", "pw1234", "A B"))
	assert.True(t, s.State().IsAuthenticated)
}

func TestFetchUserProfile_RejectedTokenLogsOut(t *testing.T) {
	srv, _ := countingServer(t, fakeService(t))
	keeper := &session.MemoryKeeper{}
	require.NoError(t, keeper.Save("stale"))

	s, _ := newStore(t, srv.URL, keeper)
	require.Equal(t, "stale", s.Token())

	err := s.FetchUserProfile(context.Background())
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))

	st := s.State()
	assert.Empty(t, st.Token)
	assert.Equal(t, Anonymous, st.Phase)

	saved, _ := keeper.Load()
	assert.Empty(t, saved)
}

func TestFetchUserProfile_AbsentReturnsFixedProfile(t *testing.T) {
	srv, _ := countingServer(t, notFoundEverywhere)
	keeper := &session.MemoryKeeper{}
	require.NoError(t, keeper.Save("whatever"))

	s, sess := newStore(t, srv.URL, keeper)

	require.NoError(t, s.FetchUserProfile(context.Background()))
	assert.True(t, sess.IsLocal())
	assert.Equal(t, LocalEmail, s.State().User.Email)

	require.NoError(t, s.FetchUserProfile(context.Background()))
}

func TestUpdateProfile_Live(t *testing.T) {
	srv, _ := countingServer(t, fakeService(t))
	s, _ := newStore(t, srv.URL, nil)
	ctx := context.Background()

	name := "Renamed"
	assert.ErrorIs(t, s.UpdateProfile(ctx, nil, &name), ErrNotAuthenticated)

	require.NoError(t, s.Login(ctx, "a@b.com", "pw1234", false))
	require.NoError(t, s.UpdateProfile(ctx, nil, &name))
	assert.Equal(t, "Renamed", s.State().User.FullName)

	taken := "taken@b.com"
	err := s.UpdateProfile(ctx, &taken, nil)
	assert.Equal(t, http.StatusBadRequest, api.StatusOf(err))

	st := s.State()
	assert.Equal(t, "Email already registered", st.Error)
	assert.True(t, st.IsAuthenticated, "a rejected update keeps the session")
	assert.Equal(t, "Renamed", st.User.FullName)
}

func TestUpdateProfile_Local(t *testing.T) {
	srv, _ := countingServer(t, notFoundEverywhere)
	s, sess := newStore(t, srv.URL, nil)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "new@b.com", "secret1", "New User"))
	require.True(t, sess.IsLocal())

	email := " Moved@B.com "
	require.NoError(t, s.UpdateProfile(ctx, &email, nil))
	assert.Equal(t, "moved@b.com", s.State().User.Email)
	assert.Equal(t, "New User", s.State().User.FullName)

	require.NoError(t, s.FetchUserProfile(ctx))
	assert.Equal(t, "moved@b.com", s.State().User.Email)

	fixed := LocalEmail
	assert.Error(t, s.UpdateProfile(ctx, &fixed, nil))
	assert.Equal(t, "Email already registered", s.State().Error)

	s.Logout(ctx)
	require.NoError(t, s.Login(ctx, "moved@b.com", "secret1", false))
}

func TestCheckAuth(t *testing.T) {
	srv, hits := countingServer(t, fakeService(t))
	s, sess := newStore(t, srv.URL, nil)
	ctx := context.Background()

	assert.False(t, s.CheckAuth(ctx))
	assert.Zero(t, hits.Load())

	require.NoError(t, s.Login(ctx, "a@b.com", "pw1234", false))
	assert.True(t, s.CheckAuth(ctx))

	sess.SwitchToLocal()
	s.Logout(ctx)
	assert.True(t, s.CheckAuth(ctx))
}

func TestLogout_LiveNotifiesService(t *testing.T) {
	var logouts atomic.Int64
	base := fakeService(t)
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/logout" {
			logouts.Add(1)
		}
		base(w, r)
	})
	s, _ := newStore(t, srv.URL, nil)
	ctx := context.Background()

	require.NoError(t, s.Login(ctx, "a@b.com", "pw1234", false))
	s.Logout(ctx)

	assert.Equal(t, int64(1), logouts.Load())
	assert.Equal(t, State{Phase: Anonymous}, s.State())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "anonymous", Anonymous.String())
	assert.Equal(t, "authenticating", Authenticating.String())
	assert.Equal(t, "authenticated", Authenticated.String())
}
