package authn

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"webpub/internal/lib/logger/handlers/slogdiscard"

	"github.com/stretchr/testify/assert"
)

type staticVerifier map[string]string

func (v staticVerifier) VerifyAccess(token string) (string, error) {
	if uid, ok := v[token]; ok {
		return uid, nil
	}
	return "", errors.New("bad token")
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}

		token, ok := BearerToken(r)
		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.token, token, tc.header)
	}
}

func TestMiddleware(t *testing.T) {
	var seen string
	h := New(slogdiscard.NewDiscardLogger(), staticVerifier{"good": "u1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"Not authenticated"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer bad")
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"Invalid token"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", seen)
}

func TestMiddleware_QueryTokenOnlyForWebSocket(t *testing.T) {
	h := New(slogdiscard.NewDiscardLogger(), staticVerifier{"good": "u1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?token=good", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/?token=good", nil)
	r.Header.Set("Upgrade", "websocket")
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}
