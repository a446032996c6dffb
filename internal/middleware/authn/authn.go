package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	resp "webpub/internal/lib/api/response"

	"github.com/go-chi/chi/middleware"
)

type ctxKey struct{}

type Verifier interface {
	VerifyAccess(accessToken string) (string, error)
}

// BearerToken extracts the credential from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	return token, true
}

// requestToken also accepts ?token= on WebSocket upgrades, where browsers cannot set headers.
func requestToken(r *http.Request) (string, bool) {
	if token, ok := BearerToken(r); ok {
		return token, true
	}

	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, true
		}
	}

	return "", false
}

// New rejects requests without a valid access token and stores the user id in the context.
func New(log *slog.Logger, verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := requestToken(r)
			if !ok {
				resp.Fail(w, r, http.StatusUnauthorized, resp.MsgNotAuth)
				return
			}

			uid, err := verifier.VerifyAccess(token)
			if err != nil {
				log.Info("access token rejected",
					slog.String("op", "middleware.authn"),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)

				resp.Fail(w, r, http.StatusUnauthorized, resp.MsgInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}

func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxKey{}, uid)
}

func UserID(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(ctxKey{}).(string)
	return uid, ok && uid != ""
}

// Owner returns the authenticated user id, or "" outside the middleware.
func Owner(ctx context.Context) string {
	uid, _ := UserID(ctx)
	return uid
}
