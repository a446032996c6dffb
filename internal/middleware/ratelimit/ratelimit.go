package rateLimit

import (
	"net/http"
	"time"

	resp "webpub/internal/lib/api/response"

	httprate "github.com/go-chi/httprate"
)

func Login() func(http.Handler) http.Handler {
	return limitByIP(10, 5*time.Minute)
}

func Signup() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func Refresh() func(http.Handler) http.Handler {
	return limitByIP(30, 10*time.Minute)
}

func ForgotPassword() func(http.Handler) http.Handler {
	return limitByIP(3, time.Hour)
}

func ResetPassword() func(http.Handler) http.Handler {
	return limitByIP(10, time.Hour)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			resp.Fail(w, r, http.StatusTooManyRequests, resp.MsgTooManyRequest)
		}),
	)
}
