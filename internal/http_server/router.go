// Package httpserver assembles the HTTP surface of the service.
package httpserver

import (
	"log/slog"
	"net/http"
	"strings"

	"webpub/internal/auth"
	"webpub/internal/http_server/handlers/channel_stats"
	"webpub/internal/http_server/handlers/forgot_password"
	"webpub/internal/http_server/handlers/health"
	"webpub/internal/http_server/handlers/login"
	"webpub/internal/http_server/handlers/logout"
	"webpub/internal/http_server/handlers/me"
	"webpub/internal/http_server/handlers/notifications"
	"webpub/internal/http_server/handlers/post_image"
	"webpub/internal/http_server/handlers/refresh"
	"webpub/internal/http_server/handlers/reset_password"
	"webpub/internal/http_server/handlers/resource"
	"webpub/internal/http_server/handlers/schedule_post"
	"webpub/internal/http_server/handlers/signup"
	"webpub/internal/http_server/handlers/update_profile"
	resp "webpub/internal/lib/api/response"
	"webpub/internal/metrics"
	"webpub/internal/middleware/authn"
	"webpub/internal/middleware/cors"
	rateLimit "webpub/internal/middleware/ratelimit"
	"webpub/internal/models"
	"webpub/internal/notify"
	"webpub/internal/resources"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

type Deps struct {
	Env       string
	BasePath  string
	RateLimit bool
	// RequestLog enables chi's access log on stdout.
	RequestLog bool

	Auth      *auth.Auth
	Resources *resources.Services
	Hub       *notify.Hub
	// Uploader may be nil; image uploads then answer 503.
	Uploader postImage.Uploader
	Metrics  *metrics.Metrics
}

func NewRouter(log *slog.Logger, d Deps) http.Handler {
	validate := resp.NewValidator()

	limit := func(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
		if !d.RateLimit {
			return func(next http.Handler) http.Handler { return next }
		}
		return mw
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if d.RequestLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.New())
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	notFound(r)

	api := chi.NewRouter()
	notFound(api)

	api.Get("/health", health.New(d.Env))

	api.Route("/auth", func(r chi.Router) {
		r.With(limit(rateLimit.Signup())).Post("/signup", signup.New(log, validate, d.Auth))
		r.With(limit(rateLimit.Login())).Post("/login", login.New(log, validate, d.Auth))
		r.With(limit(rateLimit.Refresh())).Post("/refresh", refresh.New(log, validate, d.Auth))
		r.With(limit(rateLimit.ForgotPassword())).Post("/forgot-password", forgotPassword.New(log, validate, d.Auth))
		r.With(limit(rateLimit.ResetPassword())).Post("/reset-password", resetPassword.New(log, validate, d.Auth))
		r.Get("/me", me.New(log, d.Auth))
		r.Put("/profile", updateProfile.New(log, validate, d.Auth))
		r.Post("/logout", logout.New(log))
	})

	api.Group(func(r chi.Router) {
		r.Use(authn.New(log, d.Auth))

		channels := resource.New[*models.Channel](log, validate, d.Resources.Channels)
		posts := resource.New[*models.Post](log, validate, d.Resources.Posts)
		notes := resource.New[*models.Notification](log, validate, d.Resources.Notifications).
			WithList(notifications.List(log, d.Resources))

		r.Route("/channels", func(r chi.Router) {
			channels.Routes(r)
			r.Get("/{id}/stats", channelStats.New(log, d.Resources))
		})

		r.Route("/posts", func(r chi.Router) {
			posts.Routes(r)
			r.Post("/{id}/image", postImage.New(log, d.Resources.Posts, d.Uploader))
			r.Post("/{id}/schedule", schedulePost.New(log, validate, d.Resources))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/ws", notifications.Stream(log, d.Hub))
			r.Post("/mark-all-read", notifications.MarkAllRead(log, d.Resources))
			r.Post("/{id}/read", notifications.MarkRead(log, d.Resources.Notifications))
			notes.Routes(r)
		})
	})

	basePath := "/" + strings.Trim(d.BasePath, "/")
	r.Mount(basePath, api)

	return r
}

func notFound(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		resp.Fail(w, req, http.StatusNotFound, resp.MsgNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		resp.Fail(w, req, http.StatusMethodNotAllowed, resp.MsgNotAllowed)
	})
}
