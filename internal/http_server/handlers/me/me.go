package me

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"webpub/internal/auth"
	resp "webpub/internal/lib/api/response"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/middleware/authn"
	"webpub/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type UserProvider interface {
	CurrentUser(ctx context.Context, accessToken string) (models.User, error)
}

// New reads the bearer token itself so that a valid token for a deleted user
// reports 404 rather than 401.
func New(log *slog.Logger, users UserProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token, ok := authn.BearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			resp.Fail(w, r, http.StatusUnauthorized, resp.MsgNotAuth)

			return
		}

		user, err := users.CurrentUser(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				w.Header().Set("WWW-Authenticate", "Bearer")
				resp.Fail(w, r, http.StatusUnauthorized, resp.MsgInvalidToken)
			case errors.Is(err, auth.ErrUserNotFound):
				resp.Fail(w, r, http.StatusNotFound, "User not found")
			default:
				log.Error("failed to load current user", sl.Err(err))
				resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)
			}

			return
		}

		render.JSON(w, r, user)
	}
}
