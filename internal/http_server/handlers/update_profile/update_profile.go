package updateProfile

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
	"github.com/go-playground/validator/v10"
)

// Request fields left out of the body are not changed.
type Request struct {
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=255"`
}

type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, accessToken string, upd auth.ProfileUpdate) (models.User, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	updater ProfileUpdater,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.updateProfile.New"

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

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			resp.Fail(w, r, http.StatusBadRequest, resp.MsgBadRequest)

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		user, err := updater.UpdateProfile(r.Context(), token, auth.ProfileUpdate{
			Email:    req.Email,
			FullName: req.FullName,
		})
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				w.Header().Set("WWW-Authenticate", "Bearer")
				resp.Fail(w, r, http.StatusUnauthorized, resp.MsgInvalidToken)
			case errors.Is(err, auth.ErrUserNotFound):
				resp.Fail(w, r, http.StatusNotFound, "User not found")
			case errors.Is(err, auth.ErrUserExists):
				resp.Fail(w, r, http.StatusBadRequest, "Email already registered")
			default:
				log.Error("failed to update profile", sl.Err(err))
				resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)
			}

			return
		}

		render.JSON(w, r, user)
	}
}
