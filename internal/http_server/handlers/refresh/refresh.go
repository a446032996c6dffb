package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"webpub/internal/auth"
	resp "webpub/internal/lib/api/response"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	refresher Refresher,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

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

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		pair, err := refresher.Refresh(ctx, req.RefreshToken)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				resp.Fail(w, r, http.StatusUnauthorized, resp.MsgInvalidToken)

				return
			}

			log.Error("failed to refresh token", sl.Err(err))

			resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		log.Info("Access token refreshed")

		render.JSON(w, r, pair)
	}
}
