package schedulePost

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "webpub/internal/lib/api/response"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/middleware/authn"
	"webpub/internal/models"
	"webpub/internal/resources"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
}

type Scheduler interface {
	SchedulePost(ctx context.Context, owner, id string, at time.Time) (*models.Post, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	scheduler Scheduler,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedulePost.New"

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

		post, err := scheduler.SchedulePost(r.Context(), authn.Owner(r.Context()), chi.URLParam(r, "id"), req.ScheduledAt)
		if err != nil {
			switch {
			case errors.Is(err, resources.ErrScheduleInPast):
				resp.Fail(w, r, http.StatusBadRequest, "Scheduled time must be in the future")
			case errors.Is(err, resources.ErrNotFound):
				resp.Fail(w, r, http.StatusNotFound, "Post not found")
			case errors.Is(err, resources.ErrParentNotFound):
				resp.Fail(w, r, http.StatusNotFound, "Channel not found")
			default:
				log.Error("failed to schedule post", sl.Err(err))
				resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)
			}

			return
		}

		log.Info("post scheduled", slog.String("id", post.ID), slog.Time("at", post.ScheduledTime))

		render.JSON(w, r, post)
	}
}
