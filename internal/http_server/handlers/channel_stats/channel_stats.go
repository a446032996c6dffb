package channelStats

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "webpub/internal/lib/api/response"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/middleware/authn"
	"webpub/internal/models"
	"webpub/internal/resources"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type StatsProvider interface {
	ChannelStats(ctx context.Context, owner, id string) (models.ChannelStats, error)
}

func New(log *slog.Logger, stats StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.channelStats.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		result, err := stats.ChannelStats(r.Context(), authn.Owner(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, resources.ErrNotFound) {
				resp.Fail(w, r, http.StatusNotFound, "Channel not found")
				return
			}

			log.Error("failed to compute channel stats", sl.Err(err))
			resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		render.JSON(w, r, result)
	}
}
