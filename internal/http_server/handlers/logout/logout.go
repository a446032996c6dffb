package logout

import (
	"log/slog"
	"net/http"

	resp "webpub/internal/lib/api/response"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// New acknowledges a logout. Tokens are stateless, so there is nothing to revoke
// server-side; clients drop their copy.
func New(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log.Info("user logged out",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		render.JSON(w, r, resp.Response{Detail: "Logged out"})
	}
}
