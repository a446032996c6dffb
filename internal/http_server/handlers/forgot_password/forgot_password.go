package forgotPassword

import (
	"context"
	"log/slog"
	"net/http"

	"webpub/internal/auth"
	"webpub/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email string `json:"email" validate:"required,email"`
}

type Response struct {
	Message string `json:"message"`
}

type Recoverer interface {
	ForgotPassword(ctx context.Context, email string)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	recoverer Recoverer,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.forgotPassword.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		// Same reply for every body.
		switch err := render.DecodeJSON(r.Body, &req); {
		case err != nil:
			log.Info("Failed to decode request body", sl.Err(err))
		case validate.Struct(req) != nil:
			log.Info("Invalid email in request")
		default:
			recoverer.ForgotPassword(r.Context(), req.Email)
		}

		render.JSON(w, r, Response{Message: auth.ForgotPasswordMessage})
	}
}
