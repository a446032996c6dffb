package resetPassword

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"webpub/internal/auth"
	resp "webpub/internal/lib/api/response"
	"webpub/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

type Response struct {
	Message string `json:"message"`
}

type Resetter interface {
	ResetPassword(ctx context.Context, token, newPassword string) error
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	resetter Resetter,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resetPassword.New"

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

		if err := resetter.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
			if errors.Is(err, auth.ErrInvalidResetToken) {
				log.Warn("invalid reset token")

				resp.Fail(w, r, http.StatusBadRequest, "Invalid or expired token")

				return
			}

			log.Error("failed to reset password", sl.Err(err))

			resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		log.Info("password reset successfully")

		render.JSON(w, r, Response{Message: "Password has been reset successfully"})
	}
}
