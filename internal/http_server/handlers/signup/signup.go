package signup

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
	Email    string `json:"email" validate:"required,email"`
	Pass     string `json:"password" validate:"required,min=6,max=72"`
	FullName string `json:"full_name" validate:"required"`
}

type UserCreator interface {
	Signup(ctx context.Context, email, pass, fullName string) (models.User, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	users UserCreator,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.signup.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			resp.Fail(w, r, http.StatusBadRequest, resp.MsgBadRequest)

			return
		}

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, err := users.Signup(ctx, req.Email, req.Pass, req.FullName)
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				resp.Fail(w, r, http.StatusBadRequest, "Email already registered")

				return
			}

			log.Error("failed to register user", sl.Err(err))

			resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		log.Info("User registered", slog.String("id", user.ID))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, user)
	}
}
