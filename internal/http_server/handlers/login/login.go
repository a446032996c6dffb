package login

import (
	"context"
	"errors"
	"log/slog"
	"mime"
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

// Request accepts the OAuth2 password-grant field names.
type Request struct {
	Username string `json:"username" validate:"required"`
	Pass     string `json:"password" validate:"required"`
}

type Authenticator interface {
	Login(ctx context.Context, username, password string) (models.TokenPair, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authenticator Authenticator,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		req, err := decode(r)
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

		pair, err := authenticator.Login(ctx, req.Username, req.Pass)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				resp.Fail(w, r, http.StatusUnauthorized, "Incorrect email or password")

				return
			}

			log.Error("failed to login user", sl.Err(err))

			resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		log.Info("User logged in successfully")

		render.JSON(w, r, pair)
	}
}

func decode(r *http.Request) (Request, error) {
	var req Request

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return req, err
		}

		req.Username = r.PostForm.Get("username")
		req.Pass = r.PostForm.Get("password")

		return req, nil
	}

	err := render.DecodeJSON(r.Body, &req)

	return req, err
}
