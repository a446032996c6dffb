package postImage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	resp "webpub/internal/lib/api/response"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/media"
	"webpub/internal/middleware/authn"
	"webpub/internal/models"
	"webpub/internal/resources"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

const maxUpload = 10 << 20

type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

type Posts interface {
	Get(ctx context.Context, owner, id string) (*models.Post, error)
	Update(ctx context.Context, owner, id string, patch func(*models.Post) error) (*models.Post, error)
}

// New stores the multipart "file" field and points the post's image_url at it.
// A nil uploader answers 503.
func New(log *slog.Logger, posts Posts, uploader Uploader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.postImage.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if uploader == nil {
			resp.Fail(w, r, http.StatusServiceUnavailable, "Image uploads are not configured")
			return
		}

		owner := authn.Owner(r.Context())
		id := chi.URLParam(r, "id")

		if _, err := posts.Get(r.Context(), owner, id); err != nil {
			if errors.Is(err, resources.ErrNotFound) {
				resp.Fail(w, r, http.StatusNotFound, "Post not found")
				return
			}

			log.Error("failed to load post", sl.Err(err))
			resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)

		file, header, err := r.FormFile("file")
		if err != nil {
			log.Error("failed to read upload", sl.Err(err))
			resp.Fail(w, r, http.StatusBadRequest, "File is required")

			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			resp.Fail(w, r, http.StatusBadRequest, "File must be an image")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		link, err := uploader.Upload(ctx, media.Key(owner, header.Filename, time.Now().UTC()), contentType, file)
		if err != nil {
			log.Error("failed to upload image", sl.Err(err))
			resp.Fail(w, r, http.StatusBadGateway, "Failed to upload image")

			return
		}

		post, err := posts.Update(r.Context(), owner, id, func(p *models.Post) error {
			p.ImageURL = link
			return nil
		})
		if err != nil {
			if errors.Is(err, resources.ErrNotFound) {
				resp.Fail(w, r, http.StatusNotFound, "Post not found")
				return
			}

			log.Error("failed to attach image", sl.Err(err))
			resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		log.Info("image attached", slog.String("post_id", id))

		render.JSON(w, r, post)
	}
}
