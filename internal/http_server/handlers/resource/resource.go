// Package resource serves owner-scoped CRUD for any resources.Service.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

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

const maxBody = 1 << 20

var errDecode = errors.New("malformed body")

type Service[T models.Entity] interface {
	Kind() string
	NewItem() T
	List(ctx context.Context, owner string, filter url.Values) ([]T, error)
	Get(ctx context.Context, owner, id string) (T, error)
	Create(ctx context.Context, owner string, item T) (T, error)
	Update(ctx context.Context, owner, id string, patch func(T) error) (T, error)
	Delete(ctx context.Context, owner, id string) error
}

type Handler[T models.Entity] struct {
	log      *slog.Logger
	validate *validator.Validate
	svc      Service[T]
	// label is the capitalised kind used in messages, e.g. "Channel".
	label string
	list  http.HandlerFunc
}

func New[T models.Entity](log *slog.Logger, validate *validator.Validate, svc Service[T]) *Handler[T] {
	kind := svc.Kind()

	return &Handler[T]{
		log:      log,
		validate: validate,
		svc:      svc,
		label:    strings.ToUpper(kind[:1]) + kind[1:],
	}
}

// WithList replaces the default list endpoint.
func (h *Handler[T]) WithList(fn http.HandlerFunc) *Handler[T] {
	h.list = fn
	return h
}

// Routes mounts list/create on "/" and get/update/delete on "/{id}".
func (h *Handler[T]) Routes(r chi.Router) {
	if h.list != nil {
		r.Get("/", h.list)
	} else {
		r.Get("/", h.List)
	}
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

func (h *Handler[T]) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func (h *Handler[T]) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.resource.List")

	items, err := h.svc.List(r.Context(), authn.Owner(r.Context()), r.URL.Query())
	if err != nil {
		log.Error("failed to list", sl.Err(err))
		resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

		return
	}

	render.JSON(w, r, items)
}

func (h *Handler[T]) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.resource.Get")

	item, err := h.svc.Get(r.Context(), authn.Owner(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, log, err)
		return
	}

	render.JSON(w, r, item)
}

func (h *Handler[T]) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.resource.Create")

	item := h.svc.NewItem()
	if err := h.decode(r, item); err != nil {
		h.fail(w, r, log, err)
		return
	}

	created, err := h.svc.Create(r.Context(), authn.Owner(r.Context()), item)
	if err != nil {
		h.fail(w, r, log, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

// Update decodes the body onto the stored item, so absent fields keep their values.
func (h *Handler[T]) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.resource.Update")

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		h.fail(w, r, log, fmt.Errorf("%w: %v", errDecode, err))
		return
	}

	updated, err := h.svc.Update(r.Context(), authn.Owner(r.Context()), chi.URLParam(r, "id"), func(item T) error {
		if err := json.Unmarshal(raw, item); err != nil {
			return fmt.Errorf("%w: %v", errDecode, err)
		}

		return h.validate.Struct(item)
	})
	if err != nil {
		h.fail(w, r, log, err)
		return
	}

	render.JSON(w, r, updated)
}

func (h *Handler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.resource.Delete")

	if err := h.svc.Delete(r.Context(), authn.Owner(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, log, err)
		return
	}

	render.JSON(w, r, resp.Response{Detail: h.label + " deleted successfully"})
}

func (h *Handler[T]) decode(r *http.Request, item T) error {
	if err := render.DecodeJSON(io.LimitReader(r.Body, maxBody), item); err != nil {
		return fmt.Errorf("%w: %v", errDecode, err)
	}

	return h.validate.Struct(item)
}

func (h *Handler[T]) fail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var validateErr validator.ValidationErrors

	switch {
	case errors.Is(err, errDecode):
		log.Error("Failed to decode request body", sl.Err(err))
		resp.Fail(w, r, http.StatusBadRequest, resp.MsgBadRequest)
	case errors.As(err, &validateErr):
		log.Error("Invalid request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.ValidationError(validateErr))
	case errors.Is(err, resources.ErrNotFound):
		resp.Fail(w, r, http.StatusNotFound, h.label+" not found")
	case errors.Is(err, resources.ErrParentNotFound):
		resp.Fail(w, r, http.StatusNotFound, "Channel not found")
	case errors.Is(err, resources.ErrLimitReached):
		resp.Fail(w, r, http.StatusBadRequest, "Maximum "+h.svc.Kind()+" limit reached")
	default:
		log.Error("resource operation failed", sl.Err(err))
		resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)
	}
}
