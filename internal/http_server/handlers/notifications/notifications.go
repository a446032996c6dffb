// Package notifications serves the read markers and the live WebSocket feed.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	resp "webpub/internal/lib/api/response"
	"webpub/internal/lib/logger/sl"
	"webpub/internal/middleware/authn"
	"webpub/internal/models"
	"webpub/internal/resources"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Updater interface {
	Update(ctx context.Context, owner, id string, patch func(*models.Notification) error) (*models.Notification, error)
}

type AllMarker interface {
	MarkAllRead(ctx context.Context, owner string) (int, error)
}

type Pager interface {
	NotificationPage(ctx context.Context, owner string, filter url.Values, page, perPage int) (models.NotificationPage, error)
}

type Subscriber interface {
	Subscribe(owner string) (<-chan models.Notification, func())
}

type MarkAllResponse struct {
	Detail  string `json:"detail"`
	Updated int    `json:"updated"`
}

// List answers one page of the caller's notifications. page and perPage are
// optional query parameters; other parameters filter the list.
func List(log *slog.Logger, pager Pager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.notifications.List"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		query := r.URL.Query()

		page, err := intParam(query, "page")
		if err != nil {
			resp.Fail(w, r, http.StatusBadRequest, "field page must be an integer")
			return
		}
		perPage, err := intParam(query, "perPage")
		if err != nil {
			resp.Fail(w, r, http.StatusBadRequest, "field perPage must be an integer")
			return
		}

		result, err := pager.NotificationPage(r.Context(), authn.Owner(r.Context()), query, page, perPage)
		if err != nil {
			log.Error("failed to list notifications", sl.Err(err))
			resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		render.JSON(w, r, result)
	}
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}

	return strconv.Atoi(v)
}

func MarkRead(log *slog.Logger, notifications Updater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.notifications.MarkRead"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		n, err := notifications.Update(r.Context(), authn.Owner(r.Context()), chi.URLParam(r, "id"), func(n *models.Notification) error {
			n.Read = true
			return nil
		})
		if err != nil {
			if errors.Is(err, resources.ErrNotFound) {
				resp.Fail(w, r, http.StatusNotFound, "Notification not found")
				return
			}

			log.Error("failed to mark notification read", sl.Err(err))
			resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		render.JSON(w, r, n)
	}
}

func MarkAllRead(log *slog.Logger, marker AllMarker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.notifications.MarkAllRead"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		updated, err := marker.MarkAllRead(r.Context(), authn.Owner(r.Context()))
		if err != nil {
			log.Error("failed to mark notifications read", sl.Err(err))
			resp.Fail(w, r, http.StatusInternalServerError, resp.MsgInternal)

			return
		}

		render.JSON(w, r, MarkAllResponse{
			Detail:  "All notifications marked as read",
			Updated: updated,
		})
	}
}

// Stream upgrades to a WebSocket and pushes each new notification of the caller
// as a JSON text frame until either side goes away.
func Stream(log *slog.Logger, hub Subscriber) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.notifications.Stream"

		owner := authn.Owner(r.Context())

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("uid", owner),
		)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", sl.Err(err))
			return
		}
		defer conn.Close()

		feed, cancel := hub.Subscribe(owner)
		defer cancel()

		log.Info("live channel opened")

		done := make(chan struct{})
		go func() {
			defer close(done)

			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})

			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				log.Info("live channel closed")
				return
			case <-r.Context().Done():
				return
			case n, ok := <-feed:
				if !ok {
					return
				}

				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(n); err != nil {
					log.Warn("failed to push notification", sl.Err(err))
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
