package resources

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"webpub/internal/models"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

var ErrScheduleInPast = errors.New("scheduled time is not in the future")

// Publisher receives every notification right after it is stored.
type Publisher interface {
	Publish(n models.Notification) int
}

type Services struct {
	Channels      *Service[*models.Channel]
	Posts         *Service[*models.Post]
	Notifications *Service[*models.Notification]
}

// NewServices wires the three resource kinds together: posts must point at one of the
// owner's channels and new notifications are pushed to pub.
func NewServices(
	log *slog.Logger,
	channels Repository[*models.Channel],
	posts Repository[*models.Post],
	notifications Repository[*models.Notification],
	maxChannels int,
	pub Publisher,
) *Services {
	s := &Services{}

	s.Channels = New(log, "channel", channels, func() *models.Channel { return &models.Channel{IsActive: true} }, Options[*models.Channel]{
		Limit: maxChannels,
	})

	s.Posts = New(log, "post", posts, func() *models.Post { return &models.Post{} }, Options[*models.Post]{
		Check: func(ctx context.Context, owner string, p *models.Post) error {
			if _, err := s.Channels.Get(ctx, owner, p.ChannelID); err != nil {
				if errors.Is(err, ErrNotFound) {
					return ErrParentNotFound
				}
				return err
			}
			return nil
		},
		Sort: func(items []*models.Post) {
			sort.SliceStable(items, func(i, j int) bool {
				return items[i].ScheduledTime.Before(items[j].ScheduledTime)
			})
		},
	})

	notifyOpts := Options[*models.Notification]{
		Sort: func(items []*models.Notification) {
			sort.SliceStable(items, func(i, j int) bool {
				return items[i].CreatedAt.After(items[j].CreatedAt)
			})
		},
	}
	if pub != nil {
		notifyOpts.Created = func(n *models.Notification) { pub.Publish(*n) }
	}

	s.Notifications = New(log, "notification", notifications, func() *models.Notification { return &models.Notification{} }, notifyOpts)

	return s
}

// MarkAllRead flags every unread notification of owner as read and reports how many changed.
func (s *Services) MarkAllRead(ctx context.Context, owner string) (int, error) {
	items, err := s.Notifications.List(ctx, owner, nil)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, n := range items {
		if n.Read {
			continue
		}

		if _, err := s.Notifications.Update(ctx, owner, n.ID, func(n *models.Notification) error {
			n.Read = true
			return nil
		}); err != nil {
			return changed, err
		}
		changed++
	}

	return changed, nil
}

// NotificationPage returns page (1-based) of owner's notifications matching filter.
// Out-of-range arguments are clamped.
func (s *Services) NotificationPage(ctx context.Context, owner string, filter url.Values, page, perPage int) (models.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	all, err := s.Notifications.List(ctx, owner, nil)
	if err != nil {
		return models.NotificationPage{}, err
	}

	unread := 0
	matched := make([]*models.Notification, 0, len(all))
	for _, n := range all {
		if !n.Read {
			unread++
		}
		if n.Matches(filter) {
			matched = append(matched, n)
		}
	}

	start := min((page-1)*perPage, len(matched))
	end := min(start+perPage, len(matched))

	return models.NotificationPage{
		Notifications: matched[start:end],
		Page:          page,
		PerPage:       perPage,
		Total:         len(matched),
		HasMore:       end < len(matched),
		UnreadCount:   unread,
	}, nil
}

// SchedulePost sets the publication time of a post and moves it to the scheduled state.
func (s *Services) SchedulePost(ctx context.Context, owner, id string, at time.Time) (*models.Post, error) {
	if !at.After(s.Posts.now()) {
		return nil, ErrScheduleInPast
	}

	return s.Posts.Update(ctx, owner, id, func(p *models.Post) error {
		p.ScheduledTime = at.UTC()
		p.Status = models.PostScheduled
		return nil
	})
}

// ChannelStats counts the posts of one of owner's channels by status.
func (s *Services) ChannelStats(ctx context.Context, owner, id string) (models.ChannelStats, error) {
	ch, err := s.Channels.Get(ctx, owner, id)
	if err != nil {
		return models.ChannelStats{}, err
	}

	posts, err := s.Posts.List(ctx, owner, url.Values{"channel_id": {ch.ID}})
	if err != nil {
		return models.ChannelStats{}, err
	}

	stats := models.ChannelStats{
		ChannelID:     ch.ID,
		PostsTotal:    len(posts),
		PostsByStatus: make(map[models.PostStatus]int),
	}

	now := s.Posts.now()
	for _, p := range posts {
		stats.PostsByStatus[p.Status]++

		if p.Status == models.PostScheduled && p.ScheduledTime.After(now) {
			if stats.NextScheduledTime == nil || p.ScheduledTime.Before(*stats.NextScheduledTime) {
				at := p.ScheduledTime
				stats.NextScheduledTime = &at
			}
		}
	}

	return stats, nil
}
