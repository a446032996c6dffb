package models

import (
	"net/url"
	"strconv"
	"time"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	PassHash  []byte    `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"-"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// Message is the mail job published to the queue.
type Message struct {
	Email     string    `json:"to"`
	Link      string    `json:"link"`
	Purpose   string    `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Entity is an owner-scoped record managed by the resource API.
type Entity interface {
	ResourceID() string
	Owner() string
	Created() time.Time
	// Bind overwrites the identity and timestamp fields that clients may not set.
	Bind(id, owner string, created, updated time.Time)
	Matches(filter url.Values) bool
}

type Channel struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	ChannelID   string    `json:"channel_id" validate:"required"`
	ChannelName string    `json:"channel_name"`
	BotToken    string    `json:"bot_token,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *Channel) ResourceID() string { return c.ID }
func (c *Channel) Owner() string      { return c.OwnerID }
func (c *Channel) Created() time.Time { return c.CreatedAt }

func (c *Channel) Bind(id, owner string, created, updated time.Time) {
	c.ID, c.OwnerID, c.CreatedAt, c.UpdatedAt = id, owner, created, updated
}

func (c *Channel) Matches(filter url.Values) bool {
	if v := filter.Get("is_active"); v != "" {
		want, err := strconv.ParseBool(v)
		if err == nil && want != c.IsActive {
			return false
		}
	}

	return true
}

type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostApproved  PostStatus = "approved"
	PostScheduled PostStatus = "scheduled"
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
)

type Post struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	ChannelID     string     `json:"channel_id" validate:"required"`
	Content       string     `json:"content" validate:"required"`
	ImageURL      string     `json:"image_url,omitempty"`
	Status        PostStatus `json:"status" validate:"omitempty,oneof=draft approved scheduled published failed"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (p *Post) ResourceID() string { return p.ID }
func (p *Post) Owner() string      { return p.OwnerID }
func (p *Post) Created() time.Time { return p.CreatedAt }

func (p *Post) Bind(id, owner string, created, updated time.Time) {
	p.ID, p.OwnerID, p.CreatedAt, p.UpdatedAt = id, owner, created, updated
	if p.Status == "" {
		p.Status = PostDraft
	}
}

func (p *Post) Matches(filter url.Values) bool {
	if v := filter.Get("channel_id"); v != "" && v != p.ChannelID {
		return false
	}
	if v := filter.Get("status"); v != "" && v != "all" && PostStatus(v) != p.Status {
		return false
	}

	return true
}

type Notification struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title" validate:"required"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *Notification) ResourceID() string { return n.ID }
func (n *Notification) Owner() string      { return n.OwnerID }
func (n *Notification) Created() time.Time { return n.CreatedAt }

func (n *Notification) Bind(id, owner string, created, updated time.Time) {
	n.ID, n.OwnerID, n.CreatedAt, n.UpdatedAt = id, owner, created, updated
}

func (n *Notification) Matches(filter url.Values) bool {
	if v := filter.Get("read"); v != "" {
		want, err := strconv.ParseBool(v)
		if err == nil && want != n.Read {
			return false
		}
	}

	return true
}

// NotificationPage is one page of an owner's notifications, newest first.
// UnreadCount covers all of the owner's notifications, not just this page.
type NotificationPage struct {
	Notifications []*Notification `json:"notifications"`
	Page          int             `json:"page"`
	PerPage       int             `json:"perPage"`
	Total         int             `json:"total"`
	HasMore       bool            `json:"hasMore"`
	UnreadCount   int             `json:"unreadCount"`
}

// ChannelStats summarises a channel. Audience figures stay zero until a metrics
// source reports them.
type ChannelStats struct {
	ChannelID         string             `json:"channel_id"`
	SubscribersCount  int                `json:"subscribers_count"`
	ViewsCount        int                `json:"views_count"`
	AverageEngagement int                `json:"average_engagement"`
	PostsTotal        int                `json:"posts_total"`
	PostsByStatus     map[PostStatus]int `json:"posts_by_status"`
	NextScheduledTime *time.Time         `json:"next_scheduled_time,omitempty"`
}
