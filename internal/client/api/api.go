// Package api is the HTTP client for the webpub service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"webpub/internal/models"
)

const DefaultTimeout = 10 * time.Second

// ErrUnreachable wraps every transport failure: refused connections, DNS errors, timeouts.
var ErrUnreachable = errors.New("service unreachable")

// Error is a non-2xx answer of the service.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}

	return fmt.Sprintf("%s (status %d)", e.Detail, e.Status)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}

	return 0
}

type Client struct {
	baseURL string
	client  *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// New accepts a base URL with or without scheme; "http://" is assumed when it is missing.
func New(baseURL string, opts ...Option) *Client {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}

	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Signup(ctx context.Context, email, password, fullName string) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodPost, "/auth/signup", "", map[string]string{
		"email":     email,
		"password":  password,
		"full_name": fullName,
	}, &user)

	return user, err
}

func (c *Client) Login(ctx context.Context, username, password string) (models.TokenPair, error) {
	var pair models.TokenPair
	err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	}, &pair)

	return pair, err
}

func (c *Client) Me(ctx context.Context, token string) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &user)

	return user, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	var pair models.TokenPair
	err := c.do(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refresh_token": refreshToken,
	}, &pair)

	return pair, err
}

// UpdateProfile sends only the non-nil fields.
func (c *Client) UpdateProfile(ctx context.Context, token string, email, fullName *string) (models.User, error) {
	in := make(map[string]string, 2)
	if email != nil {
		in["email"] = *email
	}
	if fullName != nil {
		in["full_name"] = *fullName
	}

	var user models.User
	err := c.do(ctx, http.MethodPut, "/auth/profile", token, in, &user)

	return user, err
}

// ForgotPassword returns the acknowledgement text of the service.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": email}, &out)

	return out.Message, err
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":        token,
		"new_password": newPassword,
	}, nil)
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

// Health asks the service whether it is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", nil, nil)
}

func (c *Client) Delete(ctx context.Context, token, path, id string) error {
	return c.do(ctx, http.MethodDelete, path+"/"+url.PathEscape(id), token, nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, token, id string) (models.Notification, error) {
	var n models.Notification
	err := c.do(ctx, http.MethodPost, "/notifications/"+url.PathEscape(id)+"/read", token, nil, &n)

	return n, err
}

// Notifications fetches one page of notifications. Zero page or perPage leaves the
// choice to the service.
func (c *Client) Notifications(ctx context.Context, token string, page, perPage int, filter url.Values) (models.NotificationPage, error) {
	q := url.Values{}
	for k, v := range filter {
		q[k] = v
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("perPage", strconv.Itoa(perPage))
	}

	path := "/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out models.NotificationPage
	err := c.do(ctx, http.MethodGet, path, token, nil, &out)

	return out, err
}

func (c *Client) SchedulePost(ctx context.Context, token, id string, at time.Time) (models.Post, error) {
	var p models.Post
	err := c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(id)+"/schedule", token, map[string]time.Time{
		"scheduledAt": at,
	}, &p)

	return p, err
}

func (c *Client) ChannelStats(ctx context.Context, token, id string) (models.ChannelStats, error) {
	var st models.ChannelStats
	err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(id)+"/stats", token, nil, &st)

	return st, err
}

func (c *Client) MarkAllRead(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/notifications/mark-all-read", token, nil, nil)
}

func List[T any](ctx context.Context, c *Client, token, path string, filter url.Values) ([]T, error) {
	if len(filter) > 0 {
		path += "?" + filter.Encode()
	}

	var out []T
	err := c.do(ctx, http.MethodGet, path, token, nil, &out)

	return out, err
}

func Create[T any](ctx context.Context, c *Client, token, path string, in any) (T, error) {
	var out T
	err := c.do(ctx, http.MethodPost, path, token, in, &out)

	return out, err
}

func Update[T any](ctx context.Context, c *Client, token, path, id string, in any) (T, error) {
	var out T
	err := c.do(ctx, http.MethodPut, path+"/"+url.PathEscape(id), token, in, &out)

	return out, err
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "webpub-cli/1.0")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		apiErr := &Error{Status: res.StatusCode}

		var detail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(res.Body).Decode(&detail); err == nil {
			apiErr.Detail = detail.Detail
		}

		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}

	return nil
}
