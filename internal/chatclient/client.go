package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/google/uuid"
)

// APIError is a non-2xx answer from the chat API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %d %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err means the session is missing or expired
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client talks to the chat API. The session cookie lives in its cookie jar.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Jar is kept when set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		jar := c.http.Jar
		c.http = hc
		if c.http.Jar == nil {
			c.http.Jar = jar
		}
	}
}

// New creates a client for the API mounted at baseURL, e.g. http://host/api/chat
func New(baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// Login opens a session and returns the signed-in attendee
func (c *Client) Login(ctx context.Context, email, password string) (*domain.Registration, error) {
	var out struct {
		User domain.Registration `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/login", nil, domain.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout ends the current session
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, nil, nil)
}

// Me returns the signed-in attendee and their conversations
func (c *Client) Me(ctx context.Context) (*domain.Registration, []domain.Conversation, error) {
	var out struct {
		User          domain.Registration   `json:"user"`
		Conversations []domain.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/me", nil, nil, &out); err != nil {
		return nil, nil, err
	}
	return &out.User, out.Conversations, nil
}

// Conversations lists one summary per partner
func (c *Client) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	var out struct {
		Conversations []domain.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// History fetches one page of the conversation with partnerID, oldest first.
// A zero limit uses the server default.
func (c *Client) History(ctx context.Context, partnerID uuid.UUID, before *time.Time, limit int) (*domain.History, error) {
	q := url.Values{}
	if before != nil {
		q.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out domain.History
	if err := c.do(ctx, http.MethodGet, "/messages/"+partnerID.String(), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Send posts a message and returns the stored copy
func (c *Client) Send(ctx context.Context, receiverID uuid.UUID, content string) (*domain.Message, error) {
	var out struct {
		Message domain.Message `json:"message"`
	}
	req := domain.SendMessageRequest{ReceiverID: receiverID.String(), Content: content}
	if err := c.do(ctx, http.MethodPost, "/messages", nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// Poll fetches changes after since. Pass the previous result's Timestamp.
func (c *Client) Poll(ctx context.Context, since *time.Time) (*domain.PollResult, error) {
	q := url.Values{}
	if since != nil {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}

	var out domain.PollResult
	if err := c.do(ctx, http.MethodGet, "/poll", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchAttendees finds other attendees by name, organization or title
func (c *Client) SearchAttendees(ctx context.Context, query string) ([]domain.Attendee, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}

	var out struct {
		Attendees []domain.Attendee `json:"attendees"`
	}
	if err := c.do(ctx, http.MethodGet, "/attendees", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Attendees, nil
}

// ForgotPassword requests a reset link for email
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/forgot-password", nil, domain.ForgotPasswordRequest{Email: email}, nil)
}

// ResetPassword completes a reset with the token from the link
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/reset-password", nil, domain.ResetPasswordRequest{Token: token, NewPassword: newPassword}, nil)
}

// ChangePassword replaces the signed-in attendee's password
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	req := domain.ChangePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
	return c.do(ctx, http.MethodPost, "/change-password", nil, req, nil)
}
