package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/campushub/campus-sync/internal/model"
	"github.com/campushub/campus-sync/pkg/circuitbreaker"
	apperrors "github.com/campushub/campus-sync/pkg/errors"
	"github.com/campushub/campus-sync/pkg/metrics"
)

// TokenSource provides the bearer token attached to every request.
type TokenSource interface {
	Token() string
}

// Options configures the REST client.
type Options struct {
	BaseURL string
	Tokens  TokenSource
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Timeout time.Duration
}

// Client is a thin client for the campus platform's notification and
// messaging endpoints. Pulls run behind a circuit breaker so a dead
// backend fails fast instead of piling up timeouts.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      TokenSource
	log         zerolog.Logger
	metrics     *metrics.Metrics
	pullBreaker *circuitbreaker.CircuitBreaker

	mu             sync.RWMutex
	onUnauthorized func()
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		tokens:     opts.Tokens,
		log:        opts.Logger.With().Str("component", "api").Logger(),
		metrics:    opts.Metrics,
		pullBreaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "api-pull",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

// SetUnauthorizedHandler registers the callback invoked on any 401
// response. The handler is expected to tear the session down.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// FetchNotifications pulls the notification list. Records failing
// validation are dropped with a warning rather than failing the pull.
func (c *Client) FetchNotifications(ctx context.Context) ([]model.Notification, error) {
	var raw []model.Notification
	if err := c.pull(ctx, "notifications", "/notifications/", &raw); err != nil {
		return nil, err
	}
	out := make([]model.Notification, 0, len(raw))
	for i := range raw {
		n := raw[i]
		if err := n.Validate(); err != nil {
			c.log.Warn().Err(err).Msg("dropping invalid notification record")
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkNotificationRead acknowledges one notification server-side.
func (c *Client) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/notifications/%s/mark_read/", id), nil, nil)
}

// MarkAllNotificationsRead acknowledges every notification server-side.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/notifications/mark_all_read/", nil, nil)
}

// FetchThreads pulls the thread list, server-sorted by recency.
// Records failing validation are dropped with a warning.
func (c *Client) FetchThreads(ctx context.Context) ([]model.Thread, error) {
	var raw []model.Thread
	if err := c.pull(ctx, "threads", "/messaging/threads/", &raw); err != nil {
		return nil, err
	}
	out := make([]model.Thread, 0, len(raw))
	for i := range raw {
		t := raw[i]
		if err := t.Validate(); err != nil {
			c.log.Warn().Err(err).Msg("dropping invalid thread record")
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// FetchThreadMessages pulls the message sequence for one thread.
// Records failing validation are dropped with a warning.
func (c *Client) FetchThreadMessages(ctx context.Context, threadID uuid.UUID) ([]model.Message, error) {
	var raw []model.Message
	if err := c.pull(ctx, "messages", fmt.Sprintf("/messaging/threads/%s/messages/", threadID), &raw); err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(raw))
	for i := range raw {
		m := raw[i]
		if err := m.Validate(); err != nil {
			c.log.Warn().Err(err).Msg("dropping invalid message record")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// SendMessageRequest is the POST body for sending a message.
type SendMessageRequest struct {
	Content     string             `json:"content"`
	Attachments []model.Attachment `json:"attachments"`
}

// SendMessage posts a new message to a thread and returns the
// server-assigned record.
func (c *Client) SendMessage(ctx context.Context, threadID uuid.UUID, req SendMessageRequest) (*model.Message, error) {
	if req.Attachments == nil {
		req.Attachments = []model.Attachment{}
	}
	var out model.Message
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/messaging/threads/%s/messages/", threadID), req, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("server returned an invalid message record: %w", err)
	}
	return &out, nil
}

// CreateThreadRequest is the POST body for creating a thread.
type CreateThreadRequest struct {
	ThreadType     model.ThreadType `json:"thread_type,omitempty"`
	Name           string           `json:"name,omitempty"`
	Description    string           `json:"description,omitempty"`
	ParticipantIDs []uuid.UUID      `json:"participant_ids,omitempty"`
}

// CreateThread creates a new thread and returns the server record.
func (c *Client) CreateThread(ctx context.Context, req CreateThreadRequest) (*model.Thread, error) {
	var out model.Thread
	if err := c.do(ctx, http.MethodPost, "/messaging/threads/", req, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("server returned an invalid thread record: %w", err)
	}
	return &out, nil
}

// BreakerState exposes the pull breaker state for status reporting.
func (c *Client) BreakerState() string {
	return c.pullBreaker.State()
}

func (c *Client) pull(ctx context.Context, resource, path string, out any) error {
	start := time.Now()
	err := c.pullBreaker.Execute(func() error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})

	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.PullsTotal.WithLabelValues(resource, status).Inc()
		c.metrics.PullLatency.WithLabelValues(resource).Observe(time.Since(start).Seconds())
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.log.Warn().Str("path", path).Msg("session rejected by server")
		c.mu.RLock()
		handler := c.onUnauthorized
		c.mu.RUnlock()
		if handler != nil {
			handler()
		}
		return apperrors.NewUnauthorized(nil)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFound(path, nil)
	case resp.StatusCode >= http.StatusBadRequest:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewBadRequest(
			fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet))),
			nil,
		)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
