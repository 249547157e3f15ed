// Package backend is the HTTP client for the remote conversation store.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
)

const maxErrorBody = 64 << 10

// Client talks to the conversation store. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds every request. Zero disables the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a client rooted at baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health probes GET /health. Any 2xx means the backend is alive.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", nil, nil)
}

// ListSessions returns sessions in the order the server sent them.
func (c *Client) ListSessions(ctx context.Context) ([]chat.Session, error) {
	var out chat.SessionList
	if err := c.do(ctx, "list sessions", http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	if out.Sessions == nil {
		out.Sessions = []chat.Session{}
	}
	return out.Sessions, nil
}

// CreateSession asks the backend for a fresh, empty session.
func (c *Client) CreateSession(ctx context.Context) (chat.SessionRef, error) {
	var out chat.SessionRef
	if err := c.do(ctx, "create session", http.MethodPost, "/sessions", nil, &out); err != nil {
		return chat.SessionRef{}, err
	}
	return out, nil
}

// GetSession fetches a session together with its full turn history.
func (c *Client) GetSession(ctx context.Context, id string) (chat.SessionDetail, error) {
	var out chat.SessionDetail
	if err := c.do(ctx, "get session", http.MethodGet, sessionPath(id), nil, &out); err != nil {
		return chat.SessionDetail{}, err
	}
	if out.History == nil {
		out.History = []chat.Turn{}
	}
	return out, nil
}

// RenameSession sets a new display name.
func (c *Client) RenameSession(ctx context.Context, id, name string) error {
	return c.do(ctx, "rename session", http.MethodPost, sessionPath(id)+"/rename", chat.RenameRequest{Name: name}, nil)
}

// DeleteSession removes the session and its history.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "delete session", http.MethodDelete, sessionPath(id), nil, nil)
}

// Query submits a user message and returns the session it landed in.
func (c *Client) Query(ctx context.Context, req chat.QueryRequest) (chat.QueryResponse, error) {
	var out chat.QueryResponse
	if err := c.do(ctx, "query", http.MethodPost, "/query", req, &out); err != nil {
		return chat.QueryResponse{}, err
	}
	return out, nil
}

func sessionPath(id string) string {
	return "/sessions/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("backend request failed", "op", op, "request_id", requestID, "error", err)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	logger.Debug("backend request", "op", op, "method", method, "path", path,
		"status", resp.StatusCode, "request_id", requestID, "elapsed", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RejectedError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
