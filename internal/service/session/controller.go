// Package session owns the active conversation shown to the user.
//
// Controller is the only writer of the active session state. Open requests are
// numbered; a response is applied only when it belongs to the most recently
// issued request, and issuing a new Open cancels the previous one in flight.
// Creating a session or deleting the active one also supersedes pending opens.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/zhouzirui/z-tavern/chatsync/internal/backend"
	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/status"
)

// ErrSuperseded is returned by Open when a later request replaced it.
var ErrSuperseded = errors.New("session: superseded by a newer request")

// API is the subset of the backend client used by the controller.
type API interface {
	CreateSession(ctx context.Context) (chat.SessionRef, error)
	GetSession(ctx context.Context, id string) (chat.SessionDetail, error)
	RenameSession(ctx context.Context, id, name string) error
	DeleteSession(ctx context.Context, id string) error
}

// Refresher re-synchronises the session directory after a mutation.
type Refresher interface {
	Refresh(ctx context.Context) ([]chat.Session, error)
}

// Controller holds the single active session.
type Controller struct {
	api    API
	dir    Refresher
	status *status.Line

	mu         sync.Mutex
	state      chat.ActiveSession
	input      string
	seq        uint64
	cancelOpen context.CancelFunc
}

// New returns a controller with no active session.
func New(api API, dir Refresher, line *status.Line) *Controller {
	return &Controller{
		api:    api,
		dir:    dir,
		status: line,
		state:  chat.EmptyActiveSession(),
	}
}

// State returns a copy of the active session.
func (c *Controller) State() chat.ActiveSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// HasActive reports whether a session is selected.
func (c *Controller) HasActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SessionID != ""
}

// Input returns the pending composer text.
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetInput replaces the pending composer text.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
}

// Open fetches a session and replaces id, name and history in one step.
func (c *Controller) Open(ctx context.Context, id string) error {
	c.mu.Lock()
	seq := c.supersedeLocked()
	ctx, cancel := context.WithCancel(ctx)
	c.cancelOpen = cancel
	c.mu.Unlock()
	defer cancel()

	c.status.Set("Loading session...")
	detail, err := c.api.GetSession(ctx, id)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		logger.Debug("discarding stale session response", "session", id, "seq", seq)
		return ErrSuperseded
	}
	c.cancelOpen = nil
	if err != nil {
		c.mu.Unlock()
		c.status.Set(backend.StatusMessage(err, "Failed to load session"))
		return err
	}

	sessionID := detail.Session.ID
	if sessionID == "" {
		sessionID = id
	}
	c.state = chat.ActiveSession{
		SessionID: sessionID,
		Name:      detail.Session.Name,
		History:   append([]chat.Turn{}, detail.History...),
	}
	c.mu.Unlock()

	logger.Debug("session opened", "session", sessionID, "turns", len(detail.History))
	c.status.Set(status.Ready)
	return nil
}

// NewSession creates a backend session and makes it active with no history.
func (c *Controller) NewSession(ctx context.Context) error {
	c.status.Set("Creating chat...")
	ref, err := c.api.CreateSession(ctx)
	if err != nil {
		c.status.Set(backend.StatusMessage(err, "Could not create chat"))
		return err
	}

	name := ref.Name
	if name == "" {
		name = chat.DefaultSessionName
	}

	c.mu.Lock()
	c.supersedeLocked()
	c.state = chat.ActiveSession{SessionID: ref.ID, Name: name, History: []chat.Turn{}}
	c.input = ""
	c.mu.Unlock()

	logger.Info("session created", "session", ref.ID)
	if _, err := c.dir.Refresh(ctx); err == nil {
		c.status.Set(status.Ready)
	}
	return nil
}

// Rename changes a session's name. Blank names never reach the backend.
func (c *Controller) Rename(ctx context.Context, id, name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return &backend.ValidationError{Field: "name"}
	}

	if err := c.api.RenameSession(ctx, id, trimmed); err != nil {
		c.status.Set(backend.StatusMessage(err, "Rename failed"))
		return err
	}

	_, _ = c.dir.Refresh(ctx)

	c.mu.Lock()
	if c.state.SessionID == id {
		c.state.Name = trimmed
	}
	c.mu.Unlock()
	return nil
}

// Delete removes a session. Deleting the active one resets to the unset default.
// The directory is refreshed whether or not the delete succeeded.
func (c *Controller) Delete(ctx context.Context, id string) error {
	err := c.api.DeleteSession(ctx, id)
	if err != nil {
		c.status.Set(backend.StatusMessage(err, "Delete failed"))
	} else {
		c.mu.Lock()
		if c.state.SessionID == id {
			c.supersedeLocked()
			c.state = chat.EmptyActiveSession()
		}
		c.mu.Unlock()
		logger.Info("session deleted", "session", id)
	}

	_, _ = c.dir.Refresh(ctx)
	return err
}

// AppendOptimistic adds a turn to the active history before the backend has
// confirmed it. The next successful Open replaces it with server state.
func (c *Controller) AppendOptimistic(turn chat.Turn) {
	c.mu.Lock()
	c.state.History = append(c.state.History, turn)
	c.mu.Unlock()
}

// Adopt takes the backend's session id and name after a send. It applies only
// while the active session is still prevID, so a name is never paired with
// another session's history. Reports whether the state changed.
func (c *Controller) Adopt(prevID, id, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.SessionID != prevID {
		return false
	}
	c.state.SessionID = id
	if name != "" {
		c.state.Name = name
	}
	return true
}

// supersedeLocked invalidates any in-flight Open and returns the new sequence.
func (c *Controller) supersedeLocked() uint64 {
	c.seq++
	if c.cancelOpen != nil {
		c.cancelOpen()
		c.cancelOpen = nil
	}
	return c.seq
}
