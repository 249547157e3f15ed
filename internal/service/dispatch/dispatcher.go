// Package dispatch sends user messages with an optimistic local echo and then
// reconciles the active session against the backend's copy.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zhouzirui/z-tavern/chatsync/internal/backend"
	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/session"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/status"
)

// ErrBusy is returned when a send is already in flight.
var ErrBusy = errors.New("dispatch: a message is already being sent")

// Sender posts a query to the backend.
type Sender interface {
	Query(ctx context.Context, req chat.QueryRequest) (chat.QueryResponse, error)
}

// ActiveSession is the part of the session controller the dispatcher drives.
type ActiveSession interface {
	State() chat.ActiveSession
	AppendOptimistic(turn chat.Turn)
	SetInput(text string)
	Adopt(prevID, id, name string) bool
	Open(ctx context.Context, id string) error
}

// Refresher re-synchronises the session directory.
type Refresher interface {
	Refresh(ctx context.Context) ([]chat.Session, error)
}

// Selection names the provider and model a query is routed to.
type Selection struct {
	Backend string
	Model   string
}

// Dispatcher allows at most one outstanding send.
type Dispatcher struct {
	sender  Sender
	session ActiveSession
	dir     Refresher
	status  *status.Line

	busy atomic.Bool

	mu        sync.RWMutex
	selection Selection
}

// New builds a dispatcher routing queries to sel.
func New(sender Sender, active ActiveSession, dir Refresher, line *status.Line, sel Selection) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		session:   active,
		dir:       dir,
		status:    line,
		selection: sel,
	}
}

// Busy reports whether a send is in flight.
func (d *Dispatcher) Busy() bool {
	return d.busy.Load()
}

// Selection returns the current provider and model.
func (d *Dispatcher) Selection() Selection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selection
}

// SetSelection changes the provider and model used by later sends.
func (d *Dispatcher) SetSelection(sel Selection) {
	d.mu.Lock()
	d.selection = sel
	d.mu.Unlock()
}

// SelectProvider switches provider and picks its first preset model, if any.
func (d *Dispatcher) SelectProvider(provider string) Selection {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selection.Backend = provider
	if preset, ok := PresetFor(provider); ok {
		d.selection.Model = preset.Model
	}
	return d.selection
}

// Send posts text as a user turn.
//
// The turn is appended locally and the input cleared before the request is
// issued. On success the backend's session id and name are adopted and the
// session is re-fetched so the history matches the server exactly. On failure
// the optimistic turn stays in place and nothing is retried.
func (d *Dispatcher) Send(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &backend.ValidationError{Field: "query"}
	}
	if !d.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer d.busy.Store(false)

	d.status.Set("Sending...")
	before := d.session.State()
	d.session.AppendOptimistic(chat.UserTurn(trimmed))
	d.session.SetInput("")

	sel := d.Selection()
	resp, err := d.sender.Query(ctx, chat.QueryRequest{
		Query:       trimmed,
		Backend:     sel.Backend,
		Model:       sel.Model,
		SessionID:   before.SessionID,
		SessionName: before.Name,
	})
	if err != nil {
		logger.Warn("send failed", "session", before.SessionID, "error", err)
		d.status.Set(backend.StatusMessage(err, "Failed to send"))
		return err
	}

	sessionID := resp.SessionID
	if sessionID == "" {
		sessionID = before.SessionID
	}
	d.session.Adopt(before.SessionID, sessionID, resp.SessionName)

	var reconcileErr error
	if err := d.session.Open(ctx, sessionID); err != nil && !errors.Is(err, session.ErrSuperseded) {
		reconcileErr = fmt.Errorf("reconcile session %s: %w", sessionID, err)
		logger.Warn("reconcile after send failed", "session", sessionID, "error", err)
	}

	_, refreshErr := d.dir.Refresh(ctx)
	if reconcileErr == nil && refreshErr == nil {
		d.status.Set(status.Ready)
	}
	return reconcileErr
}
