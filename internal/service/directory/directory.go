// Package directory caches the list of sessions known to the backend.
package directory

import (
	"context"
	"sync"

	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/status"
)

// Lister fetches the authoritative session list.
type Lister interface {
	ListSessions(ctx context.Context) ([]chat.Session, error)
}

// Activator opens a session when none is active yet.
type Activator interface {
	HasActive() bool
	Open(ctx context.Context, id string) error
}

// Directory is a read-through cache of the session list. Only Load writes it.
type Directory struct {
	lister Lister
	status *status.Line

	mu        sync.RWMutex
	sessions  []chat.Session
	activator Activator
	issued    uint64
	applied   uint64
}

// New creates an empty directory.
func New(lister Lister, line *status.Line) *Directory {
	return &Directory{lister: lister, status: line, sessions: []chat.Session{}}
}

// SetActivator wires the controller that Load auto-opens sessions through.
func (d *Directory) SetActivator(a Activator) {
	d.mu.Lock()
	d.activator = a
	d.mu.Unlock()
}

// Load replaces the cache with the server's list, in server order.
// When no session is active the first entry is opened. On failure the cache
// keeps its previous contents.
func (d *Directory) Load(ctx context.Context) ([]chat.Session, error) {
	return d.load(ctx, true)
}

// Refresh is Load without the auto-open step. Mutating commands use it so a
// deliberately cleared active session stays cleared.
func (d *Directory) Refresh(ctx context.Context) ([]chat.Session, error) {
	return d.load(ctx, false)
}

// load applies a response only if no later-issued load has been applied
// already, so overlapping loads never roll the cache back.
func (d *Directory) load(ctx context.Context, autoOpen bool) ([]chat.Session, error) {
	d.mu.Lock()
	d.issued++
	gen := d.issued
	d.mu.Unlock()

	sessions, err := d.lister.ListSessions(ctx)
	if err != nil {
		logger.Warn("session list refresh failed", "error", err)
		d.status.Set("Could not load sessions")
		return d.Sessions(), err
	}

	d.mu.Lock()
	if gen < d.applied {
		d.mu.Unlock()
		logger.Debug("discarding stale session list", "gen", gen, "applied", d.applied)
		return d.Sessions(), nil
	}
	d.applied = gen
	d.sessions = append([]chat.Session(nil), sessions...)
	activator := d.activator
	d.mu.Unlock()

	logger.Debug("session list refreshed", "count", len(sessions))

	if autoOpen && activator != nil && !activator.HasActive() && len(sessions) > 0 {
		if err := activator.Open(ctx, sessions[0].ID); err != nil {
			logger.Debug("auto-open skipped", "session", sessions[0].ID, "error", err)
		}
	}

	return d.Sessions(), nil
}

// Sessions returns a copy of the cached list.
func (d *Directory) Sessions() []chat.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]chat.Session{}, d.sessions...)
}

// Find looks up a cached session by id.
func (d *Directory) Find(id string) (chat.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return chat.Session{}, false
}
