// Package app assembles the chat controller and exposes the commands and the
// read-only snapshot a presentation layer works with.
package app

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-tavern/chatsync/internal/backend"
	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/directory"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/dispatch"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/health"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/session"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/status"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/theme"
)

// Options configures New. Zero values pick sensible defaults.
type Options struct {
	APIBase     string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Selection   dispatch.Selection
	Preferences theme.Store
	Appliers    []theme.Applier
}

// Snapshot is a consistent-enough view of everything the user sees.
type Snapshot struct {
	Active    chat.ActiveSession
	Sessions  []chat.Session
	Health    health.State
	Busy      bool
	Status    string
	Theme     theme.Theme
	Selection dispatch.Selection
	Input     string
}

// App owns one controller instance and its collaborators.
type App struct {
	client   *backend.Client
	status   *status.Line
	health   *health.Monitor
	dir      *directory.Directory
	session  *session.Controller
	dispatch *dispatch.Dispatcher
	theme    *theme.Preference
}

// New wires the components. Nothing touches the network until Start.
func New(opts Options) *App {
	clientOpts := []backend.Option{}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, backend.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, backend.WithTimeout(opts.Timeout))
	}
	client := backend.New(opts.APIBase, clientOpts...)

	sel := opts.Selection
	if sel.Backend == "" {
		sel = dispatch.Selection{Backend: dispatch.Presets[0].Backend, Model: dispatch.Presets[0].Model}
	}

	prefs := opts.Preferences
	if prefs == nil {
		prefs = theme.NewMemoryStore()
	}

	line := status.NewLine()
	dir := directory.New(client, line)
	ctrl := session.New(client, dir, line)
	dir.SetActivator(ctrl)

	return &App{
		client:   client,
		status:   line,
		health:   health.NewMonitor(client, line),
		dir:      dir,
		session:  ctrl,
		dispatch: dispatch.New(client, ctrl, dir, line, sel),
		theme:    theme.NewPreference(prefs, opts.Appliers...),
	}
}

// Start applies the stored theme, then probes health and loads the session
// directory concurrently. A directory failure is returned; a failed health
// probe is reported through the result only.
func (a *App) Start(ctx context.Context) (health.Result, error) {
	a.LoadTheme()

	// No shared context: a failed listing must not cancel the probe.
	var result health.Result
	var g errgroup.Group
	g.Go(func() error {
		result = a.health.Check(ctx)
		return nil
	})
	g.Go(func() error {
		_, err := a.dir.Load(ctx)
		return err
	})
	err := g.Wait()

	logger.Info("controller started", "api", a.client.BaseURL(), "healthy", result.Ready, "sessions", len(a.dir.Sessions()))
	return result, err
}

// LoadTheme reads the stored theme and applies it.
func (a *App) LoadTheme() theme.Theme {
	return a.theme.Load()
}

// FindSession looks up a listed session by id.
func (a *App) FindSession(id string) (chat.Session, bool) {
	return a.dir.Find(id)
}

// CheckHealth runs one liveness probe.
func (a *App) CheckHealth(ctx context.Context) health.Result {
	return a.health.Check(ctx)
}

// RefreshSessions reloads the directory without changing the active session.
func (a *App) RefreshSessions(ctx context.Context) ([]chat.Session, error) {
	return a.dir.Refresh(ctx)
}

// OpenSession makes id the active session.
func (a *App) OpenSession(ctx context.Context, id string) error {
	return a.session.Open(ctx, id)
}

// NewSession creates and activates an empty session.
func (a *App) NewSession(ctx context.Context) error {
	return a.session.NewSession(ctx)
}

// RenameSession renames id; blank names are rejected locally.
func (a *App) RenameSession(ctx context.Context, id, name string) error {
	return a.session.Rename(ctx, id, name)
}

// DeleteSession removes id.
func (a *App) DeleteSession(ctx context.Context, id string) error {
	return a.session.Delete(ctx, id)
}

// SendMessage sends text into the active session.
func (a *App) SendMessage(ctx context.Context, text string) error {
	return a.dispatch.Send(ctx, text)
}

// SendInput sends the pending composer text.
func (a *App) SendInput(ctx context.Context) error {
	return a.dispatch.Send(ctx, a.session.Input())
}

// SetInput replaces the pending composer text.
func (a *App) SetInput(text string) {
	a.session.SetInput(text)
}

// SelectProvider switches provider and returns the resulting selection.
func (a *App) SelectProvider(provider string) dispatch.Selection {
	return a.dispatch.SelectProvider(provider)
}

// SetSelection overrides provider and model.
func (a *App) SetSelection(sel dispatch.Selection) {
	a.dispatch.SetSelection(sel)
}

// ToggleTheme flips and persists the theme.
func (a *App) ToggleTheme() (theme.Theme, error) {
	return a.theme.Toggle()
}

// SetTheme persists t.
func (a *App) SetTheme(t theme.Theme) error {
	return a.theme.Set(t)
}

// AddThemeApplier registers another presentation target for theme changes.
func (a *App) AddThemeApplier(applier theme.Applier) {
	a.theme.AddApplier(applier)
}

// OnStatus registers a callback for status line changes.
func (a *App) OnStatus(fn func(string)) {
	a.status.OnChange(fn)
}

// Snapshot returns the current view.
func (a *App) Snapshot() Snapshot {
	return Snapshot{
		Active:    a.session.State(),
		Sessions:  a.dir.Sessions(),
		Health:    a.health.State(),
		Busy:      a.dispatch.Busy(),
		Status:    a.status.Get(),
		Theme:     a.theme.Current(),
		Selection: a.dispatch.Selection(),
		Input:     a.session.Input(),
	}
}
