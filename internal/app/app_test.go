package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/chatsync/internal/backend"
	"github.com/zhouzirui/z-tavern/chatsync/internal/handler"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/ai"
	chatService "github.com/zhouzirui/z-tavern/chatsync/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/dispatch"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/health"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/session"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/theme"
	"github.com/zhouzirui/z-tavern/chatsync/pkg/utils"
)

// requestLog records every request the backend sees.
type requestLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *requestLog) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.mu.Lock()
		l.lines = append(l.lines, r.Method+" "+r.URL.Path)
		l.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (l *requestLog) count(line string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, got := range l.lines {
		if got == line {
			n++
		}
	}
	return n
}

type failingResponder struct{}

func (failingResponder) Reply(context.Context, ai.Request) (string, error) {
	return "", errors.New("provider quota exceeded")
}

// newBackend starts the development backend over a memory store.
func newBackend(t *testing.T, responder ai.Responder) (*httptest.Server, *chatService.MemoryStore, *requestLog) {
	t.Helper()
	store := chatService.NewMemoryStore()
	log := &requestLog{}
	srv := httptest.NewServer(log.middleware(handler.NewRouter(store, responder, false)))
	t.Cleanup(srv.Close)
	return srv, store, log
}

func newApp(baseURL string, prefs theme.Store) *App {
	return New(Options{
		APIBase:     baseURL,
		Timeout:     5 * time.Second,
		Selection:   dispatch.Selection{Backend: "azure", Model: "gpt-4o-mini"},
		Preferences: prefs,
	})
}

func TestStartOpensFirstSession(t *testing.T) {
	srv, store, _ := newBackend(t, ai.EchoResponder{})
	ctx := context.Background()
	existing, err := store.CreateSession(ctx, "Trip")
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(ctx, existing.ID, chat.UserTurn("hi")))

	a := newApp(srv.URL, nil)
	result, err := a.Start(ctx)
	require.NoError(t, err)
	assert.True(t, result.Ready)

	snap := a.Snapshot()
	assert.Equal(t, existing.ID, snap.Active.SessionID)
	assert.Equal(t, "Trip", snap.Active.Name)
	assert.Equal(t, []chat.Turn{chat.UserTurn("hi")}, snap.Active.History)
	assert.Len(t, snap.Sessions, 1)
	assert.Equal(t, health.OK, snap.Health)
	assert.Equal(t, "Ready", snap.Status)
	assert.Equal(t, theme.Light, snap.Theme)
}

func TestStartAgainstOfflineBackend(t *testing.T) {
	srv, _, _ := newBackend(t, ai.EchoResponder{})
	srv.Close()

	a := newApp(srv.URL, nil)
	result, err := a.Start(context.Background())
	require.Error(t, err)
	assert.False(t, result.Ready)
	assert.NotEmpty(t, result.Reason)

	snap := a.Snapshot()
	assert.Equal(t, health.Failed, snap.Health)
	assert.Empty(t, snap.Active.SessionID)
	assert.Empty(t, snap.Sessions)
}

func TestStartKeepsHealthyWhenListingFails(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusInternalServerError, "db down")
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	a := newApp(srv.URL, nil)
	result, err := a.Start(context.Background())

	var rejected *backend.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "db down", rejected.Body)
	assert.True(t, result.Ready)
	assert.Empty(t, result.Reason)

	snap := a.Snapshot()
	assert.Equal(t, health.OK, snap.Health)
	assert.Empty(t, snap.Sessions)
	assert.Empty(t, snap.Active.SessionID)
}

func TestFindSession(t *testing.T) {
	srv, _, _ := newBackend(t, ai.EchoResponder{})
	a := newApp(srv.URL, nil)
	ctx := context.Background()
	require.NoError(t, a.NewSession(ctx))
	id := a.Snapshot().Active.SessionID

	got, ok := a.FindSession(id)
	require.True(t, ok)
	assert.Equal(t, "New chat", got.Name)

	_, ok = a.FindSession("missing")
	assert.False(t, ok)
}

func TestNewSessionOnEmptyBackend(t *testing.T) {
	srv, _, _ := newBackend(t, ai.EchoResponder{})
	a := newApp(srv.URL, nil)
	ctx := context.Background()
	_, err := a.Start(ctx)
	require.NoError(t, err)
	assert.Empty(t, a.Snapshot().Active.SessionID)

	require.NoError(t, a.NewSession(ctx))

	snap := a.Snapshot()
	require.NotEmpty(t, snap.Active.SessionID)
	assert.Equal(t, "New chat", snap.Active.Name)
	assert.Empty(t, snap.Active.History)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, snap.Active.SessionID, snap.Sessions[0].ID)
}

func TestSendReconcilesAssistantReply(t *testing.T) {
	srv, _, _ := newBackend(t, ai.EchoResponder{})
	a := newApp(srv.URL, nil)
	ctx := context.Background()
	require.NoError(t, a.NewSession(ctx))
	active := a.Snapshot().Active.SessionID

	a.SetInput("Hello")
	require.NoError(t, a.SendInput(ctx))

	snap := a.Snapshot()
	assert.Equal(t, active, snap.Active.SessionID)
	assert.Equal(t, []chat.Turn{chat.UserTurn("Hello"), chat.AssistantTurn("You said: Hello")}, snap.Active.History)
	assert.Empty(t, snap.Input)
	assert.False(t, snap.Busy)
	assert.Equal(t, "Ready", snap.Status)
}

func TestFirstSendCreatesSessionLazily(t *testing.T) {
	srv, _, log := newBackend(t, ai.EchoResponder{})
	a := newApp(srv.URL, nil)
	ctx := context.Background()
	_, err := a.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, a.SendMessage(ctx, "Will it rain?"))

	snap := a.Snapshot()
	require.NotEmpty(t, snap.Active.SessionID)
	assert.Equal(t, "New chat", snap.Active.Name)
	assert.Len(t, snap.Active.History, 2)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, snap.Active.SessionID, snap.Sessions[0].ID)
	assert.Equal(t, 0, log.count("POST /sessions"))
}

func TestBlankSendIssuesNoRequest(t *testing.T) {
	srv, _, log := newBackend(t, ai.EchoResponder{})
	a := newApp(srv.URL, nil)
	ctx := context.Background()
	require.NoError(t, a.NewSession(ctx))
	a.SetInput("   ")

	assert.True(t, backend.IsValidation(a.SendMessage(ctx, "")))
	assert.True(t, backend.IsValidation(a.SendInput(ctx)))

	snap := a.Snapshot()
	assert.Empty(t, snap.Active.History)
	assert.Equal(t, "   ", snap.Input)
	assert.Equal(t, 0, log.count("POST /query"))
}

func TestFailedSendKeepsOptimisticTurn(t *testing.T) {
	srv, _, _ := newBackend(t, failingResponder{})
	a := newApp(srv.URL, nil)
	ctx := context.Background()
	require.NoError(t, a.NewSession(ctx))

	err := a.SendMessage(ctx, "Hello")
	var rejected *backend.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadGateway, rejected.Status)

	snap := a.Snapshot()
	assert.Equal(t, []chat.Turn{chat.UserTurn("Hello")}, snap.Active.History)
	assert.Equal(t, "AI generation failed: provider quota exceeded", snap.Status)
	assert.False(t, snap.Busy)
}

func TestRenameBlankIssuesNoRequest(t *testing.T) {
	srv, _, log := newBackend(t, ai.EchoResponder{})
	a := newApp(srv.URL, nil)
	ctx := context.Background()
	require.NoError(t, a.NewSession(ctx))
	id := a.Snapshot().Active.SessionID

	assert.True(t, backend.IsValidation(a.RenameSession(ctx, id, "")))
	assert.Equal(t, 0, log.count("POST /sessions/"+id+"/rename"))
	snap := a.Snapshot()
	assert.Equal(t, "New chat", snap.Sessions[0].Name)

	require.NoError(t, a.RenameSession(ctx, id, "Lisbon"))
	snap = a.Snapshot()
	assert.Equal(t, "Lisbon", snap.Active.Name)
	assert.Equal(t, "Lisbon", snap.Sessions[0].Name)
}

func TestDeleteActiveResetsAndStaysUnset(t *testing.T) {
	srv, store, _ := newBackend(t, ai.EchoResponder{})
	ctx := context.Background()
	other, err := store.CreateSession(ctx, "Other")
	require.NoError(t, err)

	a := newApp(srv.URL, nil)
	require.NoError(t, a.NewSession(ctx))
	id := a.Snapshot().Active.SessionID
	require.NoError(t, a.SendMessage(ctx, "hi"))

	require.NoError(t, a.DeleteSession(ctx, id))

	snap := a.Snapshot()
	assert.Equal(t, chat.EmptyActiveSession(), snap.Active)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, other.ID, snap.Sessions[0].ID)
}

func TestOpenIsIdempotent(t *testing.T) {
	srv, store, _ := newBackend(t, ai.EchoResponder{})
	ctx := context.Background()
	existing, _ := store.CreateSession(ctx, "Trip")
	_ = store.AppendTurn(ctx, existing.ID, chat.UserTurn("hi"))
	_ = store.AppendTurn(ctx, existing.ID, chat.AssistantTurn("hello"))

	a := newApp(srv.URL, nil)
	require.NoError(t, a.OpenSession(ctx, existing.ID))
	first := a.Snapshot().Active
	require.NoError(t, a.OpenSession(ctx, existing.ID))
	assert.Equal(t, first, a.Snapshot().Active)
	assert.Len(t, first.History, 2)
}

func TestOpenLastIssuedWinsOverSlowResponse(t *testing.T) {
	release := make(chan struct{})
	s1Started := make(chan struct{})

	r := chi.NewRouter()
	r.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "s1" {
			close(s1Started)
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, chat.SessionDetail{
			Session: chat.SessionRef{ID: id, Name: "Session " + id},
			History: []chat.Turn{chat.UserTurn("from " + id)},
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	a := newApp(srv.URL, nil)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- a.OpenSession(ctx, "s1") }()
	<-s1Started

	require.NoError(t, a.OpenSession(ctx, "s2"))
	assert.ErrorIs(t, <-first, session.ErrSuperseded)

	snap := a.Snapshot()
	assert.Equal(t, "s2", snap.Active.SessionID)
	assert.Equal(t, "Session s2", snap.Active.Name)
	assert.Equal(t, []chat.Turn{chat.UserTurn("from s2")}, snap.Active.History)
}

func TestThemeSurvivesReload(t *testing.T) {
	srv, _, _ := newBackend(t, ai.EchoResponder{})
	path := filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	store, err := theme.OpenBoltStore(path)
	require.NoError(t, err)
	a := newApp(srv.URL, store)
	_, err = a.Start(ctx)
	require.NoError(t, err)
	got, err := a.ToggleTheme()
	require.NoError(t, err)
	assert.Equal(t, theme.Dark, got)
	require.NoError(t, store.Close())

	reopened, err := theme.OpenBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	var applied theme.Theme
	b := New(Options{
		APIBase:     srv.URL,
		Preferences: reopened,
		Appliers:    []theme.Applier{theme.ApplierFunc(func(th theme.Theme) { applied = th })},
	})
	_, err = b.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, theme.Dark, b.Snapshot().Theme)
	assert.Equal(t, theme.Dark, applied)
}

func TestSelectProvider(t *testing.T) {
	a := New(Options{APIBase: "http://127.0.0.1:1"})
	assert.Equal(t, dispatch.Selection{Backend: "azure", Model: "gpt-4o-mini"}, a.Snapshot().Selection)

	sel := a.SelectProvider("groq")
	assert.Equal(t, "llama-3.3-70b-versatile", sel.Model)
	assert.Equal(t, sel, a.Snapshot().Selection)
}
