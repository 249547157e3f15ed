package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/chatsync/internal/backend"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/session"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/status"
)

// fakeBackend records queries and serves session details from memory.
type fakeBackend struct {
	mu       sync.Mutex
	details  map[string]chat.SessionDetail
	queries  []chat.QueryRequest
	queryErr error
	reply    chat.QueryResponse
	gate     chan struct{}
	started  chan struct{}
	onQuery  func(req chat.QueryRequest)
	refresh  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{details: map[string]chat.SessionDetail{}}
}

func (f *fakeBackend) CreateSession(context.Context) (chat.SessionRef, error) {
	return chat.SessionRef{}, errors.New("not used")
}

func (f *fakeBackend) GetSession(_ context.Context, id string) (chat.SessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	detail, ok := f.details[id]
	if !ok {
		return chat.SessionDetail{}, &backend.RejectedError{Status: 404, Body: "session not found"}
	}
	return detail, nil
}

func (f *fakeBackend) RenameSession(context.Context, string, string) error { return nil }
func (f *fakeBackend) DeleteSession(context.Context, string) error         { return nil }

func (f *fakeBackend) Query(_ context.Context, req chat.QueryRequest) (chat.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req)
	gate, started, onQuery := f.gate, f.started, f.onQuery
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	if f.queryErr != nil {
		return chat.QueryResponse{}, f.queryErr
	}
	if onQuery != nil {
		onQuery(req)
	}
	return f.reply, nil
}

func (f *fakeBackend) Refresh(context.Context) ([]chat.Session, error) {
	f.mu.Lock()
	f.refresh++
	f.mu.Unlock()
	return nil, nil
}

func (f *fakeBackend) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func setup(t *testing.T) (*fakeBackend, *session.Controller, *Dispatcher, *status.Line) {
	t.Helper()
	fb := newFakeBackend()
	line := status.NewLine()
	ctrl := session.New(fb, fb, line)
	d := New(fb, ctrl, fb, line, Selection{Backend: "azure", Model: "gpt-4o-mini"})
	return fb, ctrl, d, line
}

func TestSendBlankIsNoOp(t *testing.T) {
	fb, ctrl, d, _ := setup(t)
	ctrl.SetInput("   ")

	for _, text := range []string{"", "   ", "\n\t"} {
		err := d.Send(context.Background(), text)
		assert.True(t, backend.IsValidation(err))
	}

	assert.Equal(t, 0, fb.queryCount())
	assert.Empty(t, ctrl.State().History)
	assert.Equal(t, "   ", ctrl.Input())
	assert.False(t, d.Busy())
}

func TestSendReconcilesWithServerHistory(t *testing.T) {
	fb, ctrl, d, line := setup(t)
	fb.details["s1"] = chat.SessionDetail{Session: chat.SessionRef{ID: "s1", Name: "New chat"}}
	require.NoError(t, ctrl.Open(context.Background(), "s1"))
	ctrl.SetInput("Hello")

	fb.reply = chat.QueryResponse{SessionID: "s1", SessionName: "New chat"}
	fb.onQuery = func(req chat.QueryRequest) {
		// optimistic turn is visible while the request is in flight
		state := ctrl.State()
		assert.Equal(t, []chat.Turn{chat.UserTurn("Hello")}, state.History)
		assert.Empty(t, ctrl.Input())
		assert.True(t, d.Busy())

		fb.mu.Lock()
		fb.details["s1"] = chat.SessionDetail{
			Session: chat.SessionRef{ID: "s1", Name: "New chat"},
			History: []chat.Turn{chat.UserTurn("Hello"), chat.AssistantTurn("Hi there")},
		}
		fb.mu.Unlock()
	}

	require.NoError(t, d.Send(context.Background(), "  Hello "))

	state := ctrl.State()
	assert.Equal(t, "s1", state.SessionID)
	assert.Equal(t, []chat.Turn{chat.UserTurn("Hello"), chat.AssistantTurn("Hi there")}, state.History)
	assert.False(t, d.Busy())
	assert.Equal(t, 1, fb.refresh)
	assert.Equal(t, "Ready", line.Get())

	require.Len(t, fb.queries, 1)
	q := fb.queries[0]
	assert.Equal(t, "Hello", q.Query)
	assert.Equal(t, "azure", q.Backend)
	assert.Equal(t, "gpt-4o-mini", q.Model)
	assert.Equal(t, "s1", q.SessionID)
	assert.Equal(t, "New chat", q.SessionName)
	assert.False(t, q.ReturnContexts)
}

func TestSendWithoutSessionAdoptsServerSession(t *testing.T) {
	fb, ctrl, d, _ := setup(t)
	fb.reply = chat.QueryResponse{SessionID: "s7", SessionName: "Weather"}
	fb.details["s7"] = chat.SessionDetail{
		Session: chat.SessionRef{ID: "s7", Name: "Weather"},
		History: []chat.Turn{chat.UserTurn("Will it rain?"), chat.AssistantTurn("Probably.")},
	}

	require.NoError(t, d.Send(context.Background(), "Will it rain?"))

	require.Len(t, fb.queries, 1)
	assert.Empty(t, fb.queries[0].SessionID)
	assert.Equal(t, "New chat", fb.queries[0].SessionName)

	state := ctrl.State()
	assert.Equal(t, "s7", state.SessionID)
	assert.Equal(t, "Weather", state.Name)
	assert.Len(t, state.History, 2)
}

func TestSendWhileBusyIsNoOp(t *testing.T) {
	fb, ctrl, d, _ := setup(t)
	fb.details["s1"] = chat.SessionDetail{Session: chat.SessionRef{ID: "s1", Name: "New chat"}}
	require.NoError(t, ctrl.Open(context.Background(), "s1"))
	fb.reply = chat.QueryResponse{SessionID: "s1"}
	fb.gate = make(chan struct{})
	fb.started = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- d.Send(context.Background(), "first") }()
	<-fb.started

	historyBefore := ctrl.State().History
	err := d.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, historyBefore, ctrl.State().History)
	assert.Equal(t, 1, fb.queryCount())

	close(fb.gate)
	require.NoError(t, <-done)
	assert.False(t, d.Busy())
}

func TestSendFailureKeepsOptimisticTurn(t *testing.T) {
	fb, ctrl, d, line := setup(t)
	fb.details["s1"] = chat.SessionDetail{Session: chat.SessionRef{ID: "s1", Name: "Trip"}, History: []chat.Turn{chat.UserTurn("earlier")}}
	require.NoError(t, ctrl.Open(context.Background(), "s1"))
	fb.queryErr = &backend.RejectedError{Status: 502, Body: "model provider unavailable"}

	err := d.Send(context.Background(), "Hello")
	require.Error(t, err)

	state := ctrl.State()
	assert.Equal(t, []chat.Turn{chat.UserTurn("earlier"), chat.UserTurn("Hello")}, state.History)
	assert.Equal(t, "model provider unavailable", line.Get())
	assert.False(t, d.Busy())
	assert.Equal(t, 0, fb.refresh)

	// the latch is released, so a later send goes out
	fb.queryErr = nil
	fb.reply = chat.QueryResponse{SessionID: "s1"}
	require.NoError(t, d.Send(context.Background(), "again"))
	assert.Equal(t, 2, fb.queryCount())
}

func TestSendReconcileFailureIsReported(t *testing.T) {
	fb, ctrl, d, line := setup(t)
	fb.reply = chat.QueryResponse{SessionID: "ghost", SessionName: "Ghost"}

	err := d.Send(context.Background(), "Hello")
	require.Error(t, err)
	assert.Equal(t, "session not found", line.Get())
	assert.Equal(t, 1, fb.refresh)
	assert.Equal(t, "ghost", ctrl.State().SessionID)
	assert.False(t, d.Busy())
}

func TestSelectProviderPicksPresetModel(t *testing.T) {
	_, _, d, _ := setup(t)

	sel := d.SelectProvider("groq")
	assert.Equal(t, Selection{Backend: "groq", Model: "llama-3.3-70b-versatile"}, sel)
	assert.Equal(t, "Groq · Llama 3.3 70B", LabelFor(sel))

	sel = d.SelectProvider("custom")
	assert.Equal(t, "custom", sel.Backend)
	assert.Equal(t, "llama-3.3-70b-versatile", sel.Model)
	assert.Empty(t, LabelFor(sel))

	d.SetSelection(Selection{Backend: "azure", Model: "my-deployment"})
	assert.Equal(t, "my-deployment", d.Selection().Model)
}
