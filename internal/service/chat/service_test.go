package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func stores(t *testing.T) map[string]Store {
	t.Helper()

	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	mem := NewMemoryStore()
	mem.now = clock.now

	sqliteClock := &fakeClock{t: clock.t}
	db, err := OpenSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLiteStore err: %v", err)
	}
	db.now = sqliteClock.now
	t.Cleanup(func() { db.Close() })

	return map[string]Store{"memory": mem, "sqlite": db}
}

func TestStoreCreateAndGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session, err := store.CreateSession(ctx, "  ")
			if err != nil {
				t.Fatalf("CreateSession err: %v", err)
			}
			if session.Name != "New chat" {
				t.Fatalf("unexpected default name: %q", session.Name)
			}

			got, err := store.GetSession(ctx, session.ID)
			if err != nil {
				t.Fatalf("GetSession err: %v", err)
			}
			if got.ID != session.ID || !got.UpdatedAt.Equal(session.UpdatedAt) {
				t.Fatalf("unexpected session: got %+v want %+v", got, session)
			}

			turns, err := store.LoadTranscript(ctx, session.ID)
			if err != nil {
				t.Fatalf("LoadTranscript err: %v", err)
			}
			if len(turns) != 0 {
				t.Fatalf("expected empty transcript, got %d turns", len(turns))
			}
		})
	}
}

func TestStoreGetSessionNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
			if _, err := store.LoadTranscript(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
			if err := store.AppendTurn(ctx, "missing", chat.UserTurn("hi")); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
			if err := store.DeleteSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestStoreTranscriptOrderAndRecency(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, _ := store.CreateSession(ctx, "First")
			second, _ := store.CreateSession(ctx, "Second")

			list, err := store.ListSessions(ctx)
			if err != nil {
				t.Fatalf("ListSessions err: %v", err)
			}
			if len(list) != 2 || list[0].ID != second.ID {
				t.Fatalf("expected newest session first, got %+v", list)
			}

			if err := store.AppendTurn(ctx, first.ID, chat.UserTurn("hello")); err != nil {
				t.Fatalf("AppendTurn err: %v", err)
			}
			if err := store.AppendTurn(ctx, first.ID, chat.AssistantTurn("hi there")); err != nil {
				t.Fatalf("AppendTurn err: %v", err)
			}

			list, _ = store.ListSessions(ctx)
			if list[0].ID != first.ID {
				t.Fatalf("expected updated session first, got %s", list[0].ID)
			}

			turns, err := store.LoadTranscript(ctx, first.ID)
			if err != nil {
				t.Fatalf("LoadTranscript err: %v", err)
			}
			want := []chat.Turn{chat.UserTurn("hello"), chat.AssistantTurn("hi there")}
			if len(turns) != len(want) {
				t.Fatalf("unexpected transcript: %+v", turns)
			}
			for i := range want {
				if turns[i] != want[i] {
					t.Fatalf("turn %d: got %+v want %+v", i, turns[i], want[i])
				}
			}
		})
	}
}

func TestStoreRenameAndDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session, _ := store.CreateSession(ctx, "")
			_ = store.AppendTurn(ctx, session.ID, chat.UserTurn("hello"))

			if _, err := store.RenameSession(ctx, session.ID, " "); !errors.Is(err, ErrNameRequired) {
				t.Fatalf("expected ErrNameRequired, got %v", err)
			}
			renamed, err := store.RenameSession(ctx, session.ID, "Lisbon trip")
			if err != nil {
				t.Fatalf("RenameSession err: %v", err)
			}
			if renamed.Name != "Lisbon trip" {
				t.Fatalf("unexpected name: %q", renamed.Name)
			}

			if err := store.DeleteSession(ctx, session.ID); err != nil {
				t.Fatalf("DeleteSession err: %v", err)
			}
			if _, err := store.GetSession(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected deleted session to be gone, got %v", err)
			}
			list, _ := store.ListSessions(ctx)
			if len(list) != 0 {
				t.Fatalf("expected empty list, got %+v", list)
			}
		})
	}
}
