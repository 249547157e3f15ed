package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
)

// MemoryStore keeps conversations in process memory, suitable for development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	turns    map[string][]chat.Turn
	now      func() time.Time
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
		turns:    make(map[string][]chat.Turn),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions an empty session. A blank name becomes "New chat".
func (s *MemoryStore) CreateSession(_ context.Context, name string) (chat.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = chat.DefaultSessionName
	}

	now := s.now()
	session := chat.Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.turns[session.ID] = make([]chat.Turn, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// ListSessions returns every session, most recently updated first.
func (s *MemoryStore) ListSessions(_ context.Context) ([]chat.Session, error) {
	s.mu.RLock()
	list := make([]chat.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, session)
	}
	s.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// GetSession retrieves a session by identifier.
func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// RenameSession changes the display name and bumps UpdatedAt.
func (s *MemoryStore) RenameSession(_ context.Context, sessionID, name string) (chat.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return chat.Session{}, ErrNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	session.Name = name
	session.UpdatedAt = s.now()
	s.sessions[sessionID] = session
	return session, nil
}

// DeleteSession drops the session and its transcript.
func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	return nil
}

// AppendTurn appends a turn to the session history.
func (s *MemoryStore) AppendTurn(_ context.Context, sessionID string, turn chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	s.turns[sessionID] = append(s.turns[sessionID], turn)
	session.UpdatedAt = s.now()
	s.sessions[sessionID] = session
	return nil
}

// LoadTranscript returns stored turns for the provided session.
func (s *MemoryStore) LoadTranscript(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
