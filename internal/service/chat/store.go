package chat

import (
	"context"
	"errors"

	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNameRequired    = errors.New("name is required")
)

// Store persists sessions and their transcripts.
// ListSessions returns the most recently updated session first.
type Store interface {
	CreateSession(ctx context.Context, name string) (chat.Session, error)
	ListSessions(ctx context.Context) ([]chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	RenameSession(ctx context.Context, sessionID, name string) (chat.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	AppendTurn(ctx context.Context, sessionID string, turn chat.Turn) error
	LoadTranscript(ctx context.Context, sessionID string) ([]chat.Turn, error)
	Close() error
}
