package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS turns (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_session_idx ON turns(session_id, seq);
`

// SQLiteStore persists conversations in a SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore opens the database at path, creating the schema if needed.
// Use ":memory:" for a throwaway database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// CreateSession provisions an empty session. A blank name becomes "New chat".
func (s *SQLiteStore) CreateSession(ctx context.Context, name string) (chat.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = chat.DefaultSessionName
	}
	now := s.now()
	session := chat.Session{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		session.ID, session.Name, now.UnixNano(), now.UnixNano())
	if err != nil {
		return chat.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// ListSessions returns every session, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]chat.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at, updated_at FROM sessions ORDER BY updated_at DESC, created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	sessions := make([]chat.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return sessions, nil
}

// GetSession retrieves a session by identifier.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM sessions WHERE id = ?", sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, err
}

// RenameSession changes the display name and bumps updated_at.
func (s *SQLiteStore) RenameSession(ctx context.Context, sessionID, name string) (chat.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return chat.Session{}, ErrNameRequired
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?", name, s.now().UnixNano(), sessionID)
	if err != nil {
		return chat.Session{}, fmt.Errorf("rename session: %w", err)
	}
	if err := requireRow(res); err != nil {
		return chat.Session{}, err
	}
	return s.GetSession(ctx, sessionID)
}

// DeleteSession drops the session and its transcript.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return tx.Commit()
}

// AppendTurn appends a turn and bumps the session's updated_at.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, turn chat.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", s.now().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO turns (session_id, role, content) VALUES (?, ?, ?)",
		sessionID, string(turn.Role), turn.Content); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return tx.Commit()
}

// LoadTranscript returns stored turns in insertion order.
func (s *SQLiteStore) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content FROM turns WHERE session_id = ? ORDER BY seq", sessionID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	turns := make([]chat.Turn, 0)
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		turns = append(turns, chat.Turn{Role: chat.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return turns, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (chat.Session, error) {
	var (
		session          chat.Session
		created, updated int64
	)
	if err := row.Scan(&session.ID, &session.Name, &created, &updated); err != nil {
		return chat.Session{}, err
	}
	session.CreatedAt = time.Unix(0, created).UTC()
	session.UpdatedAt = time.Unix(0, updated).UTC()
	return session, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
