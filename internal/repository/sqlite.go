package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"propertychat/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
    id            TEXT PRIMARY KEY,
    session_token TEXT NOT NULL UNIQUE,
    context       TEXT NOT NULL DEFAULT '{}',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id        TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
    role              TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content           TEXT NOT NULL,
    extracted_filters TEXT,
    result_count      INTEGER,
    created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at, id);
`

// SQLiteStore is a single-node session store in a local SQLite file
type SQLiteStore struct {
	db *sqlx.DB
}

// sqliteSession and sqliteMessage mirror the rows; timestamps are stored as
// RFC 3339 text
type sqliteSession struct {
	ID        string             `db:"id"`
	Token     string             `db:"session_token"`
	Context   model.FilterRecord `db:"context"`
	CreatedAt string             `db:"created_at"`
	UpdatedAt string             `db:"updated_at"`
}

type sqliteMessage struct {
	ID               int64               `db:"id"`
	SessionID        string              `db:"session_id"`
	Role             string              `db:"role"`
	Content          string              `db:"content"`
	ExtractedFilters *model.FilterRecord `db:"extracted_filters"`
	ResultCount      *int                `db:"result_count"`
	CreatedAt        string              `db:"created_at"`
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating database directory")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "executing %s", pragma)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating tables")
	}

	return &SQLiteStore{db: db}, nil
}

// FindByToken implements SessionStore
func (s *SQLiteStore) FindByToken(ctx context.Context, token string) (*model.ChatSession, error) {
	var row sqliteSession
	err := s.db.GetContext(ctx, &row, `
		SELECT id, session_token, context, created_at, updated_at
		FROM chat_sessions WHERE session_token = ?`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "getting session")
	}

	return &model.ChatSession{
		ID:        row.ID,
		Token:     row.Token,
		Context:   row.Context,
		CreatedAt: parseTime(row.CreatedAt),
		UpdatedAt: parseTime(row.UpdatedAt),
	}, nil
}

// Create implements SessionStore
func (s *SQLiteStore) Create(ctx context.Context) (*model.ChatSession, error) {
	now := time.Now().UTC()
	session := &model.ChatSession{
		ID:        model.NewSessionID(),
		Token:     model.NewSessionToken(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, session_token, context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.Token, session.Context, formatTime(now), formatTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "creating session")
	}
	return session, nil
}

// AppendMessage implements SessionStore
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	return sqliteAppend(ctx, s.db, msg)
}

// UpdateContext implements SessionStore
func (s *SQLiteStore) UpdateContext(ctx context.Context, sessionID string, filters model.FilterRecord) error {
	return sqliteUpdateContext(ctx, s.db, sessionID, filters)
}

// GetHistory implements SessionStore
func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	var rows []sqliteMessage
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, role, content, extracted_filters, result_count, created_at
		FROM (
			SELECT * FROM chat_messages
			WHERE session_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at, id`, sessionID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "getting history")
	}

	messages := make([]model.ChatMessage, 0, len(rows))
	for _, row := range rows {
		role, err := model.ParseRole(row.Role)
		if err != nil {
			return nil, errors.Wrapf(err, "reading message %d", row.ID)
		}
		messages = append(messages, model.ChatMessage{
			ID:               row.ID,
			SessionID:        row.SessionID,
			Role:             role,
			Content:          row.Content,
			ExtractedFilters: row.ExtractedFilters,
			ResultCount:      row.ResultCount,
			CreatedAt:        parseTime(row.CreatedAt),
		})
	}
	return messages, nil
}

// SaveTurn implements SessionStore
func (s *SQLiteStore) SaveTurn(ctx context.Context, sessionID string, filters model.FilterRecord, messages ...*model.ChatMessage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	for _, msg := range messages {
		if err := sqliteAppend(ctx, tx, msg); err != nil {
			return err
		}
	}
	if err := sqliteUpdateContext(ctx, tx, sessionID, filters); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "committing turn")
}

// Close implements SessionStore
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteAppend(ctx context.Context, db sqlx.ExecerContext, msg *model.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content, extracted_filters, result_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.SessionID, string(msg.Role), msg.Content, msg.ExtractedFilters, nullableInt(msg.ResultCount), formatTime(msg.CreatedAt))
	if err != nil {
		return errors.Wrap(err, "appending message")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "reading message id")
	}
	msg.ID = id
	return nil
}

func sqliteUpdateContext(ctx context.Context, db sqlx.ExecerContext, sessionID string, filters model.FilterRecord) error {
	res, err := db.ExecContext(ctx, `
		UPDATE chat_sessions SET context = ?, updated_at = ? WHERE id = ?`,
		filters, formatTime(time.Now().UTC()), sessionID)
	if err != nil {
		return errors.Wrap(err, "updating context")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// formatTime uses a fixed-width layout so text order matches time order
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
