package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"propertychat/internal/model"
)

//go:embed schema.sql
var postgresSchema string

// PostgresRepository handles database operations: the available inventory
// read and the chat session store
type PostgresRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int, logger *slog.Logger) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute) // Shorter lifetime to avoid stale connections
	db.SetConnMaxIdleTime(2 * time.Minute) // Close idle connections sooner

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db, logger: logger}, nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// EnsureSchema creates the tables this service reads and writes when missing
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	r.logger.Info("database schema ensured")
	return nil
}

// ListAvailableProperties returns every listing with status 'available', each
// with its cover image when one exists
func (r *PostgresRepository) ListAvailableProperties(ctx context.Context) ([]model.PropertySnapshot, error) {
	query := `
		SELECT
			p.id, p.title, p.city, COALESCE(p.locality, '') AS locality,
			p.bedrooms, p.bathrooms, p.price, p.listing_type,
			COALESCE(p.property_type, '') AS property_type, p.furnishing,
			p.near_metro, p.pet_friendly, p.bachelor_friendly,
			(
				SELECT i.url FROM property_images i
				WHERE i.property_id = p.id
				ORDER BY i.is_cover DESC, i.position, i.id
				LIMIT 1
			) AS cover_image
		FROM properties p
		WHERE p.status = 'available'
		ORDER BY p.id
	`

	var properties []model.PropertySnapshot
	if err := r.db.SelectContext(ctx, &properties, query); err != nil {
		return nil, fmt.Errorf("failed to list available properties: %w", err)
	}
	return properties, nil
}

// FindByToken retrieves a session by its token, nil when unknown
func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*model.ChatSession, error) {
	var session model.ChatSession
	query := `
		SELECT id, session_token, context, created_at, updated_at
		FROM chat_sessions
		WHERE session_token = $1
	`
	err := r.db.GetContext(ctx, &session, query, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// Create inserts a new session with a fresh token and an empty context
func (r *PostgresRepository) Create(ctx context.Context) (*model.ChatSession, error) {
	session := &model.ChatSession{
		ID:    model.NewSessionID(),
		Token: model.NewSessionToken(),
	}

	query := `
		INSERT INTO chat_sessions (id, session_token, context)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, session.ID, session.Token, session.Context).
		Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// AppendMessage inserts msg and sets its ID
func (r *PostgresRepository) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	return appendMessage(ctx, r.db, msg)
}

// UpdateContext replaces the accumulated context of a session
func (r *PostgresRepository) UpdateContext(ctx context.Context, sessionID string, filters model.FilterRecord) error {
	return updateContext(ctx, r.db, sessionID, filters)
}

// GetHistory returns the last limit messages of a session, oldest first
func (r *PostgresRepository) GetHistory(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, extracted_filters, result_count, created_at
		FROM (
			SELECT id, session_id, role, content, extracted_filters, result_count, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id
	`

	messages := []model.ChatMessage{}
	if err := r.db.SelectContext(ctx, &messages, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return messages, nil
}

// SaveTurn appends messages in order and updates the context in one transaction
func (r *PostgresRepository) SaveTurn(ctx context.Context, sessionID string, filters model.FilterRecord, messages ...*model.ChatMessage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, msg := range messages {
		if err := appendMessage(ctx, tx, msg); err != nil {
			return err
		}
	}
	if err := updateContext(ctx, tx, sessionID, filters); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx
type execer interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
}

func appendMessage(ctx context.Context, db execer, msg *model.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO chat_messages (session_id, role, content, extracted_filters, result_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := db.QueryRowxContext(ctx, query,
		msg.SessionID, string(msg.Role), msg.Content, msg.ExtractedFilters, msg.ResultCount, msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func updateContext(ctx context.Context, db execer, sessionID string, filters model.FilterRecord) error {
	query := `
		UPDATE chat_sessions
		SET context = $2, updated_at = NOW()
		WHERE id = $1
	`
	res, err := db.ExecContext(ctx, query, sessionID, filters)
	if err != nil {
		return fmt.Errorf("failed to update context: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
