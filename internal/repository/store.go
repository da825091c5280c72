package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"propertychat/internal/model"
)

var (
	// ErrSessionNotFound is returned when writing to a session that does not exist
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidStoreType is returned by NewSessionStore for an unknown driver
	ErrInvalidStoreType = errors.New("invalid session store type")
	// ErrInvalidConfig is returned when a driver is missing a required option
	ErrInvalidConfig = errors.New("invalid session store configuration")
)

// SessionStore persists chat sessions and their messages
type SessionStore interface {
	FindByToken(ctx context.Context, token string) (*model.ChatSession, error)
	Create(ctx context.Context) (*model.ChatSession, error)
	AppendMessage(ctx context.Context, msg *model.ChatMessage) error
	UpdateContext(ctx context.Context, sessionID string, filters model.FilterRecord) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
	SaveTurn(ctx context.Context, sessionID string, filters model.FilterRecord, messages ...*model.ChatMessage) error
	Close() error
}

// StoreType names a session store driver
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeSQLite   StoreType = "sqlite"
	StoreTypePostgres StoreType = "postgres"
	StoreTypeRedis    StoreType = "redis"
)

// StoreOption is a functional option for configuring a session store
type StoreOption func(*storeConfig)

type storeConfig struct {
	sqlitePath  string
	postgres    *PostgresRepository
	redisClient *redis.Client
	redisTTL    time.Duration
	logger      *slog.Logger
}

// WithSQLitePath sets the database file of the SQLite store
func WithSQLitePath(path string) StoreOption {
	return func(c *storeConfig) {
		c.sqlitePath = path
	}
}

// WithPostgres shares an open PostgreSQL repository with the session store
func WithPostgres(repo *PostgresRepository) StoreOption {
	return func(c *storeConfig) {
		c.postgres = repo
	}
}

// WithRedisClient sets the Redis client for the Redis store
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the idle expiry of Redis session keys
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// WithLogger sets the logger used by the store
func WithLogger(logger *slog.Logger) StoreOption {
	return func(c *storeConfig) {
		c.logger = logger
	}
}

// NewSessionStore creates the session store driver named by storeType
func NewSessionStore(storeType StoreType, opts ...StoreOption) (SessionStore, error) {
	cfg := &storeConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(), nil

	case StoreTypeSQLite:
		if cfg.sqlitePath == "" {
			return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
		}
		store, err := NewSQLiteStore(cfg.sqlitePath)
		if err != nil {
			return nil, err
		}
		return store, nil

	case StoreTypePostgres:
		if cfg.postgres == nil {
			return nil, fmt.Errorf("%w: postgres repository is required", ErrInvalidConfig)
		}
		return &sharedPostgresStore{cfg.postgres}, nil

	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, fmt.Errorf("%w: redis client is required", ErrInvalidConfig)
		}
		return NewRedisStore(cfg.redisClient, cfg.redisTTL, cfg.logger), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, storeType)
	}
}

// sharedPostgresStore leaves closing the connection to the repository owner,
// which also serves the inventory
type sharedPostgresStore struct {
	*PostgresRepository
}

func (s *sharedPostgresStore) Close() error {
	return nil
}
