package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"propertychat/internal/model"
)

// DefaultRedisTTL is the idle expiry of a session when none is configured
const DefaultRedisTTL = 30 * 24 * time.Hour

// RedisStore keeps sessions in Redis so several instances can share them.
//
// Keys: chat:session:<id> holds the session JSON, chat:token:<token> maps a
// token to its session ID, chat:messages:<id> is the message list in append
// order and chat:message_seq issues message IDs. Every key of a session
// expires after ttl without activity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a Redis session store
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func sessionKey(id string) string { return "chat:session:" + id }
func tokenKey(token string) string { return "chat:token:" + token }
func messagesKey(id string) string { return "chat:messages:" + id }
func messageSeqKey() string { return "chat:message_seq" }

// FindByToken implements SessionStore
func (s *RedisStore) FindByToken(ctx context.Context, token string) (*model.ChatSession, error) {
	id, err := s.client.Get(ctx, tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}

	val, err := s.client.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session model.ChatSession
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	// Refresh TTL on read
	if err := s.touch(ctx, session.ID, token); err != nil {
		s.logger.Warn("failed to refresh session ttl", "error", err)
	}

	return &session, nil
}

// Create implements SessionStore
func (s *RedisStore) Create(ctx context.Context) (*model.ChatSession, error) {
	now := time.Now().UTC()
	session := &model.ChatSession{
		ID:        model.NewSessionID(),
		Token:     model.NewSessionToken(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	val, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.ID), val, s.ttl)
		pipe.Set(ctx, tokenKey(session.Token), session.ID, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// AppendMessage implements SessionStore
func (s *RedisStore) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	val, err := s.prepareMessage(ctx, msg)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, messagesKey(msg.SessionID), val)
		pipe.Expire(ctx, messagesKey(msg.SessionID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// UpdateContext implements SessionStore using optimistic locking on the
// session key
func (s *RedisStore) UpdateContext(ctx context.Context, sessionID string, filters model.FilterRecord) error {
	return s.SaveTurn(ctx, sessionID, filters)
}

// GetHistory implements SessionStore
func (s *RedisStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	vals, err := s.client.LRange(ctx, messagesKey(sessionID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	messages := make([]model.ChatMessage, 0, len(vals))
	for _, val := range vals {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(val), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// SaveTurn implements SessionStore. The session is watched so a concurrent
// writer on another instance aborts the transaction instead of being lost.
func (s *RedisStore) SaveTurn(ctx context.Context, sessionID string, filters model.FilterRecord, messages ...*model.ChatMessage) error {
	encoded := make([]any, 0, len(messages))
	for _, msg := range messages {
		val, err := s.prepareMessage(ctx, msg)
		if err != nil {
			return err
		}
		encoded = append(encoded, val)
	}

	key := sessionKey(sessionID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var session model.ChatSession
		if err := json.Unmarshal([]byte(val), &session); err != nil {
			return err
		}
		session.Context = filters.Clone()
		session.UpdatedAt = time.Now().UTC()

		newVal, err := json.Marshal(session)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			pipe.Expire(ctx, tokenKey(session.Token), s.ttl)
			if len(encoded) > 0 {
				pipe.RPush(ctx, messagesKey(sessionID), encoded...)
				pipe.Expire(ctx, messagesKey(sessionID), s.ttl)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return err
		}
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// Close implements SessionStore
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// prepareMessage assigns the ID and timestamp and encodes msg
func (s *RedisStore) prepareMessage(ctx context.Context, msg *model.ChatMessage) (string, error) {
	id, err := s.client.Incr(ctx, messageSeqKey()).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate message id: %w", err)
	}
	msg.ID = id
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	val, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return string(val), nil
}

func (s *RedisStore) touch(ctx context.Context, id, token string) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, sessionKey(id), s.ttl)
		pipe.Expire(ctx, tokenKey(token), s.ttl)
		pipe.Expire(ctx, messagesKey(id), s.ttl)
		return nil
	})
	return err
}
