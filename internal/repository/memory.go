package repository

import (
	"context"
	"sync"
	"time"

	"propertychat/internal/model"
)

// MemoryStore keeps sessions in process memory. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.ChatSession // by ID
	tokens   map[string]string             // token -> ID
	messages map[string][]model.ChatMessage
	nextID   int64
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.ChatSession),
		tokens:   make(map[string]string),
		messages: make(map[string][]model.ChatMessage),
	}
}

// FindByToken implements SessionStore
func (s *MemoryStore) FindByToken(ctx context.Context, token string) (*model.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	return copySession(s.sessions[id]), nil
}

// Create implements SessionStore
func (s *MemoryStore) Create(ctx context.Context) (*model.ChatSession, error) {
	now := time.Now().UTC()
	session := &model.ChatSession{
		ID:        model.NewSessionID(),
		Token:     model.NewSessionToken(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	s.tokens[session.Token] = session.ID
	return copySession(session), nil
}

// AppendMessage implements SessionStore
func (s *MemoryStore) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

// UpdateContext implements SessionStore
func (s *MemoryStore) UpdateContext(ctx context.Context, sessionID string, filters model.FilterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(sessionID, filters)
}

// GetHistory implements SessionStore
func (s *MemoryStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[sessionID]
	start := max(len(all)-limit, 0)

	out := make([]model.ChatMessage, 0, len(all)-start)
	for _, m := range all[start:] {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

// SaveTurn implements SessionStore
func (s *MemoryStore) SaveTurn(ctx context.Context, sessionID string, filters model.FilterRecord, messages ...*model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	for _, msg := range messages {
		if err := s.appendLocked(msg); err != nil {
			return err
		}
	}
	return s.updateLocked(sessionID, filters)
}

// Close implements SessionStore
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) appendLocked(msg *model.ChatMessage) error {
	if _, ok := s.sessions[msg.SessionID]; !ok {
		return ErrSessionNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.nextID++
	msg.ID = s.nextID
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], copyMessage(*msg))
	return nil
}

func (s *MemoryStore) updateLocked(sessionID string, filters model.FilterRecord) error {
	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.Context = filters.Clone()
	session.UpdatedAt = time.Now().UTC()
	return nil
}

func copySession(s *model.ChatSession) *model.ChatSession {
	out := *s
	out.Context = s.Context.Clone()
	return &out
}

func copyMessage(m model.ChatMessage) model.ChatMessage {
	if m.ExtractedFilters != nil {
		f := m.ExtractedFilters.Clone()
		m.ExtractedFilters = &f
	}
	if m.ResultCount != nil {
		n := *m.ResultCount
		m.ResultCount = &n
	}
	return m
}
