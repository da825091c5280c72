package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"propertychat/internal/model"
)

// Chat defaults
const (
	DefaultHistoryLimit   = 10
	DefaultRequestTimeout = 15 * time.Second
)

// SessionStore persists chat sessions and their messages
type SessionStore interface {
	// FindByToken returns nil, nil when no session has the token
	FindByToken(ctx context.Context, token string) (*model.ChatSession, error)
	// Create starts a session with a new unique token and an empty context
	Create(ctx context.Context) (*model.ChatSession, error)
	AppendMessage(ctx context.Context, msg *model.ChatMessage) error
	UpdateContext(ctx context.Context, sessionID string, filters model.FilterRecord) error
	// GetHistory returns the last limit messages in chronological order
	GetHistory(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
}

// TurnStore is implemented by stores able to record a whole turn atomically.
// The messages are appended in order and the context updated together.
type TurnStore interface {
	SaveTurn(ctx context.Context, sessionID string, filters model.FilterRecord, messages ...*model.ChatMessage) error
}

// ChatEventCallback is called for streaming chat events
type ChatEventCallback func(event string, data any) error

// ChatOptions configures a ChatService
type ChatOptions struct {
	HistoryLimit   int
	RequestTimeout time.Duration
}

// ChatService handles chat business logic: one call per inbound message
type ChatService struct {
	store    SessionStore
	cache    *InventoryCache
	intent   *IntentParser
	ranker   *Ranker
	composer *ResponseComposer
	locks    *sessionLocks
	opts     ChatOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewChatService creates a new chat service
func NewChatService(
	store SessionStore,
	cache *InventoryCache,
	intentParser *IntentParser,
	ranker *Ranker,
	composer *ResponseComposer,
	opts ChatOptions,
	logger *slog.Logger,
) *ChatService {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &ChatService{
		store:    store,
		cache:    cache,
		intent:   intentParser,
		ranker:   ranker,
		composer: composer,
		locks:    newSessionLocks(),
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage runs one chat turn and returns the reply
func (s *ChatService) HandleMessage(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	return s.HandleMessageStream(ctx, req, nil)
}

// HandleMessageStream runs one chat turn, reporting progress through callback
// when it is not nil.
//
// The turn loads or creates the session, merges the parsed message into the
// session context, ranks the cached inventory and persists both messages.
// Turns of the same session are serialized.
func (s *ChatService) HandleMessageStream(ctx context.Context, req *model.ChatRequest, callback ChatEventCallback) (*model.ChatResponse, error) {
	emit := func(event string, data any) error {
		if callback == nil {
			return nil
		}
		return callback(event, data)
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrInvalidRequest
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	if err := emit("start", map[string]any{
		"status": "Reading your message...",
	}); err != nil {
		return nil, err
	}

	if req.SessionToken != "" {
		unlock := s.locks.Lock(req.SessionToken)
		defer unlock()
	}

	session, err := s.loadOrCreateSession(ctx, req.SessionToken)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("session", session.Token)

	if err := emit("session", map[string]any{
		"sessionToken": session.Token,
	}); err != nil {
		return nil, err
	}

	history, err := s.store.GetHistory(ctx, session.ID, s.opts.HistoryLimit)
	if err != nil {
		return nil, persistenceErr("get history", err)
	}
	logger.Debug("loaded history", "messages", len(history))

	// Parse the message and refine the accumulated context
	parsed := s.intent.Parse(message)
	filters := session.Context.Merge(parsed)
	logger.Debug("filters merged", "parsed", parsed, "effective", filters)

	if err := emit("filters", filters); err != nil {
		return nil, err
	}

	properties, err := s.cache.Get(ctx)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return s.respondUnavailable(ctx, session, message, filters, emit)
	}

	// Rank and compose
	results := s.ranker.Rank(properties, filters)
	reply := s.composer.Compose(filters, results)

	cards := make([]model.PropertyCard, len(results))
	for i, r := range results {
		cards[i] = model.NewPropertyCard(r)
	}
	if len(results) > 0 {
		logger.Debug("top result", "property", describe(results[0]))
	}

	if err := emit("results", map[string]any{
		"properties":   cards,
		"totalResults": len(cards),
	}); err != nil {
		return nil, err
	}

	resultCount := len(results)
	snapshot := filters.Clone()
	if err := s.saveTurn(ctx, session.ID, filters,
		s.newMessage(session.ID, model.RoleUser, message),
		&model.ChatMessage{
			SessionID:        session.ID,
			Role:             model.RoleAssistant,
			Content:          reply,
			ExtractedFilters: &snapshot,
			ResultCount:      &resultCount,
			CreatedAt:        s.now(),
		},
	); err != nil {
		return nil, err
	}

	logger.Info("chat turn",
		"results", resultCount,
		"fallback", !filters.IsEmpty() && AllUnmatched(results),
		"inventory", len(properties))

	if err := emit("reply", map[string]any{
		"message": reply,
	}); err != nil {
		return nil, err
	}

	return &model.ChatResponse{
		SessionToken: session.Token,
		Message:      reply,
		Filters:      filters,
		Properties:   cards,
		TotalResults: len(cards),
	}, nil
}

// History returns the recent messages and the context of a session
func (s *ChatService) History(ctx context.Context, token string) (*model.HistoryResponse, error) {
	session, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return nil, persistenceErr("find session", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	messages, err := s.store.GetHistory(ctx, session.ID, s.opts.HistoryLimit)
	if err != nil {
		return nil, persistenceErr("get history", err)
	}

	history := make([]model.HistoryMessage, len(messages))
	for i, m := range messages {
		history[i] = model.HistoryMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		}
	}

	return &model.HistoryResponse{
		SessionToken: session.Token,
		Context:      session.Context,
		Messages:     history,
	}, nil
}

// RefreshInventory forces the next turn to reload the inventory
func (s *ChatService) RefreshInventory() {
	s.cache.Invalidate()
	s.logger.Info("inventory invalidated")
}

// InventoryStatus reports the state of the inventory cache
func (s *ChatService) InventoryStatus() CacheStatus {
	return s.cache.Status()
}

// respondUnavailable records the turn without claiming a search ran
func (s *ChatService) respondUnavailable(
	ctx context.Context,
	session *model.ChatSession,
	message string,
	filters model.FilterRecord,
	emit ChatEventCallback,
) (*model.ChatResponse, error) {
	reply := s.composer.ComposeUnavailable()
	zero := 0

	if err := s.saveTurn(ctx, session.ID, filters,
		s.newMessage(session.ID, model.RoleUser, message),
		&model.ChatMessage{
			SessionID:   session.ID,
			Role:        model.RoleAssistant,
			Content:     reply,
			ResultCount: &zero,
			CreatedAt:   s.now(),
		},
	); err != nil {
		return nil, err
	}

	if err := emit("reply", map[string]any{
		"message": reply,
	}); err != nil {
		return nil, err
	}

	return &model.ChatResponse{
		SessionToken: session.Token,
		Message:      reply,
		Filters:      filters,
		Properties:   []model.PropertyCard{},
		TotalResults: 0,
	}, nil
}

// loadOrCreateSession resolves token, starting a new session when it is
// empty or unknown
func (s *ChatService) loadOrCreateSession(ctx context.Context, token string) (*model.ChatSession, error) {
	if token != "" {
		session, err := s.store.FindByToken(ctx, token)
		if err != nil {
			return nil, persistenceErr("find session", err)
		}
		if session != nil {
			return session, nil
		}
		s.logger.Info("unknown session token, starting a new session")
	}

	session, err := s.store.Create(ctx)
	if err != nil {
		return nil, persistenceErr("create session", err)
	}
	return session, nil
}

// saveTurn persists the turn messages and the new context
func (s *ChatService) saveTurn(ctx context.Context, sessionID string, filters model.FilterRecord, messages ...*model.ChatMessage) error {
	if ts, ok := s.store.(TurnStore); ok {
		return persistenceErr("save turn", ts.SaveTurn(ctx, sessionID, filters, messages...))
	}

	if err := s.store.AppendMessage(ctx, messages[0]); err != nil {
		return persistenceErr("append message", err)
	}
	if err := s.store.UpdateContext(ctx, sessionID, filters); err != nil {
		return persistenceErr("update context", err)
	}
	for _, m := range messages[1:] {
		if err := s.store.AppendMessage(ctx, m); err != nil {
			return persistenceErr("append message", err)
		}
	}
	return nil
}

func (s *ChatService) newMessage(sessionID string, role model.Role, content string) *model.ChatMessage {
	return &model.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
}
