package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertychat/internal/logging"
	"propertychat/internal/model"
	"propertychat/internal/repository"
)

func chatInventory() []model.PropertySnapshot {
	return []model.PropertySnapshot{
		testProperty(1, "Mumbai", 2, 40000, model.ListingTypeRent),
		testProperty(2, "Bangalore", 2, 28000, model.ListingTypeRent),
		testProperty(3, "Bangalore", 3, 12_000_000, model.ListingTypeSale),
		testProperty(4, "Bangalore", 1, 18000, model.ListingTypeRent),
		testProperty(5, "Pune", 2, 22000, model.ListingTypeRent),
	}
}

func newTestChatService(source PropertySource, store SessionStore) *ChatService {
	logger := logging.Discard()
	cache := NewInventoryCache(source, CacheOptions{TTL: time.Minute, LoadTimeout: time.Second}, logger)
	return NewChatService(
		store,
		cache,
		NewIntentParser(),
		NewRanker(DefaultMaxResults),
		NewResponseComposer(),
		ChatOptions{HistoryLimit: 10, RequestTimeout: 5 * time.Second},
		logger,
	)
}

func TestChatService_NewSession(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newTestChatService(&stubSource{properties: chatInventory()}, store)

	resp, err := svc.HandleMessage(ctx, &model.ChatRequest{Message: "2bhk in Bangalore"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionToken)
	require.NotNil(t, resp.Filters.City)
	assert.Equal(t, "Bangalore", *resp.Filters.City)
	require.NotEmpty(t, resp.Properties)
	assert.Equal(t, int64(2), resp.Properties[0].ID)
	assert.Equal(t, len(resp.Properties), resp.TotalResults)
	assert.Contains(t, resp.Message, "in Bangalore")

	session, err := store.FindByToken(ctx, resp.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, resp.Filters, session.Context)

	history, err := store.GetHistory(ctx, session.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "2bhk in Bangalore", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, resp.Message, history[1].Content)
	require.NotNil(t, history[1].ResultCount)
	assert.Equal(t, resp.TotalResults, *history[1].ResultCount)
	require.NotNil(t, history[1].ExtractedFilters)
	assert.Equal(t, resp.Filters, *history[1].ExtractedFilters)
}

func TestChatService_RefinesAcrossTurns(t *testing.T) {
	ctx := context.Background()
	svc := newTestChatService(&stubSource{properties: chatInventory()}, repository.NewMemoryStore())

	first, err := svc.HandleMessage(ctx, &model.ChatRequest{Message: "flats in Bangalore"})
	require.NoError(t, err)

	second, err := svc.HandleMessage(ctx, &model.ChatRequest{
		Message:      "under 30k",
		SessionToken: first.SessionToken,
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionToken, second.SessionToken)

	want := model.FilterRecord{
		City:        model.StringPtr("Bangalore"),
		MaxPrice:    model.Int64Ptr(30000),
		ListingType: model.ListingTypePtr(model.ListingTypeRent),
	}
	assert.Equal(t, want, second.Filters)

	// Bangalore rentals within budget come first
	require.GreaterOrEqual(t, len(second.Properties), 2)
	assert.Equal(t, int64(2), second.Properties[0].ID)
	assert.Equal(t, int64(4), second.Properties[1].ID)

	third, err := svc.HandleMessage(ctx, &model.ChatRequest{
		Message:      "actually Pune",
		SessionToken: first.SessionToken,
	})
	require.NoError(t, err)
	assert.Equal(t, "Pune", *third.Filters.City)
	assert.Equal(t, int64(30000), *third.Filters.MaxPrice)
}

func TestChatService_UnknownTokenStartsNewSession(t *testing.T) {
	svc := newTestChatService(&stubSource{properties: chatInventory()}, repository.NewMemoryStore())

	resp, err := svc.HandleMessage(context.Background(), &model.ChatRequest{
		Message:      "hello",
		SessionToken: "stale-token",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "stale-token", resp.SessionToken)
	assert.True(t, resp.Filters.IsEmpty())
	assert.Len(t, resp.Properties, len(chatInventory()))
}

func TestChatService_BlankMessage(t *testing.T) {
	store := &recordingStore{SessionStore: repository.NewMemoryStore()}
	svc := newTestChatService(&stubSource{properties: chatInventory()}, store)

	_, err := svc.HandleMessage(context.Background(), &model.ChatRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, store.calls)
}

func TestChatService_SourceUnavailable(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newTestChatService(&stubSource{err: errors.New("connection refused")}, store)

	resp, err := svc.HandleMessage(ctx, &model.ChatRequest{Message: "2bhk in Pune"})
	require.NoError(t, err)

	assert.Equal(t, ReplySourceUnavailable, resp.Message)
	assert.Empty(t, resp.Properties)
	assert.NotNil(t, resp.Properties)
	assert.Zero(t, resp.TotalResults)
	require.NotNil(t, resp.Filters.City)

	session, err := store.FindByToken(ctx, resp.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, session.Context.City)
	assert.Equal(t, "Pune", *session.Context.City)

	history, err := store.GetHistory(ctx, session.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ReplySourceUnavailable, history[1].Content)
	assert.Nil(t, history[1].ExtractedFilters)
	require.NotNil(t, history[1].ResultCount)
	assert.Zero(t, *history[1].ResultCount)
}

func TestChatService_PersistenceFailure(t *testing.T) {
	tests := []struct {
		name   string
		failOn string
	}{
		{"create", "Create"},
		{"history", "GetHistory"},
		{"append", "AppendMessage"},
		{"update", "UpdateContext"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{SessionStore: repository.NewMemoryStore(), failOn: tt.failOn}
			svc := newTestChatService(&stubSource{properties: chatInventory()}, store)

			resp, err := svc.HandleMessage(context.Background(), &model.ChatRequest{Message: "flats in Pune"})
			assert.Nil(t, resp)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPersistenceFailure)

			var pe *PersistenceError
			require.ErrorAs(t, err, &pe)
			assert.ErrorIs(t, pe, errStoreDown)
		})
	}
}

func TestChatService_SerializesTurnsOfOneSession(t *testing.T) {
	ctx := context.Background()
	memory := repository.NewMemoryStore()
	store := &recordingStore{SessionStore: memory}
	svc := newTestChatService(&stubSource{properties: chatInventory()}, store)

	first, err := svc.HandleMessage(ctx, &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HandleMessage(ctx, &model.ChatRequest{
				Message:      "flats in Pune",
				SessionToken: first.SessionToken,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	session, err := memory.FindByToken(ctx, first.SessionToken)
	require.NoError(t, err)
	history, err := memory.GetHistory(ctx, session.ID, 1000)
	require.NoError(t, err)
	require.Len(t, history, 2*(turns+1))

	// Turns never interleave: every user message is directly followed by its reply
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, model.RoleUser, history[i].Role)
		assert.Equal(t, model.RoleAssistant, history[i+1].Role)
	}
	assert.Equal(t, 1, store.maxInFlight())
	assert.Zero(t, svc.locks.size())
}

func TestChatService_StreamEvents(t *testing.T) {
	svc := newTestChatService(&stubSource{properties: chatInventory()}, repository.NewMemoryStore())

	var events []string
	resp, err := svc.HandleMessageStream(context.Background(), &model.ChatRequest{Message: "rent in Mumbai"},
		func(event string, data any) error {
			events = append(events, event)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "session", "filters", "results", "reply"}, events)
	assert.Equal(t, int64(1), resp.Properties[0].ID)
}

func TestChatService_StreamCallbackErrorAborts(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestChatService(&stubSource{properties: chatInventory()}, store)
	clientGone := errors.New("client gone")

	_, err := svc.HandleMessageStream(context.Background(), &model.ChatRequest{Message: "rent in Mumbai"},
		func(event string, data any) error {
			if event == "results" {
				return clientGone
			}
			return nil
		})
	assert.ErrorIs(t, err, clientGone)
}

func TestChatService_History(t *testing.T) {
	ctx := context.Background()
	svc := newTestChatService(&stubSource{properties: chatInventory()}, repository.NewMemoryStore())

	_, err := svc.History(ctx, "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	first, err := svc.HandleMessage(ctx, &model.ChatRequest{Message: "turn 0 in Pune"})
	require.NoError(t, err)
	for _, msg := range []string{"turn 1", "turn 2", "turn 3", "turn 4", "turn 5"} {
		_, err := svc.HandleMessage(ctx, &model.ChatRequest{Message: msg, SessionToken: first.SessionToken})
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, first.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, first.SessionToken, history.SessionToken)
	require.Len(t, history.Messages, 10)
	assert.Equal(t, "turn 1", history.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, history.Messages[9].Role)
	assert.Equal(t, "Pune", *history.Context.City)
	for i := 1; i < len(history.Messages); i++ {
		assert.False(t, history.Messages[i].Timestamp.Before(history.Messages[i-1].Timestamp))
	}
}

func TestChatService_RefreshInventory(t *testing.T) {
	ctx := context.Background()
	source := &stubSource{properties: chatInventory()}
	svc := newTestChatService(source, repository.NewMemoryStore())

	_, err := svc.HandleMessage(ctx, &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.True(t, svc.InventoryStatus().Fresh)

	source.set(chatInventory()[:2], nil)
	svc.RefreshInventory()

	resp, err := svc.HandleMessage(ctx, &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.Len(t, resp.Properties, 2)
	assert.EqualValues(t, 2, source.calls.Load())
}

func TestSessionLocks(t *testing.T) {
	locks := newSessionLocks()

	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	assert.Equal(t, 2, locks.size())

	acquired := make(chan struct{})
	go func() {
		unlock := locks.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	<-acquired
	unlockB()
	assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, time.Millisecond)
}

var errStoreDown = errors.New("store down")

// recordingStore hides SaveTurn so turns go through the individual calls,
// counts calls, tracks overlapping turns and can fail one method
type recordingStore struct {
	SessionStore

	mu       sync.Mutex
	calls    int
	failOn   string
	inFlight int
	maxSeen  int
}

func (s *recordingStore) record(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failOn == method {
		return errStoreDown
	}
	return nil
}

func (s *recordingStore) maxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

func (s *recordingStore) FindByToken(ctx context.Context, token string) (*model.ChatSession, error) {
	if err := s.record("FindByToken"); err != nil {
		return nil, err
	}
	return s.SessionStore.FindByToken(ctx, token)
}

func (s *recordingStore) Create(ctx context.Context) (*model.ChatSession, error) {
	if err := s.record("Create"); err != nil {
		return nil, err
	}
	return s.SessionStore.Create(ctx)
}

func (s *recordingStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	if err := s.record("GetHistory"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.inFlight++
	s.maxSeen = max(s.maxSeen, s.inFlight)
	s.mu.Unlock()
	return s.SessionStore.GetHistory(ctx, sessionID, limit)
}

func (s *recordingStore) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	if err := s.record("AppendMessage"); err != nil {
		return err
	}
	if err := s.SessionStore.AppendMessage(ctx, msg); err != nil {
		return err
	}
	if msg.Role == model.RoleAssistant {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}
	return nil
}

func (s *recordingStore) UpdateContext(ctx context.Context, sessionID string, filters model.FilterRecord) error {
	if err := s.record("UpdateContext"); err != nil {
		return err
	}
	return s.SessionStore.UpdateContext(ctx, sessionID, filters)
}
