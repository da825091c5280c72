package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertychat/internal/model"
)

// testSessionStore runs the behaviour every session store driver shares
func testSessionStore(t *testing.T, newStore func(t *testing.T) SessionStore) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		store := newStore(t)
		session, err := store.FindByToken(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("create and find", func(t *testing.T) {
		store := newStore(t)
		created, err := store.Create(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.NotEmpty(t, created.Token)
		assert.True(t, created.Context.IsEmpty())

		other, err := store.Create(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, created.Token, other.Token)

		found, err := store.FindByToken(ctx, created.Token)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, created.ID, found.ID)
		assert.True(t, found.Context.IsEmpty())
	})

	t.Run("update context", func(t *testing.T) {
		store := newStore(t)
		session, err := store.Create(ctx)
		require.NoError(t, err)

		filters := model.FilterRecord{
			City:     model.StringPtr("Bangalore"),
			MaxPrice: model.Int64Ptr(30000),
		}
		require.NoError(t, store.UpdateContext(ctx, session.ID, filters))

		found, err := store.FindByToken(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, filters, found.Context)

		err = store.UpdateContext(ctx, "missing-session", filters)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("history is the chronological tail", func(t *testing.T) {
		store := newStore(t)
		session, err := store.Create(ctx)
		require.NoError(t, err)

		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 12; i++ {
			msg := &model.ChatMessage{
				SessionID: session.ID,
				Role:      model.RoleUser,
				Content:   fmt.Sprintf("message %d", i),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}
			require.NoError(t, store.AppendMessage(ctx, msg))
			assert.NotZero(t, msg.ID)
		}

		history, err := store.GetHistory(ctx, session.ID, 10)
		require.NoError(t, err)
		require.Len(t, history, 10)
		assert.Equal(t, "message 2", history[0].Content)
		assert.Equal(t, "message 11", history[9].Content)
		assert.True(t, history[0].CreatedAt.Equal(base.Add(2*time.Second)))
	})

	t.Run("empty history", func(t *testing.T) {
		store := newStore(t)
		session, err := store.Create(ctx)
		require.NoError(t, err)

		history, err := store.GetHistory(ctx, session.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("save turn", func(t *testing.T) {
		store := newStore(t)
		session, err := store.Create(ctx)
		require.NoError(t, err)

		filters := model.FilterRecord{Bedrooms: model.IntPtr(2)}
		count := 4
		now := time.Now().UTC()
		user := &model.ChatMessage{SessionID: session.ID, Role: model.RoleUser, Content: "2bhk", CreatedAt: now}
		assistant := &model.ChatMessage{
			SessionID:        session.ID,
			Role:             model.RoleAssistant,
			Content:          "I found 4 properties.",
			ExtractedFilters: &filters,
			ResultCount:      &count,
			CreatedAt:        now,
		}
		require.NoError(t, store.SaveTurn(ctx, session.ID, filters, user, assistant))
		assert.Less(t, user.ID, assistant.ID)

		history, err := store.GetHistory(ctx, session.ID, 10)
		require.NoError(t, err)
		require.Len(t, history, 2)

		assert.Equal(t, model.RoleUser, history[0].Role)
		assert.Nil(t, history[0].ExtractedFilters)
		assert.Nil(t, history[0].ResultCount)

		assert.Equal(t, model.RoleAssistant, history[1].Role)
		require.NotNil(t, history[1].ExtractedFilters)
		assert.Equal(t, filters, *history[1].ExtractedFilters)
		require.NotNil(t, history[1].ResultCount)
		assert.Equal(t, 4, *history[1].ResultCount)

		found, err := store.FindByToken(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, filters, found.Context)
	})
}

func TestMemoryStore(t *testing.T) {
	testSessionStore(t, func(t *testing.T) SessionStore {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	session, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.UpdateContext(ctx, session.ID, model.FilterRecord{City: model.StringPtr("Pune")}))

	found, err := store.FindByToken(ctx, session.Token)
	require.NoError(t, err)
	*found.Context.City = "Delhi"

	again, err := store.FindByToken(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "Pune", *again.Context.City)
}

func TestNewSessionStore(t *testing.T) {
	store, err := NewSessionStore(StoreTypeMemory)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewSessionStore("mongo")
	assert.ErrorIs(t, err, ErrInvalidStoreType)

	_, err = NewSessionStore(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSessionStore(StoreTypePostgres)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSessionStore(StoreTypeSQLite)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
