package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertychat/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	testSessionStore(t, func(t *testing.T) SessionStore {
		return newTestSQLiteStore(t)
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	session, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.UpdateContext(ctx, session.ID, model.FilterRecord{
		ListingType: model.ListingTypePtr(model.ListingTypeRent),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	found, err := reopened.FindByToken(ctx, session.Token)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.Context.ListingType)
	assert.Equal(t, model.ListingTypeRent, *found.Context.ListingType)
	assert.False(t, found.CreatedAt.IsZero())
}

func TestSQLiteStore_SaveTurnRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	msg := &model.ChatMessage{SessionID: "missing", Role: model.RoleUser, Content: "hi"}
	err := store.SaveTurn(ctx, "missing", model.FilterRecord{}, msg)
	require.Error(t, err)

	history, err := store.GetHistory(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestNewSessionStore_SQLite(t *testing.T) {
	store, err := NewSessionStore(StoreTypeSQLite, WithSQLitePath(filepath.Join(t.TempDir(), "s.db")))
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &SQLiteStore{}, store)
}
