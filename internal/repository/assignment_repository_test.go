package repository

import (
	"context"
	"path/filepath"
	"testing"

	"aiko-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltAssignmentStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "personas.bolt")

	store, err := NewBoltAssignmentStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "1_thread_2", "Aiko-chan"))
	require.NoError(t, store.Save(ctx, "dm_3", "Grumpy"))
	require.NoError(t, store.Save(ctx, "dm_3", "Paimon"))
	require.NoError(t, store.Delete(ctx, "1_thread_2"))
	require.NoError(t, store.Close())

	reopened, err := NewBoltAssignmentStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.ConversationKey]string{"dm_3": "Paimon"}, got)
}

func TestBoltAssignmentStore_DeleteMissing(t *testing.T) {
	store, err := NewBoltAssignmentStore(filepath.Join(t.TempDir(), "p.bolt"))
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Delete(context.Background(), "never"))
}

func TestMemoryAssignmentStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAssignmentStore()

	require.NoError(t, store.Save(ctx, "k", "P"))
	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P", got["k"])

	// LoadAll 返回副本
	got["k"] = "mutated"
	again, _ := store.LoadAll(ctx)
	assert.Equal(t, "P", again["k"])

	require.NoError(t, store.Delete(ctx, "k"))
	again, _ = store.LoadAll(ctx)
	assert.Empty(t, again)
}
