package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"aiko-go/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		"123_thread_456": {
			{Role: model.RoleUser, Content: "hello <b>"},
			{Role: model.RoleAssistant, Content: "こんにちは"},
		},
		"dm_789": {
			{Role: model.RoleUser, Content: "hi"},
		},
	}
}

func TestFileSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "conversations.json")
	store := NewFileSnapshotStore(path)

	empty, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.WriteAll(ctx, sampleSnapshot()))

	got, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), got)
	assert.Equal(t, path, store.Location())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// 可读格式：带缩进且不转义非 ASCII 与 HTML
	assert.Contains(t, string(raw), "こんにちは")
	assert.Contains(t, string(raw), "hello <b>")
	assert.Contains(t, string(raw), "\n  \"")
}

func TestFileSnapshotStore_OverwritesNotAppends(t *testing.T) {
	ctx := context.Background()
	store := NewFileSnapshotStore(filepath.Join(t.TempDir(), "conversations.json"))

	require.NoError(t, store.WriteAll(ctx, sampleSnapshot()))
	require.NoError(t, store.WriteAll(ctx, Snapshot{"only": {{Role: model.RoleUser, Content: "x"}}}))

	got, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, model.ConversationKey("only"))
}

func TestFileSnapshotStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileSnapshotStore(path).ReadAll(context.Background())
	assert.Error(t, err)
}

func TestFileSnapshotStore_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSnapshotStore(filepath.Join(dir, "conversations.json"))
	require.NoError(t, store.WriteAll(context.Background(), sampleSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRedisSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisSnapshotStore(client, "aiko:conversations")

	empty, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.WriteAll(ctx, sampleSnapshot()))
	got, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), got)

	// 快照不应设置过期时间
	assert.Zero(t, mr.TTL("aiko:conversations"))
	assert.Equal(t, "redis://aiko:conversations", store.Location())
}

func TestRedisSnapshotStore_Corrupt(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("snap", "]["))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := NewRedisSnapshotStore(client, "snap").ReadAll(context.Background())
	assert.Error(t, err)
}

func TestDecodeSnapshot_Blank(t *testing.T) {
	got, err := decodeSnapshot([]byte("  \n"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
