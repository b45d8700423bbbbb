package storage

import (
	"context"
	"testing"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	col := newTestStore(t).Collection("smartyellow/service")

	for _, rec := range fixtures() {
		require.NoError(t, col.Upsert(ctx, rec, nil), "Upsert %v", rec["id"])
	}

	rec, err := col.Get(ctx, "bbb222")
	require.NoError(t, err)
	assert.Equal(t, "Webhosting", rec.String(schema.MustPath("name.nl")))

	_, err = col.Get(ctx, "zzz999")
	assert.ErrorIs(t, err, ErrNotFound)

	cur, err := col.Find(ctx, Query{
		Sort: []Sort{{Path: schema.MustPath("log.created.on"), Desc: true}},
	})
	require.NoError(t, err)
	all, err := ToArray(ctx, cur)
	require.NoError(t, err)
	got := ids(all)
	require.Len(t, got, 3)
	assert.Equal(t, "bbb222", got[0])
	assert.Equal(t, "aaa111", got[2])

	cur, err = col.Find(ctx, Query{Where: []Cond{Eq("slug.en", "hosting")}})
	require.NoError(t, err)
	byID, err := ToObject(ctx, cur)
	require.NoError(t, err)
	assert.Len(t, byID, 1)
	assert.NotNil(t, byID["bbb222"])

	n, err := col.Delete(ctx, Query{Where: []Cond{Eq("log.created.by", "u1")}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	ok, _ := Exists(ctx, col, "aaa111")
	assert.False(t, ok, "aaa111 should be deleted")
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	col := newTestStore(t).Collection("c")

	require.NoError(t, col.Upsert(ctx, document.Values{"id": "x", "status": "concept"}, nil))
	require.NoError(t, col.Upsert(ctx, document.Values{"id": "x", "status": "online"}, nil))
	rec, err := col.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "online", rec["status"])
	assert.Error(t, col.Upsert(ctx, document.Values{"status": "x"}, nil), "record without id should be rejected")
}

func TestSQLiteStore_Claims(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	col := store.Collection("c")

	require.NoError(t, col.Upsert(ctx, document.Values{"id": "a"}, []string{"slug:en:web"}))

	err := col.Upsert(ctx, document.Values{"id": "b"}, []string{"slug:en:web"})
	require.ErrorIs(t, err, ErrConflict)
	ok, _ := Exists(ctx, col, "b")
	assert.False(t, ok, "conflicting upsert must not persist the record")

	// Re-claiming own claims is fine, and dropped claims are released.
	require.NoError(t, col.Upsert(ctx, document.Values{"id": "a"}, []string{"slug:en:web-2"}))
	assert.NoError(t, col.Upsert(ctx, document.Values{"id": "b"}, []string{"slug:en:web"}), "released claim still held")

	// Claims are scoped per collection.
	assert.NoError(t, store.Collection("other").Upsert(ctx, document.Values{"id": "z"}, []string{"slug:en:web"}), "claim leaked across collections")
}
