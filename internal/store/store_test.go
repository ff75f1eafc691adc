package store

import (
	"context"
	"os"
	"testing"
	"time"

	"memorabilia-service/internal/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQuery(t *testing.T) {
	query, args, err := buildQuery("video_requests",
		[]docstore.Filter{{Field: "status", Value: "paid"}},
		&docstore.Order{Field: "created_at", Descending: true})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, version, data FROM documents WHERE collection = $1 AND data->>'status' = $2 ORDER BY data->'created_at' DESC, id",
		query)
	assert.Equal(t, []any{"video_requests", "paid"}, args)

	_, _, err = buildQuery("auctions", []docstore.Filter{{Field: "x'; DROP TABLE documents; --", Value: 1}}, nil)
	assert.Error(t, err)

	_, _, err = buildQuery("auctions", nil, &docstore.Order{Field: "Bad Field"})
	assert.Error(t, err)
}

func TestNormalizeTimes(t *testing.T) {
	ts := time.Date(2026, 10, 18, 9, 5, 0, 120, time.FixedZone("X", 3600))
	out := normalize(map[string]any{
		"end_time":    ts,
		"bid_history": []map[string]any{{"placed_at": ts}},
	}).(map[string]any)

	assert.Equal(t, "2026-10-18T08:05:00.000000120Z", out["end_time"])
	history := out["bid_history"].([]any)
	assert.Equal(t, "2026-10-18T08:05:00.000000120Z", history[0].(map[string]any)["placed_at"])
	assert.Equal(t, out["end_time"], filterValue(ts))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database")
	}

	store, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestDocumentLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "auctions", map[string]any{"player_name": "Jordan", "current_bid": "800"})
	require.NoError(t, err)
	defer store.Delete(ctx, "auctions", id)

	doc, err := store.Get(ctx, "auctions", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, "Jordan", doc.Data["player_name"])

	require.NoError(t, store.ConditionalUpdate(ctx, "auctions", id, 1, map[string]any{"player_name": "Jordan", "current_bid": "840"}))
	err = store.ConditionalUpdate(ctx, "auctions", id, 1, map[string]any{"current_bid": "850"})
	assert.ErrorIs(t, err, docstore.ErrConflict)

	require.NoError(t, store.Update(ctx, "auctions", id, map[string]any{"team": "Bulls"}))
	doc, err = store.Get(ctx, "auctions", id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.Version)
	assert.Equal(t, "840", doc.Data["current_bid"])
	assert.Equal(t, "Bulls", doc.Data["team"])

	_, err = store.Get(ctx, "auctions", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, store.CreateWithID(ctx, "video_orders", "fixed-order", map[string]any{"status": "pending"}))
	defer store.Delete(ctx, "video_orders", "fixed-order")
	err = store.CreateWithID(ctx, "video_orders", "fixed-order", map[string]any{"status": "pending"})
	assert.ErrorIs(t, err, docstore.ErrConflict)
}
