package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupTestStore(t testing.TB) *Store {
	t.Helper()

	dir := t.TempDir()
	s, err := Open(context.Background(), Dirs{Main: dir, Settings: dir, History: dir, Index: dir}, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesAllFourDatabases(t *testing.T) {
	s := setupTestStore(t)

	for _, h := range s.handles() {
		var one int
		err := h.db.QueryRow("SELECT 1").Scan(&one)
		require.NoError(t, err, "database %s should be reachable", h.name)
	}
}

func TestConfigClampsTimeouts(t *testing.T) {
	cfg := Config{BusyTimeout: time.Second, QueryTimeout: time.Second}.clamped()
	require.Equal(t, 10*time.Second, cfg.BusyTimeout)
	require.Equal(t, 15*time.Second, cfg.QueryTimeout)

	cfg = Config{BusyTimeout: time.Hour, QueryTimeout: time.Hour}.clamped()
	require.Equal(t, 60*time.Second, cfg.BusyTimeout)
	require.Equal(t, 60*time.Second, cfg.QueryTimeout)
}

func TestUpsertItemInsertsAndUpdates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	it := &Item{
		Name: "photo.jpg", Path: "album/photo.jpg", ParentPath: "album",
		Type: ItemTypeImage, Size: 100, MTime: time.Now().Truncate(time.Second),
		MimeType: "image/jpeg",
	}

	tx, err := s.BeginMain(ctx, false)
	require.NoError(t, err)
	id, err := s.UpsertItem(ctx, tx, it)
	require.NoError(t, err)
	require.NotZero(t, id)
	require.NoError(t, s.EndMain(tx, nil))

	got, err := s.GetItemByPath(ctx, "album/photo.jpg")
	require.NoError(t, err)
	require.Equal(t, it.Size, got.Size)
	firstContentUpdate := got.ContentUpdatedAt

	// Re-upsert with identical content: content_updated_at must not advance.
	tx, err = s.BeginMain(ctx, false)
	require.NoError(t, err)
	secondID, err := s.UpsertItem(ctx, tx, it)
	require.NoError(t, err)
	require.Equal(t, id, secondID)
	require.NoError(t, s.EndMain(tx, nil))

	got, err = s.GetItemByPath(ctx, "album/photo.jpg")
	require.NoError(t, err)
	require.Equal(t, firstContentUpdate.Unix(), got.ContentUpdatedAt.Unix())

	// Re-upsert with a changed size: content_updated_at must advance.
	it.Size = 200
	tx, err = s.BeginMain(ctx, true)
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, tx, it)
	require.NoError(t, err)
	require.NoError(t, s.EndMain(tx, nil))

	got, err = s.GetItemByPath(ctx, "album/photo.jpg")
	require.NoError(t, err)
	require.Equal(t, int64(200), got.Size)
}

func TestEndBatchRollsBackOnError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tx, err := s.BeginMain(ctx, false)
	require.NoError(t, err)

	it := &Item{Name: "x.jpg", Path: "x.jpg", ParentPath: "", Type: ItemTypeImage, MTime: time.Now()}
	_, err = s.UpsertItem(ctx, tx, it)
	require.NoError(t, err)

	require.Error(t, s.EndMain(tx, context.DeadlineExceeded))

	_, err = s.GetItemByPath(ctx, "x.jpg")
	require.Error(t, err, "row from a rolled-back transaction should not be visible")
}

func TestRunPreparedBatchChunks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rows := make([][]any, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, []any{"bulk", "bulk/" + string(rune('a'+i)), "bulk", string(ItemTypeImage), 0, time.Now().Unix(), "", 0, 0, ""})
	}

	query := `INSERT INTO items (name, path, parent_path, type, size, mod_time, mime_type, width, height, file_hash)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	affected, err := s.main.runPreparedBatch(ctx, "test_bulk_insert", query, beginImmediate, 2, rows)
	require.NoError(t, err)
	require.Equal(t, int64(5), affected)
}

func TestNaturalCompareOrdersNumerically(t *testing.T) {
	require.Negative(t, naturalCompare("img2", "img10"))
	require.Positive(t, naturalCompare("img10", "img2"))
	require.Zero(t, naturalCompare("img2", "img2"))
	require.Negative(t, naturalCompare("a", "b"))
}

func TestSortColumnFallsBackToName(t *testing.T) {
	require.Equal(t, allowedSortColumns["name"], SortColumn("name"))
	require.Equal(t, allowedSortColumns["name"], SortColumn("not-a-real-key"))
	require.Equal(t, allowedSortColumns["viewed"], SortColumn("viewed"))
}

func TestEnsureCoreTablesIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	for _, h := range s.handles() {
		require.NoError(t, ensureCoreTables(context.Background(), h))
		require.NoError(t, ensureCoreTables(context.Background(), h))
	}
}
