package browse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gallery-core/internal/storage"
)

func setupTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(context.Background(), storage.Dirs{
		Main: dir, Settings: dir, History: dir, Index: dir,
	}, storage.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, nil), store
}

func upsert(t *testing.T, store *storage.Store, it *storage.Item) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := store.BeginMain(ctx, false)
	require.NoError(t, err)
	id, err := store.UpsertItem(ctx, tx, it)
	require.NoError(t, err)
	require.NoError(t, store.EndMain(tx, nil))
	return id
}

func TestListDirectoryRootOrdersAlbumsBeforeMedia(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	upsert(t, store, &storage.Item{Name: "B", Path: "B", Type: storage.ItemTypeAlbum, MTime: now})
	upsert(t, store, &storage.Item{Name: "A", Path: "A", Type: storage.ItemTypeAlbum, MTime: now})
	upsert(t, store, &storage.Item{Name: "z.jpg", Path: "z.jpg", Type: storage.ItemTypeImage, MTime: now})

	page, err := svc.ListDirectory(ctx, "", 1, 10, "name_asc")
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	require.Equal(t, "album", page.Items[0].Type)
	require.Equal(t, "A", page.Items[0].Path)
	require.Equal(t, "album", page.Items[1].Type)
	require.Equal(t, "B", page.Items[1].Path)
	require.Equal(t, "photo", page.Items[2].Type)
}

func TestListDirectoryUnknownPathReturnsNotFound(t *testing.T) {
	svc, _ := setupTestService(t)
	_, err := svc.ListDirectory(context.Background(), "nope", 1, 10, "name_asc")
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestListDirectoryResolvesAlbumCoverAndMediaURLs(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	upsert(t, store, &storage.Item{Name: "A", Path: "A", Type: storage.ItemTypeAlbum, MTime: now})
	upsert(t, store, &storage.Item{Name: "p1.jpg", Path: "A/p1.jpg", ParentPath: "A", Type: storage.ItemTypeImage, Size: 10, Width: 800, Height: 600, MTime: now})

	tx, err := store.BeginMain(ctx, false)
	require.NoError(t, err)
	require.NoError(t, store.UpsertAlbumCover(ctx, tx, "A", "A/p1.jpg", 800, 600, now))
	require.NoError(t, store.EndMain(tx, nil))

	page, err := svc.ListDirectory(ctx, "", 1, 10, "name_asc")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Contains(t, page.Items[0].CoverURL, "/static/A%2Fp1.jpg")

	page, err = svc.ListDirectory(ctx, "A", 1, 10, "name_asc")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "photo", page.Items[0].Type)
	require.Contains(t, page.Items[0].OriginalURL, "/static/A%2Fp1.jpg")
	require.Contains(t, page.Items[0].ThumbnailURL, "/api/thumbnail?path=A%2Fp1.jpg")
}

func TestUpdateViewTimeThenViewedDescReordersAlbums(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	upsert(t, store, &storage.Item{Name: "A", Path: "A", Type: storage.ItemTypeAlbum, MTime: now})
	upsert(t, store, &storage.Item{Name: "B", Path: "B", Type: storage.ItemTypeAlbum, MTime: now})
	upsert(t, store, &storage.Item{Name: "p1.jpg", Path: "A/p1.jpg", ParentPath: "A", Type: storage.ItemTypeImage, MTime: now})

	require.NoError(t, svc.UpdateViewTime(ctx, "A/p1.jpg"))

	page, err := svc.ListDirectory(ctx, "", 1, 10, "viewed_desc")
	require.NoError(t, err)
	require.Equal(t, "A", page.Items[0].Path)
	require.Equal(t, "B", page.Items[1].Path)
}

func TestListDirectoryPaginates(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		upsert(t, store, &storage.Item{Name: name, Path: name, Type: storage.ItemTypeImage, MTime: now})
	}

	page, err := svc.ListDirectory(ctx, "", 1, 2, "name_asc")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, 3, page.TotalResult)

	page, err = svc.ListDirectory(ctx, "", 2, 2, "name_asc")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}
