package thumbnail

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gallery-core/internal/cache"
	"gallery-core/internal/storage"
)

func setupTestService(t *testing.T) (*Service, string, string) {
	t.Helper()
	dir := t.TempDir()
	mediaDir := filepath.Join(dir, "media")
	thumbsDir := filepath.Join(dir, "thumbs")
	require.NoError(t, os.MkdirAll(mediaDir, 0o755))
	require.NoError(t, os.MkdirAll(thumbsDir, 0o755))

	store, err := storage.Open(context.Background(), storage.Dirs{
		Main: dir, Settings: dir, History: dir, Index: dir,
	}, storage.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// Nothing listens on this port: Get degrades to a clean miss, matching
	// the cache package's own graceful-degradation tests.
	c := cache.New(cache.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { c.Close() })

	svc := New(store, c, nil, Config{
		ThumbsDir: thumbsDir,
		MediaDir:  mediaDir,
		Workers:   1,
	})
	return svc, mediaDir, thumbsDir
}

func TestMirrorPathSwapsExtensionByKind(t *testing.T) {
	svc, _, thumbsDir := setupTestService(t)

	imgPath := svc.mirrorPath("Vacation/beach.jpg")
	require.Equal(t, filepath.Join(thumbsDir, "Vacation", "beach.webp"), imgPath)

	vidPath := svc.mirrorPath("Vacation/clip.mp4")
	require.Equal(t, filepath.Join(thumbsDir, "Vacation", "clip.jpg"), vidPath)
}

func TestDeleteMirrorRemovesWhicheverExtensionExists(t *testing.T) {
	svc, _, thumbsDir := setupTestService(t)

	require.NoError(t, os.MkdirAll(filepath.Join(thumbsDir, "Vacation"), 0o755))
	mirrored := filepath.Join(thumbsDir, "Vacation", "beach.webp")
	require.NoError(t, os.WriteFile(mirrored, []byte("fake"), 0o644))

	require.NoError(t, svc.DeleteMirror("Vacation/beach.jpg"))
	_, err := os.Stat(mirrored)
	require.True(t, os.IsNotExist(err))
}

func TestDeleteMirrorOnMissingFileReturnsNotExist(t *testing.T) {
	svc, _, _ := setupTestService(t)

	err := svc.DeleteMirror("Vacation/never-existed.jpg")
	require.True(t, os.IsNotExist(err))
}

func TestEnsureThumbnailExistsReturnsExistsWhenMirrorPresent(t *testing.T) {
	svc, mediaDir, thumbsDir := setupTestService(t)

	require.NoError(t, os.MkdirAll(thumbsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(thumbsDir, "sunset.webp"), []byte("fake"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(mediaDir, "sunset.jpg"), []byte("fake"), 0o644))

	res := svc.EnsureThumbnailExists(context.Background(), filepath.Join(mediaDir, "sunset.jpg"), "sunset.jpg")
	require.Equal(t, StatusExists, res.Status)
	require.Contains(t, res.URL, "path=sunset.jpg")
}

func TestEnsureThumbnailExistsEnqueuesWhenMissing(t *testing.T) {
	svc, mediaDir, _ := setupTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(mediaDir, "new.jpg"), []byte("fake"), 0o644))

	res := svc.EnsureThumbnailExists(context.Background(), filepath.Join(mediaDir, "new.jpg"), "new.jpg")
	require.Equal(t, StatusProcessing, res.Status)
	require.True(t, svc.disp.isQueuedOrActive("new.jpg"))
}

func TestEnsureThumbnailExistsDoesNotDoubleEnqueue(t *testing.T) {
	svc, mediaDir, _ := setupTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(mediaDir, "dup.jpg"), []byte("fake"), 0o644))

	svc.EnsureThumbnailExists(context.Background(), filepath.Join(mediaDir, "dup.jpg"), "dup.jpg")
	svc.EnsureThumbnailExists(context.Background(), filepath.Join(mediaDir, "dup.jpg"), "dup.jpg")
	require.Len(t, svc.disp.high, 1)
}
