package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetThumbnailRequiresPath(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/thumbnail", nil)
	rr := httptest.NewRecorder()

	env.h.GetThumbnail(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetThumbnailRejectsUnsafePath(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=../../etc/passwd", nil)
	rr := httptest.NewRecorder()

	env.h.GetThumbnail(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetThumbnailServesExistingMirror(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.mediaDir, "sunset.jpg"), []byte("fake"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.thumbsDir, "sunset.webp"), []byte("thumb"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=sunset.jpg", nil)
	rr := httptest.NewRecorder()

	env.h.GetThumbnail(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get("ETag"))
	require.Equal(t, "thumb", rr.Body.String())
}

func TestGetThumbnailHonorsIfNoneMatch(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.mediaDir, "sunset.jpg"), []byte("fake"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.thumbsDir, "sunset.webp"), []byte("thumb"), 0o644))

	first := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=sunset.jpg", nil)
	firstRR := httptest.NewRecorder()
	env.h.GetThumbnail(firstRR, first)
	etag := firstRR.Header().Get("ETag")
	require.NotEmpty(t, etag)

	second := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=sunset.jpg", nil)
	second.Header.Set("If-None-Match", etag)
	secondRR := httptest.NewRecorder()
	env.h.GetThumbnail(secondRR, second)

	require.Equal(t, http.StatusNotModified, secondRR.Code)
}

func TestGetThumbnailMissingMirrorQueuesGeneration(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=never-seen.jpg", nil)
	rr := httptest.NewRecorder()

	env.h.GetThumbnail(rr, req)

	require.Equal(t, "processing", rr.Header().Get("X-Thumb-Status"))
	require.Equal(t, http.StatusAccepted, rr.Code)
}
