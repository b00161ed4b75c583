package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticMediaServesFile(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.mediaDir, "beach.jpg"), []byte("fake"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/beach.jpg", nil)
	rr := httptest.NewRecorder()

	env.h.StaticMedia().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "fake", rr.Body.String())
}

func TestStaticMediaRejectsUnsafePath(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil)
	rr := httptest.NewRecorder()

	env.h.StaticMedia().ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStaticThumbsServesMirroredFile(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.thumbsDir, "beach.webp"), []byte("thumb"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/beach.webp", nil)
	rr := httptest.NewRecorder()

	env.h.StaticThumbs().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "thumb", rr.Body.String())
}
