package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListAlbumCoversEmptyIndex(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/albums/covers", nil)
	rr := httptest.NewRecorder()

	env.h.ListAlbumCovers(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body coversEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Empty(t, body.Covers)
}

func TestListAlbumCoversCursorClampsLimit(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/albums/covers/cursor?limit=9999&cursor=-5", nil)
	rr := httptest.NewRecorder()

	env.h.ListAlbumCoversCursor(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body coversEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 0, body.NextCursor)
}
