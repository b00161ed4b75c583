package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"gallery-core/internal/storage"
)

func upsertItem(t *testing.T, store *storage.Store, it *storage.Item) {
	t.Helper()
	ctx := t.Context()
	tx, err := store.BeginMain(ctx, false)
	require.NoError(t, err)
	_, err = store.UpsertItem(ctx, tx, it)
	require.NoError(t, err)
	require.NoError(t, store.EndMain(tx, nil))
}

func TestListDirectoryReturnsItemsWrappedByTypeData(t *testing.T) {
	env := setupTestEnv(t)
	now := time.Now().Truncate(time.Second)
	upsertItem(t, env.store, &storage.Item{
		Name: "beach.jpg", Path: "beach.jpg", ParentPath: "",
		Type: storage.ItemTypeImage, MTime: now,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/browse", nil)
	req = mux.SetURLVars(req, map[string]string{"path": ""})
	rr := httptest.NewRecorder()

	env.h.ListDirectory(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body browseEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, "photo", body.Items[0].Type)
	require.Equal(t, "beach.jpg", body.Items[0].Data.Path)
}

func TestListDirectoryUnknownPathReturns404(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/browse/missing", nil)
	req = mux.SetURLVars(req, map[string]string{"path": "missing"})
	rr := httptest.NewRecorder()

	env.h.ListDirectory(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, CodePathNotFound, body.Code)
}

func TestMarkViewedRequiresPath(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/browse/viewed", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()

	env.h.MarkViewed(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, CodeValidation, body.Code)
}

func TestMarkViewedUpdatesViewTime(t *testing.T) {
	env := setupTestEnv(t)
	upsertItem(t, env.store, &storage.Item{
		Name: "beach.jpg", Path: "beach.jpg", Type: storage.ItemTypeImage,
		MTime: time.Now(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/browse/viewed",
		bytes.NewBufferString(`{"path":"beach.jpg"}`))
	rr := httptest.NewRecorder()

	env.h.MarkViewed(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestPagingParamsDefaultsOnMissingOrInvalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/browse?page=bogus", nil)
	page, limit := pagingParams(req)
	require.Equal(t, 0, page)
	require.Equal(t, 0, limit)
}
