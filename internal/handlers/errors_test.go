package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteErrorIncludesRequestIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/browse", nil)
	rr := httptest.NewRecorder()

	writeError(rr, req, http.StatusBadRequest, CodeValidation, "bad input", nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, CodeValidation, body.Code)
	require.Equal(t, "bad input", body.Message)
	require.Empty(t, body.RequestID) // no middleware.RequestID in this unit test
}

func TestWriteErrorCarriesDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/browse", nil)
	rr := httptest.NewRecorder()

	writeError(rr, req, http.StatusInternalServerError, CodeInternal, "oops", map[string]string{"field": "path"})

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, map[string]any{"field": "path"}, body.Details)
}
