package handlers

import (
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gallery-core/internal/pathsafe"
	"gallery-core/internal/thumbnail"
)

// placeholderProcessing and placeholderFailed are tiny inline 1x1 images
// served while a thumbnail is pending or gave up permanently, so a client
// never has to special-case a missing-body response.
var (
	placeholderProcessing = []byte{0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b}
	placeholderFailed      = []byte{0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b}
)

// GetThumbnail handles GET /api/thumbnail?path=<rel>.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")
	if relPath == "" {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "path is required", nil)
		return
	}
	rel, err := pathsafe.New(relPath)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidPath, "unsafe path", nil)
		return
	}

	absPath := filepath.Join(h.MediaDir, filepath.FromSlash(rel.String()))
	result := h.Thumbs.EnsureThumbnailExists(r.Context(), absPath, rel.String())

	switch result.Status {
	case thumbnail.StatusExists:
		h.serveExistingThumbnail(w, r, rel.String())
	case thumbnail.StatusProcessing:
		w.Header().Set("X-Thumb-Status", "processing")
		w.Header().Set("Content-Type", "image/gif")
		w.WriteHeader(http.StatusAccepted)
		w.Write(placeholderProcessing)
	default:
		w.Header().Set("X-Thumb-Status", "failed")
		w.Header().Set("Content-Type", "image/gif")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(placeholderFailed)
	}
}

// serveExistingThumbnail streams the mirrored file with ETag/Last-Modified
// conditional-request support, honoring If-None-Match the way static asset
// serving normally does.
func (h *Handlers) serveExistingThumbnail(w http.ResponseWriter, r *http.Request, relPath string) {
	base := relPath[:len(relPath)-len(filepath.Ext(relPath))]
	var diskPath string
	for _, ext := range []string{".webp", ".jpg"} {
		candidate := filepath.Join(h.ThumbsDir, filepath.FromSlash(base)+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			diskPath = candidate
			break
		}
	}
	if diskPath == "" {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "thumbnail vanished after generation", nil)
		return
	}

	info, err := os.Stat(diskPath)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to stat thumbnail", nil)
		return
	}

	etag := weakETag(diskPath, info.ModTime(), info.Size())
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "public, max-age=604800, immutable")

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	http.ServeFile(w, r, diskPath)
}

func weakETag(path string, mtime time.Time, size int64) string {
	sum := sha1.Sum([]byte(path + strconv.FormatInt(mtime.UnixNano(), 10) + strconv.FormatInt(size, 10)))
	return `W/"` + hex.EncodeToString(sum[:8]) + `"`
}
