package handlers

import (
	"net/http"

	"gallery-core/internal/pathsafe"
)

// StaticMedia serves GET /static/{path:.*} — the original media files
// browse/search responses link to via originalUrl. http.Dir already
// resolves ".." segments safely, but pathsafe.New is applied first so a
// request rejected by the indexing pipeline (db-like suffixes, backslash
// paths) is rejected here too rather than silently served.
func (h *Handlers) StaticMedia() http.Handler {
	return validatedFileServer(h.MediaDir)
}

// StaticThumbs serves GET /thumbs/{path:.*} directly, for callers that want
// the mirrored file without going through /api/thumbnail's status branches.
func (h *Handlers) StaticThumbs() http.Handler {
	return validatedFileServer(h.ThumbsDir)
}

func validatedFileServer(root string) http.Handler {
	fs := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := pathsafe.New(r.URL.Path); err != nil {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
