package indexer

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gallery-core/internal/logging"
	"gallery-core/internal/pathsafe"
	"gallery-core/internal/storage"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".svg": true, ".ico": true,
	".tiff": true, ".tif": true, ".heic": true, ".heif": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
	".mpeg": true, ".mpg": true, ".3gp": true, ".ts": true,
}

var mimeTypes = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
	".gif": "image/gif", ".bmp": "image/bmp", ".webp": "image/webp",
	".svg": "image/svg+xml", ".ico": "image/x-icon", ".heic": "image/heic", ".heif": "image/heif",
	".tiff": "image/tiff", ".tif": "image/tiff",
	".mp4": "video/mp4", ".mkv": "video/x-matroska", ".avi": "video/x-msvideo",
	".mov": "video/quicktime", ".wmv": "video/x-ms-wmv", ".flv": "video/x-flv",
	".webm": "video/webm", ".m4v": "video/x-m4v", ".mpeg": "video/mpeg",
	".mpg": "video/mpeg", ".3gp": "video/3gpp", ".ts": "video/mp2t",
}

// classify maps an extension to the item type it represents, or "" for an
// unsupported extension (neither image nor video).
func classify(ext string) storage.ItemType {
	ext = strings.ToLower(ext)
	if imageExtensions[ext] {
		return storage.ItemTypeImage
	}
	if videoExtensions[ext] {
		return storage.ItemTypeVideo
	}
	return ""
}

// ignoredDirNames mirrors the watcher's vendor/system directory skip-list;
// the full rebuild walk must never descend into the same directories the
// watcher never arms.
var ignoredDirNames = map[string]struct{}{
	"@eaDir": {}, "System Volume Information": {}, ".Trash-1000": {}, "node_modules": {},
}

func isIgnoredName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ignored := ignoredDirNames[name]
	return ignored
}

// walkEntry is one directory-walk result, pre-classification, before
// dimension probing fills in width/height.
type walkEntry struct {
	relPath  string
	absPath  string
	itemType storage.ItemType
	name     string
	parent   string
	size     int64
	mtime    time.Time
	mimeType string
	width    int
	height   int
	hash     string
}

// walkRoot performs a single-pass recursive walk of root, invoking fn once
// per eligible album directory or media file. Hidden entries and vendor
// directories are skipped outright; files with an unsupported extension are
// skipped without invoking fn. fn returning an error stops the walk and
// that error is returned.
func walkRoot(root string, fn func(walkEntry) error) error {
	return walkDir(root, root, fn)
}

func walkDir(root, dir string, fn func(walkEntry) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logging.Warn("indexer: readdir %s failed: %v", dir, err)
		return nil
	}

	for _, entry := range entries {
		if isIgnoredName(entry.Name()) {
			continue
		}

		abs := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)

		if _, err := pathsafe.New(rel); err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logging.Warn("indexer: stat %s failed: %v", abs, err)
			continue
		}

		if entry.IsDir() {
			we := walkEntry{
				relPath:  rel,
				absPath:  abs,
				itemType: storage.ItemTypeAlbum,
				name:     entry.Name(),
				parent:   parentOf(rel),
				mtime:    info.ModTime(),
				hash:     dirHash(rel, info.ModTime()),
			}
			if err := fn(we); err != nil {
				return err
			}
			if err := walkDir(root, abs, fn); err != nil {
				return err
			}
			continue
		}

		ext := filepath.Ext(entry.Name())
		itemType := classify(ext)
		if itemType == "" {
			continue
		}

		we := walkEntry{
			relPath:  rel,
			absPath:  abs,
			itemType: itemType,
			name:     entry.Name(),
			parent:   parentOf(rel),
			size:     info.Size(),
			mtime:    info.ModTime(),
			mimeType: mimeTypes[strings.ToLower(ext)],
			hash:     fileHash(rel, info.Size(), info.ModTime()),
		}
		if err := fn(we); err != nil {
			return err
		}
	}
	return nil
}

func parentOf(rel string) string {
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		return ""
	}
	return dir
}

// fileHash is a cheap change-detection digest over (path, size, mtime), not
// file content — matching the teacher's own createMediaFile recipe. It
// backs items.file_hash, which UpsertItem uses to decide whether
// content_updated_at should advance.
func fileHash(relPath string, size int64, mtime time.Time) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(fmt.Sprintf("%s%d%d", relPath, size, mtime.Unix()))))
}

func dirHash(relPath string, mtime time.Time) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(relPath+mtime.String())))
}
