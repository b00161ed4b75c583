package storage

import "time"

// ItemType classifies a row in the items table.
type ItemType string

const (
	ItemTypeAlbum ItemType = "album"
	ItemTypeImage ItemType = "image"
	ItemTypeVideo ItemType = "video"
	ItemTypeOther ItemType = "other"
)

// Item is a single indexed album or media entry. Path is always a
// pathsafe.Rel-validated relative path by the time it reaches storage.
type Item struct {
	ID               int64
	Path             string
	ParentPath       string
	Name             string
	Type             ItemType
	Size             int64
	MTime            time.Time
	MimeType         string
	Width            int
	Height           int
	Hash             string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ContentUpdatedAt time.Time
	LastViewedAt     *time.Time
}

// AlbumCover records the chosen cover item for an album, recomputed by the
// indexer's album-cover precompute pass.
type AlbumCover struct {
	AlbumPath  string
	ItemPath   string
	ComputedAt time.Time
}

// ThumbState is the lifecycle state of a thumbnail task.
type ThumbState string

const (
	ThumbStatePending          ThumbState = "pending"
	ThumbStateReady            ThumbState = "exists"
	ThumbStateFailed           ThumbState = "failed"
	ThumbStatePermanentFailure ThumbState = "permanent_failure"
)

// ThumbStatus tracks per-item thumbnail generation state, including the
// exponential-backoff retry ladder and the corruption counter that drives
// auto-delete of unreadable source files.
type ThumbStatus struct {
	Path            string
	State           ThumbState
	Attempts        int
	CorruptionCount int
	LastError       string
	UpdatedAt       time.Time
	NextRetryAt     *time.Time
}

// ViewHistory records the most recent view time and cumulative view count
// for a path, used by the viewed_desc browse sort.
type ViewHistory struct {
	Path         string
	LastViewedAt time.Time
	ViewCount    int64
}

// SettingEntry is a single key/value row in the settings store.
type SettingEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
