// Package indexer walks the configured media directory into the items
// table and keeps it, items_fts, and album_covers consistent with what is
// actually on disk.
//
// # Full rebuild
//
// FullRebuild walks the whole tree, upserting albums and media items in
// batches of 1000 under a single BEGIN IMMEDIATE transaction per batch,
// recording a checkpoint after each committed batch via the storage
// package's index_status row. The checkpoint is progress reporting only: a
// rebuild cut off by a crash is not resumed from it, and the next run walks
// the whole tree again. When the walk completes,
// items untouched since the run started are deleted, every album's cover
// is recomputed, and the browse/search cache is flushed.
//
// # Incremental apply
//
// ApplyChanges takes the watcher's consolidated change batch and applies it
// directly: removed paths (and anything nested under them, for directory
// deletes) are dropped from items/items_fts/thumb_status; added or updated
// paths are re-stat'd, dimension-probed, and upserted. Every album's cover
// is then recomputed; only the cache tags of the albums touched by the
// batch (and the root) are invalidated.
//
// # Dimension resolution
//
// Image dimensions are decoded directly; video dimensions are probed via
// ffprobe. Both are cached in memory per (path, mtime) for a short TTL so a
// batch re-touching the same file within one rebuild doesn't re-probe it.
//
// # Search tokens
//
// Every item gets an n-gram token row in items_fts built from its path and
// type (see Ngrams, TokensForItem). Because tokens are a pure function of
// (path, type), the fts5 external-content delete command can always
// reconstruct the exact postings to remove without a separate lookup.
package indexer
