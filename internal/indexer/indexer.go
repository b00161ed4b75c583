// Package indexer walks the media tree into the items table, maintains the
// items_fts search index and album_covers cache, and applies the watcher's
// consolidated changes incrementally between full rebuilds. It owns the
// entire write path into storage; everything else (browse, search,
// thumbnail generation) only ever reads what the indexer has committed.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gallery-core/internal/cache"
	"gallery-core/internal/eventbus"
	"gallery-core/internal/logging"
	"gallery-core/internal/metrics"
	"gallery-core/internal/pathsafe"
	"gallery-core/internal/storage"
	"gallery-core/internal/watcher"
)

const fullRebuildBatchSize = 1000
const batchDelay = 10 * time.Millisecond

// MirrorDeleter removes a media path's mirrored thumbnail file from disk.
// Satisfied by *thumbnail.Service; kept as a narrow interface here so the
// indexer doesn't import the thumbnail package (which itself depends on
// storage, not the other way around).
type MirrorDeleter interface {
	DeleteMirror(relPath string) error
}

// Indexer owns the write path into storage: full rebuilds, incremental
// apply of watcher changes, and album-cover recomputation. Exactly one of
// these critical tasks may run at a time; a second request arriving while
// one is in flight is dropped with a log rather than queued, matching the
// failure model the watcher's FullRebuildThreshold escalation depends on.
type Indexer struct {
	store    *storage.Store
	cache    *cache.Cache
	bus      *eventbus.Bus
	mediaDir string
	mirrors  MirrorDeleter

	dimCache *dimensionCache

	running   atomic.Bool
	startTime time.Time

	filesIndexed   atomic.Int64
	foldersIndexed atomic.Int64
	lastRunAt      atomic.Int64 // unix seconds
}

// New constructs an Indexer. c and bus may be nil (cache disabled, or no
// SSE subscribers yet); invalidation and progress events are skipped when
// nil rather than erroring.
func New(store *storage.Store, c *cache.Cache, bus *eventbus.Bus, mediaDir string) *Indexer {
	return &Indexer{
		store:     store,
		cache:     c,
		bus:       bus,
		mediaDir:  mediaDir,
		dimCache:  newDimensionCache(),
		startTime: time.Now(),
	}
}

// SetMirrorDeleter wires the thumbnail engine in after construction, since
// main.go builds the indexer before the thumbnail service. Safe to leave unset (nil) in
// tests that don't care about mirror cleanup.
func (idx *Indexer) SetMirrorDeleter(m MirrorDeleter) {
	idx.mirrors = m
}

func (idx *Indexer) tryAcquire() bool {
	if !idx.running.CompareAndSwap(false, true) {
		return false
	}
	metrics.IndexerRunning.Set(1)
	return true
}

func (idx *Indexer) release() {
	idx.running.Store(false)
	metrics.IndexerRunning.Set(0)
	metrics.IndexerProgressPercent.Set(0)
}

// IsRunning reports whether a full rebuild or incremental apply currently
// holds the critical-task slot.
func (idx *Indexer) IsRunning() bool {
	return idx.running.Load()
}

// LastRunTime returns when the most recent rebuild or apply completed.
func (idx *Indexer) LastRunTime() time.Time {
	sec := idx.lastRunAt.Load()
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func (idx *Indexer) publish(topic string, data any) {
	if idx.bus == nil {
		return
	}
	idx.bus.Publish(eventbus.Event{Topic: topic, Data: data})
}

// --- full rebuild ------------------------------------------------------

// FullRebuild walks the entire media tree, upserting every album and media
// item in batches of fullRebuildBatchSize under BEGIN IMMEDIATE and
// recording the last committed path as a checkpoint after each batch. The
// checkpoint reports progress only: StartIndexRun clears it at the start of
// every run and the walk always covers the whole tree, so a rebuild cut off
// by a crash starts again from the beginning. It finishes by dropping items untouched since the run started, rebuilding
// every album's cover, and invalidating the whole browse/search cache.
func (idx *Indexer) FullRebuild(ctx context.Context) error {
	if !idx.tryAcquire() {
		logging.Warn("indexer: full rebuild requested while a critical task is already running, dropping")
		return nil
	}
	defer idx.release()

	start := time.Now()
	metrics.IndexerRunsTotal.WithLabelValues("full").Inc()

	if err := idx.store.StartIndexRun(ctx); err != nil {
		metrics.IndexerErrors.WithLabelValues("start").Inc()
		return fmt.Errorf("indexer: start run: %w", err)
	}

	idx.filesIndexed.Store(0)
	idx.foldersIndexed.Store(0)

	var batch []walkEntry
	var processed int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := idx.writeBatch(ctx, batch); err != nil {
			return err
		}
		processed += int64(len(batch))
		last := batch[len(batch)-1].relPath
		if err := idx.store.SetIndexCheckpoint(ctx, last, processed); err != nil {
			logging.Warn("indexer: checkpoint write failed: %v", err)
		}
		metrics.IndexerProgressPercent.Set(progressEstimate(processed))
		idx.publish("index-progress", map[string]any{"items": processed, "checkpoint": last})
		batch = batch[:0]
		time.Sleep(batchDelay)
		return nil
	}

	walkErr := walkRoot(idx.mediaDir, func(e walkEntry) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		batch = append(batch, e)
		if e.itemType == storage.ItemTypeAlbum {
			idx.foldersIndexed.Add(1)
		} else {
			idx.filesIndexed.Add(1)
		}
		if len(batch) >= fullRebuildBatchSize {
			return flush()
		}
		return nil
	})
	if walkErr == nil {
		walkErr = flush()
	}
	if walkErr != nil {
		metrics.IndexerErrors.WithLabelValues("walk").Inc()
		return fmt.Errorf("indexer: walk: %w", walkErr)
	}

	tx, err := idx.store.BeginMain(ctx, true)
	if err != nil {
		metrics.IndexerErrors.WithLabelValues("cleanup").Inc()
		return fmt.Errorf("indexer: begin cleanup: %w", err)
	}
	removed, delErr := idx.store.DeleteMissingItems(ctx, tx, start)
	if err := idx.store.EndMain(tx, delErr); err != nil {
		metrics.IndexerErrors.WithLabelValues("cleanup").Inc()
		return fmt.Errorf("indexer: cleanup: %w", err)
	}
	if removed > 0 {
		logging.Info("indexer: full rebuild removed %d stale items", removed)
	}

	if err := idx.RebuildAlbumCovers(ctx); err != nil {
		metrics.IndexerErrors.WithLabelValues("covers").Inc()
		logging.Warn("indexer: album cover rebuild failed: %v", err)
	}

	if err := idx.store.FinishIndexRun(ctx); err != nil {
		logging.Warn("indexer: finish run failed: %v", err)
	}

	idx.invalidateAll(ctx)

	duration := time.Since(start)
	idx.lastRunAt.Store(time.Now().Unix())
	metrics.IndexerLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.IndexerLastRunDuration.Set(duration.Seconds())
	metrics.IndexerItemsProcessed.WithLabelValues("album").Add(float64(idx.foldersIndexed.Load()))
	metrics.IndexerItemsProcessed.WithLabelValues("media").Add(float64(idx.filesIndexed.Load()))
	idx.publish("index-complete", map[string]any{"items": processed, "duration_seconds": duration.Seconds()})
	logging.Info("indexer: full rebuild complete: %d items in %s", processed, duration)
	return nil
}

// TriggerFullRebuild implements watcher.Handler.
func (idx *Indexer) TriggerFullRebuild(ctx context.Context) error {
	return idx.FullRebuild(ctx)
}

// progressEstimate reports a monotonically climbing, saturating curve: no
// reliable total-item count is available mid-walk, so precision past "it
// is moving and not yet done" would be false confidence.
func progressEstimate(processed int64) float64 {
	pct := float64(processed) / float64(processed+fullRebuildBatchSize) * 100
	if pct > 99 {
		pct = 99
	}
	return pct
}

// writeBatch upserts one walk batch (after dimension probing) inside a
// single BEGIN IMMEDIATE transaction, keeping items, items_fts and
// thumb_status consistent with each other.
func (idx *Indexer) writeBatch(ctx context.Context, batch []walkEntry) error {
	idx.probeBatch(ctx, batch)

	tx, err := idx.store.BeginMain(ctx, true)
	if err != nil {
		return err
	}

	var batchErr error
	for _, e := range batch {
		id, uerr := idx.store.UpsertItem(ctx, tx, toItem(e))
		if uerr != nil {
			batchErr = uerr
			break
		}
		tokens := TokensForItem(e.relPath, e.itemType)
		if ferr := idx.store.UpsertItemFTS(ctx, tx, id, tokens); ferr != nil {
			batchErr = ferr
			break
		}
		if e.itemType != storage.ItemTypeAlbum {
			if perr := idx.store.UpsertThumbStatusPending(ctx, tx, e.relPath, e.mtime); perr != nil {
				logging.Warn("indexer: thumb_status pending write failed for %s: %v", e.relPath, perr)
			}
		}
	}
	return idx.store.EndMain(tx, batchErr)
}

func toItem(e walkEntry) *storage.Item {
	return &storage.Item{
		Name:       e.name,
		Path:       e.relPath,
		ParentPath: e.parent,
		Type:       e.itemType,
		Size:       e.size,
		MTime:      e.mtime,
		MimeType:   e.mimeType,
		Width:      e.width,
		Height:     e.height,
		Hash:       e.hash,
	}
}

// --- incremental apply ---------------------------------------------------

// ApplyChanges implements watcher.Handler. It is invoked with a
// consolidated batch well under the watcher's full-rebuild threshold:
// paths marked for removal (and anything nested under them) are deleted
// from items/items_fts/thumb_status; paths marked add/update are re-stat'd,
// dimension-probed, and upserted. Every album's cover is then recomputed,
// and the cache tags of the affected albums are invalidated.
func (idx *Indexer) ApplyChanges(ctx context.Context, changes []watcher.ConsolidatedChange) error {
	if !idx.tryAcquire() {
		logging.Warn("indexer: incremental apply requested while a critical task is already running, dropping")
		return nil
	}
	defer idx.release()

	start := time.Now()
	metrics.IndexerRunsTotal.WithLabelValues("incremental").Inc()

	var removedPaths []string
	var upserts []walkEntry
	affectedAlbums := map[string]struct{}{"": {}}

	for _, c := range changes {
		rel, err := pathsafe.New(c.Path)
		if err != nil {
			logging.Warn("indexer: skipping unsafe path %q: %v", c.Path, err)
			continue
		}
		for _, anc := range rel.Ancestors() {
			affectedAlbums[anc.String()] = struct{}{}
		}

		switch c.Kind {
		case watcher.ChangeUnlink:
			removedPaths = append(removedPaths, rel.String())
		case watcher.ChangeAdd, watcher.ChangeUpdate:
			entry, ok := idx.statEntry(rel)
			if !ok {
				// Raced with a subsequent unlink between debounce fire and
				// apply; treat it the same as an explicit removal.
				removedPaths = append(removedPaths, rel.String())
				continue
			}
			upserts = append(upserts, entry)
		}
	}

	tx, err := idx.store.BeginMain(ctx, false)
	if err != nil {
		metrics.IndexerErrors.WithLabelValues("incremental").Inc()
		return fmt.Errorf("indexer: begin incremental: %w", err)
	}

	var applyErr error
	if len(removedPaths) > 0 {
		deleted, derr := idx.store.DeleteItemsByPathsAndPrefixes(ctx, tx, removedPaths)
		if derr != nil {
			applyErr = derr
		} else {
			for _, d := range deleted {
				// The item's type at delete time is unknown without a
				// second lookup; ItemTypeOther only affects the trailing
				// type token in the ngram row, which the 'delete' command
				// must reproduce exactly for fts5 to find the posting —
				// so the type actually indexed (if different) would leave
				// a stale token behind. Re-deriving type from the path's
				// extension keeps this correct without a lookup.
				itemType := inferTypeFromPath(d.Path)
				tokens := TokensForItem(d.Path, itemType)
				if ferr := idx.store.DeleteItemFTS(ctx, tx, d.ID, tokens); ferr != nil {
					logging.Warn("indexer: fts delete for %s failed: %v", d.Path, ferr)
				}
			}
			if terr := idx.store.DeleteThumbStatusByPaths(ctx, tx, removedPaths); terr != nil {
				logging.Warn("indexer: thumb_status cleanup failed: %v", terr)
			}
		}
	}

	if applyErr == nil && len(upserts) > 0 {
		idx.probeBatch(ctx, upserts)
		for _, e := range upserts {
			id, uerr := idx.store.UpsertItem(ctx, tx, toItem(e))
			if uerr != nil {
				applyErr = uerr
				break
			}
			tokens := TokensForItem(e.relPath, e.itemType)
			if ferr := idx.store.UpsertItemFTS(ctx, tx, id, tokens); ferr != nil {
				applyErr = ferr
				break
			}
			if e.itemType != storage.ItemTypeAlbum {
				if perr := idx.store.UpsertThumbStatusPending(ctx, tx, e.relPath, e.mtime); perr != nil {
					logging.Warn("indexer: thumb_status pending write failed for %s: %v", e.relPath, perr)
				}
			}
		}
	}

	if err := idx.store.EndMain(tx, applyErr); err != nil {
		metrics.IndexerErrors.WithLabelValues("incremental").Inc()
		return fmt.Errorf("indexer: incremental apply: %w", err)
	}

	if idx.mirrors != nil {
		for _, p := range removedPaths {
			if merr := idx.mirrors.DeleteMirror(p); merr != nil && !os.IsNotExist(merr) {
				logging.Warn("indexer: mirror cleanup failed for %s: %v", p, merr)
			}
		}
	}

	if err := idx.RebuildAlbumCovers(ctx); err != nil {
		logging.Warn("indexer: affected-album cover recompute failed: %v", err)
	}

	idx.invalidateTags(ctx, affectedAlbums)

	duration := time.Since(start)
	idx.lastRunAt.Store(time.Now().Unix())
	metrics.IndexerLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.IndexerLastRunDuration.Set(duration.Seconds())
	metrics.IndexerItemsProcessed.WithLabelValues("media").Add(float64(len(upserts)))
	idx.publish("index-incremental", map[string]any{
		"upserted": len(upserts), "removed": len(removedPaths), "duration_seconds": duration.Seconds(),
	})
	return nil
}

func inferTypeFromPath(path string) storage.ItemType {
	ext := filepath.Ext(path)
	if ext == "" {
		return storage.ItemTypeAlbum
	}
	if t := classify(ext); t != "" {
		return t
	}
	return storage.ItemTypeOther
}

// --- album cover maintenance ---------------------------------------------

// RebuildAlbumCovers assigns every album its cover: the most recently
// modified media descendant, tie-broken by path descending (mirroring
// StreamMediaByMTimeDesc's order). One item can be the cover of several
// nested albums at once.
// Albums with no eligible descendant lose their cover row. Running this
// over every album on every incremental apply is simpler than tracking
// exactly which covers a change could invalidate, and full rebuilds are
// the only path expensive enough to need the narrower approach avoided.
func (idx *Indexer) RebuildAlbumCovers(ctx context.Context) error {
	albumPaths, err := idx.store.ListAlbumPaths(ctx)
	if err != nil {
		return err
	}
	needsCover := make(map[string]struct{}, len(albumPaths)+1)
	for _, p := range albumPaths {
		needsCover[p] = struct{}{}
	}
	needsCover[""] = struct{}{} // the root album itself

	tx, err := idx.store.BeginMain(ctx, false)
	if err != nil {
		return err
	}

	var txErr error
	streamErr := idx.store.StreamMediaByMTimeDesc(ctx, func(it storage.Item) error {
		rel, perr := pathsafe.New(it.Path)
		if perr != nil {
			return nil
		}
		for _, anc := range rel.Ancestors() {
			key := anc.String()
			if _, pending := needsCover[key]; !pending {
				continue
			}
			delete(needsCover, key)
			if err := idx.store.UpsertAlbumCover(ctx, tx, key, it.Path, it.Width, it.Height, it.MTime); err != nil {
				txErr = err
				return err
			}
		}
		return nil
	})
	if streamErr != nil && txErr == nil {
		txErr = streamErr
	}

	for remaining := range needsCover {
		if err := idx.store.DeleteAlbumCover(ctx, tx, remaining); err != nil && txErr == nil {
			txErr = err
		}
	}

	return idx.store.EndMain(tx, txErr)
}

// --- cache invalidation ----------------------------------------------------

func (idx *Indexer) invalidateTags(ctx context.Context, albums map[string]struct{}) {
	if idx.cache == nil {
		return
	}
	tags := make([]string, 0, len(albums))
	for a := range albums {
		tags = append(tags, "album:"+a)
	}
	if err := idx.cache.InvalidateTags(ctx, tags); err != nil {
		if err == cache.ErrCeilingExceeded {
			if _, derr := idx.cache.DeletePattern(ctx, "*"); derr != nil {
				logging.Warn("indexer: fallback cache flush failed: %v", derr)
			}
			return
		}
		logging.Warn("indexer: tag invalidation failed: %v", err)
	}
}

func (idx *Indexer) invalidateAll(ctx context.Context) {
	if idx.cache == nil {
		return
	}
	if _, err := idx.cache.DeletePattern(ctx, "*"); err != nil {
		logging.Warn("indexer: post-rebuild cache flush failed: %v", err)
	}
}

// --- single-path re-stat for incremental apply ----------------------------

// statEntry re-probes a single path from disk to build a walkEntry for an
// incremental upsert, mirroring the classification rules walkDir applies
// during a full rebuild.
func (idx *Indexer) statEntry(rel pathsafe.Rel) (walkEntry, bool) {
	var found walkEntry
	abs := filepath.Join(idx.mediaDir, rel.String())
	info, err := os.Stat(abs)
	if err != nil {
		return found, false
	}

	if info.IsDir() {
		found = walkEntry{
			relPath:  rel.String(),
			absPath:  abs,
			itemType: storage.ItemTypeAlbum,
			name:     info.Name(),
			parent:   parentOf(rel.String()),
			mtime:    info.ModTime(),
			hash:     dirHash(rel.String(), info.ModTime()),
		}
		return found, true
	}

	ext := strings.ToLower(filepath.Ext(info.Name()))
	itemType := classify(ext)
	if itemType == "" {
		return found, false
	}
	found = walkEntry{
		relPath:  rel.String(),
		absPath:  abs,
		itemType: itemType,
		name:     info.Name(),
		parent:   parentOf(rel.String()),
		size:     info.Size(),
		mtime:    info.ModTime(),
		mimeType: mimeTypes[ext],
		hash:     fileHash(rel.String(), info.Size(), info.ModTime()),
	}
	return found, true
}

// --- health reporting -------------------------------------------------------

// Status summarizes the indexer's health for the startup readiness probe
// and the admin status endpoint.
type Status struct {
	Ready          bool
	Running        bool
	FilesIndexed   int64
	FoldersIndexed int64
	LastRunAt      time.Time
	Uptime         time.Duration
}

// minItemsForReady is the item count past which the server reports ready
// even while an initial full rebuild of a large tree is still in flight.
const minItemsForReady = 100

// GetStatus reports the indexer's current health.
func (idx *Indexer) GetStatus() Status {
	return Status{
		Ready:          idx.filesIndexed.Load()+idx.foldersIndexed.Load() >= minItemsForReady || !idx.LastRunTime().IsZero(),
		Running:        idx.IsRunning(),
		FilesIndexed:   idx.filesIndexed.Load(),
		FoldersIndexed: idx.foldersIndexed.Load(),
		LastRunAt:      idx.LastRunTime(),
		Uptime:         time.Since(idx.startTime),
	}
}
