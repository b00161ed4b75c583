package thumbnail

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"gallery-core/internal/logging"
)

// selfHeal runs once at startup. If thumb_status believes thumbnails exist
// but the thumbs directory has actually been wiped out from under the
// index (a restore from an old backup, a manual `rm -rf`), every exists
// row is reset to pending so the idle generator refills it. Both a
// filesystem sample and a DB sample have to come back empty before this
// trips — either one finding something real means the store and disk are
// still in agreement and a reset would just be destructive busywork.
func (s *Service) selfHeal(ctx context.Context) {
	dbPaths, err := s.store.SampleThumbExistsPaths(ctx, s.cfg.SelfHealSamples)
	if err != nil {
		logging.Warn("thumbnail: self-heal DB sample failed: %v", err)
		return
	}
	if len(dbPaths) == 0 {
		return // nothing recorded as existing; nothing to reconcile against
	}

	if !thumbsDirLooksEmpty(s.cfg.ThumbsDir) {
		return
	}

	n, err := s.store.ResetAllThumbExistsToPending(ctx)
	if err != nil {
		logging.Error("thumbnail: self-heal reset failed: %v", err)
		return
	}
	logging.Warn("thumbnail: thumbs directory appears empty but %d rows were marked exists; reset to pending", n)
}

// thumbsDirLooksEmpty does a shallow two-level walk rather than a full
// recursive scan — enough to tell "mostly empty after a wipe" from "has a
// normal population of mirrored files" without walking a tree that could
// hold hundreds of thousands of entries.
func thumbsDirLooksEmpty(root string) bool {
	entries, err := os.ReadDir(root)
	if err != nil {
		return true
	}
	checked := 0
	for _, e := range entries {
		if !e.IsDir() {
			return false
		}
		sub, err := os.ReadDir(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		if len(sub) > 0 {
			return false
		}
		checked++
		if checked > 20 {
			break
		}
	}
	return true
}

// runReconciler continuously sweeps thumb_status rows marked exists in
// small batches, verifying the mirrored file is still on disk. A miss
// resets the row to pending so the idle generator picks it back up.
// updated_at doubles as the rotation key (the schema carries no separate
// last-checked column) — TouchThumbChecked bumps it on a clean check so
// repeated sweeps rotate through the whole set instead of re-checking the
// same few rows.
func (s *Service) runReconciler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconcilePause):
		}

		rows, err := s.store.ListThumbExistsForReconcile(ctx, s.cfg.ReconcileBatch)
		if err != nil {
			logging.Warn("thumbnail: reconcile query failed: %v", err)
			continue
		}

		for _, row := range rows {
			abs := s.mirrorPath(row.Path)
			if _, err := os.Stat(abs); err != nil {
				if os.IsNotExist(err) {
					if rerr := s.store.ResetThumbToPending(ctx, row.Path); rerr != nil {
						logging.Warn("thumbnail: reconcile reset failed for %s: %v", row.Path, rerr)
					}
					continue
				}
				logging.Debug("thumbnail: reconcile stat failed for %s: %v", row.Path, err)
				continue
			}
			if terr := s.store.TouchThumbChecked(ctx, row.Path); terr != nil {
				logging.Warn("thumbnail: reconcile touch failed for %s: %v", row.Path, terr)
			}
		}
	}
}
