package thumbnail

import (
	"context"
	"time"

	"gallery-core/internal/logging"
	"gallery-core/internal/storage"
)

// runIdleFill continuously pages ListThumbFillCandidates and pushes each
// candidate onto the low-priority queue, pausing briefly between batches so
// a cold-start full scan doesn't hammer the disk while the dispatcher's
// reserve-last-idle-worker rule is still trying to keep a worker free for
// user-visible requests. Runs until ctx is canceled.
func (s *Service) runIdleFill(ctx context.Context) {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		items, err := s.store.ListThumbFillCandidates(ctx, s.cfg.IdleBatchSize, offset)
		if err != nil {
			logging.Warn("thumbnail: idle fill query failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.IdleBatchDelay):
			}
			continue
		}

		if len(items) == 0 {
			// Swept the whole candidate set; rest before starting over so a
			// freshly-stale item (a file just rewritten) gets picked up on
			// the next pass rather than spinning a tight empty-query loop.
			offset = 0
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.IdleBatchDelay * 4):
			}
			continue
		}

		for _, it := range items {
			if permanentlyFailed, _ := s.isPermanentlyFailed(ctx, it.Path); permanentlyFailed {
				continue
			}
			s.disp.pushLow(task{
				relPath: it.Path,
				mtime:   it.MTime,
				isVideo: it.Type == storage.ItemTypeVideo,
			})
		}
		offset += len(items)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.IdleBatchDelay):
		}
	}
}

func (s *Service) isPermanentlyFailed(ctx context.Context, relPath string) (bool, error) {
	_, hit, err := s.cache.Get(ctx, permanentFailureKey(relPath))
	return hit, err
}
