package thumbnail

import (
	"context"
	"os"
	"strings"
	"time"

	"gallery-core/internal/logging"
	"gallery-core/internal/metrics"
)

// permanentFailureKey is the cache marker checked before a path is ever
// re-enqueued, so a permanently-failed thumbnail doesn't get pulled back
// onto the low-priority queue by the idle fill-in pass every sweep.
func permanentFailureKey(relPath string) string {
	return "thumb_failed_permanently:" + relPath
}

// corruptionMarkers are substrings of decode/ffmpeg errors that indicate
// the source file itself is unreadable rather than merely oversized or
// transiently busy (e.g. a concurrent writer). Matched case-insensitively
// against the error's message.
var corruptionMarkers = []string{
	"invalid image",
	"unexpected eof",
	"corrupt",
	"truncated",
	"invalid jpeg",
	"invalid png",
	"moov atom not found",
	"invalid data found when processing input",
}

func looksLikeCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range corruptionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// recordFailure updates thumb_status after a failed generation attempt and
// decides whether to schedule a retry, mark the path permanently failed, or
// (once the corruption counter crosses the configured threshold) delete the
// unreadable source file outright. Corruption tracking is independent of
// the retry ladder — corruption to the same file would keep surfacing the
// same error through every retry, so counting transient retries toward the
// corruption threshold would mean a single bad write attempt (not
// corruption at all) could trigger source deletion.
func (s *Service) recordFailure(ctx context.Context, t task, genErr error) {
	attempts := 1
	if existing, err := s.store.GetThumbStatus(ctx, t.relPath); err == nil {
		attempts = existing.Attempts + 1
	}

	if looksLikeCorruption(genErr) {
		count, err := s.store.IncrementThumbCorruption(ctx, t.relPath)
		if err != nil {
			logging.Warn("thumbnail: failed to record corruption for %s: %v", t.relPath, err)
		} else if count >= s.cfg.MaxCorruption {
			s.deleteCorruptSource(ctx, t.relPath, count)
			return
		}
	}

	if attempts >= s.cfg.MaxRetries {
		s.markPermanentlyFailed(ctx, t.relPath, attempts, genErr)
		return
	}

	delay := backoffDelay(s.cfg.InitialBackoff, attempts)
	nextRetry := time.Now().Add(delay)
	if err := s.store.MarkThumbRetry(ctx, t.relPath, attempts, nextRetry, genErr.Error()); err != nil {
		logging.Warn("thumbnail: failed to record retry for %s: %v", t.relPath, err)
	}
	metrics.ThumbnailGenerationsTotal.WithLabelValues(kindOf(t), "retry").Inc()

	logging.Debug("thumbnail: scheduling retry %d/%d for %s in %s", attempts, s.cfg.MaxRetries, t.relPath, delay)
	time.AfterFunc(delay, func() {
		s.disp.pushLow(t)
	})
}

// backoffDelay implements delay = initial * 2^(attempt-1).
func backoffDelay(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 20 {
		shift = 20 // guard against an absurd multiplier overflowing time.Duration
	}
	return initial << uint(shift)
}

func (s *Service) markPermanentlyFailed(ctx context.Context, relPath string, attempts int, genErr error) {
	if err := s.store.MarkThumbFailedPermanently(ctx, relPath, attempts, genErr.Error()); err != nil {
		logging.Warn("thumbnail: failed to record permanent failure for %s: %v", relPath, err)
	}
	if err := s.cache.Set(ctx, permanentFailureKey(relPath), "1", s.cfg.PermanentTTL); err != nil {
		logging.Warn("thumbnail: failed to cache permanent-failure marker for %s: %v", relPath, err)
	}
	metrics.ThumbnailPermanentFailures.Inc()
	logging.Warn("thumbnail: giving up on %s after %d attempts: %v", relPath, attempts, genErr)
}

func (s *Service) deleteCorruptSource(ctx context.Context, relPath string, corruptionCount int) {
	abs := s.absPath(relPath)
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		logging.Error("thumbnail: corruption threshold reached for %s (%d) but delete failed: %v", relPath, corruptionCount, err)
	} else {
		logging.Warn("thumbnail: deleted %s after %d corruption failures", relPath, corruptionCount)
	}
	if err := s.store.MarkThumbFailedPermanently(ctx, relPath, corruptionCount, "source deleted: corruption threshold reached"); err != nil {
		logging.Warn("thumbnail: failed to record corruption deletion for %s: %v", relPath, err)
	}
	if err := s.cache.Set(ctx, permanentFailureKey(relPath), "1", s.cfg.PermanentTTL); err != nil {
		logging.Warn("thumbnail: failed to cache permanent-failure marker for %s: %v", relPath, err)
	}
	metrics.ThumbnailCorruptionDeletes.Inc()
}

func kindOf(t task) string {
	if t.isVideo {
		return "video"
	}
	return "image"
}
