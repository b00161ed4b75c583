package thumbnail

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gallery-core/internal/cache"
	"gallery-core/internal/eventbus"
	"gallery-core/internal/logging"
	"gallery-core/internal/media"
	"gallery-core/internal/metrics"
	"gallery-core/internal/storage"
)

// Service schedules and runs thumbnail generation: a dispatcher feeding a
// fixed worker pool, a background idle-fill pass, and a reconciler that
// keeps thumb_status honest against the mirrored tree on disk. It
// implements indexer.MirrorDeleter so the indexer can ask it to clean up a
// mirror on unlink without importing this package's full surface.
type Service struct {
	store *storage.Store
	cache *cache.Cache
	bus   *eventbus.Bus
	cfg   Config

	disp *dispatcher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the service but doesn't start any goroutines — call Start
// once the rest of startup (storage, cache, indexer) is wired.
func New(store *storage.Store, c *cache.Cache, bus *eventbus.Bus, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		store: store,
		cache: c,
		bus:   bus,
		cfg:   cfg,
		disp:  newDispatcher(cfg.Workers),
	}
}

// Start launches the worker pool, the idle fill-in loop, and the
// reconciler, and runs the startup self-heal check once before any of
// them begin consuming the queues.
func (s *Service) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.selfHeal(runCtx)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(runCtx)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runIdleFill(runCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runReconciler(runCtx)
	}()

	logging.Info("thumbnail: started with %d workers", s.cfg.Workers)
}

// Stop cancels all background work and closes the dispatcher so blocked
// workers return, then waits for everything to exit.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.disp.close()
	s.wg.Wait()
}

func (s *Service) workerLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		t, ok := s.disp.next()
		if !ok {
			return
		}
		s.process(ctx, t)
		s.disp.done(t.relPath)
	}
}

func (s *Service) process(ctx context.Context, t task) {
	start := time.Now()
	kind := kindOf(t)

	abs := s.absPath(t.relPath)
	dest := s.mirrorPath(t.relPath)

	var err error
	if t.isVideo {
		err = generateVideo(ctx, abs, dest)
	} else {
		err = generateImage(abs, dest)
	}

	metrics.ThumbnailGenerationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(kind, "failure").Inc()
		s.recordFailure(ctx, t, err)
		return
	}

	metrics.ThumbnailGenerationsTotal.WithLabelValues(kind, "success").Inc()
	if merr := s.store.MarkThumbExists(ctx, t.relPath, t.mtime); merr != nil {
		logging.Warn("thumbnail: failed to record success for %s: %v", t.relPath, merr)
	}
	s.publish("thumbnail-generated", map[string]any{"path": t.relPath})
}

func (s *Service) publish(topic string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Topic: topic, Data: data})
}

// EnsureThumbnailExists is the HTTP-facing entry point: if the mirrored
// file is already on disk it returns the URL directly; if the path was
// given up on permanently it reports that; otherwise it enqueues a
// high-priority task (unless one is already in flight or queued) and tells
// the caller to keep polling.
func (s *Service) EnsureThumbnailExists(ctx context.Context, absPath, relPath string) Result {
	dest := s.mirrorPath(relPath)
	if info, err := os.Stat(dest); err == nil && !info.IsDir() {
		return Result{Status: StatusExists, URL: s.thumbURL(relPath)}
	}

	if failed, _ := s.isPermanentlyFailed(ctx, relPath); failed {
		return Result{Status: StatusFailed}
	}

	if !s.disp.isQueuedOrActive(relPath) {
		ext := strings.ToLower(filepath.Ext(relPath))
		mtime := time.Now()
		if info, err := os.Stat(absPath); err == nil {
			mtime = info.ModTime()
		}
		s.disp.pushHigh(task{
			relPath: relPath,
			mtime:   mtime,
			isVideo: media.VideoExtensions[ext],
		})
	}
	return Result{Status: StatusProcessing}
}

// DeleteMirror removes relPath's mirrored thumbnail file, satisfying
// indexer.MirrorDeleter. Tries both known output extensions since the
// caller (the indexer, on unlink) no longer has the original item's type
// once it's been deleted from the index.
func (s *Service) DeleteMirror(relPath string) error {
	base := s.mirrorBase(relPath)
	var lastErr error
	removed := false
	for _, ext := range []string{".webp", ".jpg"} {
		err := os.Remove(base + ext)
		switch {
		case err == nil:
			removed = true
		case os.IsNotExist(err):
			// fine, try the other extension
		default:
			lastErr = err
		}
	}
	if removed {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return os.ErrNotExist
}

func (s *Service) absPath(relPath string) string {
	return filepath.Join(s.cfg.MediaDir, filepath.FromSlash(relPath))
}

// mirrorBase is the mirrored path with the source extension stripped but
// the output extension not yet appended, since images and videos land on
// different output extensions under the same relative tree.
func (s *Service) mirrorBase(relPath string) string {
	trimmed := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return filepath.Join(s.cfg.ThumbsDir, filepath.FromSlash(trimmed))
}

func (s *Service) mirrorPath(relPath string) string {
	ext := strings.ToLower(filepath.Ext(relPath))
	outExt := ".webp"
	if media.VideoExtensions[ext] {
		outExt = ".jpg"
	}
	return s.mirrorBase(relPath) + outExt
}

func (s *Service) thumbURL(relPath string) string {
	return "/api/thumbnail?path=" + url.QueryEscape(relPath) + "&v=" + strconv.FormatInt(time.Now().Unix(), 10)
}
