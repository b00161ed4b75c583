package thumbnail

import (
	"sync"

	"gallery-core/internal/media"
	"gallery-core/internal/metrics"
	"gallery-core/internal/workers"
)

// defaultWorkers mirrors the spec's fixed pool size: floor(CPU/2), at
// least 1. workers.Count already floors at 1 and honors THUMBNAIL_WORKERS,
// so this is a direct call rather than one of the package's named
// convenience wrappers (ForCPU/ForIO/ForMixed) — none of those multipliers
// is 0.5, and this pool's mixed CPU-bound resize / I/O-bound ffmpeg work
// doesn't match any of their use cases cleanly enough to reuse one.
func defaultWorkers() int {
	return workers.Count(0.5, 0)
}

// dispatcher holds the two priority queues and hands work to idle workers.
// High priority always drains first; when only low-priority work remains,
// the last idle worker is held back so a sudden high-priority request is
// never queued behind background fill-in work.
type dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	high    []task
	low     []task
	active  map[string]struct{}
	workers int
	busy    int
	closed  bool
}

func newDispatcher(workerCount int) *dispatcher {
	d := &dispatcher{
		active:  make(map[string]struct{}),
		workers: workerCount,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// pushHigh head-inserts a user-visible request, skipping anything already
// in flight or already queued for the same path.
func (d *dispatcher) pushHigh(t task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.hasLocked(t.relPath) {
		return
	}
	d.high = append([]task{t}, d.high...)
	metrics.ThumbnailQueueDepth.WithLabelValues("high").Set(float64(len(d.high)))
	d.cond.Signal()
}

// pushLow appends a background fill-in task, same dedup rule as pushHigh.
func (d *dispatcher) pushLow(t task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.hasLocked(t.relPath) {
		return
	}
	d.low = append(d.low, t)
	metrics.ThumbnailQueueDepth.WithLabelValues("low").Set(float64(len(d.low)))
	d.cond.Signal()
}

func (d *dispatcher) hasLocked(relPath string) bool {
	if _, ok := d.active[relPath]; ok {
		return true
	}
	for _, t := range d.high {
		if t.relPath == relPath {
			return true
		}
	}
	for _, t := range d.low {
		if t.relPath == relPath {
			return true
		}
	}
	return false
}

// isQueuedOrActive reports whether relPath has a task queued or in flight,
// used by EnsureThumbnailExists to decide between "processing" and a fresh
// enqueue.
func (d *dispatcher) isQueuedOrActive(relPath string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasLocked(relPath)
}

// next blocks until a task is available for this worker, honoring the
// reserve-last-idle-worker rule: if this would be the only idle worker and
// nothing but low-priority work is waiting, it waits rather than taking it.
func (d *dispatcher) next() (task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if d.closed && len(d.high) == 0 && len(d.low) == 0 {
			return task{}, false
		}
		if len(d.high) > 0 {
			t := d.high[0]
			d.high = d.high[1:]
			metrics.ThumbnailQueueDepth.WithLabelValues("high").Set(float64(len(d.high)))
			d.startLocked(t)
			return t, true
		}
		if len(d.low) > 0 {
			idleAfterThis := d.workers - d.busy - 1
			if idleAfterThis > 0 || d.closed {
				t := d.low[0]
				d.low = d.low[1:]
				metrics.ThumbnailQueueDepth.WithLabelValues("low").Set(float64(len(d.low)))
				d.startLocked(t)
				return t, true
			}
		}
		d.cond.Wait()
	}
}

func (d *dispatcher) startLocked(t task) {
	d.active[t.relPath] = struct{}{}
	d.busy++
	metrics.ThumbnailWorkersBusy.Set(float64(d.busy))
}

// done releases relPath back to the dedup set and wakes any worker blocked
// on the reserve rule, since busy count just dropped.
func (d *dispatcher) done(relPath string) {
	d.mu.Lock()
	delete(d.active, relPath)
	d.busy--
	metrics.ThumbnailWorkersBusy.Set(float64(d.busy))
	d.mu.Unlock()
	d.cond.Broadcast()
}

// close unblocks every worker waiting in next() so Stop can join them.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
}

// isMediaExt is the defense-in-depth guard against a non-media path ever
// reaching a worker; reuses the extension tables internal/media already
// maintains rather than keeping a third copy alongside indexer/walk.go's.
func isMediaExt(ext string) bool {
	return media.ImageExtensions[ext] || media.VideoExtensions[ext]
}
