// Package watcher observes the media root for filesystem changes, debounces
// and consolidates the raw event stream, and hands the result to the
// indexer. It never writes to the store itself.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gallery-core/internal/filesystem"
	"gallery-core/internal/logging"
	"gallery-core/internal/metrics"
)

// ChangeKind is the consolidated intent for a path after debounce.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeUpdate ChangeKind = "update"
	ChangeUnlink ChangeKind = "remove"
)

// ConsolidatedChange is the per-path fold of a raw event stream into a
// single intent, handed to the indexer when the debounce timer fires.
type ConsolidatedChange struct {
	Path  string
	Kind  ChangeKind
	Hash  string
	IsDir bool
}

// rawOp is the kind of a single observed filesystem event, before folding.
type rawOp string

const (
	opAdd    rawOp = "add"
	opUnlink rawOp = "unlink"
	opWrite  rawOp = "write"
)

// foldState is the running consolidation result for one path across the
// events observed so far within the current debounce window.
type foldState struct {
	kind  ChangeKind
	hash  string
	isDir bool
}

// ignoredDirNames are vendor/system directories never descended into or
// watched, matched by exact base name.
var ignoredDirNames = map[string]struct{}{
	"@eaDir":                    {}, // Synology thumbnail cache
	"System Volume Information": {},
	".Trash-1000":               {},
	"node_modules":              {},
}

func isIgnoredName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ignored := ignoredDirNames[name]
	return ignored
}

// Config tunes the watcher's debounce and polling behavior.
type Config struct {
	// MinDebounce is the baseline trailing-debounce delay.
	MinDebounce time.Duration
	// MaxDebounce is the delay ceiling once the pending backlog is large.
	MaxDebounce time.Duration
	// BacklogForMaxDebounce is the pending-event count at which the delay
	// reaches MaxDebounce; it scales linearly between Min and Max below it.
	BacklogForMaxDebounce int
	// FullRebuildThreshold is the consolidated-change count above which a
	// full rebuild is triggered instead of an incremental apply.
	FullRebuildThreshold int
	// PollingFallback switches from fsnotify to periodic directory polling,
	// for network filesystems where inotify/kqueue events are unreliable.
	PollingFallback bool
	// PollInterval is the directory re-scan cadence in polling mode.
	PollInterval time.Duration
}

// DefaultConfig returns spec-default tuning.
func DefaultConfig() Config {
	return Config{
		MinDebounce:           5 * time.Second,
		MaxDebounce:           30 * time.Second,
		BacklogForMaxDebounce: 500,
		FullRebuildThreshold:  5000,
		PollingFallback:       false,
		PollInterval:          10 * time.Second,
	}
}

// Handler receives the watcher's output. ApplyChanges is called for a
// normal-sized consolidated batch; TriggerFullRebuild is called instead
// when the batch exceeds Config.FullRebuildThreshold.
type Handler interface {
	ApplyChanges(ctx context.Context, changes []ConsolidatedChange) error
	TriggerFullRebuild(ctx context.Context) error
}

// Watcher watches root recursively and feeds consolidated changes to a
// Handler.
type Watcher struct {
	root    string
	cfg     Config
	handler Handler

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]foldState // path -> fold-in-progress state; absent means canceled-out or not yet seen
	order   []string             // arrival order of paths first seen this window
	timer   *time.Timer

	stop chan struct{}
	done chan struct{}
}

// New constructs a Watcher. Start begins watching.
func New(root string, cfg Config, handler Handler) *Watcher {
	return &Watcher{
		root:    root,
		cfg:     cfg,
		handler: handler,
		pending: make(map[string]foldState),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins watching in the background. Returns immediately; errors
// during the watch loop are logged, not returned.
func (w *Watcher) Start(ctx context.Context) error {
	metrics.WatcherPollingFallbackActive.Set(boolToFloat(w.cfg.PollingFallback))

	if w.cfg.PollingFallback {
		go w.runPolling(ctx)
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	count := w.addDirectoriesRecursive(w.root)
	metrics.WatcherWatchedDirectories.Set(float64(count))

	go w.runNative(ctx)
	return nil
}

// Stop halts the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) addDirectoriesRecursive(root string) int {
	count := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && isIgnoredName(info.Name()) {
				return filepath.SkipDir
			}
			if addErr := w.fsw.Add(path); addErr != nil {
				logging.Warn("watcher: failed to watch %s: %v", path, addErr)
			} else {
				count++
			}
		}
		return nil
	})
	if err != nil {
		logging.Error("watcher: failed to walk %s: %v", root, err)
	}
	return count
}

func (w *Watcher) runNative(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			metrics.WatcherErrors.Inc()
			logging.Error("watcher error: %v", err)

		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	if pathHasIgnoredSegment(rel) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		metrics.WatcherEventsTotal.WithLabelValues("create").Inc()
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if isIgnoredName(info.Name()) {
				return
			}
			if addErr := w.fsw.Add(event.Name); addErr != nil {
				logging.Warn("watcher: failed to watch new directory %s: %v", event.Name, addErr)
			} else {
				metrics.WatcherWatchedDirectories.Inc()
			}
			// The directory is itself an album item and needs its own
			// add change, in addition to being watched going forward.
			w.enqueue(rel, opAdd, "", true)
			return
		}
		w.enqueue(rel, opAdd, "", false)

	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		metrics.WatcherEventsTotal.WithLabelValues("remove").Inc()
		w.enqueue(rel, opUnlink, "", false)

	case event.Op&fsnotify.Write != 0:
		metrics.WatcherEventsTotal.WithLabelValues("write").Inc()
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return
		}
		w.enqueue(rel, opWrite, "", false)
	}
}

func pathHasIgnoredSegment(rel string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if isIgnoredName(seg) {
			return true
		}
	}
	return false
}

// enqueue folds a raw event into the path's running consolidation state
// and (re)arms the adaptive debounce timer. Fold rules (computed per path
// in arrival order):
//   - add then unlink -> cancel (no entry)
//   - unlink then add -> update
//   - two adds with identical content hash -> keep one (add)
//   - any other sequence on the same path -> update
func (w *Watcher) enqueue(path string, op rawOp, hash string, isDir bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	firstSeen := false
	existing, had := w.pending[path]
	if !had {
		firstSeen = true
	}

	switch {
	case !had && op == opAdd:
		w.pending[path] = foldState{kind: ChangeAdd, hash: hash, isDir: isDir}
	case !had && op == opUnlink:
		w.pending[path] = foldState{kind: ChangeUnlink, isDir: isDir}
	case !had && op == opWrite:
		w.pending[path] = foldState{kind: ChangeUpdate, isDir: isDir}

	case existing.kind == ChangeAdd && op == opUnlink:
		// add then unlink: cancels out entirely.
		delete(w.pending, path)

	case existing.kind == ChangeUnlink && op == opAdd:
		w.pending[path] = foldState{kind: ChangeUpdate, hash: hash, isDir: isDir}

	case existing.kind == ChangeAdd && op == opAdd && hash != "" && hash == existing.hash:
		// identical content hash: keep the single add, no-op.

	default:
		w.pending[path] = foldState{kind: ChangeUpdate, hash: hash, isDir: isDir || existing.isDir}
	}

	if firstSeen {
		w.order = append(w.order, path)
	}
	metrics.WatcherDebounceQueueDepth.Set(float64(len(w.pending)))

	delay := w.adaptiveDelay(len(w.pending))
	metrics.WatcherDebounceDelaySeconds.Set(delay.Seconds())

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(delay, w.fire)
}

// adaptiveDelay scales linearly from MinDebounce to MaxDebounce as backlog
// grows toward BacklogForMaxDebounce.
func (w *Watcher) adaptiveDelay(backlog int) time.Duration {
	if backlog >= w.cfg.BacklogForMaxDebounce {
		return w.cfg.MaxDebounce
	}
	span := w.cfg.MaxDebounce - w.cfg.MinDebounce
	frac := float64(backlog) / float64(w.cfg.BacklogForMaxDebounce)
	return w.cfg.MinDebounce + time.Duration(frac*float64(span))
}

// fire consolidates the pending list and hands it to the handler.
func (w *Watcher) fire() {
	w.mu.Lock()
	order := w.order
	pending := w.pending
	w.order = nil
	w.pending = make(map[string]foldState)
	w.mu.Unlock()

	metrics.WatcherDebounceQueueDepth.Set(0)

	changes := make([]ConsolidatedChange, 0, len(order))
	for _, path := range order {
		state, ok := pending[path]
		if !ok {
			continue // canceled out by an add-then-unlink fold
		}
		changes = append(changes, ConsolidatedChange{Path: path, Kind: state.kind, Hash: state.hash, IsDir: state.isDir})
	}
	if len(changes) == 0 {
		return
	}

	for _, c := range changes {
		metrics.WatcherConsolidatedChanges.WithLabelValues(string(c.Kind)).Inc()
	}

	ctx := context.Background()
	if len(changes) > w.cfg.FullRebuildThreshold {
		metrics.WatcherFullRebuildTriggers.Inc()
		if err := w.handler.TriggerFullRebuild(ctx); err != nil {
			logging.Error("watcher: full rebuild trigger failed: %v", err)
		}
		return
	}

	if err := w.handler.ApplyChanges(ctx, changes); err != nil {
		logging.Error("watcher: apply changes failed: %v", err)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// runPolling periodically re-scans the tree with NFS-resilient retries and
// diffs against the previous snapshot, synthesizing add/remove/write
// events for the same debounce/consolidate pipeline native mode uses.
type polledEntry struct {
	mtime time.Time
	isDir bool
}

func (w *Watcher) runPolling(ctx context.Context) {
	defer close(w.done)

	retryCfg := filesystem.DefaultRetryConfig()
	prev := make(map[string]polledEntry)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			next := w.scanSnapshot(retryCfg)
			w.diffSnapshots(prev, next)
			prev = next
		}
	}
}

// scanSnapshot walks the tree collecting relative-path -> (mtime, isDir),
// using retrying stat/readdir so a transient NFS stale-handle doesn't wipe
// the whole snapshot. Directories are recorded too (as album items) in
// addition to being recursed into.
func (w *Watcher) scanSnapshot(retryCfg filesystem.RetryConfig) map[string]polledEntry {
	snapshot := make(map[string]polledEntry)
	var walk func(dir string)
	walk = func(dir string) {
		entries, err := filesystem.ReadDirWithRetry(dir, retryCfg)
		if err != nil {
			logging.Warn("watcher: polling readdir %s failed: %v", dir, err)
			return
		}
		for _, entry := range entries {
			if isIgnoredName(entry.Name()) {
				continue
			}
			abs := filepath.Join(dir, entry.Name())
			rel, relErr := filepath.Rel(w.root, abs)
			if relErr != nil {
				continue
			}
			if entry.IsDir() {
				if info, err := filesystem.StatWithRetry(abs, retryCfg); err == nil {
					snapshot[rel] = polledEntry{mtime: info.ModTime(), isDir: true}
				}
				walk(abs)
				continue
			}
			info, err := filesystem.StatWithRetry(abs, retryCfg)
			if err != nil {
				continue
			}
			snapshot[rel] = polledEntry{mtime: info.ModTime()}
		}
	}
	walk(w.root)
	return snapshot
}

func (w *Watcher) diffSnapshots(prev, next map[string]polledEntry) {
	for path, entry := range next {
		if prevEntry, existed := prev[path]; !existed {
			metrics.WatcherEventsTotal.WithLabelValues("create").Inc()
			w.enqueue(path, opAdd, "", entry.isDir)
		} else if !prevEntry.mtime.Equal(entry.mtime) && !entry.isDir {
			metrics.WatcherEventsTotal.WithLabelValues("write").Inc()
			w.enqueue(path, opWrite, "", false)
		}
	}
	for path, entry := range prev {
		if _, stillThere := next[path]; !stillThere {
			metrics.WatcherEventsTotal.WithLabelValues("remove").Inc()
			w.enqueue(path, opUnlink, "", entry.isDir)
		}
	}
}
