package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	mu       sync.Mutex
	applied  []ConsolidatedChange
	rebuilds int
	applyCh  chan struct{}
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{applyCh: make(chan struct{}, 16)}
}

func (h *fakeHandler) ApplyChanges(ctx context.Context, changes []ConsolidatedChange) error {
	h.mu.Lock()
	h.applied = append(h.applied, changes...)
	h.mu.Unlock()
	h.applyCh <- struct{}{}
	return nil
}

func (h *fakeHandler) TriggerFullRebuild(ctx context.Context) error {
	h.mu.Lock()
	h.rebuilds++
	h.mu.Unlock()
	h.applyCh <- struct{}{}
	return nil
}

func (h *fakeHandler) waitApply(t *testing.T) {
	t.Helper()
	select {
	case <-h.applyCh:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
}

func newTestWatcher(handler Handler) *Watcher {
	cfg := DefaultConfig()
	cfg.MinDebounce = 10 * time.Millisecond
	cfg.MaxDebounce = 20 * time.Millisecond
	return New("/tmp/root", cfg, handler)
}

func TestAddThenUnlinkCancelsOut(t *testing.T) {
	h := newFakeHandler()
	w := newTestWatcher(h)

	w.enqueue("a.jpg", opAdd, "hash1", false)
	w.enqueue("a.jpg", opUnlink, "", false)
	select {
	case <-h.applyCh:
		t.Fatal("add-then-unlink left nothing to deliver, but the handler was invoked")
	case <-time.After(200 * time.Millisecond):
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Empty(t, h.applied, "add-then-unlink should cancel out and produce no entry")
}

func TestUnlinkThenAddBecomesUpdate(t *testing.T) {
	h := newFakeHandler()
	w := newTestWatcher(h)

	w.enqueue("b.jpg", opUnlink, "", false)
	w.enqueue("b.jpg", opAdd, "hash2", false)
	h.waitApply(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.applied, 1)
	require.Equal(t, "b.jpg", h.applied[0].Path)
	require.Equal(t, ChangeUpdate, h.applied[0].Kind)
}

func TestTwoAddsWithIdenticalHashKeepOne(t *testing.T) {
	h := newFakeHandler()
	w := newTestWatcher(h)

	w.enqueue("c.jpg", opAdd, "samehash", false)
	w.enqueue("c.jpg", opAdd, "samehash", false)
	h.waitApply(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.applied, 1)
	require.Equal(t, ChangeAdd, h.applied[0].Kind)
	require.Equal(t, "samehash", h.applied[0].Hash)
}

func TestTwoAddsWithDifferentHashBecomesUpdate(t *testing.T) {
	h := newFakeHandler()
	w := newTestWatcher(h)

	w.enqueue("d.jpg", opAdd, "hash1", false)
	w.enqueue("d.jpg", opAdd, "hash2", false)
	h.waitApply(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.applied, 1)
	require.Equal(t, ChangeUpdate, h.applied[0].Kind)
}

func TestWriteAloneBecomesUpdate(t *testing.T) {
	h := newFakeHandler()
	w := newTestWatcher(h)

	w.enqueue("e.jpg", opWrite, "", false)
	h.waitApply(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.applied, 1)
	require.Equal(t, ChangeUpdate, h.applied[0].Kind)
}

func TestAddAloneStaysAdd(t *testing.T) {
	h := newFakeHandler()
	w := newTestWatcher(h)

	w.enqueue("f.jpg", opAdd, "hash1", false)
	h.waitApply(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.applied, 1)
	require.Equal(t, ChangeAdd, h.applied[0].Kind)
}

func TestUnlinkAloneStaysRemove(t *testing.T) {
	h := newFakeHandler()
	w := newTestWatcher(h)

	w.enqueue("g.jpg", opUnlink, "", false)
	h.waitApply(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.applied, 1)
	require.Equal(t, ChangeUnlink, h.applied[0].Kind)
}

func TestAdaptiveDelayScalesBetweenMinAndMax(t *testing.T) {
	w := newTestWatcher(newFakeHandler())
	w.cfg.MinDebounce = 5 * time.Second
	w.cfg.MaxDebounce = 30 * time.Second
	w.cfg.BacklogForMaxDebounce = 500

	require.Equal(t, 5*time.Second, w.adaptiveDelay(0))
	require.Equal(t, 30*time.Second, w.adaptiveDelay(500))
	require.Equal(t, 30*time.Second, w.adaptiveDelay(9000))

	mid := w.adaptiveDelay(250)
	require.Greater(t, mid, 5*time.Second)
	require.Less(t, mid, 30*time.Second)
}

func TestFullRebuildThresholdEscalates(t *testing.T) {
	h := newFakeHandler()
	w := newTestWatcher(h)
	w.cfg.FullRebuildThreshold = 2

	w.enqueue("x1.jpg", opAdd, "h1", false)
	w.enqueue("x2.jpg", opAdd, "h2", false)
	w.enqueue("x3.jpg", opAdd, "h3", false)
	h.waitApply(t)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Equal(t, 1, h.rebuilds)
	require.Empty(t, h.applied, "a full rebuild should not also deliver an incremental apply")
}

func TestIsIgnoredName(t *testing.T) {
	require.True(t, isIgnoredName(".hidden"))
	require.True(t, isIgnoredName("@eaDir"))
	require.True(t, isIgnoredName("node_modules"))
	require.True(t, isIgnoredName("System Volume Information"))
	require.False(t, isIgnoredName("Vacation Photos"))
}

func TestPathHasIgnoredSegment(t *testing.T) {
	require.True(t, pathHasIgnoredSegment("album/@eaDir/thumb.jpg"))
	require.True(t, pathHasIgnoredSegment(".git/config"))
	require.False(t, pathHasIgnoredSegment("album/photo.jpg"))
}
