package thumbnail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcherDrainsHighBeforeLow(t *testing.T) {
	d := newDispatcher(2)
	d.pushLow(task{relPath: "low1.jpg"})
	d.pushHigh(task{relPath: "high1.jpg"})

	got, ok := d.next()
	require.True(t, ok)
	require.Equal(t, "high1.jpg", got.relPath)
}

func TestDispatcherHighIsHeadInserted(t *testing.T) {
	d := newDispatcher(1)
	d.pushHigh(task{relPath: "first.jpg"})
	d.pushHigh(task{relPath: "second.jpg"})

	got, ok := d.next()
	require.True(t, ok)
	require.Equal(t, "second.jpg", got.relPath)
}

func TestDispatcherDedupsQueuedPath(t *testing.T) {
	d := newDispatcher(1)
	d.pushHigh(task{relPath: "dup.jpg"})
	d.pushHigh(task{relPath: "dup.jpg"})

	require.Len(t, d.high, 1)
}

func TestDispatcherDedupsActivePath(t *testing.T) {
	d := newDispatcher(2)
	t1, ok := func() (task, bool) {
		d.pushHigh(task{relPath: "active.jpg"})
		return d.next()
	}()
	require.True(t, ok)
	require.Equal(t, "active.jpg", t1.relPath)

	d.pushHigh(task{relPath: "active.jpg"})
	require.True(t, d.isQueuedOrActive("active.jpg"))
}

func TestDispatcherReservesLastIdleWorkerForHighPriority(t *testing.T) {
	// Single-worker pool: with only low-priority work queued, next() must
	// not hand it out, since doing so would leave nothing free for a
	// sudden high-priority request.
	d := newDispatcher(1)
	d.pushLow(task{relPath: "background.jpg"})

	got := make(chan task, 1)
	go func() {
		t, ok := d.next()
		if ok {
			got <- t
		}
	}()

	select {
	case <-got:
		t.Fatal("dispatcher handed out low-priority work while it was the only idle worker")
	case <-time.After(100 * time.Millisecond):
	}

	d.close()
	select {
	case res := <-got:
		require.Equal(t, "background.jpg", res.relPath)
	case <-time.After(time.Second):
		t.Fatal("dispatcher never unblocked after close")
	}
}

func TestDispatcherReleasesSlotOnDone(t *testing.T) {
	d := newDispatcher(1)
	d.pushHigh(task{relPath: "one.jpg"})
	got, ok := d.next()
	require.True(t, ok)
	require.Equal(t, "one.jpg", got.relPath)

	d.done(got.relPath)
	require.False(t, d.isQueuedOrActive("one.jpg"))
}

func TestIsMediaExt(t *testing.T) {
	require.True(t, isMediaExt(".jpg"))
	require.True(t, isMediaExt(".mp4"))
	require.False(t, isMediaExt(".txt"))
}
