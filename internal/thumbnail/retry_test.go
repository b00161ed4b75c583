package thumbnail

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoublesPerAttempt(t *testing.T) {
	initial := 2 * time.Second
	require.Equal(t, 2*time.Second, backoffDelay(initial, 1))
	require.Equal(t, 4*time.Second, backoffDelay(initial, 2))
	require.Equal(t, 8*time.Second, backoffDelay(initial, 3))
	require.Equal(t, 16*time.Second, backoffDelay(initial, 4))
}

func TestBackoffDelayClampsAttemptFloor(t *testing.T) {
	require.Equal(t, 2*time.Second, backoffDelay(2*time.Second, 0))
	require.Equal(t, 2*time.Second, backoffDelay(2*time.Second, -5))
}

func TestLooksLikeCorruptionMatchesKnownMarkers(t *testing.T) {
	require.True(t, looksLikeCorruption(errors.New("invalid JPEG data: bad marker")))
	require.True(t, looksLikeCorruption(errors.New("unexpected EOF")))
	require.True(t, looksLikeCorruption(errors.New("moov atom not found")))
	require.False(t, looksLikeCorruption(errors.New("permission denied")))
	require.False(t, looksLikeCorruption(nil))
}

func TestPermanentFailureKeyIsStable(t *testing.T) {
	require.Equal(t, "thumb_failed_permanently:a/b.jpg", permanentFailureKey("a/b.jpg"))
}

func TestKindOfReportsVideoVsImage(t *testing.T) {
	require.Equal(t, "video", kindOf(task{isVideo: true}))
	require.Equal(t, "image", kindOf(task{isVideo: false}))
}
