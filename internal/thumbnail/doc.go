// Package thumbnail schedules and generates mirrored thumbnail images for
// photos and videos: a two-priority queue feeding a fixed worker pool,
// per-path retry with exponential backoff and permanent-failure marking,
// a background idle fill-in pass, and a reconciler that keeps thumb_status
// honest against what's actually on disk. The pixel-level codec work
// (decode, resize, ffmpeg frame extraction) lives in internal/media;
// this package owns only scheduling, retry policy, and storage bookkeeping.
package thumbnail
