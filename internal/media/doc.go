// Package media provides the low-level decode/classification primitives
// internal/thumbnail and internal/indexer build on: extension-based type
// detection, constrained JPEG/image decoding, libvips-backed resizing when
// available, and image dimension probing.
package media
