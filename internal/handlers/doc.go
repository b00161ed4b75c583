// Package handlers provides HTTP request handlers for the gallery API.
//
// It includes handlers for:
//   - Directory browsing and view-time tracking
//   - Thumbnail serving with conditional-request support
//   - Free-text search and album covers
//   - Live thumbnail events over SSE
//   - Cache/queue admin endpoints and health checks
package handlers
