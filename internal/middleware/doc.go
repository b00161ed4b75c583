// Package middleware provides HTTP middleware for the media viewer application.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Response compression (gzip)
//   - Prometheus request metrics
//   - Request id assignment and propagation
//   - Configurable filtering for static files and health checks
package middleware
