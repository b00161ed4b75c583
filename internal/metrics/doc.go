// Package metrics provides Prometheus instrumentation for the gallery server.
//
// All metrics are prefixed with "gallery_" to avoid naming collisions with
// other applications. Categories: HTTP, per-database query/transaction
// metrics, indexer, watcher, thumbnail pipeline, cache, job queue, browse/
// search, event bus, and Go runtime/library-size gauges.
//
// Metrics are registered with the default Prometheus registry via promauto.
// Mount promhttp.Handler() on the metrics endpoint to expose them:
//
//	import "github.com/prometheus/client_golang/prometheus/promhttp"
//	mux.Handle("/metrics", promhttp.Handler())
//
// Record metrics from other packages by importing this package and using
// the exported variables:
//
//	import "gallery-core/internal/metrics"
//
//	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/browse", "200").Inc()
//	metrics.DBQueryDuration.WithLabelValues("main", "get_item").Observe(0.004)
//
// [Collector] periodically gathers library-wide counts from a
// [StatsProvider] and on-disk sizes, updating the corresponding gauges:
//
//	collector := metrics.NewCollector(statsProvider, dbPaths, time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
