// Command gallery-server runs the gallery HTTP API: directory browsing,
// thumbnail generation, free-text search, and live thumbnail events over
// SSE, backed by a SQLite store, a Redis cache, and a
// filesystem watcher that keeps the index current.
//
// Configuration is provided via environment variables:
//   - PHOTOS_DIR: path to the media tree to serve (default: /media)
//   - DATA_DIR: path for the SQLite stores and thumbnail mirror (default: /data)
//   - PORT: HTTP server port (default: 8080)
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB: cache/queue backend
//   - ADMIN_SECRET: required header value for cache/admin endpoints
//   - PUBLIC_ACCESS: set true to disable admin gating entirely
//   - LOG_LEVEL: logging verbosity (default: info)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"gallery-core/internal/browse"
	"gallery-core/internal/cache"
	"gallery-core/internal/eventbus"
	"gallery-core/internal/handlers"
	"gallery-core/internal/indexer"
	"gallery-core/internal/jobs"
	"gallery-core/internal/logging"
	"gallery-core/internal/middleware"
	"gallery-core/internal/search"
	"gallery-core/internal/startup"
	"gallery-core/internal/storage"
	"gallery-core/internal/thumbnail"
	"gallery-core/internal/watcher"
)

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	ctx := context.Background()

	dbStart := time.Now()
	dirs := storage.Dirs{
		Main:     config.DataDir,
		Settings: config.DataDir,
		History:  config.DataDir,
		Index:    config.DataDir,
	}
	store, err := storage.Open(ctx, dirs, storage.Config{
		BusyTimeout:  config.DBBusyTimeout,
		QueryTimeout: config.DBQueryTimeout,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize storage: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	c := cache.New(cache.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
		Ceiling:  config.CacheInvalidateCeiling,
	})
	if err := c.Ping(ctx); err != nil {
		logging.Warn("cache: initial ping failed, starting in degraded mode: %v", err)
	}

	bus := eventbus.New(0)

	idx := indexer.New(store, c, bus, config.PhotosDir)

	thumbSvc := thumbnail.New(store, c, bus, thumbnail.Config{
		ThumbsDir: config.ThumbnailDir,
		MediaDir:  config.PhotosDir,
		Workers:   config.ThumbnailWorkers,
	})
	idx.SetMirrorDeleter(thumbSvc)

	startup.LogIndexerInit()
	if err := idx.FullRebuild(ctx); err != nil {
		logging.Error("initial full rebuild failed: %v", err)
	}
	startup.LogIndexerStarted()

	startup.LogThumbnailWorkerInit(config.ThumbnailsEnabled, config.ThumbnailWorkers)
	thumbSvc.Start(ctx)

	watcherCfg := watcher.DefaultConfig()
	watcherCfg.PollingFallback = config.WatcherPollingMode
	if config.WatcherPollInterval > 0 {
		watcherCfg.PollInterval = config.WatcherPollInterval
	}
	fsWatcher := watcher.New(config.PhotosDir, watcherCfg, idx)
	watcherCtx, cancelWatcher := context.WithCancel(ctx)
	go func() {
		if err := fsWatcher.Start(watcherCtx); err != nil {
			logging.Error("watcher stopped: %v", err)
		}
	}()

	browseSvc := browse.New(store, c)
	searchSvc := search.New(store, browseSvc)

	queue := jobs.New(config.RedisAddr, config.RedisPassword, config.RedisDB)
	jobServer := jobs.NewServer(config.RedisAddr, config.RedisPassword, config.RedisDB, store)
	go func() {
		if err := jobServer.Start(); err != nil {
			logging.Error("job server stopped: %v", err)
		}
	}()

	h := handlers.New(
		store, c, bus, idx, fsWatcher, browseSvc, searchSvc, thumbSvc, queue,
		config.PhotosDir, config.ThumbnailDir, config.AdminSecret, config.PublicAccess,
	)

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)

	compressionConfig := middleware.DefaultCompressionConfig()
	compressedHandler := middleware.Compression(compressionConfig)(loggedHandler)

	metricsHandler := middleware.Metrics(middleware.DefaultMetricsConfig())(compressedHandler)

	handler := middleware.RequestID(metricsHandler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	shutdownComplete := make(chan struct{})
	go handleShutdown(srv, store, c, thumbSvc, queue, jobServer, cancelWatcher, shutdownComplete)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}

	<-shutdownComplete
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/browse/viewed", h.MarkViewed).Methods("POST")
	api.HandleFunc("/browse", h.ListDirectory).Methods("GET")
	api.HandleFunc("/browse/{path:.*}", h.ListDirectory).Methods("GET")
	api.HandleFunc("/thumbnail", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/search", h.Search).Methods("GET")
	api.HandleFunc("/albums/covers/cursor", h.ListAlbumCoversCursor).Methods("GET")
	api.HandleFunc("/albums/covers", h.ListAlbumCovers).Methods("GET")
	api.HandleFunc("/events", h.Events).Methods("GET")
	api.HandleFunc("/indexing", h.IndexingStatus).Methods("GET")
	api.HandleFunc("/cache/stats", h.CacheStats).Methods("GET")
	api.HandleFunc("/cache/clear", h.ClearCache).Methods("POST")
	api.HandleFunc("/cache/clear/{pattern}", h.ClearCache).Methods("POST")
	api.HandleFunc("/metrics/cache", h.MetricsCache).Methods("GET")
	api.HandleFunc("/metrics/queue", h.MetricsQueue).Methods("GET")

	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", h.StaticMedia()))
	r.PathPrefix("/thumbs/").Handler(http.StripPrefix("/thumbs/", h.StaticThumbs()))

	return r
}

func handleShutdown(
	srv *http.Server,
	store *storage.Store,
	c *cache.Cache,
	thumbSvc *thumbnail.Service,
	queue *jobs.Queue,
	jobServer *jobs.Server,
	cancelWatcher context.CancelFunc,
	done chan struct{},
) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping filesystem watcher")
	cancelWatcher()
	startup.LogShutdownStepComplete("Watcher stopped")

	startup.LogShutdownStep("Stopping thumbnail workers")
	thumbSvc.Stop()
	startup.LogShutdownStepComplete("Thumbnail workers stopped")

	startup.LogShutdownStep("Stopping job server")
	jobServer.Shutdown()
	if err := queue.Close(); err != nil {
		logging.Warn("job queue close error: %v", err)
	}
	startup.LogShutdownStepComplete("Job server stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Closing cache connection")
	if err := c.Close(); err != nil {
		logging.Warn("Cache close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Cache connection closed")
	}

	startup.LogShutdownStep("Closing storage")
	if err := store.Close(); err != nil {
		logging.Warn("Storage close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Storage closed")
	}

	startup.LogShutdownComplete()
}
