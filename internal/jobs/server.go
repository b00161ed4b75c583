package jobs

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hibiken/asynq"

	"gallery-core/internal/logging"
	"gallery-core/internal/metrics"
	"gallery-core/internal/storage"
)

// retryDelay matches the thumbnail engine's own backoff ladder: initial
// delay doubling per attempt, with the exponent clamped to avoid Duration
// overflow on a pathological retry count.
func retryDelay(attempt int) time.Duration {
	shift := attempt
	if shift > 20 {
		shift = 20
	}
	if shift < 0 {
		shift = 0
	}
	return initialBackoff * time.Duration(math.Pow(2, float64(shift)))
}

// Server runs the worker side of the job queue: one asynq server consuming
// the shared queue, dispatching by task type via asynq's mux.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewServer constructs a worker server. store is used by the settings-update
// processor to apply the write durably.
func NewServer(addr, password string, db int, store *storage.Store) *Server {
	connOpt := asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}

	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{queueName: 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return retryDelay(n)
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCaptionGenerate, handleCaption)
	mux.HandleFunc(TypeSettingsUpdate, newSettingsHandler(store))

	return &Server{srv: srv, mux: mux}
}

// Start runs the worker loop in the background. Errors surface through the
// asynq server's own logger; this never blocks the caller.
func (s *Server) Start() error {
	return s.srv.Start(s.mux)
}

// Shutdown stops accepting new tasks and waits for in-flight ones to finish.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

// handleCaption is the plumbing-only caption task handler: it has nowhere
// to send the image for captioning (that business logic is out of scope),
// so it records the task as processed without producing a caption. A real
// captioning backend would replace this function's body, not its wiring.
func handleCaption(ctx context.Context, t *asynq.Task) error {
	var p CaptionPayload
	if err := decodePayload(t.Payload(), &p); err != nil {
		metrics.JobsProcessedTotal.WithLabelValues("caption", "error").Inc()
		return fmt.Errorf("jobs: decode caption payload: %w", err)
	}
	logging.Info("jobs: caption job for %q received (no captioning backend configured)", p.ImagePath)
	metrics.JobsProcessedTotal.WithLabelValues("caption", "success").Inc()
	return nil
}

func newSettingsHandler(store *storage.Store) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p SettingsPayload
		if err := decodePayload(t.Payload(), &p); err != nil {
			metrics.JobsProcessedTotal.WithLabelValues("settings", "error").Inc()
			return fmt.Errorf("jobs: decode settings payload: %w", err)
		}
		if err := store.SetSetting(ctx, p.Key, p.Value); err != nil {
			metrics.JobsProcessedTotal.WithLabelValues("settings", "error").Inc()
			return fmt.Errorf("jobs: apply settings update %q: %w", p.Key, err)
		}
		metrics.JobsProcessedTotal.WithLabelValues("settings", "success").Inc()
		return nil
	}
}
