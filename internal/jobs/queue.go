package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"gallery-core/internal/logging"
	"gallery-core/internal/metrics"
)

// Queue submits jobs and answers status lookups. It owns an asynq client
// and inspector backed by the same Redis instance the cache layer uses.
type Queue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// New connects a Queue to the given Redis address.
func New(addr, password string, db int) *Queue {
	connOpt := asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}
	return &Queue{
		client:    asynq.NewClient(connOpt),
		inspector: asynq.NewInspector(connOpt),
	}
}

// Close releases the client and inspector's Redis connections.
func (q *Queue) Close() error {
	err1 := q.client.Close()
	err2 := q.inspector.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// EnqueueCaption submits an AI-captioning job for imagePath, unless one is
// already active, waiting, or scheduled for the same path — in which case
// it returns that job's id instead of creating a duplicate.
func (q *Queue) EnqueueCaption(ctx context.Context, imagePath string) (id string, deduped bool, err error) {
	if existing, ok, err := q.findCaptionJob(imagePath); err != nil {
		logging.Warn("jobs: inspector scan for caption dedup failed: %v", err)
	} else if ok {
		metrics.JobsDedupedTotal.WithLabelValues("caption").Inc()
		return existing, true, nil
	}

	payload := marshalPayload(CaptionPayload{ImagePath: imagePath})
	task := asynq.NewTask(TypeCaptionGenerate, payload,
		asynq.MaxRetry(defaultMaxRetry),
		asynq.Timeout(defaultTimeout),
		asynq.Retention(defaultRetention),
		asynq.Queue(queueName),
		asynq.TaskID(uuid.NewString()),
	)
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", false, fmt.Errorf("jobs: enqueue caption job: %w", err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues("caption").Inc()
	return info.ID, false, nil
}

// findCaptionJob scans active, pending, and scheduled tasks on the shared
// queue for one whose payload names imagePath, the dedup rule that keeps a
// burst of thumbnail-triggered caption requests for the same image from
// piling up duplicate work.
func (q *Queue) findCaptionJob(imagePath string) (id string, found bool, err error) {
	lists := [][]*asynq.TaskInfo{}
	for _, lister := range []func(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error){
		q.inspector.ListActiveTasks,
		q.inspector.ListPendingTasks,
		q.inspector.ListScheduledTasks,
	} {
		tasks, lerr := lister(queueName)
		if lerr != nil {
			err = lerr
			continue
		}
		lists = append(lists, tasks)
	}

	for _, tasks := range lists {
		for _, t := range tasks {
			if t.Type != TypeCaptionGenerate {
				continue
			}
			var p CaptionPayload
			if decodeErr := decodePayload(t.Payload, &p); decodeErr != nil {
				continue
			}
			if p.ImagePath == imagePath {
				return t.ID, true, nil
			}
		}
	}
	return "", false, err
}

// EnqueueSettingsUpdate submits a durable write to the settings store.
// Unlike captions, concurrent settings writes to the same key are not
// deduplicated — the most recently applied one simply wins, matching the
// settings store's own upsert semantics.
func (q *Queue) EnqueueSettingsUpdate(ctx context.Context, key, value string) (string, error) {
	payload := marshalPayload(SettingsPayload{Key: key, Value: value})
	task := asynq.NewTask(TypeSettingsUpdate, payload,
		asynq.MaxRetry(defaultMaxRetry),
		asynq.Timeout(settingsTimeout),
		asynq.Retention(defaultRetention),
		asynq.Queue(queueName),
		asynq.TaskID(uuid.NewString()),
	)
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("jobs: enqueue settings update: %w", err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues("settings").Inc()
	return info.ID, nil
}

// Status is the public shape of a job's current state, read by id.
type Status struct {
	ID        string
	Type      string
	State     string
	Retried   int
	MaxRetry  int
	LastErr   string
	CreatedAt string
}

// GetStatus looks up a job by id on the shared queue.
func (q *Queue) GetStatus(id string) (*Status, error) {
	info, err := q.inspector.GetTaskInfo(queueName, id)
	if err != nil {
		return nil, err
	}
	return &Status{
		ID:       info.ID,
		Type:     info.Type,
		State:    info.State.String(),
		Retried:  info.Retried,
		MaxRetry: info.MaxRetry,
		LastErr:  info.LastErr,
	}, nil
}

// QueueDepth reports the pending, active, scheduled and retry task counts
// of the shared queue summed, for the /api/metrics/queue endpoint.
func (q *Queue) QueueDepth() (int, error) {
	info, err := q.inspector.GetQueueInfo(queueName)
	if err != nil {
		return 0, err
	}
	return info.Pending + info.Active + info.Scheduled + info.Retry, nil
}
