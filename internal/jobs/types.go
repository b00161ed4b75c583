// Package jobs provides the durable asynq-backed queues for work that must
// survive a process restart: AI caption generation and settings updates.
// Submission is fire-and-forget; status is readable by job id afterward.
// The captioning business logic itself is out of scope here (see the repo's
// design notes) — this package only carries the queue plumbing a caption
// worker would plug into.
package jobs

import (
	"encoding/json"
	"time"
)

const (
	// TypeCaptionGenerate requests an AI caption for one image.
	TypeCaptionGenerate = "caption:generate"
	// TypeSettingsUpdate applies a single settings-store write.
	TypeSettingsUpdate = "settings:update"
)

// queueName is the single asynq queue both job types share; status lookups
// only need to know one queue name rather than track per-job bookkeeping.
const queueName = "default"

// defaultMaxRetry and initialBackoff match the exponential retry ladder:
// 3 attempts, first retry after 5s, doubling thereafter.
const (
	defaultMaxRetry  = 3
	initialBackoff   = 5 * time.Second
	defaultTimeout   = 2 * time.Minute
	settingsTimeout  = time.Minute
	defaultRetention = 24 * time.Hour
)

// CaptionPayload identifies the image an AI-captioning worker should caption.
type CaptionPayload struct {
	ImagePath string `json:"imagePath"`
}

// SettingsPayload is a single settings-store key/value write.
type SettingsPayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func marshalPayload(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only hand-built structs of string fields reach here; a marshal
		// failure would mean a programming error, not bad input.
		panic("jobs: payload marshal: " + err.Error())
	}
	return b
}

func decodePayload(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}
