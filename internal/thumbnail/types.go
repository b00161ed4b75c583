package thumbnail

import "time"

// Priority selects which queue a task is pushed onto.
type Priority int

const (
	// Low is the idle/background fill-in queue.
	Low Priority = iota
	// High is the user-visible request queue — always drained first.
	High
)

// Config controls worker count and retry/corruption policy. Zero-value
// fields fall back to the defaults applied in New.
type Config struct {
	ThumbsDir string // root of the mirrored thumbnail tree
	MediaDir  string // root of the source media tree

	Workers int // defaults to max(1, NumCPU/2)

	MaxRetries      int           // defaults to 5
	InitialBackoff  time.Duration // defaults to 2s; delay = InitialBackoff * 2^(attempt-1)
	MaxCorruption   int           // defaults to 10; source deleted once reached
	PermanentTTL    time.Duration // defaults to 7 * 24h, TTL on the cache's failed-permanently marker
	IdleBatchSize   int           // defaults to 25
	IdleBatchDelay  time.Duration // defaults to 500ms
	ReconcileBatch  int           // defaults to 300
	ReconcilePause  time.Duration // defaults to 500ms
	SelfHealSamples int           // defaults to 50
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers()
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 2 * time.Second
	}
	if c.MaxCorruption <= 0 {
		c.MaxCorruption = 10
	}
	if c.PermanentTTL <= 0 {
		c.PermanentTTL = 7 * 24 * time.Hour
	}
	if c.IdleBatchSize <= 0 {
		c.IdleBatchSize = 25
	}
	if c.IdleBatchDelay <= 0 {
		c.IdleBatchDelay = 500 * time.Millisecond
	}
	if c.ReconcileBatch <= 0 {
		c.ReconcileBatch = 300
	}
	if c.ReconcilePause <= 0 {
		c.ReconcilePause = 500 * time.Millisecond
	}
	if c.SelfHealSamples <= 0 {
		c.SelfHealSamples = 50
	}
	return c
}

// task is one unit of scheduled work: generate (or regenerate) the
// thumbnail for relPath.
type task struct {
	relPath string
	mtime   time.Time
	isVideo bool
}

// Status is the outcome ensureThumbnailExists reports to HTTP callers.
type Status int

const (
	StatusExists Status = iota
	StatusProcessing
	StatusFailed
)

// Result is what EnsureThumbnailExists returns.
type Result struct {
	Status Status
	URL    string // only set when Status == StatusExists
}
