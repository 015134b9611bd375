package store

import (
	"sync"

	"go.uber.org/zap"
)

// Recorder buffers step results and periodically flushes them to the store.
// It satisfies the session step recorder hook: insert failures are logged
// and never surface into the step loop.
type Recorder struct {
	store     *Store
	episodeID string
	logger    *zap.Logger
	mu        sync.Mutex
	buffer    []EpisodeStep
	flushSize int
}

// NewRecorder creates a recorder for the given episode. flushSize controls
// how many steps are buffered before a batch insert.
func NewRecorder(store *Store, episodeID string, flushSize int, logger *zap.Logger) *Recorder {
	if flushSize <= 0 {
		flushSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:     store,
		episodeID: episodeID,
		logger:    logger,
		buffer:    make([]EpisodeStep, 0, flushSize),
		flushSize: flushSize,
	}
}

// RecordStep adds a step to the buffer and flushes if the buffer is full.
func (r *Recorder) RecordStep(step uint64, reward float64, scoreDelta *float64, done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Own the delta; the caller reuses its pointer.
	var delta *float64
	if scoreDelta != nil {
		d := *scoreDelta
		delta = &d
	}

	r.buffer = append(r.buffer, EpisodeStep{
		EpisodeID:  r.episodeID,
		Step:       step,
		Reward:     reward,
		ScoreDelta: delta,
		Done:       done,
	})

	if len(r.buffer) >= r.flushSize {
		r.flushLocked()
	}
}

// Flush persists any remaining buffered steps to the store.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

func (r *Recorder) flushLocked() {
	if len(r.buffer) == 0 {
		return
	}
	steps := make([]EpisodeStep, len(r.buffer))
	copy(steps, r.buffer)
	r.buffer = r.buffer[:0]

	// Insert in background to avoid blocking the step loop
	go func() {
		if err := r.store.InsertStepsBatch(r.episodeID, steps); err != nil {
			r.logger.Warn("step flush failed",
				zap.String("episode", r.episodeID),
				zap.Int("steps", len(steps)),
				zap.Error(err),
			)
		}
	}()
}
