package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrQueueFull is returned when the trigger queue has no room
var ErrQueueFull = errors.New("verification queue is full")

// ErrQueueClosed is returned after the queue has stopped
var ErrQueueClosed = errors.New("verification queue is closed")

type queued struct {
	schemeID string
	runID    string
}

// Queue runs verification requests asynchronously with bounded depth.
// Requests run under the context given to Start, not the requester's.
type Queue struct {
	verifier Verifier
	workers  int
	jobs     chan queued
	logger   *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending map[string]string // scheme ID -> queued run ID
	wg      sync.WaitGroup
}

// NewQueue creates a queue with the given worker count and depth
func NewQueue(verifier Verifier, workers, depth int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		verifier: verifier,
		workers:  workers,
		jobs:     make(chan queued, depth),
		logger:   logger,
		pending:  make(map[string]string),
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.mu.Lock()
			delete(q.pending, job.schemeID)
			q.mu.Unlock()

			run, err := q.verifier.Verify(ctx, job.schemeID, job.runID)
			switch {
			case err != nil:
				q.logger.Error("queued verification failed", "scheme_id", job.schemeID, "run_id", job.runID, "error", err)
			case run != nil && run.Err != nil:
				q.logger.Warn("queued verification reached no source", "scheme_id", job.schemeID, "run_id", job.runID, "error", run.Err)
			}
		}
	}
}

// Enqueue schedules a verification and returns its run ID. A scheme already
// waiting in the queue is not queued twice; its pending run ID is returned.
func (q *Queue) Enqueue(schemeID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}
	if runID, ok := q.pending[schemeID]; ok {
		return runID, nil
	}

	job := queued{schemeID: schemeID, runID: uuid.NewString()}
	select {
	case q.jobs <- job:
		q.pending[schemeID] = job.runID
		return job.runID, nil
	default:
		return "", ErrQueueFull
	}
}

// Depth returns the number of waiting requests
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// Stop stops accepting requests, lets workers drain the queue and waits for them
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
