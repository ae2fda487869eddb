// pattern: Imperative Shell

package web

import (
	"context"
	"errors"
	"sync"

	"floorcast/internal/logging"
	"floorcast/internal/pipeline"
)

// ErrQueueFull is returned by Submit when the job queue has no room.
var ErrQueueFull = errors.New("job queue is full")

// ErrRunnerStopped is returned by Submit after the runner has stopped.
var ErrRunnerStopped = errors.New("job runner stopped")

// jobProcessor is satisfied by *pipeline.Pipeline.
type jobProcessor interface {
	Run(ctx context.Context, job pipeline.Job, out pipeline.Emitter) error
}

// Runner processes submitted jobs one at a time, in submission order.
type Runner struct {
	proc   jobProcessor
	out    pipeline.Emitter
	logger *logging.ScopedLogger
	jobs   chan pipeline.Job

	mu      sync.Mutex
	running bool
	stopped bool
	done    chan struct{}
}

// NewRunner creates a Runner that queues up to queueSize jobs.
func NewRunner(proc jobProcessor, out pipeline.Emitter, queueSize int, logger *logging.ScopedLogger) *Runner {
	if queueSize <= 0 {
		queueSize = 8
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		proc:   proc,
		out:    out,
		logger: logger,
		jobs:   make(chan pipeline.Job, queueSize),
		done:   make(chan struct{}),
	}
}

// Start runs the worker loop in a goroutine until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running || r.stopped {
		r.mu.Unlock()
		return errors.New("runner: already started")
	}
	r.running = true
	r.mu.Unlock()

	go r.run(ctx)
	return nil
}

// Submit queues a job without blocking.
func (r *Runner) Submit(job pipeline.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRunnerStopped
	}
	select {
	case r.jobs <- job:
		r.logger.Info("job queued", "job", job.ID, "pending", len(r.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs not yet started.
func (r *Runner) Pending() int {
	return len(r.jobs)
}

// Done is closed when the worker loop exits.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)
	defer func() {
		r.mu.Lock()
		r.stopped = true
		r.running = false
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping", "pending", len(r.jobs))
			return
		case job := <-r.jobs:
			// Failures are already published as error events by the pipeline.
			_ = r.proc.Run(ctx, job, r.out)
		}
	}
}
