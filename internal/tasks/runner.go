// Package tasks runs background jobs, such as index builds, on a fixed pool
// of workers outside the lifetime of the HTTP request that scheduled them.
// Every task is tracked as a job in a job.Registry.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/agentrag-go/internal/apperr"
	"github.com/54b3r/agentrag-go/internal/job"
	"github.com/54b3r/agentrag-go/internal/logging"
)

const (
	// DefaultWorkers is the worker count used when Config.Workers is zero.
	DefaultWorkers = 2
	// DefaultQueueSize is the queue capacity used when Config.QueueSize is zero.
	DefaultQueueSize = 32

	// ProgressStarted is reported when a worker picks a task up.
	ProgressStarted = 10
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("task queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("task runner is stopped")
)

// Task is the unit of work. report publishes intermediate progress; the
// returned map becomes the job result.
type Task func(ctx context.Context, report func(progress int)) (map[string]any, error)

// Config holds the optional settings for a Runner.
type Config struct {
	// Workers is the number of concurrent tasks. Defaults to 2.
	Workers int
	// QueueSize bounds the number of accepted but not yet running tasks.
	// Defaults to 32.
	QueueSize int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Registerer is where task metrics are registered. If nil, a private
	// registry is used.
	Registerer prometheus.Registerer
}

type item struct {
	id      string
	jobType string
	task    Task
}

// Runner is a bounded worker pool whose tasks report into a job.Registry.
type Runner struct {
	jobs    *job.Registry
	queue   chan item
	workers int
	log     *slog.Logger
	metrics *runnerMetrics

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRunner constructs a Runner. Tasks are accepted immediately but only
// run after Start.
func NewRunner(jobs *job.Registry, cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Runner{
		jobs:    jobs,
		queue:   make(chan item, size),
		workers: workers,
		log:     logging.OrDefault(cfg.Logger),
		metrics: newRunnerMetrics(reg),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the workers. Tasks run under a context derived from ctx
// that is never cancelled, so a started build always finishes.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true

	base := context.WithoutCancel(ctx)
	r.log.Info("task runner starting", slog.Int("workers", r.workers), slog.Int("queue_size", cap(r.queue)))
	for range r.workers {
		r.wg.Add(1)
		go r.loop(base)
	}
}

// Submit creates a job for task and queues it without blocking. When the
// queue is full the job is marked failed and ErrQueueFull is returned along
// with the job id.
func (r *Runner) Submit(jobType string, params map[string]any, task Task) (string, error) {
	const op = "tasks.submit"
	id := r.jobs.Create(jobType, params)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		r.jobs.UpdateStatus(id, job.StatusFailed, job.WithError(ErrStopped.Error()))
		return id, &apperr.Error{Kind: apperr.KindUnavailable, Op: op, Msg: ErrStopped.Error(), Err: ErrStopped}
	}

	select {
	case r.queue <- item{id: id, jobType: jobType, task: task}:
		r.metrics.queueDepth.Set(float64(len(r.queue)))
		return id, nil
	default:
		r.log.Warn("task rejected, queue full", slog.String("job_id", id), slog.String("job_type", jobType))
		r.jobs.UpdateStatus(id, job.StatusFailed, job.WithError(ErrQueueFull.Error()))
		r.metrics.rejected.WithLabelValues(jobType).Inc()
		return id, &apperr.Error{Kind: apperr.KindUnavailable, Op: op, Msg: ErrQueueFull.Error(), Err: ErrQueueFull}
	}
}

// Stop refuses new tasks, fails the ones still queued, and waits for
// running tasks until ctx is done.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()

	r.log.Info("task runner stopping")
	r.drain()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("task runner stopped gracefully")
		return nil
	case <-ctx.Done():
		r.log.Warn("task runner shutdown timed out, tasks still running")
		return ctx.Err()
	}
}

// drain fails every queued task that no worker has picked up.
func (r *Runner) drain() {
	for {
		select {
		case it := <-r.queue:
			r.jobs.UpdateStatus(it.id, job.StatusFailed, job.WithError("server shutting down"))
			r.metrics.queueDepth.Set(float64(len(r.queue)))
		default:
			return
		}
	}
}

func (r *Runner) loop(base context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		select {
		case <-r.stopCh:
			return
		case it := <-r.queue:
			r.metrics.queueDepth.Set(float64(len(r.queue)))
			r.run(base, it)
		}
	}
}

// run drives one job through Running to Completed or Failed. Task errors
// and panics end up on the job and never reach the worker.
func (r *Runner) run(base context.Context, it item) {
	log := r.log.With(slog.String("job_id", it.id), slog.String("job_type", it.jobType))
	ctx := logging.WithLogger(base, log)
	start := time.Now()

	r.jobs.UpdateStatus(it.id, job.StatusRunning, job.WithProgress(ProgressStarted))
	report := func(p int) {
		r.jobs.UpdateStatus(it.id, job.StatusRunning, job.WithProgress(p))
	}

	result, err := r.call(ctx, it.task, report)
	outcome := "completed"
	if err != nil {
		outcome = "failed"
		log.Error("task failed", slog.String("error", err.Error()))
		r.jobs.UpdateStatus(it.id, job.StatusFailed, job.WithError(err.Error()))
	} else {
		r.jobs.SetResult(it.id, result)
		r.jobs.UpdateStatus(it.id, job.StatusCompleted, job.WithProgress(100))
		log.Info("task completed", slog.Duration("duration", time.Since(start)))
	}
	r.metrics.duration.WithLabelValues(it.jobType, outcome).Observe(time.Since(start).Seconds())
}

func (r *Runner) call(ctx context.Context, task Task, report func(int)) (result map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return task(ctx, report)
}
