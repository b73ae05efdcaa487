package job

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Default retention settings for the background sweeper.
const (
	// DefaultRetention is how long a job is kept after creation.
	DefaultRetention = 24 * time.Hour
	// DefaultSweepInterval is how often Run checks for expired jobs.
	DefaultSweepInterval = time.Hour
)

// Config holds the optional settings for a Registry.
type Config struct {
	// Logger receives warnings for ignored updates and dropped snapshots.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Registerer is where job metrics are registered. If nil, a private
	// registry is used and the metrics are not exported.
	Registerer prometheus.Registerer
	// BufferSize is the queue depth of each subscription. Defaults to 64.
	BufferSize int
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// NewID returns a fresh job id. Defaults to a random UUID.
	NewID func() string
}

// Registry is the in-memory store of jobs and their subscribers.
// It is safe for concurrent use. A single mutex guards both maps; no I/O
// happens while it is held, so contention stays low even with many jobs.
type Registry struct {
	// mu guards jobs and subs.
	mu sync.Mutex
	// jobs maps job id to the live record.
	jobs map[string]*Job
	// subs maps job id to its set of subscriptions.
	subs map[string]map[*Subscription]struct{}

	log        *slog.Logger
	metrics    *registryMetrics
	bufferSize int
	now        func() time.Time
	newID      func() string
}

// NewRegistry constructs an empty Registry. The caller owns its lifetime
// and should call Close on shutdown.
func NewRegistry(cfg *Config) *Registry {
	if cfg == nil {
		cfg = &Config{}
	}
	r := &Registry{
		jobs:       make(map[string]*Job),
		subs:       make(map[string]map[*Subscription]struct{}),
		log:        cfg.Logger,
		bufferSize: cfg.BufferSize,
		now:        cfg.Now,
		newID:      cfg.NewID,
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.bufferSize <= 0 {
		r.bufferSize = defaultBufferSize
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r.metrics = newRegistryMetrics(reg)
	return r
}

// Create allocates a Pending job with progress 0 and returns its id.
func (r *Registry) Create(jobType string, params map[string]any) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	r.jobs[id] = &Job{
		ID:         id,
		Type:       jobType,
		Parameters: maps.Clone(params),
		Status:     StatusPending,
		CreatedAt:  r.now().UTC(),
	}
	r.metrics.created.WithLabelValues(jobType).Inc()
	r.log.Info("job created",
		slog.String("job_id", id),
		slog.String("job_type", jobType),
		slog.Any("parameters", params),
	)
	return id
}

// Get returns a snapshot of the job, or false if it does not exist.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.snapshot(), true
}

// Len returns the number of jobs currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// UpdateOption customises an UpdateStatus call.
type UpdateOption func(*update)

// update collects the optional fields of an UpdateStatus call.
type update struct {
	progress *int
	err      string
}

// WithProgress sets the job's progress, clamped to 0–100.
func WithProgress(p int) UpdateOption {
	return func(u *update) { u.progress = &p }
}

// WithError records msg as the failure message. Only honoured when the
// target status is Failed.
func WithError(msg string) UpdateOption {
	return func(u *update) { u.err = msg }
}

// UpdateStatus transitions the job to status and then notifies every
// subscription with a fresh snapshot. Unknown ids and transitions the state
// machine forbids are logged and ignored; neither is an error for the caller
// because a late update after a sweep must not fail the writer.
//
// Only one goroutine may drive a given job's updates at a time.
func (r *Registry) UpdateStatus(id string, status Status, opts ...UpdateOption) {
	var u update
	for _, opt := range opts {
		opt(&u)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.log.With(slog.String("job_id", id), slog.String("status", string(status)))

	j, ok := r.jobs[id]
	if !ok {
		log.Warn("job: status update for unknown job ignored")
		return
	}
	if !canTransition(j.Status, status) {
		log.Warn("job: transition rejected", slog.String("from", string(j.Status)))
		return
	}

	now := r.now().UTC()
	if status == StatusRunning && j.StartedAt == nil {
		j.StartedAt = &now
	}
	if u.progress != nil {
		j.Progress = clampProgress(*u.progress)
	}

	switch status {
	case StatusFailed:
		msg := u.err
		if msg == "" {
			msg = "job failed"
			log.Warn("job: marked failed without an error message")
		}
		j.Error = &msg
		j.Result = nil
	case StatusCompleted:
		if j.Result == nil {
			log.Warn("job: marked completed without a result")
		}
	}

	j.Status = status
	if status.Terminal() {
		j.CompletedAt = &now
		r.metrics.finished.WithLabelValues(j.Type, string(status)).Inc()
	}

	r.notifyLocked(j)
}

// SetResult attaches result to the job without changing its status. The
// caller is expected to follow up with UpdateStatus(StatusCompleted).
// Terminal jobs are left untouched.
func (r *Registry) SetResult(id string, result map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		r.log.Warn("job: result for unknown job ignored", slog.String("job_id", id))
		return
	}
	if j.Status.Terminal() {
		r.log.Warn("job: result for finished job ignored",
			slog.String("job_id", id),
			slog.String("status", string(j.Status)),
		)
		return
	}
	j.Result = maps.Clone(result)
}

// notifyLocked offers a snapshot of j to every subscription of j. Full
// queues drop the snapshot rather than block. Caller holds r.mu.
func (r *Registry) notifyLocked(j *Job) {
	set := r.subs[j.ID]
	if len(set) == 0 {
		return
	}
	snap := j.snapshot()
	for sub := range set {
		if !sub.send(snap) {
			r.metrics.dropped.Inc()
			r.log.Warn("job: subscriber queue full, snapshot dropped",
				slog.String("job_id", j.ID),
				slog.String("status", string(j.Status)),
			)
		}
	}
}

// Subscribe registers a new subscription for id. It does not check that the
// job exists; use Watch to combine the existence check and the subscription.
func (r *Registry) Subscribe(id string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribeLocked(id)
}

func (r *Registry) subscribeLocked(id string) *Subscription {
	sub := newSubscription(id, r.bufferSize)
	set, ok := r.subs[id]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[id] = set
	}
	set[sub] = struct{}{}
	r.metrics.subscriptions.Inc()
	return sub
}

// Watch atomically snapshots the job and, unless it is already terminal,
// subscribes to it. The returned subscription is nil for terminal jobs.
// ok is false when the job does not exist.
func (r *Registry) Watch(id string) (snap Job, sub *Subscription, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, found := r.jobs[id]
	if !found {
		return Job{}, nil, false
	}
	snap = j.snapshot()
	if j.Status.Terminal() {
		return snap, nil, true
	}
	return snap, r.subscribeLocked(id), true
}

// Unsubscribe removes sub and closes its channel. It is idempotent.
func (r *Registry) Unsubscribe(id string, sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[id]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	sub.close()
	r.metrics.subscriptions.Dec()
	if len(set) == 0 {
		delete(r.subs, id)
	}
}

// Sweep removes jobs created more than maxAge ago together with any
// subscriptions still attached to them. It returns the number of jobs removed.
func (r *Registry) Sweep(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	removed := 0
	for id, j := range r.jobs {
		if !j.CreatedAt.Before(cutoff) {
			continue
		}
		delete(r.jobs, id)
		r.dropSubsLocked(id)
		removed++
	}
	if removed > 0 {
		r.log.Info("job: swept expired jobs", slog.Int("removed", removed))
	}
	return removed
}

// dropSubsLocked closes and forgets every subscription of id. Caller holds r.mu.
func (r *Registry) dropSubsLocked(id string) {
	for sub := range r.subs[id] {
		sub.close()
		r.metrics.subscriptions.Dec()
	}
	delete(r.subs, id)
}

// Run sweeps jobs older than maxAge every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(maxAge)
		}
	}
}

// Close closes every subscription. Jobs remain readable until the registry
// is garbage collected.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.subs {
		r.dropSubsLocked(id)
	}
}
