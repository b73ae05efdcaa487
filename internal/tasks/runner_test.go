package tasks

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/agentrag-go/internal/apperr"
	"github.com/54b3r/agentrag-go/internal/job"
)

func newRunner(t *testing.T, cfg Config) (*Runner, *job.Registry) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	reg := job.NewRegistry(&job.Config{Logger: log})
	t.Cleanup(reg.Close)
	cfg.Logger = log
	return NewRunner(reg, &cfg), reg
}

func waitTerminal(t *testing.T, reg *job.Registry, id string) job.Job {
	t.Helper()
	var got job.Job
	require.Eventually(t, func() bool {
		j, ok := reg.Get(id)
		got = j
		return ok && j.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestRunner_CompletesWithResult(t *testing.T) {
	t.Parallel()
	r, reg := newRunner(t, Config{Workers: 1})
	r.Start(context.Background())
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	id, err := r.Submit("index_update", map[string]any{"index_name": "docs"}, func(_ context.Context, report func(int)) (map[string]any, error) {
		report(30)
		report(90)
		return map[string]any{"name": "docs", "dimension": 384}, nil
	})
	require.NoError(t, err)

	j := waitTerminal(t, reg, id)
	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.Equal(t, 100, j.Progress)
	assert.Equal(t, "docs", j.Result["name"])
	assert.Nil(t, j.Error)
	assert.NotNil(t, j.StartedAt)
	assert.NotNil(t, j.CompletedAt)
}

func TestRunner_ObservesMilestonesInOrder(t *testing.T) {
	t.Parallel()
	r, reg := newRunner(t, Config{Workers: 1})

	release := make(chan struct{})
	id, err := r.Submit("index_update", nil, func(_ context.Context, report func(int)) (map[string]any, error) {
		<-release
		report(60)
		return map[string]any{}, nil
	})
	require.NoError(t, err)

	_, sub, ok := reg.Watch(id)
	require.True(t, ok)
	defer reg.Unsubscribe(id, sub)

	r.Start(context.Background())
	t.Cleanup(func() { _ = r.Stop(context.Background()) })
	close(release)

	var progress []int
	for snap := range sub.C() {
		progress = append(progress, snap.Progress)
		if snap.Status.Terminal() {
			break
		}
	}
	assert.Equal(t, []int{10, 60, 100}, progress)
}

func TestRunner_TaskErrorFailsJob(t *testing.T) {
	t.Parallel()
	r, reg := newRunner(t, Config{})
	r.Start(context.Background())
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	id, err := r.Submit("index_update", nil, func(context.Context, func(int)) (map[string]any, error) {
		return nil, errors.New("embedding service unavailable")
	})
	require.NoError(t, err)

	j := waitTerminal(t, reg, id)
	assert.Equal(t, job.StatusFailed, j.Status)
	require.NotNil(t, j.Error)
	assert.Equal(t, "embedding service unavailable", *j.Error)
	assert.Nil(t, j.Result)
}

func TestRunner_PanicFailsJob(t *testing.T) {
	t.Parallel()
	r, reg := newRunner(t, Config{Workers: 1})
	r.Start(context.Background())
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	id, err := r.Submit("index_update", nil, func(context.Context, func(int)) (map[string]any, error) {
		panic("boom")
	})
	require.NoError(t, err)

	j := waitTerminal(t, reg, id)
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Contains(t, *j.Error, "boom")

	// The worker survives and keeps serving.
	id, err = r.Submit("index_update", nil, func(context.Context, func(int)) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, waitTerminal(t, reg, id).Status)
}

func TestRunner_QueueFull(t *testing.T) {
	t.Parallel()
	prom := prometheus.NewRegistry()
	r, reg := newRunner(t, Config{Workers: 1, QueueSize: 1, Registerer: prom})
	noop := func(context.Context, func(int)) (map[string]any, error) { return nil, nil }

	// Not started, so the first task occupies the only slot.
	_, err := r.Submit("index_update", nil, noop)
	require.NoError(t, err)

	id, err := r.Submit("index_update", nil, noop)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	require.NotEmpty(t, id)

	j, ok := reg.Get(id)
	require.True(t, ok)
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Equal(t, "task queue is full", *j.Error)
	assert.Len(t, r.queue, 1)
}

func TestRunner_TaskContextOutlivesStartContext(t *testing.T) {
	t.Parallel()
	r, reg := newRunner(t, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	id, err := r.Submit("index_update", nil, func(ctx context.Context, _ func(int)) (map[string]any, error) {
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, waitTerminal(t, reg, id).Status)
}

func TestRunner_Stop(t *testing.T) {
	t.Parallel()
	r, reg := newRunner(t, Config{Workers: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	running, err := r.Submit("index_update", nil, func(context.Context, func(int)) (map[string]any, error) {
		close(started)
		<-release
		return map[string]any{}, nil
	})
	require.NoError(t, err)
	r.Start(context.Background())
	<-started

	queued, err := r.Submit("index_update", nil, func(context.Context, func(int)) (map[string]any, error) {
		return map[string]any{}, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Stop(ctx), context.DeadlineExceeded, "in-flight task still running")

	j, _ := reg.Get(queued)
	assert.Equal(t, job.StatusFailed, j.Status, "queued task is failed on stop")

	_, err = r.Submit("index_update", nil, nil)
	assert.ErrorIs(t, err, ErrStopped)

	close(release)
	assert.Equal(t, job.StatusCompleted, waitTerminal(t, reg, running).Status)
	assert.NoError(t, r.Stop(context.Background()), "second stop is a no-op")
}
