// Package jobstream exposes one job's lifecycle as a push stream. A
// [Streamer] watches a job in the registry and writes every snapshot to a
// [Sink] until the job finishes, the client goes away, or the stream
// reaches its lifetime ceiling. The HTTP layer supplies an SSE sink.
package jobstream

import (
	"context"
	"log/slog"
	"time"

	"github.com/54b3r/agentrag-go/internal/job"
	"github.com/54b3r/agentrag-go/internal/logging"
)

// Defaults for stream pacing.
const (
	// DefaultKeepalive is how long the stream waits for an update before
	// writing a keepalive comment.
	DefaultKeepalive = 30 * time.Second
	// DefaultMaxDuration caps the total lifetime of one stream.
	DefaultMaxDuration = 5 * time.Minute
)

// Messages carried by error frames.
const (
	msgNotFound = "Job not found"
	msgTimeout  = "Stream timeout"
)

// Sink receives stream frames. Data writes one JSON data frame; Comment
// writes a comment frame that carries no client-visible state.
type Sink interface {
	Data(v any) error
	Comment(text string) error
}

// Source is the subset of *job.Registry the streamer needs.
type Source interface {
	Watch(id string) (job.Job, *job.Subscription, bool)
	Unsubscribe(id string, sub *job.Subscription)
}

// ErrorFrame is the payload of a terminal error frame.
type ErrorFrame struct {
	Error string `json:"error"`
}

// Config holds stream pacing.
type Config struct {
	// Keepalive is the per-wait idle timeout. Defaults to 30s.
	Keepalive time.Duration
	// MaxDuration is the lifetime ceiling measured from stream open.
	// Defaults to 5m.
	MaxDuration time.Duration
}

// Streamer adapts registry subscriptions to a Sink.
type Streamer struct {
	source Source
	cfg    Config
}

// New constructs a Streamer reading from source.
func New(source Source, cfg *Config) *Streamer {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Keepalive <= 0 {
		c.Keepalive = DefaultKeepalive
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	return &Streamer{source: source, cfg: c}
}

// Stream writes the job's snapshot and every subsequent update to sink. It
// returns when a terminal snapshot has been written, an error frame has been
// written, ctx is done, or the sink fails. The subscription is always
// released before Stream returns.
func (s *Streamer) Stream(ctx context.Context, jobID string, sink Sink) error {
	log := logging.FromContext(ctx).With(slog.String("job_id", jobID))

	snap, sub, ok := s.source.Watch(jobID)
	if !ok {
		return sink.Data(ErrorFrame{Error: msgNotFound})
	}
	if sub != nil {
		defer s.source.Unsubscribe(jobID, sub)
	}

	if err := sink.Data(snap); err != nil {
		return s.fail(sink, log, err)
	}
	if sub == nil {
		return nil
	}

	deadline := time.NewTimer(s.cfg.MaxDuration)
	defer deadline.Stop()
	idle := time.NewTimer(s.cfg.Keepalive)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("job stream: client disconnected")
			return nil

		case <-deadline.C:
			log.Info("job stream: lifetime ceiling reached")
			return sink.Data(ErrorFrame{Error: msgTimeout})

		case <-idle.C:
			if err := sink.Comment("keepalive"); err != nil {
				return err
			}
			idle.Reset(s.cfg.Keepalive)

		case update, open := <-sub.C():
			if !open {
				// The registry dropped the job (swept or shut down).
				return sink.Data(ErrorFrame{Error: msgNotFound})
			}
			if err := sink.Data(update); err != nil {
				return s.fail(sink, log, err)
			}
			if update.Status.Terminal() {
				return nil
			}
			idle.Reset(s.cfg.Keepalive)
		}
	}
}

// fail makes a best-effort attempt to tell the client why the stream is
// ending, then returns the original error.
func (s *Streamer) fail(sink Sink, log *slog.Logger, err error) error {
	log.Warn("job stream: write failed", slog.Any("error", err))
	_ = sink.Data(ErrorFrame{Error: err.Error()})
	return err
}
