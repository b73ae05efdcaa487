package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/agentrag-go/internal/config"
	"github.com/54b3r/agentrag-go/internal/job"
	"github.com/54b3r/agentrag-go/internal/jobstream"
	"github.com/54b3r/agentrag-go/internal/logging"
	"github.com/54b3r/agentrag-go/internal/server"
	"github.com/54b3r/agentrag-go/internal/tasks"
	"github.com/54b3r/agentrag-go/internal/tracing"
	"github.com/54b3r/agentrag-go/internal/version"
)

// taskDrainTimeout bounds how long shutdown waits for running index builds.
const taskDrainTimeout = 30 * time.Second

// NewServeCmd constructs the `agentrag serve` command, which starts the HTTP
// API together with the job registry and the background task runner.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agentrag HTTP API",
		Long: `Start the agentrag HTTP API.

The server exposes document upload, vector index management with synchronous
and background builds, job polling and SSE job streams, and agent CRUD with
one-shot and SSE execution.

Examples:
  agentrag serve
  agentrag serve --port 9090
  VECTOR_BACKEND=pgvector PGVECTOR_DSN=postgres://... agentrag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Flags win over the environment, which is only populated once
			// the root command has loaded the config file.
			if host == "" {
				host = config.String("AGENTRAG_HOST", "127.0.0.1")
			}
			if port == 0 {
				port = config.Int("AGENTRAG_PORT", 8000)
			}

			flush := tracing.Setup(tracing.ConfigFromEnv(), log)
			defer flush()

			b, err := openBackend(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = b.Close() }()
			if err := b.withExecutor(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			jobs := job.NewRegistry(&job.Config{Logger: log, Registerer: prometheus.DefaultRegisterer})
			defer jobs.Close()
			go jobs.Run(ctx,
				config.Duration("JOB_SWEEP_INTERVAL", job.DefaultSweepInterval),
				config.Duration("JOB_RETENTION", job.DefaultRetention),
			)

			runner := tasks.NewRunner(jobs, &tasks.Config{
				Workers:    config.Int("TASK_WORKERS", tasks.DefaultWorkers),
				QueueSize:  config.Int("TASK_QUEUE_SIZE", tasks.DefaultQueueSize),
				Logger:     log,
				Registerer: prometheus.DefaultRegisterer,
			})
			runner.Start(ctx)
			defer func() {
				drainCtx, cancel := context.WithTimeout(context.Background(), taskDrainTimeout)
				defer cancel()
				if err := runner.Stop(drainCtx); err != nil {
					log.Warn("task runner did not drain before timeout", slog.Any("error", err))
				}
			}()

			srv, err := server.New(server.Deps{
				Documents: b.documents,
				Indexes:   b.indexes,
				Agents:    b.agents,
				Executor:  b.executor,
				Jobs:      jobs,
				Tasks:     runner,
			}, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				RateLimit: config.Float("AGENTRAG_RATE_LIMIT", 0),
				RateBurst: config.Int("AGENTRAG_RATE_BURST", 0),
				Stream: jobstream.Config{
					Keepalive:   config.Duration("JOB_STREAM_KEEPALIVE", jobstream.DefaultKeepalive),
					MaxDuration: config.Duration("JOB_STREAM_TIMEOUT", jobstream.DefaultMaxDuration),
				},
				Pingers: []server.Pinger{
					server.NewPinger("vector_store", b.vectors.Ping),
					server.NewPinger("agent_db", b.agents.Ping),
					server.NewPinger("documents", b.documents.Ping),
				},
				Version: version.Version,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: AGENTRAG_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: AGENTRAG_PORT or 8000)")

	return cmd
}
