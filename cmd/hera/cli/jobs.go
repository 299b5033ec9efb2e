package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/heraerp/heraerp-prd-sub081/internal/app"
	"github.com/heraerp/heraerp-prd-sub081/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers against the configured Redis.
func NewJobsCLI(cfg *app.Config) *JobsCLI {
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	return &JobsCLI{
		client:    jobs.NewClient(redisOpts, cfg.JobTimeout),
		inspector: asynq.NewInspector(redisOpts),
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a supported job by task type.
func (c *JobsCLI) Trigger(ctx context.Context, name string, actor uuid.UUID, orgs []uuid.UUID) (*asynq.TaskInfo, error) {
	switch name {
	case jobs.TaskLedgerReconcile:
		return c.client.EnqueueReconcile(ctx, jobs.ReconcilePayload{ActorID: actor, OrganizationIDs: orgs})
	case jobs.TaskChartValidate:
		return c.client.EnqueueChartValidate(ctx, jobs.ChartValidatePayload{ActorID: actor, OrganizationIDs: orgs})
	default:
		return nil, usageError(fmt.Errorf("unsupported job %q (want %s or %s)", name, jobs.TaskLedgerReconcile, jobs.TaskChartValidate))
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the default queue's counters.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// NewJobsCommand groups background job control.
func NewJobsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}
	cmd.AddCommand(newJobsEnqueueCommand(opts))
	cmd.AddCommand(newJobsStatsCommand(opts))
	return cmd
}

func newJobsEnqueueCommand(opts *RootOptions) *cobra.Command {
	var orgs []string
	cmd := &cobra.Command{
		Use:       "enqueue <task-type>",
		Short:     "Enqueue a reconcile or chart check task",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskLedgerReconcile, jobs.TaskChartValidate},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireActor(opts); err != nil {
				return err
			}
			ids, err := app.ParseIDs(append([]string{opts.Actor}, orgs...))
			if err != nil {
				return err
			}
			cfg, err := app.LoadConfig()
			if err != nil {
				return usageError(err)
			}
			jc := NewJobsCLI(cfg)
			defer jc.Close()
			info, err := jc.Trigger(cmd.Context(), args[0], ids[0], ids[1:])
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd).emit(map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue}, func(w io.Writer) {
				fmt.Fprintf(w, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			})
		},
	}
	cmd.Flags().StringSliceVar(&orgs, "org", nil, "organization id (repeatable)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newJobsStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return usageError(err)
			}
			jc := NewJobsCLI(cfg)
			defer jc.Close()
			stats, err := jc.InspectQueue()
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd).emit(stats, func(w io.Writer) {
				fmt.Fprintf(w, "%s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			})
		},
	}
}
