package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/heraerp/heraerp-prd-sub081/internal/app"
	jobmetrics "github.com/heraerp/heraerp-prd-sub081/internal/jobs"
	"github.com/heraerp/heraerp-prd-sub081/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect core", slog.Any("error", err))
		os.Exit(1)
	}
	defer core.Close()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	metrics := jobmetrics.NewMetrics(core.Metrics.Registerer())
	reconcileJob := jobs.NewReconcileJob(core.Security, core.Ledger, logger, metrics, cfg.JobTimeout)
	chartJob := jobs.NewChartCheckJob(core.Security, core.COA, logger, metrics, cfg.JobTimeout)

	cron, err := scheduled(cfg)
	if err != nil {
		logger.Error("build scheduled tasks", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskChartValidate, Handler: chartJob.Handle},
		},
		Cron: cron,
		BaseContext: func() context.Context {
			return core.Security.Bind(context.Background())
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()
	client := jobs.NewClient(redisOpts, cfg.JobTimeout)
	defer client.Close()

	ops := &http.Server{
		Addr: cfg.OpsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:     logger,
			Config:     cfg,
			Metrics:    core.Metrics,
			Checks:     core.Checks(),
			JobHealth:  jobs.NewHandler(inspector, logger),
			JobTrigger: jobs.NewTriggerHandler(client, logger),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", slog.String("addr", cfg.OpsAddr))
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server", slog.Any("error", err))
			stop()
		}
	}()

	runErr := worker.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops shutdown", slog.Any("error", err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("worker run", slog.Any("error", runErr))
		os.Exit(1)
	}
}

// scheduled builds the nightly reconcile and chart check when configured.
func scheduled(cfg *app.Config) ([]jobs.CronRegistration, error) {
	if cfg.ReconcileCron == "" || len(cfg.ReconcileOrganizations) == 0 {
		return nil, nil
	}
	actor, err := uuid.Parse(cfg.SystemActorID)
	if err != nil {
		return nil, err
	}
	orgs, err := app.ParseIDs(cfg.ReconcileOrganizations)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.MaxRetry(3), asynq.Timeout(cfg.JobTimeout)}
	reconcileTask, err := jobs.NewReconcileTask(jobs.ReconcilePayload{ActorID: actor, OrganizationIDs: orgs})
	if err != nil {
		return nil, err
	}
	chartTask, err := jobs.NewChartValidateTask(jobs.ChartValidatePayload{ActorID: actor, OrganizationIDs: orgs})
	if err != nil {
		return nil, err
	}
	return []jobs.CronRegistration{
		{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: opts},
		{Spec: cfg.ReconcileCron, Task: chartTask, Options: opts},
	}, nil
}
