package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/heraerp/heraerp-prd-sub081/internal/coa"
	jobmetrics "github.com/heraerp/heraerp-prd-sub081/internal/jobs"
	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
)

// ChartValidator is the enforcer surface used by the chart check job.
type ChartValidator interface {
	ValidateChartExists(ctx context.Context, orgID uuid.UUID) (coa.ChartStatus, error)
}

// ChartCheckJob reports organizations whose chart of accounts lacks a
// required category.
type ChartCheckJob struct {
	Security Establisher
	Charts   ChartValidator
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Timeout  time.Duration
}

// NewChartCheckJob initialises the chart check handler.
func NewChartCheckJob(security Establisher, charts ChartValidator, logger *slog.Logger, metrics *jobmetrics.Metrics, timeout time.Duration) *ChartCheckJob {
	return &ChartCheckJob{Security: security, Charts: charts, Logger: logger, Metrics: metrics, Timeout: timeout}
}

// Handle executes a chart check task.
func (j *ChartCheckJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Security == nil || j.Charts == nil {
		return errors.New("chart check: handler not configured")
	}
	var payload ChartValidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("chart check: decode payload: %w", asynq.SkipRetry)
	}
	if err := validateScope(payload.ActorID, payload.OrganizationIDs); err != nil {
		return outcome(err)
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskChartValidate)
	defer func() {
		resultErr = outcome(tracker.End(resultErr))
	}()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskChartValidate))

	statuses, err := j.Run(ctx, payload)
	if err != nil {
		logger.Error("chart check failed", slog.Any("error", err))
		return err
	}
	for orgID, status := range statuses {
		if status.Valid {
			continue
		}
		metrics.AddChartGaps(status.MissingAccountCategories)
		logger.Warn("chart of accounts incomplete",
			slog.String("organization_id", orgID.String()),
			slog.Any("missing", status.MissingAccountCategories),
		)
	}
	return nil
}

// Run checks each organization under its own security context.
func (j *ChartCheckJob) Run(ctx context.Context, payload ChartValidatePayload) (map[uuid.UUID]coa.ChartStatus, error) {
	scopes, err := establishAll(ctx, j.Security, payload.ActorID, payload.OrganizationIDs)
	if err != nil {
		return nil, err
	}
	statuses := make(map[uuid.UUID]coa.ChartStatus, len(scopes))
	for _, sc := range scopes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		status, err := j.Charts.ValidateChartExists(rbac.WithSecurity(ctx, sc), sc.OrganizationID())
		if err != nil {
			return nil, err
		}
		statuses[sc.OrganizationID()] = status
	}
	return statuses, nil
}
