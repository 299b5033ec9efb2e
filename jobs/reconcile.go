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

	jobmetrics "github.com/heraerp/heraerp-prd-sub081/internal/jobs"
	"github.com/heraerp/heraerp-prd-sub081/internal/ledger"
	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Establisher opens security contexts for the actor named in a payload.
type Establisher interface {
	Establish(ctx context.Context, actorID, orgID uuid.UUID) (*rbac.Context, error)
}

// Reconciler is the ledger surface used by the reconcile job.
type Reconciler interface {
	ReconcileMany(ctx context.Context, scopes []*rbac.Context, filter ledger.ReconcileFilter) ([]ledger.ReconcileResult, error)
}

// ReconcileJob checks that every requested organization's ledger balances.
type ReconcileJob struct {
	Security Establisher
	Ledger   Reconciler
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Timeout  time.Duration
	clock    func() time.Time
}

// NewReconcileJob initialises the reconcile handler.
func NewReconcileJob(security Establisher, ledger Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics, timeout time.Duration) *ReconcileJob {
	return &ReconcileJob{
		Security: security,
		Ledger:   ledger,
		Logger:   logger,
		Metrics:  metrics,
		Timeout:  timeout,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes a reconcile task.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Security == nil || j.Ledger == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reconcile: decode payload: %w", asynq.SkipRetry)
	}
	if err := validateScope(payload.ActorID, payload.OrganizationIDs); err != nil {
		return outcome(err)
	}

	tracker := j.metrics().Track(TaskLedgerReconcile)
	defer func() {
		resultErr = outcome(tracker.End(resultErr))
	}()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := j.now()
	logger := j.logger().With(slog.String("actor_id", payload.ActorID.String()), slog.Int("organizations", len(payload.OrganizationIDs)))
	logger.Info("starting ledger reconcile")

	results, err := j.Run(ctx, payload)
	if err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return err
	}
	unbalanced := 0
	for _, res := range results {
		if res.Balanced {
			continue
		}
		unbalanced++
		logger.Warn("ledger out of balance",
			slog.String("organization_id", res.OrganizationID.String()),
			slog.Float64("difference", res.Difference),
		)
	}
	j.metrics().AddUnbalanced(unbalanced)
	logger.Info("completed ledger reconcile",
		slog.Int("unbalanced", unbalanced),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Run establishes one security context per organization and reconciles them
// together.
func (j *ReconcileJob) Run(ctx context.Context, payload ReconcilePayload) ([]ledger.ReconcileResult, error) {
	scopes, err := establishAll(ctx, j.Security, payload.ActorID, payload.OrganizationIDs)
	if err != nil {
		return nil, err
	}
	return j.Ledger.ReconcileMany(ctx, scopes, ledger.ReconcileFilter{
		From:            payload.From,
		To:              payload.To,
		SmartCodePrefix: payload.SmartCodePrefix,
	})
}

func establishAll(ctx context.Context, security Establisher, actorID uuid.UUID, orgIDs []uuid.UUID) ([]*rbac.Context, error) {
	scopes := make([]*rbac.Context, 0, len(orgIDs))
	for _, orgID := range orgIDs {
		sc, err := security.Establish(ctx, actorID, orgID)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	return scopes, nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcile))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcile))
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReconcileJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
