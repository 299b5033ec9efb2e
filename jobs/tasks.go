package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile reconciles the ledger of one or more organizations.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskChartValidate checks that organizations carry a complete chart of accounts.
	TaskChartValidate = "coa:validate"
)

// ReconcilePayload describes a reconcile run. Every organization is
// reconciled under its own security context for the same actor.
type ReconcilePayload struct {
	ActorID         uuid.UUID   `json:"actor_id"`
	OrganizationIDs []uuid.UUID `json:"organization_ids"`
	From            time.Time   `json:"from,omitempty"`
	To              time.Time   `json:"to,omitempty"`
	SmartCodePrefix string      `json:"smart_code_prefix,omitempty"`
}

// ChartValidatePayload describes a chart check.
type ChartValidatePayload struct {
	ActorID         uuid.UUID   `json:"actor_id"`
	OrganizationIDs []uuid.UUID `json:"organization_ids"`
}

// NewReconcileTask constructs an Asynq task for a reconcile run.
func NewReconcileTask(payload ReconcilePayload, opts ...asynq.Option) (*asynq.Task, error) {
	if err := validateScope(payload.ActorID, payload.OrganizationIDs); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, data, append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)...), nil
}

// NewChartValidateTask constructs an Asynq task for a chart check.
func NewChartValidateTask(payload ChartValidatePayload, opts ...asynq.Option) (*asynq.Task, error) {
	if err := validateScope(payload.ActorID, payload.OrganizationIDs); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskChartValidate, data, append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)...), nil
}

func validateScope(actorID uuid.UUID, orgIDs []uuid.UUID) error {
	if actorID == uuid.Nil {
		return shared.Errorf(shared.KindValidation, "actor_id is required")
	}
	if len(orgIDs) == 0 {
		return shared.Errorf(shared.KindValidation, "at least one organization is required")
	}
	for _, id := range orgIDs {
		if id == uuid.Nil {
			return shared.Errorf(shared.KindValidation, "organization ids must be set")
		}
	}
	return nil
}

// outcome maps a handler failure onto Asynq retry semantics. Only persistence
// failures and expired deadlines are worth retrying.
func outcome(err error) error {
	if err == nil || shared.Retryable(err) || errors.Is(err, asynq.SkipRetry) {
		return err
	}
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}
