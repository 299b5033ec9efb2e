package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/heraerp/heraerp-prd-sub081/internal/platform/httpx"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

const maxTriggerBody = 64 << 10

// Trigger enqueues jobs on demand. *Client satisfies it.
type Trigger interface {
	EnqueueReconcile(ctx context.Context, payload ReconcilePayload) (*asynq.TaskInfo, error)
	EnqueueChartValidate(ctx context.Context, payload ChartValidatePayload) (*asynq.TaskInfo, error)
}

// TriggerHandler serves POST /jobs/{type}: it decodes the task payload and
// enqueues it.
type TriggerHandler struct {
	jobs   Trigger
	logger *slog.Logger
}

// NewTriggerHandler constructs the trigger endpoint.
func NewTriggerHandler(jobs Trigger, logger *slog.Logger) *TriggerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerHandler{jobs: jobs, logger: logger}
}

type triggerResponse struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Queue string `json:"queue"`
}

func (h *TriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	taskType := chi.URLParam(r, "type")
	var (
		info *asynq.TaskInfo
		err  error
	)
	switch taskType {
	case TaskLedgerReconcile:
		var payload ReconcilePayload
		if err = decodePayload(w, r, &payload); err == nil {
			info, err = h.jobs.EnqueueReconcile(r.Context(), payload)
		}
	case TaskChartValidate:
		var payload ChartValidatePayload
		if err = decodePayload(w, r, &payload); err == nil {
			info, err = h.jobs.EnqueueChartValidate(r.Context(), payload)
		}
	default:
		err = shared.Errorf(shared.KindNotFound, "unknown job type %q", taskType)
	}
	if err != nil {
		err = shared.WrapPersistence("jobs: enqueue "+taskType, err)
		if shared.KindOf(err) == shared.KindPersistence {
			h.logger.Error("jobs trigger", slog.String("type", taskType), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("job enqueued", slog.String("type", info.Type), slog.String("id", info.ID))
	httpx.JSON(w, http.StatusAccepted, triggerResponse{ID: info.ID, Type: info.Type, Queue: info.Queue})
}

func decodePayload(w http.ResponseWriter, r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTriggerBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return shared.Errorf(shared.KindValidation, "decode payload: %v", err)
	}
	return nil
}
