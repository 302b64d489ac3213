package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/billingdesk/billingdesk/internal/billing"
	jobmetrics "github.com/billingdesk/billingdesk/internal/jobs"
)

const defaultSweepLimit = 500

// NewOverdueSweepHandler returns the Asynq handler that transitions
// past-due invoices to OVERDUE.
func NewOverdueSweepHandler(svc *billing.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload OverdueSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		limit := payload.Limit
		if limit <= 0 {
			limit = defaultSweepLimit
		}

		tracker := metrics.Track(TaskOverdueSweep)
		marked, err := svc.SweepOverdue(ctx, limit)
		if err != nil {
			logger.Error("overdue sweep failed", slog.Any("error", err))
			return tracker.End(err)
		}
		metrics.AddOverdueMarked(marked)
		logger.Info("overdue sweep completed", slog.Int("marked", marked))
		return tracker.End(nil)
	}
}
