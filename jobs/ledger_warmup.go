package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/buildledger/buildledger/internal/ledger"
	"github.com/buildledger/buildledger/internal/observability"
)

// LedgerWarmupJob pre-populates the cached reporting views so the first
// dashboard hit after an invalidation stays fast.
type LedgerWarmupJob struct {
	Ledger  *ledger.Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewLedgerWarmupJob wires dependencies for the warmup handler.
func NewLedgerWarmupJob(svc *ledger.Service, logger *slog.Logger, metrics *observability.Metrics) *LedgerWarmupJob {
	return &LedgerWarmupJob{Ledger: svc, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLedgerWarmup tasks.
func (j *LedgerWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger warmup: handler not configured")
	}
	var payload LedgerWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	start := time.Now()

	warmCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if err := j.Ledger.Warm(warmCtx); err != nil {
		j.Metrics.ObserveJob(TaskLedgerWarmup, "error")
		logger.Error("ledger warmup", slog.Any("error", err))
		return err
	}
	j.Metrics.ObserveJob(TaskLedgerWarmup, "ok")
	logger.Info("completed ledger warmup", slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *LedgerWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerWarmup))
	}
	return slog.Default().With(slog.String("job", TaskLedgerWarmup))
}
