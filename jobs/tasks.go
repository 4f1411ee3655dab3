package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBudgetIntegrity recomputes site budget counters from settled bills.
	TaskBudgetIntegrity = "budget:integrity"
	// TaskLedgerWarmup pre-populates the cached reporting views.
	TaskLedgerWarmup = "ledger:warmup"
)

// BudgetIntegrityPayload configures a budget integrity sweep.
type BudgetIntegrityPayload struct {
	// Repair rewrites drifted counters instead of only reporting them.
	Repair bool `json:"repair"`
}

// NewBudgetIntegrityTask constructs a budget integrity task.
func NewBudgetIntegrityTask(repair bool) (*asynq.Task, error) {
	data, err := json.Marshal(BudgetIntegrityPayload{Repair: repair})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBudgetIntegrity, data), nil
}

// LedgerWarmupPayload configures a ledger warmup run.
type LedgerWarmupPayload struct {
	Scope string `json:"scope"`
}

// NewLedgerWarmupTask constructs a ledger warmup task.
func NewLedgerWarmupTask(scope string) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerWarmupPayload{Scope: scope})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerWarmup, data), nil
}
