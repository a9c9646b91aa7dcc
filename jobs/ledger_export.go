package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/urbix-hr/urbix/internal/expenses"
	"github.com/urbix-hr/urbix/internal/ledger"
	"github.com/urbix-hr/urbix/internal/payroll"
	"github.com/urbix-hr/urbix/internal/shared"
)

// exportLockTTL bounds how long a crashed worker can hold an export lock.
const exportLockTTL = 10 * time.Minute

// acquireExportLock takes the per-document export lock. A held lock means
// another worker is already on it; the caller should let the task retry
// later. A nil client disables locking.
func acquireExportLock(ctx context.Context, client *redis.Client, syncType string, sourceID int64) (func(), bool, error) {
	if client == nil {
		return func() {}, true, nil
	}
	key := shared.ExportLockKey(syncType, sourceID)
	ok, err := client.SetNX(ctx, key, "1", exportLockTTL).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() { client.Del(context.WithoutCancel(ctx), key) }
	return release, true, nil
}

// PayrollExportJob submits an approved payroll period to the ledger engine.
type PayrollExportJob struct {
	Payroll *payroll.Service
	Engine  *ledger.Engine
	Redis   *redis.Client
	Logger  *slog.Logger
}

// NewPayrollExportJob wires dependencies for the payroll export handler.
// redis may be nil; exports then run without the cross-worker lock.
func NewPayrollExportJob(payrollSvc *payroll.Service, engine *ledger.Engine, rdb *redis.Client, logger *slog.Logger) *PayrollExportJob {
	return &PayrollExportJob{Payroll: payrollSvc, Engine: engine, Redis: rdb, Logger: logger}
}

// Handle processes TaskPayrollExport tasks.
func (j *PayrollExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("payroll export: handler not configured")
	}
	var payload PayrollExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	release, acquired, err := acquireExportLock(ctx, j.Redis, ledger.SyncTypePayrollPeriod, payload.PeriodID)
	if err != nil {
		return err
	}
	if !acquired {
		return errors.New("payroll export: period export already in progress")
	}
	defer release()
	data, err := j.Payroll.ExportData(ctx, payload.PeriodID)
	if err != nil {
		if errors.Is(err, payroll.ErrPeriodNotFound) {
			j.Logger.Warn("payroll export for missing period", slog.Int64("period_id", payload.PeriodID))
			return asynq.SkipRetry
		}
		return err
	}
	result, err := j.Engine.ExportPayrollPeriod(ctx, data.Period, data.Payslips, data.Advances, data.Transfers)
	if err != nil {
		return classifyExportErr(err)
	}
	j.Logger.Info("payroll period exported",
		slog.String("period", data.Period.Name),
		slog.Int("processed", result.Processed),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped))
	return nil
}

// ExpenseExportJob submits an approved expense to the ledger engine.
type ExpenseExportJob struct {
	Expenses *expenses.Service
	Engine   *ledger.Engine
	Redis    *redis.Client
	Logger   *slog.Logger
}

// NewExpenseExportJob wires dependencies for the expense export handler.
// redis may be nil; exports then run without the cross-worker lock.
func NewExpenseExportJob(expenseSvc *expenses.Service, engine *ledger.Engine, rdb *redis.Client, logger *slog.Logger) *ExpenseExportJob {
	return &ExpenseExportJob{Expenses: expenseSvc, Engine: engine, Redis: rdb, Logger: logger}
}

// Handle processes TaskExpenseExport tasks.
func (j *ExpenseExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("expense export: handler not configured")
	}
	var payload ExpenseExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	release, acquired, err := acquireExportLock(ctx, j.Redis, ledger.SyncTypeExpense, payload.ExpenseID)
	if err != nil {
		return err
	}
	if !acquired {
		return errors.New("expense export: expense export already in progress")
	}
	defer release()
	bundle, err := j.Expenses.ExportData(ctx, payload.ExpenseID)
	if err != nil {
		if errors.Is(err, expenses.ErrNotFound) {
			j.Logger.Warn("expense export for missing expense", slog.Int64("expense_id", payload.ExpenseID))
			return asynq.SkipRetry
		}
		return err
	}
	err = j.Engine.ExportExpense(ctx, ledger.ExpenseRecords{
		Expense:      bundle.Expense,
		Items:        bundle.Items,
		Plans:        bundle.Plans,
		Installments: bundle.Installments,
	})
	if err != nil {
		return classifyExportErr(err)
	}
	j.Logger.Info("expense exported", slog.String("reference", bundle.Expense.Reference))
	return nil
}

// UnsyncedSource lists source documents the connector never acknowledged.
type UnsyncedSource interface {
	ListUnsynced(ctx context.Context, syncType string, limit int) ([]string, error)
}

// ExportEnqueuer re-enqueues export tasks for the sweep.
type ExportEnqueuer interface {
	EnqueuePayrollExport(ctx context.Context, periodID int64) error
	EnqueueExpenseExport(ctx context.Context, expenseID int64) error
}

// ExportRetryJob sweeps documents the connector never acknowledged and
// re-enqueues their exports. Scheduled via cron.
type ExportRetryJob struct {
	Store  UnsyncedSource
	Client ExportEnqueuer
	Logger *slog.Logger
}

// NewExportRetryJob wires dependencies for the retry sweep.
func NewExportRetryJob(store UnsyncedSource, client ExportEnqueuer, logger *slog.Logger) *ExportRetryJob {
	return &ExportRetryJob{Store: store, Client: client, Logger: logger}
}

// Handle processes TaskExportRetry tasks.
func (j *ExportRetryJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil {
		return errors.New("export retry: handler not configured")
	}
	requeued := 0
	periodIDs, err := j.Store.ListUnsynced(ctx, ledger.SyncTypePayrollPeriod, 50)
	if err != nil {
		return err
	}
	for _, raw := range periodIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if err := j.Client.EnqueuePayrollExport(ctx, id); err != nil {
			return err
		}
		requeued++
	}
	expenseIDs, err := j.Store.ListUnsynced(ctx, ledger.SyncTypeExpense, 50)
	if err != nil {
		return err
	}
	for _, raw := range expenseIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if err := j.Client.EnqueueExpenseExport(ctx, id); err != nil {
			return err
		}
		requeued++
	}
	if requeued > 0 {
		j.Logger.Info("unsynced exports requeued", slog.Int("count", requeued))
	}
	return nil
}

// classifyExportErr keeps retries for transport failures and stops them for
// construction or rejection failures, which repeat identically.
func classifyExportErr(err error) error {
	if err == nil {
		return nil
	}
	if ledger.Retryable(err) {
		return err
	}
	return errors.Join(err, asynq.SkipRetry)
}
