package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueExports carries ledger export work so a slow accounting API
	// never starves other tasks.
	QueueExports = "exports"

	// TaskPayrollExport submits an approved payroll period to the ledger.
	TaskPayrollExport = "ledger:payroll_export"
	// TaskExpenseExport submits an approved expense to the ledger.
	TaskExpenseExport = "ledger:expense_export"
	// TaskExportRetry re-submits documents the connector never acknowledged.
	TaskExportRetry = "ledger:export_retry"
	// TaskLicenseVerify re-verifies the license against the vendor server.
	TaskLicenseVerify = "license:verify"
	// TaskAttendancePoll drains punches from attendance terminals.
	TaskAttendancePoll = "attendance:poll"
)

// PayrollExportPayload names the period to export.
type PayrollExportPayload struct {
	PeriodID int64 `json:"period_id"`
}

// NewPayrollExportTask constructs an Asynq task.
func NewPayrollExportTask(periodID int64) (*asynq.Task, error) {
	data, err := json.Marshal(PayrollExportPayload{PeriodID: periodID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayrollExport, data), nil
}

// ExpenseExportPayload names the expense to export.
type ExpenseExportPayload struct {
	ExpenseID int64 `json:"expense_id"`
}

// NewExpenseExportTask constructs an Asynq task.
func NewExpenseExportTask(expenseID int64) (*asynq.Task, error) {
	data, err := json.Marshal(ExpenseExportPayload{ExpenseID: expenseID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpenseExport, data), nil
}

// NewExportRetryTask constructs the cron retry sweep task.
func NewExportRetryTask() *asynq.Task {
	return asynq.NewTask(TaskExportRetry, nil)
}

// NewLicenseVerifyTask constructs the cron license verification task.
func NewLicenseVerifyTask() *asynq.Task {
	return asynq.NewTask(TaskLicenseVerify, nil)
}

// AttendancePollPayload names the device to poll.
type AttendancePollPayload struct {
	Device string `json:"device"`
}

// NewAttendancePollTask constructs an attendance poll task.
func NewAttendancePollTask(device string) (*asynq.Task, error) {
	data, err := json.Marshal(AttendancePollPayload{Device: device})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAttendancePoll, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueuePayrollExport schedules a payroll period export.
func (c *Client) EnqueuePayrollExport(ctx context.Context, periodID int64) error {
	task, err := NewPayrollExportTask(periodID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueExports), asynq.MaxRetry(5))
	return err
}

// EnqueueExpenseExport schedules an expense export.
func (c *Client) EnqueueExpenseExport(ctx context.Context, expenseID int64) error {
	task, err := NewExpenseExportTask(expenseID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueExports), asynq.MaxRetry(5))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
