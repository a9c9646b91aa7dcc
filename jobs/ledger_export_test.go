package jobs_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/urbix-hr/urbix/internal/ledger"
	"github.com/urbix-hr/urbix/jobs"
	_ "github.com/urbix-hr/urbix/testing"
)

type stubUnsyncedSource map[string][]string

func (s stubUnsyncedSource) ListUnsynced(_ context.Context, syncType string, _ int) ([]string, error) {
	return s[syncType], nil
}

type stubExportEnqueuer struct {
	periods  []int64
	expenses []int64
}

func (e *stubExportEnqueuer) EnqueuePayrollExport(_ context.Context, periodID int64) error {
	e.periods = append(e.periods, periodID)
	return nil
}

func (e *stubExportEnqueuer) EnqueueExpenseExport(_ context.Context, expenseID int64) error {
	e.expenses = append(e.expenses, expenseID)
	return nil
}

func TestExportRetryRequeuesUnsynced(t *testing.T) {
	store := stubUnsyncedSource{
		ledger.SyncTypePayrollPeriod: {"42"},
		ledger.SyncTypeExpense:       {"31", "33"},
	}
	enq := &stubExportEnqueuer{}
	job := jobs.NewExportRetryJob(store, enq, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, job.Handle(context.Background(), jobs.NewExportRetryTask()))
	require.Equal(t, []int64{42}, enq.periods)
	require.Equal(t, []int64{31, 33}, enq.expenses)
}

func TestExportRetryNothingPending(t *testing.T) {
	enq := &stubExportEnqueuer{}
	job := jobs.NewExportRetryJob(stubUnsyncedSource{}, enq, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, job.Handle(context.Background(), jobs.NewExportRetryTask()))
	require.Empty(t, enq.periods)
	require.Empty(t, enq.expenses)
}
