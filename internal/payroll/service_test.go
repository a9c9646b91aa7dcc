package payroll_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/urbix-hr/urbix/internal/payroll"
)

type stubRepo struct {
	periods   map[int64]payroll.Period
	payslips  map[int64][]payroll.Payslip
	advances  []payroll.Advance
	transfers map[int64][]payroll.BankTransfer
	updates   []payroll.PeriodStatus
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		periods:   map[int64]payroll.Period{},
		payslips:  map[int64][]payroll.Payslip{},
		transfers: map[int64][]payroll.BankTransfer{},
	}
}

func (r *stubRepo) GetPeriod(_ context.Context, id int64) (payroll.Period, error) {
	p, ok := r.periods[id]
	if !ok {
		return payroll.Period{}, payroll.ErrPeriodNotFound
	}
	return p, nil
}

func (r *stubRepo) GetPeriodByMonth(_ context.Context, year, month int) (payroll.Period, error) {
	for _, p := range r.periods {
		if p.Year == year && p.Month == month {
			return p, nil
		}
	}
	return payroll.Period{}, payroll.ErrPeriodNotFound
}

func (r *stubRepo) ListPeriods(_ context.Context, limit int) ([]payroll.Period, error) {
	out := make([]payroll.Period, 0, len(r.periods))
	for _, p := range r.periods {
		out = append(out, p)
	}
	return out, nil
}

func (r *stubRepo) UpdatePeriodStatus(_ context.Context, id int64, status payroll.PeriodStatus) error {
	p, ok := r.periods[id]
	if !ok {
		return payroll.ErrPeriodNotFound
	}
	p.Status = status
	r.periods[id] = p
	r.updates = append(r.updates, status)
	return nil
}

func (r *stubRepo) ListPayslips(_ context.Context, periodID int64) ([]payroll.Payslip, error) {
	return r.payslips[periodID], nil
}

func (r *stubRepo) GetAdvance(_ context.Context, id int64) (payroll.Advance, error) {
	for _, adv := range r.advances {
		if adv.ID == id {
			return adv, nil
		}
	}
	return payroll.Advance{}, payroll.ErrPeriodNotFound
}

func (r *stubRepo) ListAdvancesBetween(_ context.Context, from, to time.Time) ([]payroll.Advance, error) {
	var out []payroll.Advance
	for _, adv := range r.advances {
		if adv.DisbursementDate == nil {
			continue
		}
		d := *adv.DisbursementDate
		if !d.Before(from) && !d.After(to) {
			out = append(out, adv)
		}
	}
	return out, nil
}

func (r *stubRepo) ListTransfers(_ context.Context, periodID int64) ([]payroll.BankTransfer, error) {
	return r.transfers[periodID], nil
}

type stubEnqueuer struct {
	enqueued []int64
	err      error
}

func (e *stubEnqueuer) EnqueuePayrollExport(_ context.Context, periodID int64) error {
	if e.err != nil {
		return e.err
	}
	e.enqueued = append(e.enqueued, periodID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completedPeriod() payroll.Period {
	return payroll.Period{
		ID:        42,
		Year:      2024,
		Month:     7,
		Name:      "July 2024",
		StartDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC),
		Status:    payroll.PeriodStatusCompleted,
	}
}

func TestApprovePeriod(t *testing.T) {
	repo := newStubRepo()
	repo.periods[42] = completedPeriod()
	enq := &stubEnqueuer{}
	svc := payroll.NewService(repo, enq, testLogger())

	p, err := svc.ApprovePeriod(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, payroll.PeriodStatusApproved, p.Status)
	require.Equal(t, []int64{42}, enq.enqueued)
}

func TestApprovePeriodIdempotent(t *testing.T) {
	repo := newStubRepo()
	p := completedPeriod()
	p.Status = payroll.PeriodStatusApproved
	repo.periods[42] = p
	enq := &stubEnqueuer{}
	svc := payroll.NewService(repo, enq, testLogger())

	got, err := svc.ApprovePeriod(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, payroll.PeriodStatusApproved, got.Status)
	require.Empty(t, enq.enqueued, "re-approval must not schedule another export")
	require.Empty(t, repo.updates)
}

func TestApprovePeriodRejectsDraft(t *testing.T) {
	repo := newStubRepo()
	p := completedPeriod()
	p.Status = payroll.PeriodStatusDraft
	repo.periods[42] = p
	svc := payroll.NewService(repo, &stubEnqueuer{}, testLogger())

	_, err := svc.ApprovePeriod(context.Background(), 42)
	if err == nil {
		t.Fatal("expected approval of a DRAFT period to fail")
	}
}

func TestApprovePeriodSurvivesEnqueueFailure(t *testing.T) {
	repo := newStubRepo()
	repo.periods[42] = completedPeriod()
	enq := &stubEnqueuer{err: errors.New("redis down")}
	svc := payroll.NewService(repo, enq, testLogger())

	p, err := svc.ApprovePeriod(context.Background(), 42)
	require.NoError(t, err, "a broken queue must not roll back the approval")
	require.Equal(t, payroll.PeriodStatusApproved, p.Status)
}

func TestMarkPeriodPaid(t *testing.T) {
	repo := newStubRepo()
	p := completedPeriod()
	p.Status = payroll.PeriodStatusApproved
	repo.periods[42] = p
	svc := payroll.NewService(repo, nil, testLogger())

	require.NoError(t, svc.MarkPeriodPaid(context.Background(), 42))
	require.Equal(t, payroll.PeriodStatusPaid, repo.periods[42].Status)

	err := svc.MarkPeriodPaid(context.Background(), 42)
	if err == nil {
		t.Fatal("expected paying a PAID period to fail")
	}
}

func TestExportData(t *testing.T) {
	repo := newStubRepo()
	repo.periods[42] = completedPeriod()
	repo.payslips[42] = []payroll.Payslip{{ID: 101, Reference: "PS-101", PeriodID: 42}}
	inside := time.Date(2024, 7, 12, 0, 0, 0, 0, time.UTC)
	outside := time.Date(2024, 8, 2, 0, 0, 0, 0, time.UTC)
	repo.advances = []payroll.Advance{
		{ID: 5, Reference: "ADV-005", Amount: decimal.NewFromInt(15000), DisbursementDate: &inside},
		{ID: 6, Reference: "ADV-006", Amount: decimal.NewFromInt(8000), DisbursementDate: &outside},
	}
	repo.transfers[42] = []payroll.BankTransfer{{ID: 2, BatchRef: "BATCH-2024-07", PeriodID: 42}}
	svc := payroll.NewService(repo, nil, testLogger())

	data, err := svc.ExportData(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, data.Payslips, 1)
	require.Len(t, data.Advances, 1, "advances outside the period window stay out")
	require.Equal(t, "ADV-005", data.Advances[0].Reference)
	require.Len(t, data.Transfers, 1)
}

func TestExportDataMissingPeriod(t *testing.T) {
	svc := payroll.NewService(newStubRepo(), nil, testLogger())
	_, err := svc.ExportData(context.Background(), 99)
	require.ErrorIs(t, err, payroll.ErrPeriodNotFound)
}
