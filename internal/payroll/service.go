package payroll

import (
	"context"
	"fmt"
	"log/slog"
)

// ExportEnqueuer schedules a background ledger export for a period.
// Implemented by the jobs package so approval never blocks on the
// accounting system.
type ExportEnqueuer interface {
	EnqueuePayrollExport(ctx context.Context, periodID int64) error
}

// PeriodExportData bundles everything the ledger export needs for one run.
type PeriodExportData struct {
	Period    Period
	Payslips  []Payslip
	Advances  []Advance
	Transfers []BankTransfer
}

// Service exposes payroll period operations.
type Service struct {
	repo     Repository
	enqueuer ExportEnqueuer
	logger   *slog.Logger
}

// NewService constructs a payroll service. enqueuer may be nil; approval
// then skips scheduling the export.
func NewService(repo Repository, enqueuer ExportEnqueuer, logger *slog.Logger) *Service {
	return &Service{repo: repo, enqueuer: enqueuer, logger: logger}
}

func (s *Service) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return s.repo.GetPeriod(ctx, id)
}

func (s *Service) ListPeriods(ctx context.Context, limit int) ([]Period, error) {
	return s.repo.ListPeriods(ctx, limit)
}

// ApprovePeriod moves a completed period to APPROVED and schedules the
// ledger export.
func (s *Service) ApprovePeriod(ctx context.Context, id int64) (Period, error) {
	p, err := s.repo.GetPeriod(ctx, id)
	if err != nil {
		return Period{}, err
	}
	switch p.Status {
	case PeriodStatusCompleted:
	case PeriodStatusApproved, PeriodStatusPaid:
		return p, nil
	default:
		return Period{}, fmt.Errorf("payroll: period %s is %s, only COMPLETED periods can be approved", p.Name, p.Status)
	}
	if err := s.repo.UpdatePeriodStatus(ctx, id, PeriodStatusApproved); err != nil {
		return Period{}, err
	}
	p.Status = PeriodStatusApproved
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueuePayrollExport(ctx, id); err != nil {
			// Approval stands; the export can be re-triggered manually.
			s.logger.Error("enqueue payroll export",
				slog.Int64("period_id", id), slog.Any("error", err))
		}
	}
	s.logger.Info("payroll period approved", slog.String("period", p.Name))
	return p, nil
}

// MarkPeriodPaid records that the payout batch has settled.
func (s *Service) MarkPeriodPaid(ctx context.Context, id int64) error {
	p, err := s.repo.GetPeriod(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != PeriodStatusApproved {
		return fmt.Errorf("payroll: period %s is %s, only APPROVED periods can be paid", p.Name, p.Status)
	}
	return s.repo.UpdatePeriodStatus(ctx, id, PeriodStatusPaid)
}

// ExportData collects the period with its payslips, the advances disbursed
// inside its date range, and its payout batches. Used by the background
// export worker.
func (s *Service) ExportData(ctx context.Context, periodID int64) (PeriodExportData, error) {
	p, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return PeriodExportData{}, err
	}
	slips, err := s.repo.ListPayslips(ctx, p.ID)
	if err != nil {
		return PeriodExportData{}, fmt.Errorf("payroll: list payslips: %w", err)
	}
	advances, err := s.repo.ListAdvancesBetween(ctx, p.StartDate, p.EndDate)
	if err != nil {
		return PeriodExportData{}, fmt.Errorf("payroll: list advances: %w", err)
	}
	transfers, err := s.repo.ListTransfers(ctx, p.ID)
	if err != nil {
		return PeriodExportData{}, fmt.Errorf("payroll: list transfers: %w", err)
	}
	return PeriodExportData{Period: p, Payslips: slips, Advances: advances, Transfers: transfers}, nil
}
