package expenses

import (
	"context"
	"fmt"
	"log/slog"
)

// ExportEnqueuer schedules a background ledger export for an expense.
// Implemented by the jobs package.
type ExportEnqueuer interface {
	EnqueueExpenseExport(ctx context.Context, expenseID int64) error
}

// ExportBundle collects an expense with everything its export documents
// reference.
type ExportBundle struct {
	Expense      Expense
	Items        []PurchaseItem
	Plans        []InstallmentPlan
	Installments map[int64][]Installment
}

// Service exposes expense approval and export staging operations.
type Service struct {
	repo     Repository
	enqueuer ExportEnqueuer
	logger   *slog.Logger
}

// NewService constructs an expense service. enqueuer may be nil.
func NewService(repo Repository, enqueuer ExportEnqueuer, logger *slog.Logger) *Service {
	return &Service{repo: repo, enqueuer: enqueuer, logger: logger}
}

func (s *Service) Get(ctx context.Context, id int64) (Expense, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]Expense, error) {
	return s.repo.ListByStatus(ctx, status, limit)
}

// Approve transitions a submitted expense to APPROVED and schedules the
// ledger export.
func (s *Service) Approve(ctx context.Context, id int64) (Expense, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return Expense{}, err
	}
	switch e.Status {
	case StatusSubmitted:
	case StatusApproved, StatusPaid:
		return e, nil
	default:
		return Expense{}, fmt.Errorf("expenses: %s is %s, only SUBMITTED expenses can be approved", e.Reference, e.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusApproved); err != nil {
		return Expense{}, err
	}
	e.Status = StatusApproved
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueExpenseExport(ctx, id); err != nil {
			s.logger.Error("enqueue expense export",
				slog.Int64("expense_id", id), slog.Any("error", err))
		}
	}
	s.logger.Info("expense approved", slog.String("reference", e.Reference))
	return e, nil
}

// Reject transitions a submitted expense to REJECTED.
func (s *Service) Reject(ctx context.Context, id int64) error {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status != StatusSubmitted {
		return fmt.Errorf("expenses: %s is %s, only SUBMITTED expenses can be rejected", e.Reference, e.Status)
	}
	return s.repo.UpdateStatus(ctx, id, StatusRejected)
}

// ExportData assembles the bundle the background export worker feeds to
// the ledger engine.
func (s *Service) ExportData(ctx context.Context, id int64) (ExportBundle, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return ExportBundle{}, err
	}
	items, err := s.repo.ListItems(ctx, e.ID)
	if err != nil {
		return ExportBundle{}, fmt.Errorf("expenses: list items: %w", err)
	}
	plans, err := s.repo.ListPlans(ctx, e.ID)
	if err != nil {
		return ExportBundle{}, fmt.Errorf("expenses: list plans: %w", err)
	}
	installments := make(map[int64][]Installment, len(plans))
	for _, plan := range plans {
		ins, err := s.repo.ListInstallments(ctx, plan.ID)
		if err != nil {
			return ExportBundle{}, fmt.Errorf("expenses: list installments: %w", err)
		}
		installments[plan.ID] = ins
	}
	return ExportBundle{Expense: e, Items: items, Plans: plans, Installments: installments}, nil
}
