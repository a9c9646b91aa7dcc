package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/urbix-hr/urbix/internal/employees"
	"github.com/urbix-hr/urbix/internal/expenses"
	"github.com/urbix-hr/urbix/internal/payroll"
)

// Sync types recorded in the audit log.
const (
	SyncTypePayrollPeriod = "PAYROLL_PERIOD"
	SyncTypePayslip       = "PAYSLIP"
	SyncTypeAdvance       = "SALARY_ADVANCE"
	SyncTypeBankTransfer  = "BANK_TRANSFER"
	SyncTypeExpense       = "EXPENSE"
	SyncTypeFullSync      = "FULL_SYNC"
)

// EmployeeSource resolves employee records for vendor projection.
type EmployeeSource interface {
	GetByID(ctx context.Context, id int64) (employees.Employee, error)
}

// Store persists sync logs and per-document sync state. A document's
// synced flag flips only after the connector acknowledged it; MarkPending
// records the attempt first so the retry sweep can find documents whose
// submission never completed.
type Store interface {
	CreateLog(ctx context.Context, syncType, sourceID, sourceRef string) (int64, error)
	MarkLogStarted(ctx context.Context, logID int64) error
	MarkLogCompleted(ctx context.Context, logID int64, processed, succeeded, failed int, externalRef string) error
	MarkLogFailed(ctx context.Context, logID int64, message string) error
	IsSynced(ctx context.Context, syncType, sourceID string) (bool, error)
	MarkPending(ctx context.Context, syncType, sourceID, sourceRef string) error
	MarkSynced(ctx context.Context, syncType, sourceID, sourceRef, externalID string) error
}

// BatchResult summarises a multi-document export.
type BatchResult struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
}

// Engine translates committed payroll and expense records into balanced
// external-ledger documents and submits them through the connector.
type Engine struct {
	connector   Connector
	mappings    MappingRepository
	departments DepartmentRepository
	store       Store
	employees   EmployeeSource
	companyName string
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	vendors map[int64]EntityRef
}

// NewEngine constructs the export engine.
func NewEngine(connector Connector, mappings MappingRepository, departments DepartmentRepository, store Store, emps EmployeeSource, companyName string, logger *slog.Logger) *Engine {
	return &Engine{
		connector:   connector,
		mappings:    mappings,
		departments: departments,
		store:       store,
		employees:   emps,
		companyName: companyName,
		logger:      logger,
		now:         time.Now,
		vendors:     make(map[int64]EntityRef),
	}
}

// WithNow overrides the clock, for tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// entityRef upserts the employee's vendor projection and returns the
// external reference. Refs are cached per engine so a payslip batch does
// not re-upsert the same vendor for every document.
func (e *Engine) entityRef(ctx context.Context, employeeID int64) (EntityRef, error) {
	e.mu.Lock()
	ref, ok := e.vendors[employeeID]
	e.mu.Unlock()
	if ok {
		return ref, nil
	}

	emp, err := e.employees.GetByID(ctx, employeeID)
	if err != nil {
		return EntityRef{}, fmt.Errorf("ledger: load employee %d: %w", employeeID, err)
	}
	rec := ProjectVendor(emp, e.companyName)
	externalID, err := e.connector.UpsertVendor(ctx, rec)
	if err != nil {
		return EntityRef{}, fmt.Errorf("ledger: upsert vendor for %s: %w", emp.Code, err)
	}
	ref = EntityRef{ID: externalID, Name: rec.DisplayName, Type: "Vendor"}

	e.mu.Lock()
	e.vendors[employeeID] = ref
	e.mu.Unlock()
	return ref, nil
}

// ExportPayrollPeriod submits the aggregate period entry, then the period's
// payslips, advances, and bank transfers as independent documents. A
// failure inside the detail batch never rolls back documents already
// acknowledged; resubmission converges through doc-number idempotency.
func (e *Engine) ExportPayrollPeriod(ctx context.Context, p payroll.Period, slips []payroll.Payslip, advances []payroll.Advance, transfers []payroll.BankTransfer) (BatchResult, error) {
	var res BatchResult
	sourceID := fmt.Sprintf("%d", p.ID)

	logID, err := e.store.CreateLog(ctx, SyncTypePayrollPeriod, sourceID, p.Name)
	if err != nil {
		return res, fmt.Errorf("ledger: create sync log: %w", err)
	}
	_ = e.store.MarkLogStarted(ctx, logID)

	synced, err := e.store.IsSynced(ctx, SyncTypePayrollPeriod, sourceID)
	if err != nil {
		_ = e.store.MarkLogFailed(ctx, logID, err.Error())
		return res, err
	}

	if synced {
		res.Skipped++
	} else {
		_ = e.store.MarkPending(ctx, SyncTypePayrollPeriod, sourceID, p.Name)
		entry, err := PeriodEntry(ctx, e.mappings, p)
		if err != nil {
			_ = e.store.MarkLogFailed(ctx, logID, err.Error())
			return res, err
		}
		externalID, err := e.connector.UpsertJournalEntry(ctx, entry)
		if err != nil {
			_ = e.store.MarkLogFailed(ctx, logID, err.Error())
			return res, err
		}
		if err := e.store.MarkSynced(ctx, SyncTypePayrollPeriod, sourceID, p.Name, externalID); err != nil {
			_ = e.store.MarkLogFailed(ctx, logID, err.Error())
			return res, err
		}
		res.Processed++
		res.Succeeded++
	}

	detail := e.exportPeriodDetails(ctx, p, slips, advances, transfers)
	res.Processed += detail.Processed
	res.Succeeded += detail.Succeeded
	res.Failed += detail.Failed
	res.Skipped += detail.Skipped

	_ = e.store.MarkLogCompleted(ctx, logID, res.Processed, res.Succeeded, res.Failed, "")
	return res, nil
}

// exportPeriodDetails runs the detail documents; each failure is logged
// and counted, never fatal to its siblings.
func (e *Engine) exportPeriodDetails(ctx context.Context, p payroll.Period, slips []payroll.Payslip, advances []payroll.Advance, transfers []payroll.BankTransfer) BatchResult {
	var res BatchResult
	for _, slip := range slips {
		switch slip.Status {
		case payroll.PayslipStatusCalculated, payroll.PayslipStatusApproved, payroll.PayslipStatusPaid:
		default:
			continue
		}
		res.Processed++
		if err := e.ExportPayslip(ctx, slip, p.Name, p.EndDate); err != nil {
			res.Failed++
			e.logger.Warn("payslip export failed", slog.String("reference", slip.Reference), slog.Any("error", err))
			continue
		}
		res.Succeeded++
	}
	for _, adv := range advances {
		switch adv.Status {
		case payroll.AdvanceStatusApproved, payroll.AdvanceStatusActive:
		default:
			continue
		}
		res.Processed++
		if err := e.ExportAdvance(ctx, adv); err != nil {
			res.Failed++
			e.logger.Warn("advance export failed", slog.String("reference", adv.Reference), slog.Any("error", err))
			continue
		}
		res.Succeeded++
	}
	for _, bt := range transfers {
		res.Processed++
		if err := e.ExportBankTransfer(ctx, bt, p.Name); err != nil {
			res.Failed++
			e.logger.Warn("bank transfer export failed", slog.String("batch", bt.BatchRef), slog.Any("error", err))
			continue
		}
		res.Succeeded++
	}
	return res
}

// ExportPayslip submits one payslip journal entry.
func (e *Engine) ExportPayslip(ctx context.Context, slip payroll.Payslip, periodName string, txnDate time.Time) error {
	sourceID := fmt.Sprintf("%d", slip.ID)
	synced, err := e.store.IsSynced(ctx, SyncTypePayslip, sourceID)
	if err != nil {
		return err
	}
	if synced {
		return nil
	}
	_ = e.store.MarkPending(ctx, SyncTypePayslip, sourceID, slip.Reference)

	emp, err := e.employees.GetByID(ctx, slip.EmployeeID)
	if err != nil {
		return fmt.Errorf("ledger: load employee %d: %w", slip.EmployeeID, err)
	}
	entity, err := e.entityRef(ctx, slip.EmployeeID)
	if err != nil {
		return err
	}
	entry, err := PayslipEntry(ctx, e.mappings, slip, periodName, txnDate, emp.FullName())
	if err != nil {
		return err
	}
	entry.Entity = &entity
	entry.Department = departmentRef(ctx, e.departments, emp.DepartmentID)

	externalID, err := e.connector.UpsertJournalEntry(ctx, entry)
	if err != nil {
		return err
	}
	return e.store.MarkSynced(ctx, SyncTypePayslip, sourceID, slip.Reference, externalID)
}

// ExportAdvance submits one salary advance journal entry.
func (e *Engine) ExportAdvance(ctx context.Context, adv payroll.Advance) error {
	sourceID := fmt.Sprintf("%d", adv.ID)
	synced, err := e.store.IsSynced(ctx, SyncTypeAdvance, sourceID)
	if err != nil {
		return err
	}
	if synced {
		return nil
	}
	_ = e.store.MarkPending(ctx, SyncTypeAdvance, sourceID, adv.Reference)

	emp, err := e.employees.GetByID(ctx, adv.EmployeeID)
	if err != nil {
		return fmt.Errorf("ledger: load employee %d: %w", adv.EmployeeID, err)
	}
	entity, err := e.entityRef(ctx, adv.EmployeeID)
	if err != nil {
		return err
	}
	entry, err := AdvanceEntry(ctx, e.mappings, adv, emp.FullName(), e.now())
	if err != nil {
		return err
	}
	entry.Entity = &entity
	entry.Department = departmentRef(ctx, e.departments, emp.DepartmentID)

	externalID, err := e.connector.UpsertJournalEntry(ctx, entry)
	if err != nil {
		return err
	}
	return e.store.MarkSynced(ctx, SyncTypeAdvance, sourceID, adv.Reference, externalID)
}

// ExportBankTransfer submits one payout batch journal entry.
func (e *Engine) ExportBankTransfer(ctx context.Context, bt payroll.BankTransfer, periodName string) error {
	sourceID := fmt.Sprintf("%d", bt.ID)
	synced, err := e.store.IsSynced(ctx, SyncTypeBankTransfer, sourceID)
	if err != nil {
		return err
	}
	if synced {
		return nil
	}
	_ = e.store.MarkPending(ctx, SyncTypeBankTransfer, sourceID, bt.BatchRef)

	entry, err := BankTransferEntry(ctx, e.mappings, bt, periodName, e.now())
	if err != nil {
		return err
	}
	externalID, err := e.connector.UpsertJournalEntry(ctx, entry)
	if err != nil {
		return err
	}
	return e.store.MarkSynced(ctx, SyncTypeBankTransfer, sourceID, bt.BatchRef, externalID)
}

// ExpenseRecords bundles an expense with its purchase items and plans.
type ExpenseRecords struct {
	Expense      expenses.Expense
	Items        []expenses.PurchaseItem
	Plans        []expenses.InstallmentPlan
	Installments map[int64][]expenses.Installment
}

// ExportExpense dispatches an expense to its document variants: a credit
// memo for returned items, installment plan and processed installment
// entries, and then either a purchase document (reimbursable) or a journal
// entry (non-reimbursable) as the main document. Side documents are best
// effort; only the main document controls the synced flag.
func (e *Engine) ExportExpense(ctx context.Context, rec ExpenseRecords) error {
	exp := rec.Expense
	sourceID := fmt.Sprintf("%d", exp.ID)
	logID, err := e.store.CreateLog(ctx, SyncTypeExpense, sourceID, exp.Reference)
	if err != nil {
		return fmt.Errorf("ledger: create sync log: %w", err)
	}
	_ = e.store.MarkLogStarted(ctx, logID)

	synced, err := e.store.IsSynced(ctx, SyncTypeExpense, sourceID)
	if err != nil {
		_ = e.store.MarkLogFailed(ctx, logID, err.Error())
		return err
	}
	if synced {
		_ = e.store.MarkLogCompleted(ctx, logID, 1, 1, 0, "")
		return nil
	}
	_ = e.store.MarkPending(ctx, SyncTypeExpense, sourceID, exp.Reference)

	e.exportExpenseSideDocuments(ctx, rec)

	var externalID string
	if exp.IsReimbursable {
		entity, err := e.entityRef(ctx, exp.EmployeeID)
		if err != nil {
			_ = e.store.MarkLogFailed(ctx, logID, err.Error())
			return err
		}
		doc, err := ReimbursementDocument(ctx, e.mappings, e.departments, exp, rec.Items, entity)
		if err != nil {
			_ = e.store.MarkLogFailed(ctx, logID, err.Error())
			return err
		}
		externalID, err = e.connector.UpsertPurchase(ctx, doc)
		if err != nil {
			_ = e.store.MarkLogFailed(ctx, logID, err.Error())
			return err
		}
	} else {
		entry, err := ExpenseEntry(ctx, e.mappings, exp)
		if err != nil {
			_ = e.store.MarkLogFailed(ctx, logID, err.Error())
			return err
		}
		entry.Department = departmentRef(ctx, e.departments, exp.DepartmentID)
		externalID, err = e.connector.UpsertJournalEntry(ctx, entry)
		if err != nil {
			_ = e.store.MarkLogFailed(ctx, logID, err.Error())
			return err
		}
	}

	if err := e.store.MarkSynced(ctx, SyncTypeExpense, sourceID, exp.Reference, externalID); err != nil {
		_ = e.store.MarkLogFailed(ctx, logID, err.Error())
		return err
	}
	_ = e.store.MarkLogCompleted(ctx, logID, 1, 1, 0, externalID)
	return nil
}

func (e *Engine) exportExpenseSideDocuments(ctx context.Context, rec ExpenseRecords) {
	exp := rec.Expense

	var returned []expenses.PurchaseItem
	for _, item := range rec.Items {
		if item.IsActive && item.ReturnStatus == expenses.ReturnStatusReturned {
			returned = append(returned, item)
		}
	}
	if len(returned) > 0 {
		entity, err := e.entityRef(ctx, exp.EmployeeID)
		if err == nil {
			memo, err := ReturnsCreditMemo(exp, returned, entity, e.now())
			if err != nil {
				e.logger.Warn("credit memo skipped", slog.String("reference", exp.Reference), slog.Any("error", err))
			} else if _, err := e.connector.UpsertCreditMemo(ctx, memo); err != nil {
				e.logger.Warn("credit memo submit failed", slog.String("doc", memo.DocNumber), slog.Any("error", err))
			}
		}
	}

	for _, plan := range rec.Plans {
		if !plan.IsActive {
			continue
		}
		entry, err := InstallmentPlanEntry(ctx, e.mappings, exp, plan)
		if err != nil {
			e.logger.Warn("installment plan skipped", slog.String("reference", exp.Reference), slog.Any("error", err))
			continue
		}
		if _, err := e.connector.UpsertJournalEntry(ctx, entry); err != nil {
			e.logger.Warn("installment plan submit failed", slog.String("doc", entry.DocNumber), slog.Any("error", err))
			continue
		}
		for _, inst := range rec.Installments[plan.ID] {
			if !inst.IsActive || !inst.IsProcessed {
				continue
			}
			instEntry, err := InstallmentEntry(ctx, e.mappings, exp, plan, inst)
			if err != nil {
				e.logger.Warn("installment skipped", slog.String("doc", InstallmentDocNumber(exp.Reference, inst.Number)), slog.Any("error", err))
				continue
			}
			if _, err := e.connector.UpsertJournalEntry(ctx, instEntry); err != nil {
				e.logger.Warn("installment submit failed", slog.String("doc", instEntry.DocNumber), slog.Any("error", err))
			}
		}
	}
}

// PeriodRecords bundles a payroll period with its detail documents.
type PeriodRecords struct {
	Period    payroll.Period
	Payslips  []payroll.Payslip
	Advances  []payroll.Advance
	Transfers []payroll.BankTransfer
}

// FullSync replays every supplied period and expense through the engine.
// Already-acknowledged documents are skipped by their synced flags, so a
// full sync after an outage submits only what is missing.
func (e *Engine) FullSync(ctx context.Context, periods []PeriodRecords, recs []ExpenseRecords) (BatchResult, error) {
	var res BatchResult
	logID, err := e.store.CreateLog(ctx, SyncTypeFullSync, "0", "full sync")
	if err != nil {
		return res, fmt.Errorf("ledger: create sync log: %w", err)
	}
	_ = e.store.MarkLogStarted(ctx, logID)

	for _, pr := range periods {
		sub, err := e.ExportPayrollPeriod(ctx, pr.Period, pr.Payslips, pr.Advances, pr.Transfers)
		res.Processed += sub.Processed
		res.Succeeded += sub.Succeeded
		res.Failed += sub.Failed
		res.Skipped += sub.Skipped
		if err != nil {
			res.Failed++
			e.logger.Warn("period export failed", slog.String("period", pr.Period.Name), slog.Any("error", err))
		}
	}
	sub, _ := e.ExportExpenseBatch(ctx, recs)
	res.Processed += sub.Processed
	res.Succeeded += sub.Succeeded
	res.Failed += sub.Failed
	res.Skipped += sub.Skipped

	_ = e.store.MarkLogCompleted(ctx, logID, res.Processed, res.Succeeded, res.Failed, "")
	return res, nil
}

// ExportExpenseBatch exports a set of expenses independently. A missing
// mapping skips that expense and moves on; transport failures also count
// as failures but leave the synced flag untouched so retries resubmit.
func (e *Engine) ExportExpenseBatch(ctx context.Context, recs []ExpenseRecords) (BatchResult, error) {
	var res BatchResult
	for _, rec := range recs {
		res.Processed++
		if err := e.ExportExpense(ctx, rec); err != nil {
			res.Failed++
			e.logger.Warn("expense export failed", slog.String("reference", rec.Expense.Reference), slog.Any("error", err))
			continue
		}
		res.Succeeded++
	}
	return res, nil
}
