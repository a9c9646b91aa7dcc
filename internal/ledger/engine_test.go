package ledger_test

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/urbix-hr/urbix/internal/employees"
	"github.com/urbix-hr/urbix/internal/expenses"
	"github.com/urbix-hr/urbix/internal/ledger"
	"github.com/urbix-hr/urbix/internal/payroll"
)

type stubConnector struct {
	mu        sync.Mutex
	journals  map[string]int
	purchases map[string]int
	memos     map[string]int
	vendors   map[string]int
	failWith  map[string]error
}

func newStubConnector() *stubConnector {
	return &stubConnector{
		journals:  map[string]int{},
		purchases: map[string]int{},
		memos:     map[string]int{},
		vendors:   map[string]int{},
		failWith:  map[string]error{},
	}
}

func (c *stubConnector) UpsertJournalEntry(_ context.Context, entry ledger.JournalEntry) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failWith[entry.DocNumber]; ok {
		return "", err
	}
	c.journals[entry.DocNumber]++
	return "qb-je-" + entry.DocNumber, nil
}

func (c *stubConnector) UpsertPurchase(_ context.Context, doc ledger.PurchaseDocument) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failWith[doc.DocNumber]; ok {
		return "", err
	}
	c.purchases[doc.DocNumber]++
	return "qb-pu-" + doc.DocNumber, nil
}

func (c *stubConnector) UpsertCreditMemo(_ context.Context, doc ledger.CreditMemoDocument) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failWith[doc.DocNumber]; ok {
		return "", err
	}
	c.memos[doc.DocNumber]++
	return "qb-cm-" + doc.DocNumber, nil
}

func (c *stubConnector) UpsertVendor(_ context.Context, rec ledger.VendorRecord) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vendors[rec.DisplayName]++
	return "qb-v-" + strconv.Itoa(len(c.vendors)), nil
}

type stubSyncStore struct {
	mu      sync.Mutex
	synced  map[string]bool
	pending map[string]bool
	logs    []string
	failed  []string
}

func newStubSyncStore() *stubSyncStore {
	return &stubSyncStore{synced: map[string]bool{}, pending: map[string]bool{}}
}

func syncKey(syncType, sourceID string) string { return syncType + "/" + sourceID }

func (s *stubSyncStore) CreateLog(_ context.Context, syncType, sourceID, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, syncKey(syncType, sourceID))
	return int64(len(s.logs)), nil
}

func (s *stubSyncStore) MarkLogStarted(context.Context, int64) error { return nil }

func (s *stubSyncStore) MarkLogCompleted(context.Context, int64, int, int, int, string) error {
	return nil
}

func (s *stubSyncStore) MarkLogFailed(_ context.Context, logID int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, message)
	return nil
}

func (s *stubSyncStore) IsSynced(_ context.Context, syncType, sourceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced[syncKey(syncType, sourceID)], nil
}

func (s *stubSyncStore) MarkPending(_ context.Context, syncType, sourceID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.synced[syncKey(syncType, sourceID)] {
		s.pending[syncKey(syncType, sourceID)] = true
	}
	return nil
}

func (s *stubSyncStore) MarkSynced(_ context.Context, syncType, sourceID, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := syncKey(syncType, sourceID)
	s.synced[key] = true
	delete(s.pending, key)
	return nil
}

type stubEmployeeSource map[int64]employees.Employee

func (s stubEmployeeSource) GetByID(_ context.Context, id int64) (employees.Employee, error) {
	emp, ok := s[id]
	if !ok {
		return employees.Employee{}, employees.ErrNotFound
	}
	return emp, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(t *testing.T) (*ledger.Engine, *stubConnector, *stubSyncStore) {
	t.Helper()
	connector := newStubConnector()
	store := newStubSyncStore()
	emps := stubEmployeeSource{
		3: {ID: 3, Code: "EMP003", FirstName: "Nadeesha", LastName: "Perera", IsActive: true},
		4: {ID: 4, Code: "EMP004", FirstName: "Ruwan", LastName: "Silva", IsActive: true},
	}
	engine := ledger.NewEngine(connector, expenseResolver(), nil, store, emps, "Urbix Test Co", discardLogger())
	engine.WithNow(func() time.Time { return time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC) })
	return engine, connector, store
}

func approvedSlip(id int64, ref string, employeeID int64) payroll.Payslip {
	return payroll.Payslip{
		ID:          id,
		Reference:   ref,
		EmployeeID:  employeeID,
		Status:      payroll.PayslipStatusApproved,
		BasicSalary: dec("50000.00"),
		EPFEmployee: dec("4000.00"),
		NetSalary:   dec("46000.00"),
	}
}

func TestExportPayrollPeriod(t *testing.T) {
	engine, connector, store := testEngine(t)
	p := july2024Period()
	slips := []payroll.Payslip{
		approvedSlip(101, "PS-101", 3),
		approvedSlip(102, "PS-102", 4),
		{ID: 103, Reference: "PS-103", EmployeeID: 3, Status: payroll.PayslipStatusDraft},
	}
	sent := time.Date(2024, 7, 31, 9, 0, 0, 0, time.UTC)
	transfers := []payroll.BankTransfer{{ID: 2, BatchRef: "BATCH-2024-07", TotalAmount: dec("92000.00"), SentAt: &sent}}

	res, err := engine.ExportPayrollPeriod(context.Background(), p, slips, nil, transfers)
	require.NoError(t, err)

	// Period entry plus two exportable slips plus the transfer; the draft
	// slip never enters the batch.
	require.Equal(t, 4, res.Processed)
	require.Equal(t, 4, res.Succeeded)
	require.Equal(t, 0, res.Failed)

	require.Equal(t, 1, connector.journals["PR-202407"])
	require.Equal(t, 1, connector.journals["PS-PS-101"])
	require.Equal(t, 1, connector.journals["PS-PS-102"])
	require.Equal(t, 0, connector.journals["PS-PS-103"])
	require.Equal(t, 1, connector.journals["BT-BATCH-2024-07"])
	require.True(t, store.synced[syncKey(ledger.SyncTypePayrollPeriod, "42")])
	require.True(t, store.synced[syncKey(ledger.SyncTypePayslip, "101")])
}

func TestExportPayrollPeriodResubmission(t *testing.T) {
	engine, connector, _ := testEngine(t)
	p := july2024Period()
	slips := []payroll.Payslip{approvedSlip(101, "PS-101", 3)}

	_, err := engine.ExportPayrollPeriod(context.Background(), p, slips, nil, nil)
	require.NoError(t, err)

	res, err := engine.ExportPayrollPeriod(context.Background(), p, slips, nil, nil)
	require.NoError(t, err)

	require.Equal(t, 1, res.Skipped, "period entry should be skipped on resubmission")
	if connector.journals["PR-202407"] != 1 {
		t.Fatalf("period entry submitted %d times, want 1", connector.journals["PR-202407"])
	}
	require.Equal(t, 1, connector.journals["PS-PS-101"], "synced slip must not resubmit")
}

func TestExportPayrollPeriodDetailFailureIsIsolated(t *testing.T) {
	engine, connector, store := testEngine(t)
	connector.failWith["PS-PS-101"] = ledger.ErrTransport

	p := july2024Period()
	slips := []payroll.Payslip{
		approvedSlip(101, "PS-101", 3),
		approvedSlip(102, "PS-102", 4),
	}

	res, err := engine.ExportPayrollPeriod(context.Background(), p, slips, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, 2, res.Succeeded) // period entry plus the healthy slip

	require.False(t, store.synced[syncKey(ledger.SyncTypePayslip, "101")],
		"failed slip must stay unsynced so a retry resubmits it")
	require.True(t, store.synced[syncKey(ledger.SyncTypePayslip, "102")])
}

func TestExportPayrollPeriodVendorCached(t *testing.T) {
	engine, connector, _ := testEngine(t)
	p := july2024Period()
	slips := []payroll.Payslip{
		approvedSlip(101, "PS-101", 3),
		approvedSlip(102, "PS-102", 3),
	}

	_, err := engine.ExportPayrollPeriod(context.Background(), p, slips, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, connector.vendors["Nadeesha Perera (EMP003)"],
		"one vendor upsert per employee per batch")
}

func TestExportExpenseReimbursable(t *testing.T) {
	engine, connector, store := testEngine(t)
	exp := officeExpense()
	exp.IsReimbursable = true

	err := engine.ExportExpense(context.Background(), ledger.ExpenseRecords{Expense: exp})
	require.NoError(t, err)
	require.Equal(t, 1, connector.purchases["REIMB-EXP-2024-031"])
	require.Equal(t, 0, connector.journals["EXP-EXP-2024-031"])
	require.True(t, store.synced[syncKey(ledger.SyncTypeExpense, "31")])
}

func TestExportExpenseNonReimbursable(t *testing.T) {
	engine, connector, _ := testEngine(t)

	err := engine.ExportExpense(context.Background(), ledger.ExpenseRecords{Expense: officeExpense()})
	require.NoError(t, err)
	require.Equal(t, 1, connector.journals["EXP-EXP-2024-031"])
	require.Equal(t, 0, connector.purchases["REIMB-EXP-2024-031"])
}

func TestExportExpenseTransportFailureLeavesUnsynced(t *testing.T) {
	engine, connector, store := testEngine(t)
	connector.failWith["EXP-EXP-2024-031"] = ledger.ErrTransport

	err := engine.ExportExpense(context.Background(), ledger.ExpenseRecords{Expense: officeExpense()})
	require.ErrorIs(t, err, ledger.ErrTransport)
	require.True(t, ledger.Retryable(err))
	require.False(t, store.synced[syncKey(ledger.SyncTypeExpense, "31")])
	require.True(t, store.pending[syncKey(ledger.SyncTypeExpense, "31")],
		"failed submission must leave a pending row for the retry sweep")

	// Retry after the outage converges on one external document.
	delete(connector.failWith, "EXP-EXP-2024-031")
	err = engine.ExportExpense(context.Background(), ledger.ExpenseRecords{Expense: officeExpense()})
	require.NoError(t, err)
	require.Equal(t, 1, connector.journals["EXP-EXP-2024-031"])
	require.True(t, store.synced[syncKey(ledger.SyncTypeExpense, "31")])
	require.False(t, store.pending[syncKey(ledger.SyncTypeExpense, "31")])
}

func TestExportExpenseOverRefundSkipsCreditMemo(t *testing.T) {
	engine, connector, store := testEngine(t)
	exp := officeExpense()
	items := []expenses.PurchaseItem{
		{Description: "Toner black", ReturnStatus: expenses.ReturnStatusReturned,
			ReturnQuantity: 3, RefundAmount: dec("20000.00"), IsActive: true},
	}

	err := engine.ExportExpense(context.Background(), ledger.ExpenseRecords{Expense: exp, Items: items})
	require.NoError(t, err, "a bad credit memo must not block the main document")
	require.Equal(t, 0, connector.memos["CR-EXP-2024-031"])
	require.Equal(t, 1, connector.journals["EXP-EXP-2024-031"])
	require.True(t, store.synced[syncKey(ledger.SyncTypeExpense, "31")])
}

func TestExportExpenseWithReturnsAndPlan(t *testing.T) {
	engine, connector, _ := testEngine(t)
	exp := officeExpense()
	returnDate := time.Date(2024, 7, 25, 0, 0, 0, 0, time.UTC)
	items := []expenses.PurchaseItem{
		{Description: "Toner colour", ReturnStatus: expenses.ReturnStatusReturned,
			ReturnQuantity: 1, RefundAmount: dec("3000.00"), ReturnDate: &returnDate, IsActive: true},
	}
	plan := expenses.InstallmentPlan{
		ID: 4, ExpenseID: exp.ID, TotalAmount: dec("10800.00"),
		InstallmentAmount: dec("3600.00"), NumberOfInstallments: 3,
		StartDate: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), IsActive: true,
	}
	processed := time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)
	rec := ledger.ExpenseRecords{
		Expense: exp,
		Items:   items,
		Plans:   []expenses.InstallmentPlan{plan},
		Installments: map[int64][]expenses.Installment{
			plan.ID: {
				{PlanID: plan.ID, Number: 1, Amount: dec("3600.00"), ScheduledDate: processed, ProcessedDate: &processed, IsProcessed: true, IsActive: true},
				{PlanID: plan.ID, Number: 2, Amount: dec("3600.00"), ScheduledDate: processed.AddDate(0, 1, 0)},
			},
		},
	}

	err := engine.ExportExpense(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, 1, connector.memos["CR-EXP-2024-031"])
	require.Equal(t, 1, connector.journals["INST-PLAN-EXP-2024-031"])
	require.Equal(t, 1, connector.journals["INST-EXP-2024-031-1"])
	require.Equal(t, 0, connector.journals["INST-EXP-2024-031-2"], "unprocessed installments stay out")
}

func TestFullSyncSubmitsOnlyMissingDocuments(t *testing.T) {
	engine, connector, store := testEngine(t)
	p := july2024Period()
	slips := []payroll.Payslip{
		approvedSlip(101, "PS-101", 3),
		approvedSlip(102, "PS-102", 4),
	}
	// The period entry and one slip were acknowledged in an earlier run.
	store.synced[syncKey(ledger.SyncTypePayrollPeriod, "42")] = true
	store.synced[syncKey(ledger.SyncTypePayslip, "101")] = true

	res, err := engine.FullSync(context.Background(),
		[]ledger.PeriodRecords{{Period: p, Payslips: slips}},
		[]ledger.ExpenseRecords{{Expense: officeExpense()}})
	require.NoError(t, err)

	require.Equal(t, 0, connector.journals["PR-202407"])
	require.Equal(t, 0, connector.journals["PS-PS-101"])
	require.Equal(t, 1, connector.journals["PS-PS-102"])
	require.Equal(t, 1, connector.journals["EXP-EXP-2024-031"])
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 0, res.Failed)
}

func TestExportExpenseBatch(t *testing.T) {
	engine, connector, _ := testEngine(t)
	bad := officeExpense()
	bad.ID = 32
	bad.Reference = "EXP-2024-032"
	connector.failWith["EXP-EXP-2024-032"] = ledger.ErrRejected

	res, err := engine.ExportExpenseBatch(context.Background(), []ledger.ExpenseRecords{
		{Expense: officeExpense()},
		{Expense: bad},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Processed)
	require.Equal(t, 1, res.Succeeded)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, 1, connector.journals["EXP-EXP-2024-031"])
}
