package ledger

import "context"

// MappingType partitions the account mapping table by source concern.
type MappingType string

const (
	MappingPayrollComponent MappingType = "PAYROLL_COMPONENT"
	MappingPayrollDeduction MappingType = "PAYROLL_DEDUCTION"
	MappingExpenseAccount   MappingType = "EXPENSE_ACCOUNT"
	MappingExpenseType      MappingType = "EXPENSE_TYPE"
	MappingExpenseCategory  MappingType = "EXPENSE_CATEGORY"
	MappingPaymentMethod    MappingType = "PAYMENT_METHOD"
	MappingTax              MappingType = "TAX"
)

// Fixed mapping keys used by the payroll and expense templates.
const (
	KeySalaryExpense     = "SALARY_EXPENSE"
	KeySalaryPayable     = "SALARY_PAYABLE"
	KeyEPFEmployer       = "EPF_EMPLOYER"
	KeyEPFEmployee       = "EPF_EMPLOYEE"
	KeyETFContribution   = "ETF_CONTRIBUTION"
	KeyIncomeTax         = "INCOME_TAX"
	KeyAdvanceDeduction  = "ADVANCE"
	KeyAdvanceReceivable = "ADVANCE_RECEIVABLE"
	KeyBonus             = "BONUS"
	KeyTransportAllow    = "TRANSPORT_ALLOWANCE"
	KeyTelephoneAllow    = "TELEPHONE_ALLOWANCE"
	KeyFuelAllow         = "FUEL_ALLOWANCE"
	KeyMealAllow         = "MEAL_ALLOWANCE"
	KeyAttendanceBonus   = "ATTENDANCE_BONUS"
	KeyPerformanceBonus  = "PERFORMANCE_BONUS"
	KeyOvertime          = "OVERTIME"
	KeyWeekendOvertime   = "WEEKEND_OVERTIME"
	KeyCash              = "CASH"
	KeyBankTransfer      = "BANK_TRANSFER"
	KeySalesTax          = "SALES_TAX"
	KeyPaymentDefault    = "DEFAULT"
)

// AccountMapping links an internal mapping key to an external account.
type AccountMapping struct {
	MappingType MappingType
	SourceID    string
	AccountID   string
	AccountName string
	AccountType string
}

// DepartmentMapping links an internal department to an external
// department/class pair. ClassID may be empty.
type DepartmentMapping struct {
	DepartmentID int64
	ExternalID   string
	ExternalName string
	ClassID      string
	ClassName    string
}

// MappingRepository resolves account mappings. Resolve returns
// ErrMappingNotFound when no active mapping exists for the pair.
type MappingRepository interface {
	Resolve(ctx context.Context, mappingType MappingType, sourceID string) (AccountMapping, error)
}

// DepartmentRepository resolves department mappings. A missing mapping is
// not an error to the engine; callers treat it as "omit the reference".
type DepartmentRepository interface {
	Resolve(ctx context.Context, departmentID int64) (DepartmentMapping, error)
}

// MappingRef names one candidate account mapping for a line.
type MappingRef struct {
	Type MappingType
	Key  string
}

// resolveFirst walks a fallback chain and returns the first mapping found.
func resolveFirst(ctx context.Context, repo MappingRepository, refs []MappingRef) (AccountMapping, error) {
	for _, ref := range refs {
		m, err := repo.Resolve(ctx, ref.Type, ref.Key)
		if err == nil {
			return m, nil
		}
	}
	return AccountMapping{}, ErrMappingNotFound
}
