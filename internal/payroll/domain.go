package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodStatus enumerates payroll period lifecycle values.
type PeriodStatus string

const (
	PeriodStatusDraft     PeriodStatus = "DRAFT"
	PeriodStatusCompleted PeriodStatus = "COMPLETED"
	PeriodStatusApproved  PeriodStatus = "APPROVED"
	PeriodStatusPaid      PeriodStatus = "PAID"
)

// PayslipStatus enumerates payslip lifecycle values.
type PayslipStatus string

const (
	PayslipStatusDraft      PayslipStatus = "DRAFT"
	PayslipStatusCalculated PayslipStatus = "CALCULATED"
	PayslipStatusApproved   PayslipStatus = "APPROVED"
	PayslipStatusPaid       PayslipStatus = "PAID"
)

// AdvanceStatus enumerates salary advance lifecycle values.
type AdvanceStatus string

const (
	AdvanceStatusPending  AdvanceStatus = "PENDING"
	AdvanceStatusApproved AdvanceStatus = "APPROVED"
	AdvanceStatusActive   AdvanceStatus = "ACTIVE"
	AdvanceStatusSettled  AdvanceStatus = "SETTLED"
)

// TransferStatus enumerates bank transfer batch lifecycle values.
type TransferStatus string

const (
	TransferStatusGenerated TransferStatus = "GENERATED"
	TransferStatusSent      TransferStatus = "SENT"
	TransferStatusProcessed TransferStatus = "PROCESSED"
	TransferStatusCompleted TransferStatus = "COMPLETED"
)

// Period aggregates one payroll run for a calendar month.
type Period struct {
	ID                   int64
	Year                 int
	Month                int
	Name                 string
	StartDate            time.Time
	EndDate              time.Time
	Status               PeriodStatus
	TotalGrossSalary     decimal.Decimal
	TotalEPFEmployer     decimal.Decimal
	TotalEPFEmployee     decimal.Decimal
	TotalETFContribution decimal.Decimal
	TotalNetSalary       decimal.Decimal
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Payslip is one employee's computed pay for a period.
type Payslip struct {
	ID               int64
	Reference        string
	PeriodID         int64
	EmployeeID       int64
	Status           PayslipStatus
	BasicSalary      decimal.Decimal
	Bonus1           decimal.Decimal
	Bonus2           decimal.Decimal
	TransportAllow   decimal.Decimal
	TelephoneAllow   decimal.Decimal
	FuelAllow        decimal.Decimal
	MealAllow        decimal.Decimal
	AttendanceBonus  decimal.Decimal
	PerformanceBonus decimal.Decimal
	RegularOvertime  decimal.Decimal
	WeekendOvertime  decimal.Decimal
	EPFEmployee      decimal.Decimal
	EPFEmployer      decimal.Decimal
	ETFContribution  decimal.Decimal
	IncomeTax        decimal.Decimal
	AdvanceDeduction decimal.Decimal
	NetSalary        decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Advance is a salary advance disbursed outside the payroll run.
type Advance struct {
	ID               int64
	Reference        string
	EmployeeID       int64
	Amount           decimal.Decimal
	AdvanceType      string
	Reason           string
	PurposeDetails   string
	Status           AdvanceStatus
	ApprovedDate     *time.Time
	DisbursementDate *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BankTransfer is a batch instruction paying out net salaries.
type BankTransfer struct {
	ID          int64
	BatchRef    string
	PeriodID    int64
	TotalAmount decimal.Decimal
	Status      TransferStatus
	SentAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
