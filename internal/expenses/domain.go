package expenses

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates expense lifecycle values.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusPaid      Status = "PAID"
)

// ReturnStatus enumerates purchase item return states.
type ReturnStatus string

const (
	ReturnStatusNotReturnable ReturnStatus = "NOT_RETURNABLE"
	ReturnStatusReturnable    ReturnStatus = "RETURNABLE"
	ReturnStatusReturned      ReturnStatus = "RETURNED"
)

// Expense is an approved expense transaction.
type Expense struct {
	ID               int64
	Reference        string
	Description      string
	Notes            string
	EmployeeID       int64
	CategoryID       int64
	TypeID           int64
	TypeName         string
	ExpenseAccount   string
	DepartmentID     *int64
	CostCenter       string
	TaxCategory      string
	PaymentMethod    string
	TotalAmount      decimal.Decimal
	Subtotal         decimal.Decimal
	TaxAmount        decimal.Decimal
	VendorName       string
	PurchaseRef      string
	IsReimbursable   bool
	IsTaxableBenefit bool
	Status           Status
	DateIncurred     time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PurchaseItem is one line item bought under an expense.
type PurchaseItem struct {
	ID             int64
	ExpenseID      int64
	Description    string
	Quantity       int
	UnitCost       decimal.Decimal
	TotalCost      decimal.Decimal
	DepartmentID   *int64
	ReturnStatus   ReturnStatus
	ReturnQuantity int
	RefundAmount   decimal.Decimal
	ReturnDate     *time.Time
	IsActive       bool
}

// InstallmentPlan spreads a reimbursable expense across salary deductions.
type InstallmentPlan struct {
	ID                   int64
	ExpenseID            int64
	TotalAmount          decimal.Decimal
	InstallmentAmount    decimal.Decimal
	NumberOfInstallments int
	StartDate            time.Time
	IsActive             bool
}

// Installment is one scheduled deduction under a plan.
type Installment struct {
	ID            int64
	PlanID        int64
	Number        int
	Amount        decimal.Decimal
	ScheduledDate time.Time
	ProcessedDate *time.Time
	IsProcessed   bool
	IsActive      bool
}
