package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side enumerates posting directions.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// SyncStatus enumerates sync log lifecycle values.
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "PENDING"
	SyncStatusStarted   SyncStatus = "STARTED"
	SyncStatusCompleted SyncStatus = "COMPLETED"
	SyncStatusFailed    SyncStatus = "FAILED"
)

// AccountRef identifies an account in the external ledger.
type AccountRef struct {
	ID   string
	Name string
}

// EntityRef points a line at a vendor or customer in the external ledger.
type EntityRef struct {
	ID   string
	Name string
	Type string
}

// DepartmentRef carries the external department/class identifiers.
type DepartmentRef struct {
	ID   string
	Name string
}

// JournalLine is a single debit or credit posting.
type JournalLine struct {
	Account     AccountRef
	Side        Side
	Amount      decimal.Decimal
	Description string
	Taxable     bool
}

// JournalEntry is a balanced external-ledger document keyed by DocNumber.
type JournalEntry struct {
	DocNumber  string
	TxnDate    time.Time
	Memo       string
	Department *DepartmentRef
	Entity     *EntityRef
	Lines      []JournalLine
}

// PurchaseLine is one account-based expense line on a purchase document.
type PurchaseLine struct {
	Account     AccountRef
	Amount      decimal.Decimal
	Description string
	Billable    bool
	Taxable     bool
	Department  *DepartmentRef
}

// PurchaseDocument represents a reimbursable expense submitted as a bill.
// Purchase documents are not journal entries and are not held to the
// debit/credit balance invariant; they carry their own validation.
type PurchaseDocument struct {
	DocNumber   string
	TxnDate     time.Time
	PrivateNote string
	PaymentFrom AccountRef
	Entity      EntityRef
	Total       decimal.Decimal
	Lines       []PurchaseLine
}

// CreditMemoLine is a single refund line on a credit memo.
type CreditMemoLine struct {
	Amount      decimal.Decimal
	Description string
}

// CreditMemoDocument captures refunds for returned purchase items.
type CreditMemoDocument struct {
	DocNumber string
	TxnDate   time.Time
	Memo      string
	Customer  EntityRef
	Lines     []CreditMemoLine
}

// VendorRecord is the external-ledger projection of an employee.
type VendorRecord struct {
	DisplayName      string
	PrintOnCheckName string
	Active           bool
	CompanyName      string
	Email            string
	Phone            string
	AddressLine1     string
	AddressLine2     string
	City             string
	Region           string
	PostalCode       string
	Country          string
	TaxIdentifier    string
	Notes            string
}

// SyncLog records one export attempt for audit and resubmission tracking.
type SyncLog struct {
	ID               int64
	SyncType         string
	SourceID         string
	SourceReference  string
	ExternalRef      string
	Status           SyncStatus
	ErrorMessage     string
	RecordsProcessed int
	RecordsSucceeded int
	RecordsFailed    int
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
}

var (
	// ErrUnbalanced indicates debit total != credit total after rounding.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrEmptySide indicates a journal entry without both debit and credit lines.
	ErrEmptySide = errors.New("ledger: journal requires debit and credit lines")
	// ErrMappingNotFound indicates a required account mapping is absent.
	ErrMappingNotFound = errors.New("ledger: account mapping not found")
	// ErrOverRefund indicates a credit memo exceeding the original expense total.
	ErrOverRefund = errors.New("ledger: refund exceeds original expense total")
	// ErrEmptyDocument indicates a document with no lines to submit.
	ErrEmptyDocument = errors.New("ledger: document has no lines")
)

// balanceTolerance absorbs rounding noise of one minor currency unit.
var balanceTolerance = decimal.New(1, -2)

// round normalises an amount to the external system's currency precision.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Validate checks the balanced-ledger invariant on a constructed entry.
func (e JournalEntry) Validate() error {
	debit, credit := decimal.Zero, decimal.Zero
	var debits, credits int
	for i, line := range e.Lines {
		if line.Amount.IsNegative() {
			return fmt.Errorf("ledger: line %d negative amount", i)
		}
		switch line.Side {
		case SideDebit:
			debit = debit.Add(line.Amount)
			debits++
		case SideCredit:
			credit = credit.Add(line.Amount)
			credits++
		default:
			return fmt.Errorf("ledger: line %d unknown side %q", i, line.Side)
		}
	}
	if debits == 0 || credits == 0 {
		return ErrEmptySide
	}
	if debit.Sub(credit).Abs().GreaterThan(balanceTolerance) {
		return fmt.Errorf("%w: debit %s credit %s on %s", ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2), e.DocNumber)
	}
	return nil
}

// Validate checks purchase-document construction rules.
func (d PurchaseDocument) Validate() error {
	if len(d.Lines) == 0 {
		return ErrEmptyDocument
	}
	sum := decimal.Zero
	for i, line := range d.Lines {
		if !line.Amount.IsPositive() {
			return fmt.Errorf("ledger: purchase line %d non-positive amount", i)
		}
		sum = sum.Add(line.Amount)
	}
	if sum.Sub(d.Total).Abs().GreaterThan(balanceTolerance) {
		return fmt.Errorf("ledger: purchase %s line sum %s does not match total %s", d.DocNumber, sum.StringFixed(2), d.Total.StringFixed(2))
	}
	return nil
}
