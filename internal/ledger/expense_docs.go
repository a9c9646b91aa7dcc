package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/urbix-hr/urbix/internal/expenses"
)

// ExpenseDocNumber derives the idempotency key for an expense journal entry.
func ExpenseDocNumber(reference string) string {
	return "EXP-" + reference
}

// ReimbursementDocNumber derives the idempotency key for a purchase document.
// The purchase reference wins over the expense reference when present.
func ReimbursementDocNumber(exp expenses.Expense) string {
	if exp.PurchaseRef != "" {
		return "REIMB-" + exp.PurchaseRef
	}
	return "REIMB-" + exp.Reference
}

// CreditMemoDocNumber derives the idempotency key for a returns credit memo.
func CreditMemoDocNumber(reference string) string {
	return "CR-" + reference
}

// InstallmentPlanDocNumber derives the idempotency key for a plan entry.
func InstallmentPlanDocNumber(reference string) string {
	return "INST-PLAN-" + reference
}

// InstallmentDocNumber derives the idempotency key for one installment entry.
func InstallmentDocNumber(reference string, number int) string {
	return fmt.Sprintf("INST-%s-%d", reference, number)
}

// expenseAccountRefs is the account resolution chain for an expense: an
// explicit account override, then the expense type, then the category.
func expenseAccountRefs(exp expenses.Expense) []MappingRef {
	var refs []MappingRef
	if exp.ExpenseAccount != "" {
		refs = append(refs, MappingRef{Type: MappingExpenseAccount, Key: exp.ExpenseAccount})
	}
	refs = append(refs,
		MappingRef{Type: MappingExpenseType, Key: strconv.FormatInt(exp.TypeID, 10)},
		MappingRef{Type: MappingExpenseCategory, Key: strconv.FormatInt(exp.CategoryID, 10)},
	)
	return refs
}

func paymentMethodRefs(method string) []MappingRef {
	var refs []MappingRef
	if method != "" {
		refs = append(refs, MappingRef{Type: MappingPaymentMethod, Key: method})
	}
	return append(refs, MappingRef{Type: MappingPaymentMethod, Key: KeyPaymentDefault})
}

// ExpenseEntry builds the journal entry for a non-reimbursable expense.
// When the purchase summary split a tax amount out, the expense line posts
// the subtotal and a separate tax debit is emitted.
func ExpenseEntry(ctx context.Context, resolver MappingRepository, exp expenses.Expense) (JournalEntry, error) {
	memo := "Expense: " + exp.Description
	if exp.CostCenter != "" {
		memo += " | Cost Center: " + exp.CostCenter
	}
	if exp.TaxCategory != "" {
		memo += " | Tax Category: " + exp.TaxCategory
	}

	expenseAmount := exp.TotalAmount
	taxAmount := decimal.Zero
	if exp.TaxAmount.IsPositive() {
		taxAmount = exp.TaxAmount
		expenseAmount = exp.Subtotal
	}

	paymentDesc := "Payment for " + exp.Reference
	if exp.VendorName != "" {
		paymentDesc += " to " + exp.VendorName
	}
	if exp.PurchaseRef != "" {
		paymentDesc += " (Ref: " + exp.PurchaseRef + ")"
	}

	specs := []LineSpec{
		{Description: exp.Description, Refs: expenseAccountRefs(exp), Side: SideDebit, Amount: expenseAmount},
		{Description: "Tax for " + exp.Reference, Refs: mapped(MappingTax, KeySalesTax), Side: SideDebit, Amount: taxAmount, Optional: true},
		{Description: paymentDesc, Refs: paymentMethodRefs(exp.PaymentMethod), Side: SideCredit, Amount: exp.TotalAmount},
	}
	return buildEntry(ctx, resolver, ExpenseDocNumber(exp.Reference), exp.DateIncurred, memo, specs)
}

// ReimbursementDocument builds the purchase document for a reimbursable
// expense, one line per active purchase item or a single aggregate line.
func ReimbursementDocument(ctx context.Context, resolver MappingRepository, deptRepo DepartmentRepository, exp expenses.Expense, items []expenses.PurchaseItem, entity EntityRef) (PurchaseDocument, error) {
	method := exp.PaymentMethod
	if method == "" {
		method = KeyBankTransfer
	}
	payFrom, err := resolveFirst(ctx, resolver, []MappingRef{
		{Type: MappingPaymentMethod, Key: method},
		{Type: MappingPaymentMethod, Key: KeyBankTransfer},
	})
	if err != nil {
		return PurchaseDocument{}, fmt.Errorf("%w: %s for payment account", ErrMappingNotFound, ReimbursementDocNumber(exp))
	}

	note := exp.Description
	if exp.Notes != "" {
		note += " | " + exp.Notes
	}
	if exp.VendorName != "" {
		note += " | Vendor: " + exp.VendorName
	}

	doc := PurchaseDocument{
		DocNumber:   ReimbursementDocNumber(exp),
		TxnDate:     exp.DateIncurred,
		PrivateNote: note,
		PaymentFrom: AccountRef{ID: payFrom.AccountID, Name: payFrom.AccountName},
		Entity:      entity,
		Total:       round(exp.TotalAmount),
	}

	deptRef := departmentRef(ctx, deptRepo, exp.DepartmentID)

	expensable := make([]expenses.PurchaseItem, 0, len(items))
	for _, item := range items {
		if !item.IsActive || item.ReturnStatus == expenses.ReturnStatusReturned {
			continue
		}
		expensable = append(expensable, item)
	}

	if len(expensable) == 0 {
		acct, err := resolveFirst(ctx, resolver, expenseAccountRefs(exp))
		if err != nil {
			return PurchaseDocument{}, fmt.Errorf("%w: %s for expense type %s", ErrMappingNotFound, doc.DocNumber, exp.TypeName)
		}
		doc.Lines = append(doc.Lines, PurchaseLine{
			Account:     AccountRef{ID: acct.AccountID, Name: acct.AccountName},
			Amount:      round(exp.TotalAmount),
			Description: exp.Description,
			Billable:    exp.IsReimbursable,
			Taxable:     exp.IsTaxableBenefit,
			Department:  deptRef,
		})
	} else {
		for _, item := range expensable {
			acct, err := resolveFirst(ctx, resolver, expenseAccountRefs(exp))
			if err != nil {
				return PurchaseDocument{}, fmt.Errorf("%w: %s for expense type %s", ErrMappingNotFound, doc.DocNumber, exp.TypeName)
			}
			itemDept := deptRef
			if item.DepartmentID != nil {
				if ref := departmentRef(ctx, deptRepo, item.DepartmentID); ref != nil {
					itemDept = ref
				}
			}
			doc.Lines = append(doc.Lines, PurchaseLine{
				Account:     AccountRef{ID: acct.AccountID, Name: acct.AccountName},
				Amount:      round(item.TotalCost),
				Description: item.Description,
				Billable:    exp.IsReimbursable,
				Taxable:     exp.IsTaxableBenefit,
				Department:  itemDept,
			})
		}
	}

	if err := doc.Validate(); err != nil {
		return PurchaseDocument{}, err
	}
	return doc, nil
}

// ReturnsCreditMemo builds the credit memo for returned purchase items.
// A refund total above the original expense total is rejected outright.
func ReturnsCreditMemo(exp expenses.Expense, returned []expenses.PurchaseItem, customer EntityRef, now time.Time) (CreditMemoDocument, error) {
	txnDate := now
	total := decimal.Zero
	doc := CreditMemoDocument{
		DocNumber: CreditMemoDocNumber(exp.Reference),
		Memo:      "Credit Memo for returned items from " + exp.Reference,
		Customer:  customer,
	}
	for _, item := range returned {
		if item.ReturnStatus != expenses.ReturnStatusReturned {
			continue
		}
		amount := round(item.RefundAmount)
		if !amount.IsPositive() {
			continue
		}
		if item.ReturnDate != nil && item.ReturnDate.After(txnDate) {
			txnDate = *item.ReturnDate
		}
		total = total.Add(amount)
		doc.Lines = append(doc.Lines, CreditMemoLine{
			Amount:      amount,
			Description: fmt.Sprintf("Return: %s (Qty: %d)", item.Description, item.ReturnQuantity),
		})
	}
	if len(doc.Lines) == 0 {
		return CreditMemoDocument{}, ErrEmptyDocument
	}
	if total.GreaterThan(round(exp.TotalAmount)) {
		return CreditMemoDocument{}, fmt.Errorf("%w: %s refund %s against %s", ErrOverRefund, doc.DocNumber, total.StringFixed(2), exp.TotalAmount.StringFixed(2))
	}
	doc.TxnDate = txnDate
	return doc, nil
}

// InstallmentPlanEntry books the full plan amount against the receivable.
func InstallmentPlanEntry(ctx context.Context, resolver MappingRepository, exp expenses.Expense, plan expenses.InstallmentPlan) (JournalEntry, error) {
	memo := fmt.Sprintf("Installment Plan for %s: %s x %d", exp.Reference, plan.InstallmentAmount.StringFixed(2), plan.NumberOfInstallments)
	specs := []LineSpec{
		{Description: "Installment Plan Total for " + exp.Reference, Refs: expenseAccountRefs(exp), Side: SideDebit, Amount: plan.TotalAmount},
		{Description: "Installment Plan Receivable for " + exp.Reference, Refs: mapped(MappingPayrollComponent, KeyAdvanceReceivable), Side: SideCredit, Amount: plan.TotalAmount},
	}
	return buildEntry(ctx, resolver, InstallmentPlanDocNumber(exp.Reference), plan.StartDate, memo, specs)
}

// InstallmentEntry books one processed salary deduction under a plan.
func InstallmentEntry(ctx context.Context, resolver MappingRepository, exp expenses.Expense, plan expenses.InstallmentPlan, inst expenses.Installment) (JournalEntry, error) {
	txnDate := inst.ScheduledDate
	if inst.ProcessedDate != nil {
		txnDate = *inst.ProcessedDate
	}
	memo := fmt.Sprintf("Installment %d of %d for %s", inst.Number, plan.NumberOfInstallments, exp.Reference)
	specs := []LineSpec{
		{Description: fmt.Sprintf("Installment Payment %d for %s", inst.Number, exp.Reference), Refs: mapped(MappingPayrollComponent, KeyAdvanceReceivable), Side: SideDebit, Amount: inst.Amount},
		{Description: fmt.Sprintf("Installment Payment %d from Salary for %s", inst.Number, exp.Reference), Refs: mapped(MappingPayrollComponent, KeySalaryPayable), Side: SideCredit, Amount: inst.Amount},
	}
	return buildEntry(ctx, resolver, InstallmentDocNumber(exp.Reference, inst.Number), txnDate, memo, specs)
}

// departmentRef resolves a department mapping, returning nil when the source
// carries no department or no mapping exists. Absence is never an error.
func departmentRef(ctx context.Context, repo DepartmentRepository, departmentID *int64) *DepartmentRef {
	if repo == nil || departmentID == nil {
		return nil
	}
	mapping, err := repo.Resolve(ctx, *departmentID)
	if err != nil || mapping.ExternalID == "" {
		return nil
	}
	return &DepartmentRef{ID: mapping.ExternalID, Name: mapping.ExternalName}
}
