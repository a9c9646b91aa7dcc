package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/urbix-hr/urbix/internal/payroll"
)

// PeriodDocNumber derives the idempotency key for a payroll period entry.
func PeriodDocNumber(year, month int) string {
	return fmt.Sprintf("PR-%d%02d", year, month)
}

// PayslipDocNumber derives the idempotency key for a payslip entry.
func PayslipDocNumber(reference string) string {
	return "PS-" + reference
}

// AdvanceDocNumber derives the idempotency key for a salary advance entry.
func AdvanceDocNumber(reference string) string {
	return "ADV-" + reference
}

// BankTransferDocNumber derives the idempotency key for a transfer batch entry.
func BankTransferDocNumber(batchRef string) string {
	return "BT-" + batchRef
}

// PeriodEntry builds the aggregate journal entry for a closed payroll period.
func PeriodEntry(ctx context.Context, resolver MappingRepository, p payroll.Period) (JournalEntry, error) {
	memo := "Payroll for " + p.Name
	specs := []LineSpec{
		{Description: "Gross Salary for " + p.Name, Refs: mapped(MappingPayrollComponent, KeySalaryExpense), Side: SideDebit, Amount: p.TotalGrossSalary},
		{Description: "Employer EPF Contribution for " + p.Name, Refs: mapped(MappingPayrollComponent, KeyEPFEmployer), Side: SideDebit, Amount: p.TotalEPFEmployer, Optional: true},
		{Description: "ETF Contribution for " + p.Name, Refs: mapped(MappingPayrollComponent, KeyETFContribution), Side: SideDebit, Amount: p.TotalETFContribution, Optional: true},
		{Description: "Employee EPF Contribution for " + p.Name, Refs: mapped(MappingPayrollDeduction, KeyEPFEmployee), Side: SideCredit, Amount: p.TotalEPFEmployee, Optional: true},
		{Description: "Employer EPF Liability for " + p.Name, Refs: mapped(MappingPayrollComponent, KeyEPFEmployer), Side: SideCredit, Amount: p.TotalEPFEmployer, Optional: true},
		{Description: "ETF Liability for " + p.Name, Refs: mapped(MappingPayrollComponent, KeyETFContribution), Side: SideCredit, Amount: p.TotalETFContribution, Optional: true},
		{Description: "Net Salary Payable for " + p.Name, Refs: mapped(MappingPayrollComponent, KeySalaryPayable), Side: SideCredit, Amount: p.TotalNetSalary},
	}
	return buildEntry(ctx, resolver, PeriodDocNumber(p.Year, p.Month), p.EndDate, memo, specs)
}

// PayslipEntry builds the per-employee journal entry for one payslip.
// Conditional allowance, bonus and overtime components post only when the
// computed amount is positive; net salary payable always posts.
func PayslipEntry(ctx context.Context, resolver MappingRepository, slip payroll.Payslip, periodName string, txnDate time.Time, employeeName string) (JournalEntry, error) {
	memo := fmt.Sprintf("Payslip for %s - %s", employeeName, periodName)
	specs := []LineSpec{
		{Description: "Basic Salary", Refs: mapped(MappingPayrollComponent, KeySalaryExpense), Side: SideDebit, Amount: slip.BasicSalary},
		{Description: "Bonus 1", Refs: mapped(MappingPayrollComponent, KeyBonus), Side: SideDebit, Amount: slip.Bonus1, Optional: true},
		{Description: "Bonus 2", Refs: mapped(MappingPayrollComponent, KeyBonus), Side: SideDebit, Amount: slip.Bonus2, Optional: true},
		{Description: "Transport Allowance", Refs: mapped(MappingPayrollComponent, KeyTransportAllow), Side: SideDebit, Amount: slip.TransportAllow, Optional: true},
		{Description: "Telephone Allowance", Refs: mapped(MappingPayrollComponent, KeyTelephoneAllow), Side: SideDebit, Amount: slip.TelephoneAllow, Optional: true},
		{Description: "Fuel Allowance", Refs: mapped(MappingPayrollComponent, KeyFuelAllow), Side: SideDebit, Amount: slip.FuelAllow, Optional: true},
		{Description: "Meal Allowance", Refs: mapped(MappingPayrollComponent, KeyMealAllow), Side: SideDebit, Amount: slip.MealAllow, Optional: true},
		{Description: "Attendance Bonus", Refs: mapped(MappingPayrollComponent, KeyAttendanceBonus), Side: SideDebit, Amount: slip.AttendanceBonus, Optional: true},
		{Description: "Performance Bonus", Refs: mapped(MappingPayrollComponent, KeyPerformanceBonus), Side: SideDebit, Amount: slip.PerformanceBonus, Optional: true},
		{Description: "Regular Overtime", Refs: mapped(MappingPayrollComponent, KeyOvertime), Side: SideDebit, Amount: slip.RegularOvertime, Optional: true},
		{Description: "Weekend Overtime", Refs: mapped(MappingPayrollComponent, KeyWeekendOvertime), Side: SideDebit, Amount: slip.WeekendOvertime, Optional: true},
		{Description: "Employer EPF Contribution", Refs: mapped(MappingPayrollComponent, KeyEPFEmployer), Side: SideDebit, Amount: slip.EPFEmployer, Optional: true},
		{Description: "ETF Contribution", Refs: mapped(MappingPayrollComponent, KeyETFContribution), Side: SideDebit, Amount: slip.ETFContribution, Optional: true},
		{Description: "Employee EPF Contribution", Refs: mapped(MappingPayrollDeduction, KeyEPFEmployee), Side: SideCredit, Amount: slip.EPFEmployee, Optional: true},
		{Description: "Employer EPF Liability", Refs: mapped(MappingPayrollComponent, KeyEPFEmployer), Side: SideCredit, Amount: slip.EPFEmployer, Optional: true},
		{Description: "ETF Liability", Refs: mapped(MappingPayrollComponent, KeyETFContribution), Side: SideCredit, Amount: slip.ETFContribution, Optional: true},
		{Description: "Income Tax", Refs: mapped(MappingPayrollDeduction, KeyIncomeTax), Side: SideCredit, Amount: slip.IncomeTax, Optional: true},
		{Description: "Salary Advance Deduction", Refs: mapped(MappingPayrollDeduction, KeyAdvanceDeduction), Side: SideCredit, Amount: slip.AdvanceDeduction, Optional: true},
		{Description: "Net Salary Payable", Refs: mapped(MappingPayrollComponent, KeySalaryPayable), Side: SideCredit, Amount: slip.NetSalary},
	}
	return buildEntry(ctx, resolver, PayslipDocNumber(slip.Reference), txnDate, memo, specs)
}

// AdvanceEntry builds the journal entry for a disbursed salary advance.
func AdvanceEntry(ctx context.Context, resolver MappingRepository, adv payroll.Advance, employeeName string, now time.Time) (JournalEntry, error) {
	txnDate := now
	if adv.DisbursementDate != nil {
		txnDate = *adv.DisbursementDate
	} else if adv.ApprovedDate != nil {
		txnDate = *adv.ApprovedDate
	}
	purpose := adv.PurposeDetails
	if purpose == "" {
		purpose = adv.Reason
	}
	memo := fmt.Sprintf("Salary Advance for %s - %s", employeeName, purpose)
	specs := []LineSpec{
		{Description: "Salary Advance - " + adv.AdvanceType, Refs: mapped(MappingPayrollComponent, KeyAdvanceReceivable), Side: SideDebit, Amount: adv.Amount},
		{Description: "Cash Payment for Advance", Refs: mapped(MappingPaymentMethod, KeyCash), Side: SideCredit, Amount: adv.Amount},
	}
	return buildEntry(ctx, resolver, AdvanceDocNumber(adv.Reference), txnDate, memo, specs)
}

// BankTransferEntry builds the journal entry for a salary payout batch.
func BankTransferEntry(ctx context.Context, resolver MappingRepository, bt payroll.BankTransfer, periodName string, now time.Time) (JournalEntry, error) {
	txnDate := now
	if bt.SentAt != nil {
		txnDate = *bt.SentAt
	}
	memo := "Bank Transfer for " + periodName
	specs := []LineSpec{
		{Description: "Salary Payment for " + periodName, Refs: mapped(MappingPayrollComponent, KeySalaryPayable), Side: SideDebit, Amount: bt.TotalAmount},
		{Description: "Bank Transfer for Payroll", Refs: mapped(MappingPaymentMethod, KeyBankTransfer), Side: SideCredit, Amount: bt.TotalAmount},
	}
	return buildEntry(ctx, resolver, BankTransferDocNumber(bt.BatchRef), txnDate, memo, specs)
}
