package payroll

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPeriodNotFound indicates a missing payroll period row.
var ErrPeriodNotFound = errors.New("payroll: period not found")

// Repository encapsulates DB operations for payroll runs.
type Repository interface {
	GetPeriod(ctx context.Context, id int64) (Period, error)
	GetPeriodByMonth(ctx context.Context, year, month int) (Period, error)
	ListPeriods(ctx context.Context, limit int) ([]Period, error)
	UpdatePeriodStatus(ctx context.Context, id int64, status PeriodStatus) error
	ListPayslips(ctx context.Context, periodID int64) ([]Payslip, error)
	GetAdvance(ctx context.Context, id int64) (Advance, error)
	ListAdvancesBetween(ctx context.Context, from, to time.Time) ([]Advance, error)
	ListTransfers(ctx context.Context, periodID int64) ([]BankTransfer, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, year, month, name, start_date, end_date, status,
total_gross_salary, total_epf_employer, total_epf_employee,
total_etf_contribution, total_net_salary, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Year, &p.Month, &p.Name, &p.StartDate, &p.EndDate, &p.Status,
		&p.TotalGrossSalary, &p.TotalEPFEmployer, &p.TotalEPFEmployee,
		&p.TotalETFContribution, &p.TotalNetSalary, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM payroll_periods WHERE id = $1`, id))
}

func (r *repository) GetPeriodByMonth(ctx context.Context, year, month int) (Period, error) {
	return scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM payroll_periods WHERE year = $1 AND month = $2`, year, month))
}

func (r *repository) ListPeriods(ctx context.Context, limit int) ([]Period, error) {
	if limit <= 0 {
		limit = 24
	}
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM payroll_periods ORDER BY year DESC, month DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) UpdatePeriodStatus(ctx context.Context, id int64, status PeriodStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE payroll_periods SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

const payslipColumns = `id, reference, period_id, employee_id, status, basic_salary,
bonus_1, bonus_2, transport_allowance, telephone_allowance, fuel_allowance,
meal_allowance, attendance_bonus, performance_bonus, regular_overtime,
weekend_overtime, epf_employee, epf_employer, etf_contribution, income_tax,
advance_deduction, net_salary, created_at, updated_at`

func (r *repository) ListPayslips(ctx context.Context, periodID int64) ([]Payslip, error) {
	rows, err := r.db.Query(ctx, `SELECT `+payslipColumns+` FROM payslips WHERE period_id = $1 ORDER BY reference`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payslip
	for rows.Next() {
		var s Payslip
		err := rows.Scan(&s.ID, &s.Reference, &s.PeriodID, &s.EmployeeID, &s.Status, &s.BasicSalary,
			&s.Bonus1, &s.Bonus2, &s.TransportAllow, &s.TelephoneAllow, &s.FuelAllow,
			&s.MealAllow, &s.AttendanceBonus, &s.PerformanceBonus, &s.RegularOvertime,
			&s.WeekendOvertime, &s.EPFEmployee, &s.EPFEmployer, &s.ETFContribution, &s.IncomeTax,
			&s.AdvanceDeduction, &s.NetSalary, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const advanceColumns = `id, reference, employee_id, amount, advance_type, reason,
purpose_details, status, approved_date, disbursement_date, created_at, updated_at`

func scanAdvance(row pgx.Row) (Advance, error) {
	var a Advance
	err := row.Scan(&a.ID, &a.Reference, &a.EmployeeID, &a.Amount, &a.AdvanceType, &a.Reason,
		&a.PurposeDetails, &a.Status, &a.ApprovedDate, &a.DisbursementDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Advance{}, pgx.ErrNoRows
		}
		return Advance{}, err
	}
	return a, nil
}

func (r *repository) GetAdvance(ctx context.Context, id int64) (Advance, error) {
	return scanAdvance(r.db.QueryRow(ctx, `SELECT `+advanceColumns+` FROM salary_advances WHERE id = $1`, id))
}

func (r *repository) ListAdvancesBetween(ctx context.Context, from, to time.Time) ([]Advance, error) {
	rows, err := r.db.Query(ctx, `SELECT `+advanceColumns+` FROM salary_advances
WHERE coalesce(disbursement_date, approved_date, created_at)::date BETWEEN $1 AND $2
ORDER BY reference`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Advance
	for rows.Next() {
		a, err := scanAdvance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) ListTransfers(ctx context.Context, periodID int64) ([]BankTransfer, error) {
	rows, err := r.db.Query(ctx, `SELECT id, batch_ref, period_id, total_amount, status, sent_at, created_at, updated_at
FROM bank_transfers WHERE period_id = $1 ORDER BY batch_ref`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankTransfer
	for rows.Next() {
		var bt BankTransfer
		if err := rows.Scan(&bt.ID, &bt.BatchRef, &bt.PeriodID, &bt.TotalAmount, &bt.Status, &bt.SentAt, &bt.CreatedAt, &bt.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, bt)
	}
	return out, rows.Err()
}

var _ Repository = (*repository)(nil)
