package expenses

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a missing expense row.
var ErrNotFound = errors.New("expenses: not found")

// Repository encapsulates DB operations for expenses.
type Repository interface {
	Get(ctx context.Context, id int64) (Expense, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Expense, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	ListItems(ctx context.Context, expenseID int64) ([]PurchaseItem, error)
	ListPlans(ctx context.Context, expenseID int64) ([]InstallmentPlan, error)
	ListInstallments(ctx context.Context, planID int64) ([]Installment, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const expenseColumns = `id, reference, description, notes, employee_id, category_id,
type_id, type_name, expense_account, department_id, cost_center, tax_category,
payment_method, total_amount, subtotal, tax_amount, vendor_name, purchase_ref,
is_reimbursable, is_taxable_benefit, status, date_incurred, created_at, updated_at`

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Reference, &e.Description, &e.Notes, &e.EmployeeID, &e.CategoryID,
		&e.TypeID, &e.TypeName, &e.ExpenseAccount, &e.DepartmentID, &e.CostCenter, &e.TaxCategory,
		&e.PaymentMethod, &e.TotalAmount, &e.Subtotal, &e.TaxAmount, &e.VendorName, &e.PurchaseRef,
		&e.IsReimbursable, &e.IsTaxableBenefit, &e.Status, &e.DateIncurred, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, err
	}
	return e, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Expense, error) {
	return scanExpense(r.db.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
}

func (r *repository) ListByStatus(ctx context.Context, status Status, limit int) ([]Expense, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE status = $1 ORDER BY date_incurred DESC LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE expenses SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListItems(ctx context.Context, expenseID int64) ([]PurchaseItem, error) {
	rows, err := r.db.Query(ctx, `SELECT id, expense_id, description, quantity, unit_cost, total_cost,
department_id, return_status, return_quantity, refund_amount, return_date, is_active
FROM purchase_items WHERE expense_id = $1 AND is_active ORDER BY id`, expenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseItem
	for rows.Next() {
		var it PurchaseItem
		err := rows.Scan(&it.ID, &it.ExpenseID, &it.Description, &it.Quantity, &it.UnitCost, &it.TotalCost,
			&it.DepartmentID, &it.ReturnStatus, &it.ReturnQuantity, &it.RefundAmount, &it.ReturnDate, &it.IsActive)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repository) ListPlans(ctx context.Context, expenseID int64) ([]InstallmentPlan, error) {
	rows, err := r.db.Query(ctx, `SELECT id, expense_id, total_amount, installment_amount,
number_of_installments, start_date, is_active
FROM installment_plans WHERE expense_id = $1 AND is_active ORDER BY id`, expenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InstallmentPlan
	for rows.Next() {
		var p InstallmentPlan
		err := rows.Scan(&p.ID, &p.ExpenseID, &p.TotalAmount, &p.InstallmentAmount,
			&p.NumberOfInstallments, &p.StartDate, &p.IsActive)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) ListInstallments(ctx context.Context, planID int64) ([]Installment, error) {
	rows, err := r.db.Query(ctx, `SELECT id, plan_id, number, amount, scheduled_date,
processed_date, is_processed, is_active
FROM installments WHERE plan_id = $1 AND is_active ORDER BY number`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Installment
	for rows.Next() {
		var ins Installment
		err := rows.Scan(&ins.ID, &ins.PlanID, &ins.Number, &ins.Amount, &ins.ScheduledDate,
			&ins.ProcessedDate, &ins.IsProcessed, &ins.IsActive)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

var _ Repository = (*repository)(nil)
