package employees

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a missing employee record.
var ErrNotFound = errors.New("employees: not found")

// Repository defines persistence operations for employees.
type Repository interface {
	GetByID(ctx context.Context, id int64) (Employee, error)
	GetByCode(ctx context.Context, code string) (Employee, error)
	ListActive(ctx context.Context) ([]Employee, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const employeeColumns = `id, code, first_name, last_name, email, phone, job_title,
department_id, department_name, address_line1, address_line2, city, region,
postal_code, country, bank_name, bank_account_no, tax_id, is_active, hired_at,
created_at, updated_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.Code, &e.FirstName, &e.LastName, &e.Email, &e.Phone,
		&e.JobTitle, &e.DepartmentID, &e.Department, &e.AddressLine1, &e.AddressLine2,
		&e.City, &e.Region, &e.PostalCode, &e.Country, &e.BankName, &e.BankAccountNo,
		&e.TaxID, &e.IsActive, &e.HiredAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, ErrNotFound
		}
		return Employee{}, err
	}
	return e, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (Employee, error) {
	return scanEmployee(r.db.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
}

func (r *repository) GetByCode(ctx context.Context, code string) (Employee, error) {
	return scanEmployee(r.db.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE code = $1`, code))
}

func (r *repository) ListActive(ctx context.Context) ([]Employee, error) {
	rows, err := r.db.Query(ctx, `SELECT `+employeeColumns+` FROM employees WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
