package employees

import (
	"fmt"
	"time"
)

// Employee models an employee master record.
type Employee struct {
	ID            int64
	Code          string
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	JobTitle      string
	DepartmentID  *int64
	Department    string
	AddressLine1  string
	AddressLine2  string
	City          string
	Region        string
	PostalCode    string
	Country       string
	BankName      string
	BankAccountNo string
	TaxID         string
	IsActive      bool
	HiredAt       time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FullName joins the employee's name parts for display.
func (e Employee) FullName() string {
	if e.LastName == "" {
		return e.FirstName
	}
	return fmt.Sprintf("%s %s", e.FirstName, e.LastName)
}
