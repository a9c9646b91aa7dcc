package ledger

import (
	"fmt"

	"github.com/urbix-hr/urbix/internal/employees"
)

// ProjectVendor derives the external vendor record for an employee. The
// display name doubles as the upsert key, so it must stay a pure function
// of the employee's name and code.
func ProjectVendor(emp employees.Employee, companyName string) VendorRecord {
	rec := VendorRecord{
		DisplayName:      fmt.Sprintf("%s (%s)", emp.FullName(), emp.Code),
		PrintOnCheckName: emp.FullName(),
		Active:           emp.IsActive,
		CompanyName:      companyName,
		Email:            emp.Email,
		Phone:            emp.Phone,
		AddressLine1:     emp.AddressLine1,
		AddressLine2:     emp.AddressLine2,
		City:             emp.City,
		Region:           emp.Region,
		PostalCode:       emp.PostalCode,
		Country:          emp.Country,
		TaxIdentifier:    emp.TaxID,
	}
	if emp.JobTitle != "" || emp.Department != "" {
		rec.Notes = fmt.Sprintf("Job Title: %s\nDepartment: %s", emp.JobTitle, emp.Department)
	}
	return rec
}
