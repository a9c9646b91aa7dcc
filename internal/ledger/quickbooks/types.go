package quickbooks

// Wire types for the QuickBooks Online v3 REST API. Amounts travel as
// plain JSON numbers, so the connector converts from decimal at the edge.

type ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type entityRef struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
}

type journalLineDetail struct {
	PostingType   string     `json:"PostingType"`
	AccountRef    ref        `json:"AccountRef"`
	DepartmentRef *ref       `json:"DepartmentRef,omitempty"`
	Entity        *entityRef `json:"Entity,omitempty"`
}

type journalLine struct {
	ID                     string            `json:"Id,omitempty"`
	Description            string            `json:"Description,omitempty"`
	Amount                 float64           `json:"Amount"`
	DetailType             string            `json:"DetailType"`
	JournalEntryLineDetail journalLineDetail `json:"JournalEntryLineDetail"`
}

type journalEntryPayload struct {
	ID          string        `json:"Id,omitempty"`
	SyncToken   string        `json:"SyncToken,omitempty"`
	DocNumber   string        `json:"DocNumber"`
	TxnDate     string        `json:"TxnDate"`
	PrivateNote string        `json:"PrivateNote,omitempty"`
	Line        []journalLine `json:"Line"`
}

type expenseLineDetail struct {
	AccountRef     ref  `json:"AccountRef"`
	BillableStatus string `json:"BillableStatus,omitempty"`
	TaxCodeRef     *ref `json:"TaxCodeRef,omitempty"`
	DepartmentRef  *ref `json:"DepartmentRef,omitempty"`
}

type purchaseLine struct {
	ID                            string            `json:"Id,omitempty"`
	Description                   string            `json:"Description,omitempty"`
	Amount                        float64           `json:"Amount"`
	DetailType                    string            `json:"DetailType"`
	AccountBasedExpenseLineDetail expenseLineDetail `json:"AccountBasedExpenseLineDetail"`
}

type purchasePayload struct {
	ID          string         `json:"Id,omitempty"`
	SyncToken   string         `json:"SyncToken,omitempty"`
	DocNumber   string         `json:"DocNumber"`
	TxnDate     string         `json:"TxnDate"`
	PaymentType string         `json:"PaymentType"`
	AccountRef  ref            `json:"AccountRef"`
	EntityRef   *entityRef     `json:"EntityRef,omitempty"`
	TotalAmt    float64        `json:"TotalAmt"`
	PrivateNote string         `json:"PrivateNote,omitempty"`
	Line        []purchaseLine `json:"Line"`
}

type salesItemLineDetail struct {
	ItemRef    ref  `json:"ItemRef"`
	TaxCodeRef *ref `json:"TaxCodeRef,omitempty"`
}

type creditMemoLine struct {
	Description         string              `json:"Description,omitempty"`
	Amount              float64             `json:"Amount"`
	DetailType          string              `json:"DetailType"`
	SalesItemLineDetail salesItemLineDetail `json:"SalesItemLineDetail"`
}

type creditMemoPayload struct {
	ID          string           `json:"Id,omitempty"`
	SyncToken   string           `json:"SyncToken,omitempty"`
	DocNumber   string           `json:"DocNumber"`
	TxnDate     string           `json:"TxnDate"`
	PrivateNote string           `json:"PrivateNote,omitempty"`
	CustomerRef *entityRef       `json:"CustomerRef,omitempty"`
	Line        []creditMemoLine `json:"Line"`
}

type emailAddr struct {
	Address string `json:"Address,omitempty"`
}

type phoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber,omitempty"`
}

type address struct {
	Line1                  string `json:"Line1,omitempty"`
	Line2                  string `json:"Line2,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

type vendorPayload struct {
	ID               string       `json:"Id,omitempty"`
	SyncToken        string       `json:"SyncToken,omitempty"`
	DisplayName      string       `json:"DisplayName"`
	PrintOnCheckName string       `json:"PrintOnCheckName,omitempty"`
	Active           bool         `json:"Active"`
	CompanyName      string       `json:"CompanyName,omitempty"`
	PrimaryEmailAddr *emailAddr   `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *phoneNumber `json:"PrimaryPhone,omitempty"`
	BillAddr         *address     `json:"BillAddr,omitempty"`
	TaxIdentifier    string       `json:"TaxIdentifier,omitempty"`
	Notes            string       `json:"Notes,omitempty"`
	VendorType       string       `json:"VendorType,omitempty"`
}

type queryEnvelope struct {
	QueryResponse map[string][]entityEnvelope `json:"QueryResponse"`
}

type entityEnvelope struct {
	ID        string `json:"Id"`
	SyncToken string `json:"SyncToken"`
}

type createEnvelope map[string]entityEnvelope

type faultError struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail"`
	Code    string `json:"code"`
}

type faultEnvelope struct {
	Fault struct {
		Error []faultError `json:"Error"`
		Type  string       `json:"type"`
	} `json:"Fault"`
}
