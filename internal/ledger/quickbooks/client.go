package quickbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/urbix-hr/urbix/internal/ledger"
)

const (
	sandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com/v3/company"
	productionBaseURL = "https://quickbooks.api.intuit.com/v3/company"
	minorVersion      = "65"
	dateLayout        = "2006-01-02"
)

// Client talks to the QuickBooks Online API and implements
// ledger.Connector. All writes are upserts keyed by DocNumber (DisplayName
// for vendors): the client queries first and updates in place on a hit.
type Client struct {
	endpoint   string
	tokens     *tokenSource
	http       *http.Client
	logger     *slog.Logger
	maxRetries uint64
}

// Option tweaks client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
		c.tokens.client = hc
	}
}

// WithEndpoint overrides the company endpoint, for tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithTokenEndpoint overrides the OAuth token endpoint, for tests.
func WithTokenEndpoint(endpoint string) Option {
	return func(c *Client) { c.tokens.endpoint = endpoint }
}

// WithMaxRetries bounds transport retry attempts.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient constructs a connector for one realm.
func NewClient(creds Credentials, logger *slog.Logger, opts ...Option) *Client {
	base := sandboxBaseURL
	if creds.Environment == "production" {
		base = productionBaseURL
	}
	hc := &http.Client{Timeout: 30 * time.Second}
	c := &Client{
		endpoint:   fmt.Sprintf("%s/%s", base, creds.RealmID),
		tokens:     newTokenSource(creds, hc),
		http:       hc,
		logger:     logger,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs one authenticated request, classifying failures into the
// ledger error taxonomy: network errors and 5xx are transport (retryable),
// 4xx is a rejection carrying the remote fault payload.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrTransport, err)
	}

	u := c.endpoint + "/" + path
	if query == nil {
		query = url.Values{}
	}
	query.Set("minorversion", minorVersion)
	u += "?" + query.Encode()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("quickbooks: encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("quickbooks: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ledger.ErrTransport, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ledger.ErrTransport, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", ledger.ErrRejected, resp.StatusCode, faultMessage(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("quickbooks: decode response: %w", err)
		}
	}
	return nil
}

// doRetry wraps do with exponential backoff on transport failures only.
func (c *Client) doRetry(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	operation := func() error {
		err := c.do(ctx, method, path, query, payload, out)
		if err != nil && !ledger.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(operation, bo)
}

func faultMessage(data []byte) string {
	var fault faultEnvelope
	if err := json.Unmarshal(data, &fault); err == nil && len(fault.Fault.Error) > 0 {
		e := fault.Fault.Error[0]
		if e.Detail != "" {
			return e.Message + ": " + e.Detail
		}
		return e.Message
	}
	return strings.TrimSpace(string(data))
}

// find looks an entity up by a unique field and returns id/sync token, or
// nil when absent.
func (c *Client) find(ctx context.Context, entity, field, value string) (*entityEnvelope, error) {
	q := url.Values{}
	q.Set("query", fmt.Sprintf("SELECT * FROM %s WHERE %s = '%s'", entity, field, strings.ReplaceAll(value, "'", "\\'")))
	var envelope queryEnvelope
	if err := c.doRetry(ctx, http.MethodGet, "query", q, nil, &envelope); err != nil {
		return nil, err
	}
	matches := envelope.QueryResponse[entity]
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// create posts an entity payload and extracts the returned id.
func (c *Client) create(ctx context.Context, path, entity string, payload any) (string, error) {
	var envelope createEnvelope
	if err := c.doRetry(ctx, http.MethodPost, path, nil, payload, &envelope); err != nil {
		return "", err
	}
	created, ok := envelope[entity]
	if !ok {
		return "", fmt.Errorf("%w: response missing %s", ledger.ErrRejected, entity)
	}
	return created.ID, nil
}

// UpsertJournalEntry creates or replaces the journal entry with this doc
// number.
func (c *Client) UpsertJournalEntry(ctx context.Context, entry ledger.JournalEntry) (string, error) {
	payload := journalEntryPayload{
		DocNumber:   entry.DocNumber,
		TxnDate:     entry.TxnDate.Format(dateLayout),
		PrivateNote: entry.Memo,
	}
	var deptRef *ref
	if entry.Department != nil {
		deptRef = &ref{Value: entry.Department.ID, Name: entry.Department.Name}
	}
	var entity *entityRef
	if entry.Entity != nil {
		entity = &entityRef{Value: entry.Entity.ID, Name: entry.Entity.Name, Type: entry.Entity.Type}
	}
	for i, line := range entry.Lines {
		payload.Line = append(payload.Line, journalLine{
			ID:          fmt.Sprintf("%d", i+1),
			Description: line.Description,
			Amount:      line.Amount.InexactFloat64(),
			DetailType:  "JournalEntryLineDetail",
			JournalEntryLineDetail: journalLineDetail{
				PostingType:   string(line.Side),
				AccountRef:    ref{Value: line.Account.ID, Name: line.Account.Name},
				DepartmentRef: deptRef,
				Entity:        entity,
			},
		})
	}

	existing, err := c.find(ctx, "JournalEntry", "DocNumber", entry.DocNumber)
	if err != nil {
		return "", err
	}
	if existing != nil {
		payload.ID = existing.ID
		payload.SyncToken = existing.SyncToken
	}
	return c.create(ctx, "journalentry", "JournalEntry", payload)
}

// UpsertPurchase creates or replaces the purchase document with this doc
// number.
func (c *Client) UpsertPurchase(ctx context.Context, doc ledger.PurchaseDocument) (string, error) {
	payload := purchasePayload{
		DocNumber:   doc.DocNumber,
		TxnDate:     doc.TxnDate.Format(dateLayout),
		PaymentType: "Cash",
		AccountRef:  ref{Value: doc.PaymentFrom.ID, Name: doc.PaymentFrom.Name},
		EntityRef:   &entityRef{Value: doc.Entity.ID, Name: doc.Entity.Name, Type: doc.Entity.Type},
		TotalAmt:    doc.Total.InexactFloat64(),
		PrivateNote: doc.PrivateNote,
	}
	for _, line := range doc.Lines {
		detail := expenseLineDetail{
			AccountRef:     ref{Value: line.Account.ID, Name: line.Account.Name},
			BillableStatus: "NotBillable",
			TaxCodeRef:     &ref{Value: taxCode(line.Taxable)},
		}
		if line.Billable {
			detail.BillableStatus = "Billable"
		}
		if line.Department != nil {
			detail.DepartmentRef = &ref{Value: line.Department.ID, Name: line.Department.Name}
		}
		payload.Line = append(payload.Line, purchaseLine{
			Description:                 line.Description,
			Amount:                      line.Amount.InexactFloat64(),
			DetailType:                  "AccountBasedExpenseLineDetail",
			AccountBasedExpenseLineDetail: detail,
		})
	}

	existing, err := c.find(ctx, "Purchase", "DocNumber", doc.DocNumber)
	if err != nil {
		return "", err
	}
	if existing != nil {
		payload.ID = existing.ID
		payload.SyncToken = existing.SyncToken
	}
	return c.create(ctx, "purchase", "Purchase", payload)
}

// UpsertCreditMemo creates or replaces the credit memo with this doc
// number. Return lines are always non-taxable.
func (c *Client) UpsertCreditMemo(ctx context.Context, doc ledger.CreditMemoDocument) (string, error) {
	payload := creditMemoPayload{
		DocNumber:   doc.DocNumber,
		TxnDate:     doc.TxnDate.Format(dateLayout),
		PrivateNote: doc.Memo,
		CustomerRef: &entityRef{Value: doc.Customer.ID, Name: doc.Customer.Name},
	}
	for _, line := range doc.Lines {
		payload.Line = append(payload.Line, creditMemoLine{
			Description: line.Description,
			Amount:      line.Amount.InexactFloat64(),
			DetailType:  "SalesItemLineDetail",
			SalesItemLineDetail: salesItemLineDetail{
				ItemRef:    ref{Name: "Returned Item"},
				TaxCodeRef: &ref{Value: "NON"},
			},
		})
	}

	existing, err := c.find(ctx, "CreditMemo", "DocNumber", doc.DocNumber)
	if err != nil {
		return "", err
	}
	if existing != nil {
		payload.ID = existing.ID
		payload.SyncToken = existing.SyncToken
	}
	return c.create(ctx, "creditmemo", "CreditMemo", payload)
}

// UpsertVendor creates or updates the vendor matched by display name.
func (c *Client) UpsertVendor(ctx context.Context, rec ledger.VendorRecord) (string, error) {
	payload := vendorPayload{
		DisplayName:      rec.DisplayName,
		PrintOnCheckName: rec.PrintOnCheckName,
		Active:           rec.Active,
		CompanyName:      rec.CompanyName,
		TaxIdentifier:    rec.TaxIdentifier,
		Notes:            rec.Notes,
		VendorType:       "Employee",
	}
	if rec.Email != "" {
		payload.PrimaryEmailAddr = &emailAddr{Address: rec.Email}
	}
	if rec.Phone != "" {
		payload.PrimaryPhone = &phoneNumber{FreeFormNumber: rec.Phone}
	}
	if rec.AddressLine1 != "" || rec.City != "" || rec.Country != "" {
		payload.BillAddr = &address{
			Line1:                  rec.AddressLine1,
			Line2:                  rec.AddressLine2,
			City:                   rec.City,
			CountrySubDivisionCode: rec.Region,
			PostalCode:             rec.PostalCode,
			Country:                rec.Country,
		}
	}

	existing, err := c.find(ctx, "Vendor", "DisplayName", rec.DisplayName)
	if err != nil {
		return "", err
	}
	if existing != nil {
		payload.ID = existing.ID
		payload.SyncToken = existing.SyncToken
	}
	return c.create(ctx, "vendor", "Vendor", payload)
}

func taxCode(taxable bool) string {
	if taxable {
		return "TAX"
	}
	return "NON"
}

var _ ledger.Connector = (*Client)(nil)
