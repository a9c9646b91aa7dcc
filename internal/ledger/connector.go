package ledger

import (
	"context"
	"errors"
)

// Connector persists constructed documents in the external accounting
// system. Every operation is keyed by doc number (display name for
// vendors): the first submission creates, resubmission updates in place,
// so retries converge on one external document state.
type Connector interface {
	UpsertJournalEntry(ctx context.Context, entry JournalEntry) (string, error)
	UpsertPurchase(ctx context.Context, doc PurchaseDocument) (string, error)
	UpsertCreditMemo(ctx context.Context, doc CreditMemoDocument) (string, error)
	UpsertVendor(ctx context.Context, rec VendorRecord) (string, error)
}

var (
	// ErrTransport marks retryable connector failures (network, 5xx, timeout).
	ErrTransport = errors.New("ledger: connector transport failure")
	// ErrRejected marks non-retryable connector failures (4xx, validation).
	ErrRejected = errors.New("ledger: connector rejected request")
)

// Retryable reports whether a connector error is worth resubmitting.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
