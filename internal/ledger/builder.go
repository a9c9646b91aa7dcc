package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LineSpec declares one candidate journal line: where its amount comes from,
// which side it posts to, and which account mappings may serve it. Optional
// lines are suppressed when the rounded amount is not positive; required
// lines are always emitted. A missing mapping for an emitted line fails the
// whole entry.
type LineSpec struct {
	Description string
	Refs        []MappingRef
	Side        Side
	Amount      decimal.Decimal
	Optional    bool
}

func mapped(t MappingType, key string) []MappingRef {
	return []MappingRef{{Type: t, Key: key}}
}

// buildEntry runs the generic line builder over a template. Lines are
// appended in template order, so templates list debits before credits.
func buildEntry(ctx context.Context, resolver MappingRepository, docNumber string, txnDate time.Time, memo string, specs []LineSpec) (JournalEntry, error) {
	entry := JournalEntry{DocNumber: docNumber, TxnDate: txnDate, Memo: memo}
	for _, spec := range specs {
		amount := round(spec.Amount)
		if spec.Optional && !amount.IsPositive() {
			continue
		}
		if amount.IsNegative() {
			return JournalEntry{}, fmt.Errorf("ledger: %s: negative amount for required line %q", docNumber, spec.Description)
		}
		mapping, err := resolveFirst(ctx, resolver, spec.Refs)
		if err != nil {
			return JournalEntry{}, fmt.Errorf("%w: %s for %q", ErrMappingNotFound, docNumber, spec.Description)
		}
		entry.Lines = append(entry.Lines, JournalLine{
			Account:     AccountRef{ID: mapping.AccountID, Name: mapping.AccountName},
			Side:        spec.Side,
			Amount:      amount,
			Description: spec.Description,
		})
	}
	if err := entry.Validate(); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}
