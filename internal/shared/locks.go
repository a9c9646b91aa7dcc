package shared

import "fmt"

// ExportLockKey builds redis keys guarding one ledger export run, so two
// workers never submit the same source document concurrently.
func ExportLockKey(syncType string, sourceID int64) string {
	return fmt.Sprintf("urbix:export:%s:%d:lock", syncType, sourceID)
}
