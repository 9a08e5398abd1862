package shared

import "fmt"

// QuoteSequenceLockKey builds the redis key serialising quote numbering for a
// tenant and year.
func QuoteSequenceLockKey(tenantID int64, year int) string {
	return fmt.Sprintf("quotes:seq:%d:%d", tenantID, year)
}
