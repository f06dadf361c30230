package sequence

import (
	"fmt"
	"time"
)

// FormatInvoiceNumber formats a human-readable invoice number from the
// prefix, issue year, and monotonic sequence value.
//
// This function is PURE:
// - No side effects
// - No DB access
// - Fully deterministic
func FormatInvoiceNumber(prefix string, issuedAt time.Time, seq int64) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("invoice prefix is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	return fmt.Sprintf("%s-%s%06d", prefix, issuedAt.Format("2006"), seq), nil
}
