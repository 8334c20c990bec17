package repositories

import (
	"time"

	domain "github.com/psicolfis/checkout-api/internal/domain"
)

// ApplyAdvance computes the result of a conditional status update against the stored record.
// Storage engines call it inside their atomic section and persist only when Changed is true.
func ApplyAdvance(current domain.Transaction, target domain.PaymentStatus, at time.Time) AdvanceResult {
	result := AdvanceResult{Transaction: current, Previous: current.PaymentStatus}
	if !domain.CanAdvance(current.PaymentStatus, target) {
		return result
	}
	result.Transaction.PaymentStatus = target
	result.Transaction.UpdatedAt = at.UTC()
	result.Changed = true
	return result
}

// CloneMetadata returns a defensive copy of transaction metadata.
func CloneMetadata(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
