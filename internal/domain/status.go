package domain

import "strings"

var validNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentStatusPending: {
		PaymentStatusPaid:    true,
		PaymentStatusFailed:  true,
		PaymentStatusExpired: true,
	},
	PaymentStatusPaid:    {},
	PaymentStatusFailed:  {},
	PaymentStatusExpired: {},
}

// ParsePaymentStatus normalises a stored or external status value.
func ParsePaymentStatus(value string) (PaymentStatus, bool) {
	status := PaymentStatus(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := validNext[status]; !ok {
		return "", false
	}
	return status, true
}

// IsTerminal reports whether no further transition is allowed from the status.
func (s PaymentStatus) IsTerminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// CanAdvance reports whether a stored status may move forward to target.
// Same-status writes and regressions both return false.
func CanAdvance(from, to PaymentStatus) bool {
	next, ok := validNext[from]
	if !ok {
		return false
	}
	return next[to]
}
