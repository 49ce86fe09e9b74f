package enums

import "slices"

// PaymentStatus mirrors the escrow lifecycle of a Stripe PaymentIntent.
type PaymentStatus string

const (
	PaymentStatusRequiresPayment PaymentStatus = "requires_payment"
	PaymentStatusHeld            PaymentStatus = "held"
	PaymentStatusReleased        PaymentStatus = "released"
	PaymentStatusRefunded        PaymentStatus = "refunded"
	PaymentStatusFailed          PaymentStatus = "failed"
	PaymentStatusCancelled       PaymentStatus = "cancelled"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusRequiresPayment,
	PaymentStatusHeld,
	PaymentStatusReleased,
	PaymentStatusRefunded,
	PaymentStatusFailed,
	PaymentStatusCancelled,
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	return slices.Contains(validPaymentStatuses, p)
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse("payment status", value, validPaymentStatuses)
}

// IsTerminal reports whether no further transitions are possible.
func (p PaymentStatus) IsTerminal() bool {
	switch p {
	case PaymentStatusReleased,
		PaymentStatusRefunded,
		PaymentStatusFailed,
		PaymentStatusCancelled:
		return true
	}
	return false
}
