package enums

import "slices"

// QuotaKind identifies a metered monthly allowance.
type QuotaKind string

const (
	QuotaKindContactView QuotaKind = "contact_view"
	QuotaKindProposal    QuotaKind = "proposal"
	QuotaKindResponse    QuotaKind = "response"
)

var validQuotaKinds = []QuotaKind{
	QuotaKindContactView,
	QuotaKindProposal,
	QuotaKindResponse,
}

// String implements fmt.Stringer.
func (q QuotaKind) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QuotaKind.
func (q QuotaKind) IsValid() bool {
	return slices.Contains(validQuotaKinds, q)
}

// ParseQuotaKind converts raw input into a QuotaKind.
func ParseQuotaKind(value string) (QuotaKind, error) {
	return parse("quota kind", value, validQuotaKinds)
}
