package payments

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeePolicy computes the platform's cut of an escrowed amount.
type FeePolicy struct {
	percent decimal.Decimal
}

// NewFeePolicy parses a percentage such as "10" or "12.5".
func NewFeePolicy(raw string) (FeePolicy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FeePolicy{percent: decimal.Zero}, nil
	}
	percent, err := decimal.NewFromString(raw)
	if err != nil {
		return FeePolicy{}, fmt.Errorf("parse platform fee percent %q: %w", raw, err)
	}
	if percent.IsNegative() || percent.GreaterThanOrEqual(hundred) {
		return FeePolicy{}, fmt.Errorf("platform fee percent must be in [0, 100), got %s", percent)
	}
	return FeePolicy{percent: percent}, nil
}

// Fee returns amount * percent / 100 in cents, rounded half-up.
func (p FeePolicy) Fee(amountCents int64) int64 {
	if amountCents <= 0 || p.percent.IsZero() {
		return 0
	}
	return decimal.NewFromInt(amountCents).
		Mul(p.percent).
		Div(hundred).
		Round(0).
		IntPart()
}

func (p FeePolicy) Percent() string {
	return p.percent.String()
}
