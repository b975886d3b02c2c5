// Package reconcile compares what a gateway claims was paid against what
// the payment record expects. All arithmetic is exact decimal; a float
// comparison here would be a financial bug.
package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Outcome int

const (
	OutcomeExactOrOverpaid Outcome = iota
	OutcomeUnderpaid
	OutcomeCurrencyMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExactOrOverpaid:
		return "exact_or_overpaid"
	case OutcomeUnderpaid:
		return "underpaid"
	case OutcomeCurrencyMismatch:
		return "currency_mismatch"
	}
	return "unknown"
}

// Reconcile classifies a claimed amount/currency pair against the expected
// one. A currency mismatch is fatal regardless of the numbers.
func Reconcile(expectedAmount decimal.Decimal, expectedCurrency string, claimedAmount decimal.Decimal, claimedCurrency string) Outcome {
	if !strings.EqualFold(strings.TrimSpace(expectedCurrency), strings.TrimSpace(claimedCurrency)) {
		return OutcomeCurrencyMismatch
	}
	if claimedAmount.GreaterThanOrEqual(expectedAmount) {
		return OutcomeExactOrOverpaid
	}
	return OutcomeUnderpaid
}
