package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrencySymbol is the symbol used by the demo ledger.
const DefaultCurrencySymbol = "₹"

// FormatMoney renders an amount with two decimals, thousands separators and
// the currency symbol, e.g. "₹25,000.00" or "-₹1,200.50".
func FormatMoney(amount decimal.Decimal, symbol string) string {
	body := groupThousands(amount.Abs().StringFixed(2))
	if isNegative(amount) {
		return "-" + symbol + body
	}
	return symbol + body
}

// FormatSigned renders an amount like FormatMoney but always carries an
// explicit sign for non-zero values, e.g. "+₹500.00".
func FormatSigned(amount decimal.Decimal, symbol string) string {
	s := FormatMoney(amount, symbol)
	if amount.Round(2).IsPositive() {
		return "+" + s
	}
	return s
}

// isNegative reports whether amount is still negative after rounding to cents,
// so that -0.001 does not render as "-₹0.00".
func isNegative(amount decimal.Decimal) bool {
	return amount.Round(2).IsNegative()
}

func groupThousands(fixed string) string {
	intPart, frac, _ := strings.Cut(fixed, ".")
	if len(intPart) <= 3 {
		return fixed
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
