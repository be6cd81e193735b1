package service

import (
	"github.com/shopspring/decimal"
)

// Trunc100 rounds v down to a multiple of 100, toward negative infinity.
func Trunc100(v decimal.Decimal) decimal.Decimal {
	return v.Shift(-2).Floor().Shift(2)
}

// Round4 rounds half away from zero to 4 decimal places.
func Round4(v decimal.Decimal) decimal.Decimal {
	return v.Round(4)
}

type invoiceTotals struct {
	Subtotal decimal.Decimal
	VAT      decimal.Decimal
	Total    decimal.Decimal
}

// computeTotals applies trunc100 at every step so all three figures stay
// multiples of 100.
func computeTotals(lineAmounts []decimal.Decimal, vatRate decimal.Decimal) invoiceTotals {
	sum := decimal.Zero
	for _, a := range lineAmounts {
		sum = sum.Add(a)
	}
	subtotal := Trunc100(sum)
	vat := Trunc100(subtotal.Mul(vatRate))
	return invoiceTotals{
		Subtotal: subtotal,
		VAT:      vat,
		Total:    Trunc100(subtotal.Add(vat)),
	}
}

// displayUnitPrice is the per-unit figure printed on an invoice line.
func displayUnitPrice(amount, qty decimal.Decimal) decimal.Decimal {
	if qty.IsPositive() {
		return amount.Div(qty).Truncate(0)
	}
	return amount
}

func nullOrZero(v decimal.NullDecimal) decimal.Decimal {
	if v.Valid {
		return v.Decimal
	}
	return decimal.Zero
}
