package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTrunc100(t *testing.T) {
	cases := map[string]string{
		"4800":    "4800",
		"4899.99": "4800",
		"336":     "300",
		"99":      "0",
		"0":       "0",
		"12345.6": "12300",
		"-50":     "-100",
	}
	for in, want := range cases {
		assert.True(t, dec(want).Equal(Trunc100(dec(in))), "Trunc100(%s) = %s", in, Trunc100(dec(in)))
	}
}

func TestComputeTotals(t *testing.T) {
	totals := computeTotals([]decimal.Decimal{dec("4000"), dec("899.99")}, dec("0.07"))
	assert.True(t, dec("4800").Equal(totals.Subtotal))
	assert.True(t, dec("300").Equal(totals.VAT))
	assert.True(t, dec("5100").Equal(totals.Total))
}

func TestDisplayUnitPrice(t *testing.T) {
	assert.True(t, dec("1040").Equal(displayUnitPrice(dec("5200"), dec("5"))))
	assert.True(t, dec("333").Equal(displayUnitPrice(dec("1000"), dec("3"))))
	assert.True(t, dec("700").Equal(displayUnitPrice(dec("700"), dec("0"))))
}

func TestBillingMonth(t *testing.T) {
	m, err := ParseBillingMonth("2024-02")
	assert.NoError(t, err)
	assert.Equal(t, "2024-02", m.String())
	assert.Equal(t, "202402", m.Period())
	assert.Equal(t, "2024-02-29", m.LastDay().Format("2006-01-02"))
	assert.Equal(t, "2024-03-01", m.Next().Format("2006-01-02"))
	assert.True(t, m.Contains(mustDate(t, "2024-02-29")))
	assert.False(t, m.Contains(mustDate(t, "2024-03-01")))

	_, err = ParseBillingMonth("2024/02")
	assert.Error(t, err)
}
