package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestLineRecalculateTotalHT(t *testing.T) {
	tests := []struct {
		name      string
		quantity  int64
		unitPrice string
		want      string
	}{
		{"simple", 2, "100.00", "200.00"},
		{"zero quantity", 0, "49.90", "0.00"},
		{"negative unit price", 1, "-50.00", "-50.00"},
		{"rounding half up", 3, "33.335", "100.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Line{Quantity: tt.quantity, UnitPrice: dec(tt.unitPrice)}
			l.RecalculateTotalHT()
			assert.True(t, l.TotalHT.Equal(dec(tt.want)), "TotalHT = %s, want %s", l.TotalHT, tt.want)
		})
	}
}

func TestResolveRate(t *testing.T) {
	global := RatePolicy{DocumentRate: dec("20.00"), PerLine: false}
	perLine := RatePolicy{DocumentRate: dec("20.00"), PerLine: true}

	assert.True(t, ResolveRate(decPtr("10.00"), global).Equal(dec("10.00")), "line rate wins")
	assert.True(t, ResolveRate(nil, global).Equal(dec("20.00")), "global rate applies")
	assert.True(t, ResolveRate(nil, perLine).IsZero(), "per-line mode without line rate is zero")
}

func TestResolveCorrectionRate(t *testing.T) {
	tests := []struct {
		name       string
		lineRate   *decimal.Decimal
		docRate    string
		sourceRate *decimal.Decimal
		want       string
	}{
		{"line rate wins", decPtr("5.50"), "20.00", decPtr("10.00"), "5.50"},
		{"document rate when non-zero", nil, "20.00", decPtr("10.00"), "20.00"},
		{"zero document rate defers to source", nil, "0.00", decPtr("10.00"), "10.00"},
		{"zero everywhere resolves to zero", nil, "0.00", nil, "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveCorrectionRate(tt.lineRate, dec(tt.docRate), tt.sourceRate)
			assert.True(t, got.Equal(dec(tt.want)), "rate = %s, want %s", got, tt.want)
		})
	}
}

// Quote with a global 20% rate over two lines: 2x100.00 and 3x50.00.
func TestComputeTotalsGlobalRate(t *testing.T) {
	l1 := Line{Quantity: 2, UnitPrice: dec("100.00")}
	l2 := Line{Quantity: 3, UnitPrice: dec("50.00")}
	l1.RecalculateTotalHT()
	l2.RecalculateTotalHT()

	policy := RatePolicy{DocumentRate: dec("20.00")}
	totals := ComputeTotals([]RatedLine{
		{TotalHT: l1.TotalHT, Rate: policy.DocumentRate},
		{TotalHT: l2.TotalHT, Rate: policy.DocumentRate},
	}, policy)

	assert.True(t, totals.HT.Equal(dec("350.00")), "HT = %s", totals.HT)
	assert.True(t, totals.TVA.Equal(dec("70.00")), "TVA = %s", totals.TVA)
	assert.True(t, totals.TTC.Equal(dec("420.00")), "TTC = %s", totals.TTC)
}

// Same lines, per-line rates 20% and 10%.
func TestComputeTotalsPerLineRates(t *testing.T) {
	policy := RatePolicy{DocumentRate: dec("20.00"), PerLine: true}
	totals := ComputeTotals([]RatedLine{
		{TotalHT: dec("200.00"), Rate: dec("20.00")},
		{TotalHT: dec("150.00"), Rate: dec("10.00")},
	}, policy)

	assert.True(t, totals.HT.Equal(dec("350.00")), "HT = %s", totals.HT)
	assert.True(t, totals.TVA.Equal(dec("55.00")), "TVA = %s", totals.TVA)
	assert.True(t, totals.TTC.Equal(dec("405.00")), "TTC = %s", totals.TTC)
}

func TestComputeTotalsPerLineRoundingEachTerm(t *testing.T) {
	// Each 0.333% term rounds individually before summation, so the aggregate
	// may drift a cent from a single top-level multiplication.
	policy := RatePolicy{PerLine: true}
	lines := []RatedLine{
		{TotalHT: dec("10.01"), Rate: dec("5.50")},
		{TotalHT: dec("10.01"), Rate: dec("5.50")},
		{TotalHT: dec("10.01"), Rate: dec("5.50")},
	}
	totals := ComputeTotals(lines, policy)
	// Per-line: round(0.55055) = 0.55 each, sum 1.65.
	// Top-level would give round(30.03*5.5%) = 1.65 here, but the per-term
	// rounding is the contract regardless.
	assert.True(t, totals.TVA.Equal(dec("1.65")), "TVA = %s", totals.TVA)
	assert.True(t, totals.TTC.Equal(totals.HT.Add(totals.TVA)))
}

func TestComputeTotalsIdempotent(t *testing.T) {
	policy := RatePolicy{DocumentRate: dec("20.00")}
	lines := []RatedLine{{TotalHT: dec("123.45"), Rate: dec("20.00")}}
	first := ComputeTotals(lines, policy)
	second := ComputeTotals(lines, policy)
	assert.True(t, first.HT.Equal(second.HT))
	assert.True(t, first.TVA.Equal(second.TVA))
	assert.True(t, first.TTC.Equal(second.TTC))
}

// Amendment raising a 200.00 HT line to 300.00 at 20% VAT.
func TestDeltaLineAmendment(t *testing.T) {
	l := DeltaLine{
		Line:     Line{Quantity: 1, UnitPrice: dec("300.00")},
		OldValue: dec("200.00"),
		NewValue: decPtr("300.00"),
	}
	l.RecalculateTotalHT()
	l.RecalculateDelta(dec("20.00"))

	assert.True(t, l.Delta.Equal(dec("100.00")), "delta = %s", l.Delta)
	assert.True(t, l.DeltaTTC.Equal(dec("120.00")), "deltaTtc = %s", l.DeltaTTC)

	policy := RatePolicy{DocumentRate: dec("20.00")}
	totals := ComputeTotals([]RatedLine{{TotalHT: l.TotalHT, Rate: dec("20.00")}}, policy)
	assert.True(t, totals.HT.Equal(dec("300.00")))
	assert.True(t, totals.TVA.Equal(dec("60.00")))
	assert.True(t, totals.TTC.Equal(dec("360.00")))
}

func TestDeltaLineWithoutNewValueUsesTotalHT(t *testing.T) {
	l := DeltaLine{
		Line:     Line{Quantity: 2, UnitPrice: dec("75.00")},
		OldValue: dec("100.00"),
	}
	l.RecalculateTotalHT()
	l.RecalculateDelta(dec("10.00"))

	assert.True(t, l.Delta.Equal(dec("50.00")), "delta = %s", l.Delta)
	assert.True(t, l.DeltaTTC.Equal(dec("55.00")), "deltaTtc = %s", l.DeltaTTC)
}

// An amendment with a zero document rate applies no VAT even when the parent
// quote carries 20%: the zero on the amendment wins.
func TestAmendmentZeroRateSuppressesQuoteRate(t *testing.T) {
	rate := ResolveCorrectionRate(nil, dec("0.00"), nil)
	require.True(t, rate.IsZero())

	l := Line{Quantity: 1, UnitPrice: dec("300.00")}
	l.RecalculateTotalHT()
	assert.True(t, l.TotalTTC(rate).Equal(l.TotalHT), "TTC must equal HT when rate resolves to zero")
}

// Credit note line of -50.00 at 20%.
func TestCreditNoteNegativeLine(t *testing.T) {
	l := Line{Quantity: 1, UnitPrice: dec("-50.00")}
	l.RecalculateTotalHT()

	policy := RatePolicy{DocumentRate: dec("20.00")}
	totals := ComputeTotals([]RatedLine{{TotalHT: l.TotalHT, Rate: dec("20.00")}}, policy)

	assert.True(t, totals.HT.Equal(dec("-50.00")), "HT = %s", totals.HT)
	assert.True(t, totals.TVA.Equal(dec("-10.00")), "TVA = %s", totals.TVA)
	assert.True(t, totals.TTC.Equal(dec("-60.00")), "TTC = %s", totals.TTC)
}

func TestRatesDetail(t *testing.T) {
	detail := RatesDetail([]RatedLine{
		{TotalHT: dec("200.00"), Rate: dec("20.00")},
		{TotalHT: dec("100.00"), Rate: dec("20.00")},
		{TotalHT: dec("150.00"), Rate: dec("10.00")},
	})

	require.Len(t, detail, 2)
	assert.True(t, detail["20.00"].HT.Equal(dec("300.00")))
	assert.True(t, detail["20.00"].TVA.Equal(dec("60.00")))
	assert.True(t, detail["10.00"].HT.Equal(dec("150.00")))
	assert.True(t, detail["10.00"].TVA.Equal(dec("15.00")))
}
