// Package money implements the monetary calculation rules shared by all
// billing documents: line totals, VAT rate resolution, document aggregates
// and correction deltas. All arithmetic is exact decimal; rounding happens
// only at the two-decimal output boundary, half away from zero.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Zero is the canonical absent rate ("0.00").
var Zero = decimal.Zero

// Round2 rounds an amount to two decimal places, half up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithVAT applies a percentage rate to an HT amount and rounds the result.
func WithVAT(ht, rate decimal.Decimal) decimal.Decimal {
	return Round2(ht.Mul(hundred.Add(rate)).Div(hundred))
}

// VATPortion returns the rounded VAT amount for an HT amount at the given rate.
func VATPortion(ht, rate decimal.Decimal) decimal.Decimal {
	return Round2(ht.Mul(rate).Div(hundred))
}

// RatePolicy carries the document-level VAT settings a line resolves against.
type RatePolicy struct {
	DocumentRate decimal.Decimal
	PerLine      bool
}

// ResolveRate resolves the effective VAT rate for a regular document line.
// Precedence: the line's own rate when set, then the document rate when the
// document applies a single global rate, else zero. Never fails.
func ResolveRate(lineRate *decimal.Decimal, policy RatePolicy) decimal.Decimal {
	if lineRate != nil {
		return *lineRate
	}
	if !policy.PerLine {
		return policy.DocumentRate
	}
	return Zero
}

// ResolveCorrectionRate resolves the effective VAT rate for an amendment or
// credit-note line. The line's own rate wins; otherwise the correction
// document's own rate applies when non-zero. Only a zero document rate defers
// to the source line's resolved rate. A zero rate on the correction document
// therefore suppresses inheritance even when the parent carries a non-zero
// rate; lines without a source resolve to zero.
func ResolveCorrectionRate(lineRate *decimal.Decimal, documentRate decimal.Decimal, sourceRate *decimal.Decimal) decimal.Decimal {
	if lineRate != nil {
		return *lineRate
	}
	if !documentRate.IsZero() {
		return documentRate
	}
	if sourceRate != nil {
		return *sourceRate
	}
	return Zero
}

// Line is the priced item shared by every document variant.
type Line struct {
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
	TVARate     *decimal.Decimal
	TotalHT     decimal.Decimal
}

// RecalculateTotalHT recomputes the stored HT total from quantity and unit
// price. The caller must propagate the change to the document aggregates.
func (l *Line) RecalculateTotalHT() {
	l.TotalHT = Round2(decimal.NewFromInt(l.Quantity).Mul(l.UnitPrice))
}

// TotalTTC returns the tax-inclusive total at the given resolved rate.
func (l *Line) TotalTTC(rate decimal.Decimal) decimal.Decimal {
	return WithVAT(l.TotalHT, rate)
}

// DeltaLine tracks a before/after correction against a source line.
type DeltaLine struct {
	Line
	OldValue   decimal.Decimal
	NewValue   *decimal.Decimal
	Delta      decimal.Decimal
	DeltaTTC   decimal.Decimal
	SourceRate *decimal.Decimal
}

// RecalculateDelta recomputes the HT delta and its tax-inclusive counterpart.
// Delta is NewValue-OldValue when NewValue is present, else TotalHT-OldValue.
// DeltaTTC is derived from Delta at the resolved rate at the same instant;
// it is never an independent source of truth.
func (l *DeltaLine) RecalculateDelta(rate decimal.Decimal) {
	if l.NewValue != nil {
		l.Delta = l.NewValue.Sub(l.OldValue)
	} else {
		l.Delta = l.TotalHT.Sub(l.OldValue)
	}
	l.DeltaTTC = WithVAT(l.Delta, rate)
}

// Totals is the aggregate projection of a document's lines.
type Totals struct {
	HT  decimal.Decimal
	TVA decimal.Decimal
	TTC decimal.Decimal
}

// RatedLine is the minimal view the aggregator needs of a line.
type RatedLine struct {
	TotalHT decimal.Decimal
	Rate    decimal.Decimal
}

// ComputeTotals sums lines into document totals. In per-line mode each line's
// VAT term is rounded before summation to match per-line invoice display; the
// aggregate may differ by cents from a single top-level multiplication, which
// is the required presentation behaviour. In global mode the VAT is one
// rounded multiplication over the HT sum.
func ComputeTotals(lines []RatedLine, policy RatePolicy) Totals {
	var t Totals
	for _, l := range lines {
		t.HT = t.HT.Add(l.TotalHT)
	}
	if policy.PerLine {
		for _, l := range lines {
			t.TVA = t.TVA.Add(VATPortion(l.TotalHT, l.Rate))
		}
	} else {
		t.TVA = VATPortion(t.HT, policy.DocumentRate)
	}
	t.TTC = t.HT.Add(t.TVA)
	return t
}

// RateDetail is one bucket of the per-rate legal breakdown.
type RateDetail struct {
	HT  decimal.Decimal
	TVA decimal.Decimal
}

// RatesDetail groups lines by resolved rate, keyed by the fixed two-decimal
// rate string, for multi-rate invoice breakdowns.
func RatesDetail(lines []RatedLine) map[string]RateDetail {
	out := make(map[string]RateDetail, len(lines))
	for _, l := range lines {
		key := l.Rate.StringFixed(2)
		d := out[key]
		d.HT = d.HT.Add(l.TotalHT)
		d.TVA = d.TVA.Add(VATPortion(l.TotalHT, l.Rate))
		out[key] = d
	}
	return out
}
