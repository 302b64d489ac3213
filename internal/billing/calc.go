package billing

import "math"

// Totals holds the derived amounts of a document.
type Totals struct {
	Subtotal   float64 `json:"subtotal"`
	TaxAmount  float64 `json:"tax_amount"`
	GrandTotal float64 `json:"grand_total"`
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeTotals recomputes every line total and the document totals.
//
// Rounding happens at the line total and again at the grand total; the
// subtotal is a plain sum of already-rounded line totals so repeated
// calls on unchanged input always yield the same result.
func ComputeTotals(lines []Line, taxRatePercent float64) ([]Line, Totals) {
	out := make([]Line, len(lines))
	copy(out, lines)

	var t Totals
	for i := range out {
		out[i].LineTotal = Round2(out[i].Quantity * out[i].UnitPrice)
		t.Subtotal += out[i].LineTotal
	}
	t.TaxAmount = Round2(t.Subtotal * taxRatePercent / 100)
	t.GrandTotal = Round2(t.Subtotal + t.TaxAmount)
	return out, t
}

// ApplyTotals writes recomputed lines and totals back onto the document.
func ApplyTotals(doc *Document) {
	lines, totals := ComputeTotals(doc.Lines, doc.TaxRatePercent)
	doc.Lines = lines
	doc.Subtotal = totals.Subtotal
	doc.TaxAmount = totals.TaxAmount
	doc.GrandTotal = totals.GrandTotal
}
