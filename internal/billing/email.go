package billing

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var emailPrinter = message.NewPrinter(language.BritishEnglish)

// EmailMessage renders the notification subject and plain-text body for
// the document, appending the caller-supplied message when present.
func (d *Document) EmailMessage(custom *string) (subject, body string) {
	noun := "Invoice"
	if d.Kind == KindQuote {
		noun = "Quote"
	}
	subject = fmt.Sprintf("%s %s for %s", noun, d.DocNumber, d.CustomerName)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", d.CustomerName)
	if custom != nil && strings.TrimSpace(*custom) != "" {
		b.WriteString(strings.TrimSpace(*custom))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "%s %s issued %s\n\n", noun, d.DocNumber, d.IssueDate.Format("2 January 2006"))

	for _, line := range d.Lines {
		emailPrinter.Fprintf(&b, "  %s: %v x %s %.2f = %s %.2f\n",
			line.Description, line.Quantity, d.Currency, line.UnitPrice, d.Currency, line.LineTotal)
	}
	b.WriteString("\n")
	emailPrinter.Fprintf(&b, "Subtotal: %s %.2f\n", d.Currency, d.Subtotal)
	emailPrinter.Fprintf(&b, "Tax (%.4g%%): %s %.2f\n", d.TaxRatePercent, d.Currency, d.TaxAmount)
	emailPrinter.Fprintf(&b, "Total due: %s %.2f\n", d.Currency, d.GrandTotal)

	if d.Kind == KindInvoice && d.DueDate != nil {
		fmt.Fprintf(&b, "\nPayment is due by %s.\n", d.DueDate.Format("2 January 2006"))
	}
	if d.Terms != nil && strings.TrimSpace(*d.Terms) != "" {
		fmt.Fprintf(&b, "\nTerms: %s\n", strings.TrimSpace(*d.Terms))
	}
	return subject, b.String()
}
