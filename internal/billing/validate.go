package billing

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateForSubmission checks that a document is complete enough to be
// sent to a customer. It runs before any transition out of DRAFT.
func (d *Document) ValidateForSubmission() error {
	fields := map[string]string{}

	if strings.TrimSpace(d.CustomerName) == "" {
		fields["customer_name"] = "customer name is required"
	}
	if strings.TrimSpace(d.CustomerEmail) == "" {
		fields["customer_email"] = "customer email is required"
	} else if err := validate.Var(d.CustomerEmail, "email"); err != nil {
		fields["customer_email"] = "customer email is not a valid address"
	}
	if d.TaxRatePercent < 0 || d.TaxRatePercent > 100 {
		fields["tax_rate_percent"] = "tax rate must be between 0 and 100"
	}
	if len(d.Lines) == 0 {
		fields["lines"] = "at least one line item is required"
	}
	for i, line := range d.Lines {
		if strings.TrimSpace(line.Description) == "" {
			fields[lineField(i, "description")] = "description is required"
		}
		if line.Quantity <= 0 {
			fields[lineField(i, "quantity")] = "quantity must be greater than zero"
		}
		if line.UnitPrice < 0 {
			fields[lineField(i, "unit_price")] = "unit price must not be negative"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{DocumentID: d.ID, Fields: fields}
	}
	return nil
}

func lineField(index int, name string) string {
	return "lines[" + strconv.Itoa(index) + "]." + name
}
