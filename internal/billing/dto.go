package billing

import "time"

type CustomerInput struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Email   string  `json:"email" validate:"required,email"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=50"`
}

type LineInput struct {
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    float64 `json:"quantity" validate:"gte=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

type CreateDocumentRequest struct {
	Kind           Kind          `json:"kind" validate:"required,oneof=INVOICE QUOTE"`
	Customer       CustomerInput `json:"customer" validate:"required"`
	Lines          []LineInput   `json:"lines" validate:"required,min=1,dive"`
	TaxRatePercent *float64      `json:"tax_rate_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	Currency       string        `json:"currency" validate:"required,len=3,uppercase"`
	IssueDate      time.Time     `json:"issue_date" validate:"required"`
	DueDate        *time.Time    `json:"due_date,omitempty"`
	Notes          *string       `json:"notes,omitempty"`
	Terms          *string       `json:"terms,omitempty"`
}

// UpdateDocumentRequest carries partial edits. Lines, customer, tax rate
// and issue date are accepted only while the document is DRAFT.
type UpdateDocumentRequest struct {
	Customer       *CustomerInput `json:"customer,omitempty"`
	Lines          *[]LineInput   `json:"lines,omitempty" validate:"omitempty,min=1,dive"`
	TaxRatePercent *float64       `json:"tax_rate_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	IssueDate      *time.Time     `json:"issue_date,omitempty"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	Notes          *string        `json:"notes,omitempty"`
	Terms          *string        `json:"terms,omitempty"`
}

type SendDocumentRequest struct {
	Message *string `json:"message,omitempty" validate:"omitempty,max=2000"`
}

type ListDocumentsRequest struct {
	Kind    *Kind   `json:"kind,omitempty"`
	Status  *Status `json:"status,omitempty"`
	Search  *string `json:"search,omitempty"`
	Page    int     `json:"page" validate:"gte=0"`
	PerPage int     `json:"per_page" validate:"gte=0,lte=200"`
}

type ListDocumentsResponse struct {
	Items      []Document `json:"items"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	PerPage    int        `json:"per_page"`
	TotalPages int        `json:"total_pages"`
}

// SendDocumentResponse reports the transition outcome together with the
// mailer result. A bounced email does not roll the document back.
type SendDocumentResponse struct {
	Document  Document `json:"document"`
	Delivered bool     `json:"delivered"`
	MailError string   `json:"mail_error,omitempty"`
}
