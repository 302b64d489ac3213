package billing

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// Kind classifies a billable document.
type Kind string

const (
	KindInvoice Kind = "INVOICE"
	KindQuote   Kind = "QUOTE"
)

// Status enumerates document lifecycle states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusViewed    Status = "VIEWED"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

// Event names a requested status transition.
type Event string

const (
	EventSend        Event = "send"
	EventView        Event = "view"
	EventPay         Event = "pay"
	EventMarkOverdue Event = "mark_overdue"
	EventCancel      Event = "cancel"
)

// Document is an invoice or quote with its line items.
type Document struct {
	ID             int64      `json:"id" db:"id"`
	DocNumber      string     `json:"doc_number" db:"doc_number"`
	Kind           Kind       `json:"kind" db:"kind"`
	Status         Status     `json:"status" db:"status"`
	PublicToken    string     `json:"public_token" db:"public_token"`
	CustomerName   string     `json:"customer_name" db:"customer_name"`
	CustomerEmail  string     `json:"customer_email" db:"customer_email"`
	CustomerAddr   *string    `json:"customer_address,omitempty" db:"customer_address"`
	CustomerPhone  *string    `json:"customer_phone,omitempty" db:"customer_phone"`
	Currency       string     `json:"currency" db:"currency"`
	TaxRatePercent float64    `json:"tax_rate_percent" db:"tax_rate_percent"`
	Subtotal       float64    `json:"subtotal" db:"subtotal"`
	TaxAmount      float64    `json:"tax_amount" db:"tax_amount"`
	GrandTotal     float64    `json:"grand_total" db:"grand_total"`
	IssueDate      time.Time  `json:"issue_date" db:"issue_date"`
	DueDate        *time.Time `json:"due_date,omitempty" db:"due_date"`
	Notes          *string    `json:"notes,omitempty" db:"notes"`
	Terms          *string    `json:"terms,omitempty" db:"terms"`
	ViewCount      int        `json:"view_count" db:"view_count"`
	SentAt         *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`

	Lines  []Line        `json:"lines,omitempty" db:"-"`
	Emails []EmailRecord `json:"email_history,omitempty" db:"-"`
}

// Line is one billable row. It has no identity outside its document.
type Line struct {
	ID          int64   `json:"id" db:"id"`
	DocumentID  int64   `json:"document_id" db:"document_id"`
	Description string  `json:"description" db:"description"`
	Quantity    float64 `json:"quantity" db:"quantity"`
	UnitPrice   float64 `json:"unit_price" db:"unit_price"`
	LineTotal   float64 `json:"line_total" db:"line_total"`
	LineOrder   int     `json:"line_order" db:"line_order"`
}

// EmailRecord is one append-only entry of the document's send history.
type EmailRecord struct {
	ID         int64     `json:"id" db:"id"`
	DocumentID int64     `json:"document_id" db:"document_id"`
	Recipient  string    `json:"recipient" db:"recipient"`
	SentAt     time.Time `json:"sent_at" db:"sent_at"`
}

// ValidationError reports missing or malformed fields on a document.
type ValidationError struct {
	DocumentID int64
	Fields     map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document %d failed validation (%d field(s))", e.DocumentID, len(e.Fields))
}

// InvalidTransitionError reports an illegal state machine move.
type InvalidTransitionError struct {
	DocumentID int64
	Kind       Kind
	From       Status
	Event      Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("document %d (%s): event %q not allowed from status %s", e.DocumentID, e.Kind, e.Event, e.From)
}

// ImmutableDocumentError reports an attempted edit of a non-draft document.
type ImmutableDocumentError struct {
	DocumentID int64
	Status     Status
}

func (e *ImmutableDocumentError) Error() string {
	return fmt.Sprintf("document %d is %s and no longer editable", e.DocumentID, e.Status)
}

// ConversionError reports an invalid quote-to-invoice conversion.
type ConversionError struct {
	DocumentID int64
	Kind       Kind
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("document %d is already an %s and cannot be converted", e.DocumentID, e.Kind)
}
