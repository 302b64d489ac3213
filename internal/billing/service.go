package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/billingdesk/billingdesk/internal/shared"
)

// DefaultTaxRatePercent applies when a create request leaves the rate unset.
const DefaultTaxRatePercent = 20.0

// Sender dispatches a document notification to a customer. Delivery
// failures are reported to the caller but never roll back a transition.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service provides business logic for billing documents.
type Service struct {
	repo   Repository
	mailer Sender
	logger *slog.Logger
	clock  func() time.Time
}

// NewService constructs a billing service.
func NewService(repo Repository, mailer Sender, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		mailer: mailer,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a new document in DRAFT with computed totals and a
// freshly generated document number.
func (s *Service) Create(ctx context.Context, req CreateDocumentRequest) (*Document, error) {
	taxRate := DefaultTaxRatePercent
	if req.TaxRatePercent != nil {
		taxRate = *req.TaxRatePercent
	}

	doc := Document{
		Kind:           req.Kind,
		Status:         StatusDraft,
		PublicToken:    uuid.NewString(),
		CustomerName:   req.Customer.Name,
		CustomerEmail:  req.Customer.Email,
		CustomerAddr:   req.Customer.Address,
		CustomerPhone:  req.Customer.Phone,
		Currency:       strings.ToUpper(req.Currency),
		TaxRatePercent: taxRate,
		IssueDate:      req.IssueDate,
		Notes:          req.Notes,
		Terms:          req.Terms,
		Lines:          linesFromInput(req.Lines, 0),
	}
	// Due dates only mean something on invoices.
	if req.Kind == KindInvoice {
		doc.DueDate = req.DueDate
	}
	ApplyTotals(&doc)

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		number, err := tx.GenerateNumber(ctx, doc.Kind, doc.IssueDate)
		if err != nil {
			return fmt.Errorf("generate doc number: %w", err)
		}
		doc.DocNumber = number

		id, err = tx.Create(ctx, doc)
		if err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		for i := range doc.Lines {
			doc.Lines[i].DocumentID = id
			if _, err := tx.InsertLine(ctx, doc.Lines[i]); err != nil {
				return fmt.Errorf("insert line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Get retrieves a document by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered, paginated page of documents.
func (s *Service) List(ctx context.Context, req ListDocumentsRequest) (*ListDocumentsResponse, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 20
	}

	items, total, err := s.repo.List(ctx, req, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	p := shared.NewPagination(page, perPage, total)
	return &ListDocumentsResponse{
		Items:      items,
		Total:      p.Total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: p.TotalPages,
	}, nil
}

// Update applies partial edits. Line items, customer details, the tax
// rate and the issue date may only change while the document is DRAFT;
// the currency never changes after creation.
func (s *Service) Update(ctx context.Context, id int64, req UpdateDocumentRequest) (*Document, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if existing.Terminal() {
		return nil, &ImmutableDocumentError{DocumentID: existing.ID, Status: existing.Status}
	}

	draftOnly := req.Lines != nil || req.Customer != nil || req.TaxRatePercent != nil || req.IssueDate != nil
	if draftOnly && !existing.Editable() {
		return nil, &ImmutableDocumentError{DocumentID: existing.ID, Status: existing.Status}
	}
	if req.DueDate != nil && existing.Kind != KindInvoice {
		return nil, &ValidationError{DocumentID: existing.ID, Fields: map[string]string{
			"due_date": "due dates apply to invoices only",
		}}
	}

	updates := map[string]interface{}{}
	if req.Customer != nil {
		updates["customer_name"] = req.Customer.Name
		updates["customer_email"] = req.Customer.Email
		updates["customer_address"] = req.Customer.Address
		updates["customer_phone"] = req.Customer.Phone
	}
	if req.IssueDate != nil {
		updates["issue_date"] = *req.IssueDate
	}
	if req.DueDate != nil {
		updates["due_date"] = *req.DueDate
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if req.Terms != nil {
		updates["terms"] = *req.Terms
	}

	taxRate := existing.TaxRatePercent
	if req.TaxRatePercent != nil {
		taxRate = *req.TaxRatePercent
		updates["tax_rate_percent"] = taxRate
	}

	lines := existing.Lines
	if req.Lines != nil {
		lines = linesFromInput(*req.Lines, id)
	}
	if req.Lines != nil || req.TaxRatePercent != nil {
		recomputed, totals := ComputeTotals(lines, taxRate)
		lines = recomputed
		updates["subtotal"] = totals.Subtotal
		updates["tax_amount"] = totals.TaxAmount
		updates["grand_total"] = totals.GrandTotal
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if req.Lines != nil {
			if err := tx.DeleteLines(ctx, id); err != nil {
				return fmt.Errorf("delete lines: %w", err)
			}
			for _, line := range lines {
				if _, err := tx.InsertLine(ctx, line); err != nil {
					return fmt.Errorf("insert line: %w", err)
				}
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Update(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Send validates the draft, moves it to SENT, records the email history
// entry and dispatches the notification. A mailer failure is reported in
// the response but the document stays SENT.
func (s *Service) Send(ctx context.Context, id int64, req SendDocumentRequest) (*SendDocumentResponse, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	now := s.clock()
	next, err := doc.NextStatus(EventSend, now)
	if err != nil {
		return nil, err
	}
	if err := doc.ValidateForSubmission(); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		moved, err := tx.UpdateStatus(ctx, id, doc.Status, next, now)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if !moved {
			return s.staleTransition(ctx, id, EventSend)
		}
		return tx.AppendEmail(ctx, id, doc.CustomerEmail, now)
	})
	if err != nil {
		return nil, err
	}

	resp := SendDocumentResponse{Delivered: true}
	subject, body := doc.EmailMessage(req.Message)
	if err := s.mailer.Send(ctx, doc.CustomerEmail, subject, body); err != nil {
		// Observed behavior: a bounced email does not undo the send.
		resp.Delivered = false
		resp.MailError = err.Error()
		s.logger.Warn("document notification failed",
			slog.Int64("document_id", id),
			slog.String("recipient", doc.CustomerEmail),
			slog.Any("error", err))
	}

	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp.Document = *updated
	return &resp, nil
}

// Transition applies a pay, cancel, mark_overdue or view event.
func (s *Service) Transition(ctx context.Context, id int64, event Event) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	now := s.clock()
	next, err := doc.NextStatus(event, now)
	if err != nil {
		return nil, err
	}

	moved, err := s.repo.UpdateStatus(ctx, id, doc.Status, next, now)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !moved {
		return nil, s.staleTransition(ctx, id, event)
	}
	return s.repo.Get(ctx, id)
}

// RecordView handles the customer-opened-document event arriving on the
// public token. The view counter always increments; the SENT to VIEWED
// move is advisory and skipped when the table forbids it.
func (s *Service) RecordView(ctx context.Context, token string) (*Document, error) {
	doc, err := s.repo.GetByPublicToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return s.recordView(ctx, doc)
}

// RecordViewByID is the same event addressed by numeric ID, used when
// the caller already authenticated against the API rather than holding
// a share link.
func (s *Service) RecordViewByID(ctx context.Context, id int64) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return s.recordView(ctx, doc)
}

func (s *Service) recordView(ctx context.Context, doc *Document) (*Document, error) {
	if err := s.repo.IncrementViewCount(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("increment view count: %w", err)
	}
	if next, err := doc.NextStatus(EventView, s.clock()); err == nil {
		if _, err := s.repo.UpdateStatus(ctx, doc.ID, doc.Status, next, s.clock()); err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}
	}
	return s.repo.Get(ctx, doc.ID)
}

// ConvertQuoteToInvoice promotes a quote. The promotion keeps the
// current status and is irreversible; converting an invoice fails.
func (s *Service) ConvertQuoteToInvoice(ctx context.Context, id int64) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc.Kind != KindQuote {
		return nil, &ConversionError{DocumentID: doc.ID, Kind: doc.Kind}
	}

	if err := s.repo.SetKind(ctx, id, KindInvoice); err != nil {
		return nil, fmt.Errorf("set kind: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Delete removes the document and its lines and email history as one unit.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// SweepOverdue marks every invoice past its due date as OVERDUE and
// returns how many documents moved. Documents paid or cancelled between
// the candidate query and the transition are skipped, not failed.
func (s *Service) SweepOverdue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	candidates, err := s.repo.ListOverdueCandidates(ctx, s.clock(), limit)
	if err != nil {
		return 0, fmt.Errorf("list overdue candidates: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(4)
	var marked atomic.Int64
	for _, doc := range candidates {
		doc := doc
		g.Go(func() error {
			if _, err := s.Transition(ctx, doc.ID, EventMarkOverdue); err != nil {
				var ite *InvalidTransitionError
				if errors.As(err, &ite) {
					return nil
				}
				return err
			}
			marked.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(marked.Load()), nil
}

// staleTransition re-reads the document after a compare-and-set miss so
// the error names the status that actually blocked the move.
func (s *Service) staleTransition(ctx context.Context, id int64, event Event) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get document after stale transition: %w", err)
	}
	return &InvalidTransitionError{DocumentID: current.ID, Kind: current.Kind, From: current.Status, Event: event}
}

func linesFromInput(inputs []LineInput, documentID int64) []Line {
	lines := make([]Line, len(inputs))
	for i, in := range inputs {
		lines[i] = Line{
			DocumentID:  documentID,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			LineOrder:   i + 1,
		}
	}
	return lines
}
