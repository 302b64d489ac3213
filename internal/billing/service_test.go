package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	docs    map[int64]*Document
	lines   map[int64][]Line
	emails  map[int64][]EmailRecord
	nextID  int64
	numbers map[string]int

	txError         error
	getError        error
	createError     error
	sweepCandidates []Document
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		docs:    make(map[int64]*Document),
		lines:   make(map[int64][]Line),
		emails:  make(map[int64][]EmailRecord),
		numbers: make(map[string]int),
		nextID:  1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Document, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *doc
	out.Lines = append([]Line(nil), m.lines[id]...)
	out.Emails = append([]EmailRecord(nil), m.emails[id]...)
	return &out, nil
}

func (m *mockRepository) GetByPublicToken(ctx context.Context, token string) (*Document, error) {
	for id, doc := range m.docs {
		if doc.PublicToken == token {
			return m.Get(ctx, id)
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepository) List(ctx context.Context, req ListDocumentsRequest, limit, offset int) ([]Document, int, error) {
	var all []Document
	for _, doc := range m.docs {
		if req.Kind != nil && doc.Kind != *req.Kind {
			continue
		}
		if req.Status != nil && doc.Status != *req.Status {
			continue
		}
		all = append(all, *doc)
	}
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockRepository) Create(ctx context.Context, doc Document) (int64, error) {
	if m.createError != nil {
		return 0, m.createError
	}
	id := m.nextID
	m.nextID++
	doc.ID = id
	m.docs[id] = &doc
	return id, nil
}

func (m *mockRepository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	for col, v := range updates {
		switch col {
		case "customer_name":
			doc.CustomerName = v.(string)
		case "customer_email":
			doc.CustomerEmail = v.(string)
		case "customer_address":
			doc.CustomerAddr = v.(*string)
		case "customer_phone":
			doc.CustomerPhone = v.(*string)
		case "tax_rate_percent":
			doc.TaxRatePercent = v.(float64)
		case "subtotal":
			doc.Subtotal = v.(float64)
		case "tax_amount":
			doc.TaxAmount = v.(float64)
		case "grand_total":
			doc.GrandTotal = v.(float64)
		case "issue_date":
			doc.IssueDate = v.(time.Time)
		case "due_date":
			d := v.(time.Time)
			doc.DueDate = &d
		case "notes":
			n := v.(string)
			doc.Notes = &n
		case "terms":
			tm := v.(string)
			doc.Terms = &tm
		}
	}
	return nil
}

func (m *mockRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	line.ID = int64(len(m.lines[line.DocumentID]) + 1)
	m.lines[line.DocumentID] = append(m.lines[line.DocumentID], line)
	return line.ID, nil
}

func (m *mockRepository) DeleteLines(ctx context.Context, documentID int64) error {
	delete(m.lines, documentID)
	return nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error) {
	doc, ok := m.docs[id]
	if !ok {
		return false, nil
	}
	if doc.Status != from {
		return false, nil
	}
	doc.Status = to
	switch to {
	case StatusSent:
		doc.SentAt = &at
	case StatusPaid:
		doc.PaidAt = &at
	case StatusCancelled:
		doc.CancelledAt = &at
	}
	return true, nil
}

func (m *mockRepository) SetKind(ctx context.Context, id int64, kind Kind) error {
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Kind = kind
	return nil
}

func (m *mockRepository) AppendEmail(ctx context.Context, documentID int64, recipient string, sentAt time.Time) error {
	rec := EmailRecord{
		ID:         int64(len(m.emails[documentID]) + 1),
		DocumentID: documentID,
		Recipient:  recipient,
		SentAt:     sentAt,
	}
	m.emails[documentID] = append(m.emails[documentID], rec)
	return nil
}

func (m *mockRepository) IncrementViewCount(ctx context.Context, id int64) error {
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.ViewCount++
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	delete(m.lines, id)
	delete(m.emails, id)
	return nil
}

func (m *mockRepository) GenerateNumber(ctx context.Context, kind Kind, date time.Time) (string, error) {
	prefix := "INV"
	if kind == KindQuote {
		prefix = "QUO"
	}
	key := fmt.Sprintf("%s-%d", prefix, date.Year())
	m.numbers[key]++
	return fmt.Sprintf("%s-%04d", key, m.numbers[key]), nil
}

func (m *mockRepository) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]Document, error) {
	if m.sweepCandidates != nil {
		return m.sweepCandidates, nil
	}
	var out []Document
	for _, doc := range m.docs {
		if doc.Kind != KindInvoice || doc.DueDate == nil || !doc.DueDate.Before(now) {
			continue
		}
		if doc.Status != StatusSent && doc.Status != StatusViewed {
			continue
		}
		out = append(out, *doc)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ============================================================================
// MOCK SENDER
// ============================================================================

type mockSender struct {
	sent    []string
	lastSub string
	lastBod string
	err     error
}

func (m *mockSender) Send(ctx context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	m.lastSub = subject
	m.lastBod = body
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

var testNow = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

func newTestService(repo *mockRepository, sender *mockSender) *Service {
	svc := NewService(repo, sender, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.clock = func() time.Time { return testNow }
	return svc
}

func createRequest(kind Kind) CreateDocumentRequest {
	return CreateDocumentRequest{
		Kind: kind,
		Customer: CustomerInput{
			Name:  "Acme Ltd",
			Email: "billing@acme.example",
		},
		Lines: []LineInput{
			{Description: "Design work", Quantity: 2, UnitPrice: 50},
			{Description: "Hosting", Quantity: 1, UnitPrice: 25},
		},
		Currency:  "GBP",
		IssueDate: testNow,
	}
}

func mustCreate(t *testing.T, svc *Service, req CreateDocumentRequest) *Document {
	t.Helper()
	doc, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	return doc
}

func mustSend(t *testing.T, svc *Service, id int64) *Document {
	t.Helper()
	resp, err := svc.Send(context.Background(), id, SendDocumentRequest{})
	require.NoError(t, err)
	return &resp.Document
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateInvoice(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})

	req := createRequest(KindInvoice)
	due := testNow.AddDate(0, 0, 14)
	req.DueDate = &due

	doc := mustCreate(t, svc, req)

	assert.Equal(t, KindInvoice, doc.Kind)
	assert.Equal(t, StatusDraft, doc.Status)
	assert.Equal(t, "INV-2026-0001", doc.DocNumber)
	assert.NotEmpty(t, doc.PublicToken)
	assert.Equal(t, DefaultTaxRatePercent, doc.TaxRatePercent)
	assert.Equal(t, 125.0, doc.Subtotal)
	assert.Equal(t, 25.0, doc.TaxAmount)
	assert.Equal(t, 150.0, doc.GrandTotal)
	require.NotNil(t, doc.DueDate)
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, 100.0, doc.Lines[0].LineTotal)
}

func TestCreateQuoteIgnoresDueDate(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})

	req := createRequest(KindQuote)
	due := testNow.AddDate(0, 0, 14)
	req.DueDate = &due

	doc := mustCreate(t, svc, req)

	assert.Equal(t, "QUO-2026-0001", doc.DocNumber)
	assert.Nil(t, doc.DueDate)
}

func TestCreateSequentialNumbers(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})

	first := mustCreate(t, svc, createRequest(KindInvoice))
	second := mustCreate(t, svc, createRequest(KindInvoice))
	quote := mustCreate(t, svc, createRequest(KindQuote))

	assert.Equal(t, "INV-2026-0001", first.DocNumber)
	assert.Equal(t, "INV-2026-0002", second.DocNumber)
	assert.Equal(t, "QUO-2026-0001", quote.DocNumber)
}

func TestSendDraft(t *testing.T) {
	repo := newMockRepository()
	sender := &mockSender{}
	svc := newTestService(repo, sender)
	doc := mustCreate(t, svc, createRequest(KindInvoice))

	resp, err := svc.Send(context.Background(), doc.ID, SendDocumentRequest{})

	require.NoError(t, err)
	assert.True(t, resp.Delivered)
	assert.Equal(t, StatusSent, resp.Document.Status)
	require.NotNil(t, resp.Document.SentAt)
	assert.Equal(t, testNow, *resp.Document.SentAt)
	require.Len(t, resp.Document.Emails, 1)
	assert.Equal(t, "billing@acme.example", resp.Document.Emails[0].Recipient)
	assert.Equal(t, []string{"billing@acme.example"}, sender.sent)
	assert.Contains(t, sender.lastSub, doc.DocNumber)
	assert.Contains(t, sender.lastBod, "150.00")
}

func TestSendIncludesCustomMessage(t *testing.T) {
	repo := newMockRepository()
	sender := &mockSender{}
	svc := newTestService(repo, sender)
	doc := mustCreate(t, svc, createRequest(KindInvoice))

	msg := "Thanks for your business this quarter."
	_, err := svc.Send(context.Background(), doc.ID, SendDocumentRequest{Message: &msg})

	require.NoError(t, err)
	assert.Contains(t, sender.lastBod, msg)
}

func TestSendRejectsInvalidDraft(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})

	req := createRequest(KindInvoice)
	doc := mustCreate(t, svc, req)
	repo.docs[doc.ID].CustomerEmail = ""

	_, err := svc.Send(context.Background(), doc.ID, SendDocumentRequest{})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "customer_email")

	current, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, current.Status)
}

func TestSendMailFailureKeepsDocumentSent(t *testing.T) {
	repo := newMockRepository()
	sender := &mockSender{err: errors.New("smtp: 550 mailbox unavailable")}
	svc := newTestService(repo, sender)
	doc := mustCreate(t, svc, createRequest(KindInvoice))

	resp, err := svc.Send(context.Background(), doc.ID, SendDocumentRequest{})

	require.NoError(t, err)
	assert.False(t, resp.Delivered)
	assert.Contains(t, resp.MailError, "550")
	assert.Equal(t, StatusSent, resp.Document.Status)
	require.Len(t, resp.Document.Emails, 1)
}

func TestSendAlreadySent(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))
	mustSend(t, svc, doc.ID)

	_, err := svc.Send(context.Background(), doc.ID, SendDocumentRequest{})

	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusSent, ite.From)
}

func TestUpdateDraftLinesRecomputesTotals(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))

	newLines := []LineInput{{Description: "Retainer", Quantity: 1, UnitPrice: 1000}}
	updated, err := svc.Update(context.Background(), doc.ID, UpdateDocumentRequest{Lines: &newLines})

	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	assert.Equal(t, 1000.0, updated.Subtotal)
	assert.Equal(t, 200.0, updated.TaxAmount)
	assert.Equal(t, 1200.0, updated.GrandTotal)
}

func TestUpdateTaxRateRecomputesTotals(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))

	rate := 5.0
	updated, err := svc.Update(context.Background(), doc.ID, UpdateDocumentRequest{TaxRatePercent: &rate})

	require.NoError(t, err)
	assert.Equal(t, 125.0, updated.Subtotal)
	assert.Equal(t, 6.25, updated.TaxAmount)
	assert.Equal(t, 131.25, updated.GrandTotal)
}

func TestUpdateLinesRejectedAfterSend(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))
	mustSend(t, svc, doc.ID)

	newLines := []LineInput{{Description: "Extra", Quantity: 1, UnitPrice: 10}}
	_, err := svc.Update(context.Background(), doc.ID, UpdateDocumentRequest{Lines: &newLines})

	var ime *ImmutableDocumentError
	require.ErrorAs(t, err, &ime)
	assert.Equal(t, StatusSent, ime.Status)
}

func TestUpdateNotesAllowedAfterSend(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))
	mustSend(t, svc, doc.ID)

	notes := "Customer asked for net-30."
	updated, err := svc.Update(context.Background(), doc.ID, UpdateDocumentRequest{Notes: &notes})

	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, notes, *updated.Notes)
	assert.Equal(t, StatusSent, updated.Status)
}

func TestUpdateRejectedOnTerminalDocument(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))
	mustSend(t, svc, doc.ID)
	_, err := svc.Transition(context.Background(), doc.ID, EventPay)
	require.NoError(t, err)

	notes := "too late"
	_, err = svc.Update(context.Background(), doc.ID, UpdateDocumentRequest{Notes: &notes})

	var ime *ImmutableDocumentError
	require.ErrorAs(t, err, &ime)
	assert.Equal(t, StatusPaid, ime.Status)
}

func TestUpdateDueDateRejectedOnQuote(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindQuote))

	due := testNow.AddDate(0, 0, 30)
	_, err := svc.Update(context.Background(), doc.ID, UpdateDocumentRequest{DueDate: &due})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "due_date")
}

func TestTransitionPay(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))
	mustSend(t, svc, doc.ID)

	paid, err := svc.Transition(context.Background(), doc.ID, EventPay)

	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, testNow, *paid.PaidAt)
}

func TestTransitionPayOnQuoteFails(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindQuote))
	mustSend(t, svc, doc.ID)

	_, err := svc.Transition(context.Background(), doc.ID, EventPay)

	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, KindQuote, ite.Kind)
	assert.Equal(t, StatusSent, ite.From)
	assert.Equal(t, EventPay, ite.Event)
}

func TestTransitionCancelIsTerminal(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))

	cancelled, err := svc.Transition(context.Background(), doc.ID, EventCancel)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = svc.Transition(context.Background(), doc.ID, EventPay)
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusCancelled, ite.From)
}

func TestTransitionStaleStatusReportsCurrent(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))
	mustSend(t, svc, doc.ID)

	// Another request pays the invoice between the read and the update.
	orig := svc.clock
	svc.clock = func() time.Time {
		// Flip the stored status after the service has read SENT but
		// before the compare-and-set runs.
		repo.docs[doc.ID].Status = StatusPaid
		return orig()
	}

	_, err := svc.Transition(context.Background(), doc.ID, EventCancel)

	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusPaid, ite.From)
	assert.Equal(t, EventCancel, ite.Event)
}

func TestRecordView(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))
	mustSend(t, svc, doc.ID)

	viewed, err := svc.RecordView(context.Background(), doc.PublicToken)

	require.NoError(t, err)
	assert.Equal(t, StatusViewed, viewed.Status)
	assert.Equal(t, 1, viewed.ViewCount)
}

func TestRecordViewRepeatViewsOnlyCount(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))
	mustSend(t, svc, doc.ID)

	_, err := svc.RecordView(context.Background(), doc.PublicToken)
	require.NoError(t, err)
	again, err := svc.RecordView(context.Background(), doc.PublicToken)
	require.NoError(t, err)

	assert.Equal(t, StatusViewed, again.Status)
	assert.Equal(t, 2, again.ViewCount)
}

func TestRecordViewOnPaidDocumentCountsOnly(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))
	mustSend(t, svc, doc.ID)
	_, err := svc.Transition(context.Background(), doc.ID, EventPay)
	require.NoError(t, err)

	viewed, err := svc.RecordView(context.Background(), doc.PublicToken)

	require.NoError(t, err)
	assert.Equal(t, StatusPaid, viewed.Status)
	assert.Equal(t, 1, viewed.ViewCount)
}

func TestRecordViewByID(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))
	mustSend(t, svc, doc.ID)

	viewed, err := svc.RecordViewByID(context.Background(), doc.ID)

	require.NoError(t, err)
	assert.Equal(t, StatusViewed, viewed.Status)
	assert.Equal(t, 1, viewed.ViewCount)
}

func TestRecordViewUnknownToken(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})

	_, err := svc.RecordView(context.Background(), "no-such-token")

	require.ErrorIs(t, err, ErrNotFound)
}

func TestConvertQuoteToInvoice(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindQuote))
	mustSend(t, svc, doc.ID)

	converted, err := svc.ConvertQuoteToInvoice(context.Background(), doc.ID)

	require.NoError(t, err)
	assert.Equal(t, KindInvoice, converted.Kind)
	assert.Equal(t, StatusSent, converted.Status, "conversion keeps the current status")
	assert.Equal(t, doc.DocNumber, converted.DocNumber)
	assert.Equal(t, doc.GrandTotal, converted.GrandTotal)
}

func TestConvertedQuoteCanBePaid(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindQuote))
	mustSend(t, svc, doc.ID)

	_, err := svc.ConvertQuoteToInvoice(context.Background(), doc.ID)
	require.NoError(t, err)

	paid, err := svc.Transition(context.Background(), doc.ID, EventPay)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
}

func TestConvertedQuoteAcceptsDueDate(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindQuote))
	mustSend(t, svc, doc.ID)

	_, err := svc.ConvertQuoteToInvoice(context.Background(), doc.ID)
	require.NoError(t, err)

	// Due dates become meaningful once the quote is an invoice, and
	// setting one is not a draft-only edit.
	due := testNow.AddDate(0, 0, 30)
	updated, err := svc.Update(context.Background(), doc.ID, UpdateDocumentRequest{DueDate: &due})

	require.NoError(t, err)
	assert.Equal(t, StatusSent, updated.Status)
	require.NotNil(t, updated.DueDate)
	assert.Equal(t, due, *updated.DueDate)
}

func TestConvertInvoiceFails(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))

	_, err := svc.ConvertQuoteToInvoice(context.Background(), doc.ID)

	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindInvoice, ce.Kind)
}

func TestConversionIsIrreversible(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindQuote))

	_, err := svc.ConvertQuoteToInvoice(context.Background(), doc.ID)
	require.NoError(t, err)

	_, err = svc.ConvertQuoteToInvoice(context.Background(), doc.ID)
	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
}

func TestListDefaultsPagination(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	for i := 0; i < 25; i++ {
		mustCreate(t, svc, createRequest(KindInvoice))
	}

	resp, err := svc.List(context.Background(), ListDocumentsRequest{})

	require.NoError(t, err)
	assert.Equal(t, 25, resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 20, resp.PerPage)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Len(t, resp.Items, 20)
}

func TestListFilterByKind(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	mustCreate(t, svc, createRequest(KindInvoice))
	mustCreate(t, svc, createRequest(KindQuote))
	mustCreate(t, svc, createRequest(KindQuote))

	kind := KindQuote
	resp, err := svc.List(context.Background(), ListDocumentsRequest{Kind: &kind})

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
}

func TestDeleteRemovesDocument(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})
	doc := mustCreate(t, svc, createRequest(KindInvoice))

	require.NoError(t, svc.Delete(context.Background(), doc.ID))

	_, err := svc.Get(context.Background(), doc.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweepOverdue(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})

	pastDue := testNow.AddDate(0, 0, -3)
	for i := 0; i < 3; i++ {
		req := createRequest(KindInvoice)
		req.DueDate = &pastDue
		doc := mustCreate(t, svc, req)
		mustSend(t, svc, doc.ID)
	}
	// A current invoice stays untouched.
	futureDue := testNow.AddDate(0, 0, 10)
	req := createRequest(KindInvoice)
	req.DueDate = &futureDue
	current := mustCreate(t, svc, req)
	mustSend(t, svc, current.ID)

	marked, err := svc.SweepOverdue(context.Background(), 100)

	require.NoError(t, err)
	assert.Equal(t, 3, marked)

	fresh, err := svc.Get(context.Background(), current.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, fresh.Status)
}

func TestSweepOverdueSkipsRacingDocuments(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockSender{})

	pastDue := testNow.AddDate(0, 0, -3)
	req := createRequest(KindInvoice)
	req.DueDate = &pastDue
	doc := mustCreate(t, svc, req)
	mustSend(t, svc, doc.ID)

	// Candidate list is stale: the invoice was paid after the query ran.
	stale := *repo.docs[doc.ID]
	repo.sweepCandidates = []Document{stale}
	repo.docs[doc.ID].Status = StatusPaid

	marked, err := svc.SweepOverdue(context.Background(), 100)

	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	fresh, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, fresh.Status)
}
