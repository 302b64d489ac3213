package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billingdesk/billingdesk/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for billing documents.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Document, error)
	GetByPublicToken(ctx context.Context, token string) (*Document, error)
	List(ctx context.Context, req ListDocumentsRequest, limit, offset int) ([]Document, int, error)
	Create(ctx context.Context, doc Document) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	InsertLine(ctx context.Context, line Line) (int64, error)
	DeleteLines(ctx context.Context, documentID int64) error
	UpdateStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error)
	SetKind(ctx context.Context, id int64, kind Kind) error
	AppendEmail(ctx context.Context, documentID int64, recipient string, sentAt time.Time) error
	IncrementViewCount(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	GenerateNumber(ctx context.Context, kind Kind, date time.Time) (string, error)
	ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]Document, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository over the given pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const documentColumns = `id, doc_number, kind, status, public_token,
	customer_name, customer_email, customer_address, customer_phone,
	currency, tax_rate_percent, subtotal, tax_amount, grand_total,
	issue_date, due_date, notes, terms, view_count,
	sent_at, paid_at, cancelled_at, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Document, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *repository) GetByPublicToken(ctx context.Context, token string) (*Document, error) {
	return r.getOne(ctx, "public_token = $1", token)
}

func (r *repository) getOne(ctx context.Context, where string, arg interface{}) (*Document, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM documents WHERE %s", documentColumns, where), arg)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if doc.Lines, err = r.getLines(ctx, doc.ID); err != nil {
		return nil, err
	}
	if doc.Emails, err = r.getEmails(ctx, doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *repository) getLines(ctx context.Context, documentID int64) ([]Line, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, document_id, description, quantity, unit_price, line_total, line_order
		FROM document_lines
		WHERE document_id = $1
		ORDER BY line_order, id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		var quantity, unitPrice, lineTotal pgtype.Numeric
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Description, &quantity, &unitPrice, &lineTotal, &l.LineOrder); err != nil {
			return nil, err
		}
		l.Quantity = numericFloat(quantity)
		l.UnitPrice = numericFloat(unitPrice)
		l.LineTotal = numericFloat(lineTotal)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) getEmails(ctx context.Context, documentID int64) ([]EmailRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, document_id, recipient, sent_at
		FROM document_emails
		WHERE document_id = $1
		ORDER BY sent_at, id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EmailRecord
	for rows.Next() {
		var rec EmailRecord
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.Recipient, &rec.SentAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListDocumentsRequest, limit, offset int) ([]Document, int, error) {
	conditions := []string{"TRUE"}
	var args []interface{}
	argPos := 1

	if req.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argPos))
		args = append(args, *req.Kind)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.Search != nil && *req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(doc_number ILIKE $%d OR customer_name ILIKE $%d OR customer_email ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+*req.Search+"%")
		argPos++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM documents %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM documents
		%s
		ORDER BY issue_date DESC, id DESC
		LIMIT $%d OFFSET $%d`, documentColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	return docs, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO documents (
			doc_number, kind, status, public_token,
			customer_name, customer_email, customer_address, customer_phone,
			currency, tax_rate_percent, subtotal, tax_amount, grand_total,
			issue_date, due_date, notes, terms, view_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,0)
		RETURNING id`,
		doc.DocNumber, doc.Kind, doc.Status, doc.PublicToken,
		doc.CustomerName, doc.CustomerEmail, doc.CustomerAddr, doc.CustomerPhone,
		doc.Currency, doc.TaxRatePercent, doc.Subtotal, doc.TaxAmount, doc.GrandTotal,
		doc.IssueDate, doc.DueDate, doc.Notes, doc.Terms,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: doc_number %s", ErrAlreadyExists, doc.DocNumber)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	allowed := []string{
		"customer_name", "customer_email", "customer_address", "customer_phone",
		"tax_rate_percent", "subtotal", "tax_amount", "grand_total",
		"issue_date", "due_date", "notes", "terms",
	}

	query := "UPDATE documents SET updated_at = NOW()"
	var args []interface{}
	argPos := 1
	for _, col := range allowed {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO document_lines (document_id, description, quantity, unit_price, line_total, line_order)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		line.DocumentID, line.Description, line.Quantity, line.UnitPrice, line.LineTotal, line.LineOrder,
	).Scan(&id)
	return id, err
}

func (r *repository) DeleteLines(ctx context.Context, documentID int64) error {
	_, err := r.db.Exec(ctx, "DELETE FROM document_lines WHERE document_id = $1", documentID)
	return err
}

// UpdateStatus applies a status change as a compare-and-set on the
// previous status so concurrent transitions cannot clobber each other.
// The second return value reports whether the row actually moved.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error) {
	query := "UPDATE documents SET status = $1, updated_at = NOW()"
	args := []interface{}{to}
	argPos := 2

	switch to {
	case StatusSent:
		query += fmt.Sprintf(", sent_at = $%d", argPos)
		args = append(args, at)
		argPos++
	case StatusPaid:
		query += fmt.Sprintf(", paid_at = $%d", argPos)
		args = append(args, at)
		argPos++
	case StatusCancelled:
		query += fmt.Sprintf(", cancelled_at = $%d", argPos)
		args = append(args, at)
		argPos++
	}

	query += fmt.Sprintf(" WHERE id = $%d AND status = $%d", argPos, argPos+1)
	args = append(args, id, from)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) SetKind(ctx context.Context, id int64, kind Kind) error {
	tag, err := r.db.Exec(ctx, "UPDATE documents SET kind = $1, updated_at = NOW() WHERE id = $2", kind, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) AppendEmail(ctx context.Context, documentID int64, recipient string, sentAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO document_emails (document_id, recipient, sent_at)
		VALUES ($1,$2,$3)`, documentID, recipient, sentAt)
	return err
}

func (r *repository) IncrementViewCount(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, "UPDATE documents SET view_count = view_count + 1, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document together with its lines and email history.
// The child tables cascade on the document foreign key.
func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GenerateNumber produces the next sequential document number for the
// kind and year, e.g. INV-2026-0042. Callers run it inside the creating
// transaction; a unique index on doc_number backstops races.
func (r *repository) GenerateNumber(ctx context.Context, kind Kind, date time.Time) (string, error) {
	prefix := "INV"
	if kind == KindQuote {
		prefix = "QUO"
	}
	year := date.Year()

	var seq int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(SUBSTRING(doc_number FROM '[0-9]+$')::int), 0) + 1
		FROM documents
		WHERE doc_number LIKE $1`, fmt.Sprintf("%s-%d-%%", prefix, year),
	).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq), nil
}

func (r *repository) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]Document, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE kind = $1
		  AND status IN ($2, $3)
		  AND due_date IS NOT NULL
		  AND due_date < $4
		ORDER BY due_date
		LIMIT $5`, documentColumns),
		KindInvoice, StatusSent, StatusViewed, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var taxRate, subtotal, taxAmount, grandTotal pgtype.Numeric
	var issueDate pgtype.Date
	var dueDate pgtype.Date
	var addr, phone, notes, terms pgtype.Text
	var sentAt, paidAt, cancelledAt, createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&d.ID, &d.DocNumber, &d.Kind, &d.Status, &d.PublicToken,
		&d.CustomerName, &d.CustomerEmail, &addr, &phone,
		&d.Currency, &taxRate, &subtotal, &taxAmount, &grandTotal,
		&issueDate, &dueDate, &notes, &terms, &d.ViewCount,
		&sentAt, &paidAt, &cancelledAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.TaxRatePercent = numericFloat(taxRate)
	d.Subtotal = numericFloat(subtotal)
	d.TaxAmount = numericFloat(taxAmount)
	d.GrandTotal = numericFloat(grandTotal)
	if issueDate.Valid {
		d.IssueDate = issueDate.Time
	}
	if dueDate.Valid {
		d.DueDate = &dueDate.Time
	}
	if addr.Valid {
		d.CustomerAddr = &addr.String
	}
	if phone.Valid {
		d.CustomerPhone = &phone.String
	}
	if notes.Valid {
		d.Notes = &notes.String
	}
	if terms.Valid {
		d.Terms = &terms.String
	}
	if sentAt.Valid {
		d.SentAt = &sentAt.Time
	}
	if paidAt.Valid {
		d.PaidAt = &paidAt.Time
	}
	if cancelledAt.Valid {
		d.CancelledAt = &cancelledAt.Time
	}
	if createdAt.Valid {
		d.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		d.UpdatedAt = updatedAt.Time
	}
	return &d, nil
}

func numericFloat(n pgtype.Numeric) float64 {
	if !n.Valid {
		return 0
	}
	f, _ := n.Float64Value()
	return f.Float64
}
