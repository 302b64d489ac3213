// Package overview aggregates document counts and balances for the
// dashboard.
package overview

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billingdesk/billingdesk/internal/billing"
)

const summaryCacheKey = "overview:summary"

// CurrencyTotal is an amount aggregated per currency.
type CurrencyTotal struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// Summary is the dashboard payload.
type Summary struct {
	StatusCounts map[billing.Status]int `json:"status_counts"`
	Outstanding  []CurrencyTotal        `json:"outstanding"`
	Overdue      []CurrencyTotal        `json:"overdue"`
	GeneratedAt  time.Time              `json:"generated_at"`
}

// Repository reads aggregates from the documents table.
type Repository interface {
	StatusCounts(ctx context.Context) (map[billing.Status]int, error)
	InvoiceTotalsByCurrency(ctx context.Context, statuses ...billing.Status) ([]CurrencyTotal, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the aggregate repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) StatusCounts(ctx context.Context) (map[billing.Status]int, error) {
	rows, err := r.pool.Query(ctx, "SELECT status, COUNT(*) FROM documents GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[billing.Status]int)
	for rows.Next() {
		var status billing.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *repository) InvoiceTotalsByCurrency(ctx context.Context, statuses ...billing.Status) ([]CurrencyTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT currency, COALESCE(SUM(grand_total), 0)
		FROM documents
		WHERE kind = $1 AND status = ANY($2)
		GROUP BY currency
		ORDER BY currency`, billing.KindInvoice, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []CurrencyTotal
	for rows.Next() {
		var t CurrencyTotal
		var amount pgtype.Numeric
		if err := rows.Scan(&t.Currency, &amount); err != nil {
			return nil, err
		}
		if amount.Valid {
			f, _ := amount.Float64Value()
			t.Amount = f.Float64
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// Service serves cached dashboard summaries.
type Service struct {
	repo  Repository
	cache *Cache
	clock func() time.Time
}

// NewService constructs the overview service.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// Summary returns the dashboard aggregates, cached with a short TTL so
// writes show up quickly without hammering the aggregate queries.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	var summary Summary
	err := s.cache.FetchJSON(ctx, summaryCacheKey, &summary, func(ctx context.Context) (interface{}, error) {
		return s.build(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("overview summary: %w", err)
	}
	return &summary, nil
}

func (s *Service) build(ctx context.Context) (*Summary, error) {
	counts, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.repo.InvoiceTotalsByCurrency(ctx, billing.StatusSent, billing.StatusViewed, billing.StatusOverdue)
	if err != nil {
		return nil, err
	}
	overdue, err := s.repo.InvoiceTotalsByCurrency(ctx, billing.StatusOverdue)
	if err != nil {
		return nil, err
	}
	return &Summary{
		StatusCounts: counts,
		Outstanding:  outstanding,
		Overdue:      overdue,
		GeneratedAt:  s.clock(),
	}, nil
}
