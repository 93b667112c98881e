package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestio-app/gestio/internal/shared"
)

// Store persists delivery logs.
type Store interface {
	Insert(ctx context.Context, log *DeliveryLog) error
	ListByDocument(ctx context.Context, kind DocumentKind, documentID int64) ([]DeliveryLog, error)
}

// Repository persists delivery logs in postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const deliveryLogColumns = `id, company_id, document_kind, document_id, recipient, subject, status, reason, sent_at, created_at`

func scanDeliveryLog(row pgx.Row) (*DeliveryLog, error) {
	var l DeliveryLog
	err := row.Scan(&l.ID, &l.CompanyID, &l.DocumentKind, &l.DocumentID,
		&l.Recipient, &l.Subject, &l.Status, &l.Reason, &l.SentAt, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("scan delivery log: %w", err)
	}
	return &l, nil
}

func (r *Repository) Insert(ctx context.Context, log *DeliveryLog) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO delivery_logs (company_id, document_kind, document_id, recipient, subject, status, reason, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		log.CompanyID, log.DocumentKind, log.DocumentID, log.Recipient,
		log.Subject, log.Status, log.Reason, log.SentAt,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery log: %w", err)
	}
	return nil
}

func (r *Repository) ListByDocument(ctx context.Context, kind DocumentKind, documentID int64) ([]DeliveryLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+deliveryLogColumns+` FROM delivery_logs
		 WHERE document_kind = $1 AND document_id = $2 ORDER BY sent_at DESC, id DESC`,
		kind, documentID)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	defer rows.Close()

	var out []DeliveryLog
	for rows.Next() {
		l, err := scanDeliveryLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}
