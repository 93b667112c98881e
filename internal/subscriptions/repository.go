package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestio-app/gestio/internal/shared"
)

// Store abstracts plan persistence.
type Store interface {
	Get(ctx context.Context, id int64) (*Plan, error)
	ListDue(ctx context.Context, now time.Time) ([]Plan, error)
	ListByCompany(ctx context.Context, companyID int64) ([]Plan, error)
	Insert(ctx context.Context, p *Plan) error
	AdvanceRenewal(ctx context.Context, id int64, from, to time.Time) (bool, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Repository implements Store over PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const planColumns = `id, company_id, client_id, label, amount_ht, taux_tva,
       interval, next_renewal, active, created_at, updated_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.ClientID, &p.Label, &p.AmountHT, &p.TauxTVA,
		&p.Interval, &p.NextRenewal, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Plan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE id = $1`
	return scanPlan(r.pool.QueryRow(ctx, query, id))
}

func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]Plan, error) {
	query := `SELECT ` + planColumns + `
		FROM subscription_plans
		WHERE active AND next_renewal <= $1
		ORDER BY next_renewal, id`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (r *Repository) ListByCompany(ctx context.Context, companyID int64) ([]Plan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE company_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (r *Repository) Insert(ctx context.Context, p *Plan) error {
	query := `
		INSERT INTO subscription_plans (company_id, client_id, label, amount_ht, taux_tva,
		                                interval, next_renewal, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	return r.pool.QueryRow(ctx, query,
		p.CompanyID, p.ClientID, p.Label, p.AmountHT, p.TauxTVA,
		p.Interval, p.NextRenewal, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// AdvanceRenewal moves next_renewal from `from` to `to` only if the stored
// value still equals `from`. The compare-and-set makes concurrent renewal
// runs bill each period at most once.
func (r *Repository) AdvanceRenewal(ctx context.Context, id int64, from, to time.Time) (bool, error) {
	query := `
		UPDATE subscription_plans
		SET next_renewal = $3, updated_at = NOW()
		WHERE id = $1 AND next_renewal = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE subscription_plans SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
