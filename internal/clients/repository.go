package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestio-app/gestio/internal/shared"
)

// Store abstracts client persistence.
type Store interface {
	Get(ctx context.Context, id int64) (*Client, error)
	List(ctx context.Context, req ListClientsRequest) ([]Client, int, error)
	Insert(ctx context.Context, c *Client) error
	Update(ctx context.Context, id int64, updates map[string]any) error
	Deactivate(ctx context.Context, id int64) error
}

// Repository implements Store over PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const clientColumns = `id, company_id, name, email, phone, siret, vat_number,
       address_line1, address_line2, city, postal_code, country, is_active,
       notes, created_at, updated_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(
		&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.SIRET,
		&c.VATNumber, &c.AddressLine1, &c.AddressLine2, &c.City,
		&c.PostalCode, &c.Country, &c.IsActive, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	return scanClient(r.pool.QueryRow(ctx, query, id))
}

func (r *Repository) List(ctx context.Context, req ListClientsRequest) ([]Client, int, error) {
	conditions := []string{"company_id = $1"}
	args := []any{req.CompanyID}
	idx := 2

	if req.Search != nil && *req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", idx, idx))
		args = append(args, "%"+*req.Search+"%")
		idx++
	}
	if req.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *req.IsActive)
		idx++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`,
		clientColumns, where, idx, idx+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *Repository) Insert(ctx context.Context, c *Client) error {
	query := `
		INSERT INTO clients (company_id, name, email, phone, siret, vat_number,
		                     address_line1, address_line2, city, postal_code,
		                     country, is_active, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	return r.pool.QueryRow(ctx, query,
		c.CompanyID, c.Name, c.Email, c.Phone, c.SIRET, c.VATNumber,
		c.AddressLine1, c.AddressLine2, c.City, c.PostalCode,
		c.Country, c.IsActive, c.Notes,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

var allowedClientColumns = map[string]bool{
	"name": true, "email": true, "phone": true, "siret": true,
	"vat_number": true, "address_line1": true, "address_line2": true,
	"city": true, "postal_code": true, "country": true,
	"is_active": true, "notes": true,
}

func (r *Repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	sets := make([]string, 0, len(updates)+1)
	args := []any{id}
	idx := 2
	for col, val := range updates {
		if !allowedClientColumns[col] {
			return fmt.Errorf("%w: unknown column %s", shared.ErrValidation, col)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}
	sets = append(sets, "updated_at = NOW()")
	query := fmt.Sprintf(`UPDATE clients SET %s WHERE id = $1`, strings.Join(sets, ", "))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes: clients referenced by documents are never removed.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	return r.Update(ctx, id, map[string]any{"is_active": false})
}
