package signature

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestio-app/gestio/internal/shared"
)

// Store abstracts token persistence.
type Store interface {
	Insert(ctx context.Context, t *Token) error
	GetByToken(ctx context.Context, token string) (*Token, error)
	MarkUsed(ctx context.Context, id int64, signer string) error
	MarkExpired(ctx context.Context, id int64) error
}

// Repository implements Store over PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, t *Token) error {
	query := `
		INSERT INTO signature_tokens (token, kind, document_id, status, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.pool.QueryRow(ctx, query, t.Token, t.Kind, t.DocumentID, t.Status, t.ExpiresAt).
		Scan(&t.ID, &t.CreatedAt)
}

func (r *Repository) GetByToken(ctx context.Context, token string) (*Token, error) {
	query := `
		SELECT id, token, kind, document_id, status, expires_at, used_at, signer_name, created_at
		FROM signature_tokens
		WHERE token = $1
	`
	var t Token
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&t.ID, &t.Token, &t.Kind, &t.DocumentID, &t.Status,
		&t.ExpiresAt, &t.UsedAt, &t.SignerName, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repository) MarkUsed(ctx context.Context, id int64, signer string) error {
	query := `
		UPDATE signature_tokens
		SET status = 'USED', used_at = NOW(), signer_name = $2
		WHERE id = $1 AND status = 'PENDING'
	`
	tag, err := r.pool.Exec(ctx, query, id, signer)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}

func (r *Repository) MarkExpired(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE signature_tokens SET status = 'EXPIRED' WHERE id = $1 AND status = 'PENDING'`, id)
	return err
}
