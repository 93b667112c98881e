package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestio-app/gestio/internal/platform/db"
	"github.com/gestio-app/gestio/internal/shared"
)

// Repository implements Store over PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ============================================================================
// QUOTE
// ============================================================================

const quoteColumns = `id, numero, company_id, client_id, statut, taux_tva, use_per_line_tva,
       montant_ht, montant_tva, montant_ttc, date_validite, date_envoi,
       date_acceptation, date_signature, signature_client, status_reason,
       created_at, updated_at`

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	err := row.Scan(
		&q.ID, &q.Numero, &q.CompanyID, &q.ClientID, &q.Status, &q.TauxTVA,
		&q.UsePerLineTVA, &q.MontantHT, &q.MontantTVA, &q.MontantTTC,
		&q.DateValidite, &q.DateEnvoi, &q.DateAcceptation, &q.DateSignature,
		&q.SignatureClient, &q.StatusReason, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *Repository) GetQuote(ctx context.Context, id int64) (*Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`
	q, err := scanQuote(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	lines, err := r.getQuoteLines(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Lines = lines
	return q, nil
}

func (r *Repository) getQuoteLines(ctx context.Context, quoteID int64) ([]QuoteLine, error) {
	query := `
		SELECT id, quote_id, description, quantity, unit_price, tva_rate, total_ht, line_order
		FROM quote_lines
		WHERE quote_id = $1
		ORDER BY line_order, id
	`
	rows, err := r.pool.Query(ctx, query, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []QuoteLine
	for rows.Next() {
		var l QuoteLine
		if err := rows.Scan(&l.ID, &l.QuoteID, &l.Description, &l.Quantity,
			&l.UnitPrice, &l.TVARate, &l.TotalHT, &l.LineOrder); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Repository) ListQuotes(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	conditions := []string{"company_id = $1"}
	args := []any{req.CompanyID}
	idx := 2

	if req.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", idx))
		args = append(args, *req.ClientID)
		idx++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("statut = $%d", idx))
		args = append(args, *req.Status)
		idx++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM quotes WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM quotes WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, where, idx, idx+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, total, rows.Err()
}

func (r *Repository) ListExpirableQuotes(ctx context.Context, now time.Time) ([]Quote, error) {
	query := `SELECT ` + quoteColumns + `
		FROM quotes
		WHERE statut IN ('DRAFT', 'SENT', 'ACCEPTED')
		  AND date_validite IS NOT NULL
		  AND date_validite < $1
		ORDER BY id`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, rows.Err()
}

func (t *txRepository) InsertQuote(ctx context.Context, q *Quote) error {
	query := `
		INSERT INTO quotes (numero, company_id, client_id, statut, taux_tva, use_per_line_tva,
		                    montant_ht, montant_tva, montant_ttc, date_validite, date_envoi,
		                    date_acceptation, date_signature, signature_client, status_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`
	err := t.tx.QueryRow(ctx, query,
		q.Numero, q.CompanyID, q.ClientID, q.Status, q.TauxTVA, q.UsePerLineTVA,
		q.MontantHT, q.MontantTVA, q.MontantTTC, q.DateValidite, q.DateEnvoi,
		q.DateAcceptation, q.DateSignature, q.SignatureClient, q.StatusReason,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return t.insertQuoteLines(ctx, q)
}

func (t *txRepository) UpdateQuote(ctx context.Context, q *Quote) error {
	query := `
		UPDATE quotes
		SET numero = $2, statut = $3, taux_tva = $4, use_per_line_tva = $5,
		    montant_ht = $6, montant_tva = $7, montant_ttc = $8,
		    date_validite = $9, date_envoi = $10, date_acceptation = $11,
		    date_signature = $12, signature_client = $13, status_reason = $14,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		q.ID, q.Numero, q.Status, q.TauxTVA, q.UsePerLineTVA,
		q.MontantHT, q.MontantTVA, q.MontantTTC,
		q.DateValidite, q.DateEnvoi, q.DateAcceptation,
		q.DateSignature, q.SignatureClient, q.StatusReason,
	)
	if err != nil {
		return fmt.Errorf("update quote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM quote_lines WHERE quote_id = $1`, q.ID); err != nil {
		return fmt.Errorf("delete quote lines: %w", err)
	}
	return t.insertQuoteLines(ctx, q)
}

func (t *txRepository) insertQuoteLines(ctx context.Context, q *Quote) error {
	query := `
		INSERT INTO quote_lines (quote_id, description, quantity, unit_price, tva_rate, total_ht, line_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	for i := range q.Lines {
		l := &q.Lines[i]
		l.QuoteID = q.ID
		if err := t.tx.QueryRow(ctx, query,
			q.ID, l.Description, l.Quantity, l.UnitPrice, l.TVARate, l.TotalHT, l.LineOrder,
		).Scan(&l.ID); err != nil {
			return fmt.Errorf("insert quote line: %w", err)
		}
	}
	return nil
}

// ============================================================================
// INVOICE
// ============================================================================

const invoiceColumns = `id, numero, company_id, client_id, quote_id, statut, taux_tva,
       use_per_line_tva, montant_ht, montant_tva, montant_ttc, date_echeance,
       date_emission, date_envoi, date_paiement, sent_count, delivery_channel,
       created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.Numero, &inv.CompanyID, &inv.ClientID, &inv.QuoteID,
		&inv.Status, &inv.TauxTVA, &inv.UsePerLineTVA, &inv.MontantHT,
		&inv.MontantTVA, &inv.MontantTTC, &inv.DateEcheance, &inv.DateEmission,
		&inv.DateEnvoi, &inv.DatePaiement, &inv.SentCount, &inv.DeliveryChannel,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	lines, err := r.getInvoiceLines(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

func (r *Repository) getInvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	query := `
		SELECT id, invoice_id, description, quantity, unit_price, tva_rate, total_ht, line_order
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY line_order, id
	`
	rows, err := r.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Description, &l.Quantity,
			&l.UnitPrice, &l.TVARate, &l.TotalHT, &l.LineOrder); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	conditions := []string{"company_id = $1"}
	args := []any{req.CompanyID}
	idx := 2

	if req.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", idx))
		args = append(args, *req.ClientID)
		idx++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("statut = $%d", idx))
		args = append(args, *req.Status)
		idx++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM invoices WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, idx, idx+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, total, rows.Err()
}

func (r *Repository) FindInvoiceByQuote(ctx context.Context, quoteID int64) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE quote_id = $1`
	return scanInvoice(r.pool.QueryRow(ctx, query, quoteID))
}

func (t *txRepository) FindInvoiceByQuote(ctx context.Context, quoteID int64) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE quote_id = $1 FOR UPDATE`
	return scanInvoice(t.tx.QueryRow(ctx, query, quoteID))
}

func (t *txRepository) InsertInvoice(ctx context.Context, inv *Invoice) error {
	query := `
		INSERT INTO invoices (numero, company_id, client_id, quote_id, statut, taux_tva,
		                      use_per_line_tva, montant_ht, montant_tva, montant_ttc,
		                      date_echeance, date_emission, date_envoi, date_paiement,
		                      sent_count, delivery_channel)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`
	err := t.tx.QueryRow(ctx, query,
		inv.Numero, inv.CompanyID, inv.ClientID, inv.QuoteID, inv.Status, inv.TauxTVA,
		inv.UsePerLineTVA, inv.MontantHT, inv.MontantTVA, inv.MontantTTC,
		inv.DateEcheance, inv.DateEmission, inv.DateEnvoi, inv.DatePaiement,
		inv.SentCount, inv.DeliveryChannel,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return t.insertInvoiceLines(ctx, inv)
}

func (t *txRepository) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	query := `
		UPDATE invoices
		SET numero = $2, statut = $3, taux_tva = $4, use_per_line_tva = $5,
		    montant_ht = $6, montant_tva = $7, montant_ttc = $8,
		    date_echeance = $9, date_emission = $10, date_envoi = $11,
		    date_paiement = $12, sent_count = $13, delivery_channel = $14,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		inv.ID, inv.Numero, inv.Status, inv.TauxTVA, inv.UsePerLineTVA,
		inv.MontantHT, inv.MontantTVA, inv.MontantTTC,
		inv.DateEcheance, inv.DateEmission, inv.DateEnvoi,
		inv.DatePaiement, inv.SentCount, inv.DeliveryChannel,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, inv.ID); err != nil {
		return fmt.Errorf("delete invoice lines: %w", err)
	}
	return t.insertInvoiceLines(ctx, inv)
}

func (t *txRepository) insertInvoiceLines(ctx context.Context, inv *Invoice) error {
	query := `
		INSERT INTO invoice_lines (invoice_id, description, quantity, unit_price, tva_rate, total_ht, line_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	for i := range inv.Lines {
		l := &inv.Lines[i]
		l.InvoiceID = inv.ID
		if err := t.tx.QueryRow(ctx, query,
			inv.ID, l.Description, l.Quantity, l.UnitPrice, l.TVARate, l.TotalHT, l.LineOrder,
		).Scan(&l.ID); err != nil {
			return fmt.Errorf("insert invoice line: %w", err)
		}
	}
	return nil
}

// ============================================================================
// AMENDMENT
// ============================================================================

const amendmentColumns = `id, numero, company_id, quote_id, statut, taux_tva, use_per_line_tva,
       montant_ht, montant_tva, montant_ttc, date_signature, signature_client,
       created_at, updated_at`

func scanAmendment(row pgx.Row) (*Amendment, error) {
	var a Amendment
	err := row.Scan(
		&a.ID, &a.Numero, &a.CompanyID, &a.QuoteID, &a.Status, &a.TauxTVA,
		&a.UsePerLineTVA, &a.MontantHT, &a.MontantTVA, &a.MontantTTC,
		&a.DateSignature, &a.SignatureClient, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetAmendment(ctx context.Context, id int64) (*Amendment, error) {
	query := `SELECT ` + amendmentColumns + ` FROM amendments WHERE id = $1`
	a, err := scanAmendment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	lines, err := r.getAmendmentLines(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Lines = lines
	return a, nil
}

func (r *Repository) getAmendmentLines(ctx context.Context, amendmentID int64) ([]AmendmentLine, error) {
	query := `
		SELECT id, amendment_id, description, quantity, unit_price, tva_rate, total_ht,
		       old_value, new_value, delta, delta_ttc, source_line_id, source_rate, line_order
		FROM amendment_lines
		WHERE amendment_id = $1
		ORDER BY line_order, id
	`
	rows, err := r.pool.Query(ctx, query, amendmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []AmendmentLine
	for rows.Next() {
		var l AmendmentLine
		if err := rows.Scan(&l.ID, &l.AmendmentID, &l.Description, &l.Quantity,
			&l.UnitPrice, &l.TVARate, &l.TotalHT, &l.OldValue, &l.NewValue,
			&l.Delta, &l.DeltaTTC, &l.SourceLineID, &l.SourceRate, &l.LineOrder); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Repository) ListAmendmentsByQuote(ctx context.Context, quoteID int64) ([]Amendment, error) {
	query := `SELECT ` + amendmentColumns + ` FROM amendments WHERE quote_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var amendments []Amendment
	for rows.Next() {
		a, err := scanAmendment(rows)
		if err != nil {
			return nil, err
		}
		amendments = append(amendments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range amendments {
		lines, err := r.getAmendmentLines(ctx, amendments[i].ID)
		if err != nil {
			return nil, err
		}
		amendments[i].Lines = lines
	}
	return amendments, nil
}

func (t *txRepository) InsertAmendment(ctx context.Context, a *Amendment) error {
	query := `
		INSERT INTO amendments (numero, company_id, quote_id, statut, taux_tva, use_per_line_tva,
		                        montant_ht, montant_tva, montant_ttc, date_signature, signature_client)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err := t.tx.QueryRow(ctx, query,
		a.Numero, a.CompanyID, a.QuoteID, a.Status, a.TauxTVA, a.UsePerLineTVA,
		a.MontantHT, a.MontantTVA, a.MontantTTC, a.DateSignature, a.SignatureClient,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert amendment: %w", err)
	}
	return t.insertAmendmentLines(ctx, a)
}

func (t *txRepository) UpdateAmendment(ctx context.Context, a *Amendment) error {
	query := `
		UPDATE amendments
		SET numero = $2, statut = $3, taux_tva = $4, use_per_line_tva = $5,
		    montant_ht = $6, montant_tva = $7, montant_ttc = $8,
		    date_signature = $9, signature_client = $10, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		a.ID, a.Numero, a.Status, a.TauxTVA, a.UsePerLineTVA,
		a.MontantHT, a.MontantTVA, a.MontantTTC,
		a.DateSignature, a.SignatureClient,
	)
	if err != nil {
		return fmt.Errorf("update amendment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM amendment_lines WHERE amendment_id = $1`, a.ID); err != nil {
		return fmt.Errorf("delete amendment lines: %w", err)
	}
	return t.insertAmendmentLines(ctx, a)
}

func (t *txRepository) insertAmendmentLines(ctx context.Context, a *Amendment) error {
	query := `
		INSERT INTO amendment_lines (amendment_id, description, quantity, unit_price, tva_rate,
		                             total_ht, old_value, new_value, delta, delta_ttc,
		                             source_line_id, source_rate, line_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	for i := range a.Lines {
		l := &a.Lines[i]
		l.AmendmentID = a.ID
		if err := t.tx.QueryRow(ctx, query,
			a.ID, l.Description, l.Quantity, l.UnitPrice, l.TVARate,
			l.TotalHT, l.OldValue, l.NewValue, l.Delta, l.DeltaTTC,
			l.SourceLineID, l.SourceRate, l.LineOrder,
		).Scan(&l.ID); err != nil {
			return fmt.Errorf("insert amendment line: %w", err)
		}
	}
	return nil
}

// ============================================================================
// CREDIT NOTE
// ============================================================================

const creditNoteColumns = `id, numero, company_id, invoice_id, statut, taux_tva, use_per_line_tva,
       montant_ht, montant_tva, montant_ttc, date_emission, date_applied,
       created_at, updated_at`

func scanCreditNote(row pgx.Row) (*CreditNote, error) {
	var c CreditNote
	err := row.Scan(
		&c.ID, &c.Numero, &c.CompanyID, &c.InvoiceID, &c.Status, &c.TauxTVA,
		&c.UsePerLineTVA, &c.MontantHT, &c.MontantTVA, &c.MontantTTC,
		&c.DateEmission, &c.DateApplied, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) GetCreditNote(ctx context.Context, id int64) (*CreditNote, error) {
	query := `SELECT ` + creditNoteColumns + ` FROM credit_notes WHERE id = $1`
	c, err := scanCreditNote(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	lines, err := r.getCreditNoteLines(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Lines = lines
	return c, nil
}

func (r *Repository) getCreditNoteLines(ctx context.Context, creditNoteID int64) ([]CreditNoteLine, error) {
	query := `
		SELECT id, credit_note_id, description, quantity, unit_price, tva_rate, total_ht,
		       old_value, new_value, delta, delta_ttc, source_line_id, source_rate, line_order
		FROM credit_note_lines
		WHERE credit_note_id = $1
		ORDER BY line_order, id
	`
	rows, err := r.pool.Query(ctx, query, creditNoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []CreditNoteLine
	for rows.Next() {
		var l CreditNoteLine
		if err := rows.Scan(&l.ID, &l.CreditNoteID, &l.Description, &l.Quantity,
			&l.UnitPrice, &l.TVARate, &l.TotalHT, &l.OldValue, &l.NewValue,
			&l.Delta, &l.DeltaTTC, &l.SourceLineID, &l.SourceRate, &l.LineOrder); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Repository) ListCreditNotesByInvoice(ctx context.Context, invoiceID int64) ([]CreditNote, error) {
	query := `SELECT ` + creditNoteColumns + ` FROM credit_notes WHERE invoice_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []CreditNote
	for rows.Next() {
		c, err := scanCreditNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range notes {
		lines, err := r.getCreditNoteLines(ctx, notes[i].ID)
		if err != nil {
			return nil, err
		}
		notes[i].Lines = lines
	}
	return notes, nil
}

func (t *txRepository) InsertCreditNote(ctx context.Context, c *CreditNote) error {
	query := `
		INSERT INTO credit_notes (numero, company_id, invoice_id, statut, taux_tva, use_per_line_tva,
		                          montant_ht, montant_tva, montant_ttc, date_emission, date_applied)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err := t.tx.QueryRow(ctx, query,
		c.Numero, c.CompanyID, c.InvoiceID, c.Status, c.TauxTVA, c.UsePerLineTVA,
		c.MontantHT, c.MontantTVA, c.MontantTTC, c.DateEmission, c.DateApplied,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert credit note: %w", err)
	}
	return t.insertCreditNoteLines(ctx, c)
}

func (t *txRepository) UpdateCreditNote(ctx context.Context, c *CreditNote) error {
	query := `
		UPDATE credit_notes
		SET numero = $2, statut = $3, taux_tva = $4, use_per_line_tva = $5,
		    montant_ht = $6, montant_tva = $7, montant_ttc = $8,
		    date_emission = $9, date_applied = $10, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		c.ID, c.Numero, c.Status, c.TauxTVA, c.UsePerLineTVA,
		c.MontantHT, c.MontantTVA, c.MontantTTC,
		c.DateEmission, c.DateApplied,
	)
	if err != nil {
		return fmt.Errorf("update credit note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM credit_note_lines WHERE credit_note_id = $1`, c.ID); err != nil {
		return fmt.Errorf("delete credit note lines: %w", err)
	}
	return t.insertCreditNoteLines(ctx, c)
}

func (t *txRepository) insertCreditNoteLines(ctx context.Context, c *CreditNote) error {
	query := `
		INSERT INTO credit_note_lines (credit_note_id, description, quantity, unit_price, tva_rate,
		                               total_ht, old_value, new_value, delta, delta_ttc,
		                               source_line_id, source_rate, line_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	for i := range c.Lines {
		l := &c.Lines[i]
		l.CreditNoteID = c.ID
		if err := t.tx.QueryRow(ctx, query,
			c.ID, l.Description, l.Quantity, l.UnitPrice, l.TVARate,
			l.TotalHT, l.OldValue, l.NewValue, l.Delta, l.DeltaTTC,
			l.SourceLineID, l.SourceRate, l.LineOrder,
		).Scan(&l.ID); err != nil {
			return fmt.Errorf("insert credit note line: %w", err)
		}
	}
	return nil
}

// ============================================================================
// NUMBERING
// ============================================================================

// NextDocNumber increments the per-company, per-prefix, per-year sequence
// under a row lock and returns the formatted `{PREFIX}-{YYYY}-{NNNN}` number.
// The upsert seeds the row on first use; the lock serializes concurrent
// assignments so numbers are gapless within a committed sequence.
func (t *txRepository) NextDocNumber(ctx context.Context, companyID int64, prefix string, year int) (string, error) {
	query := `
		INSERT INTO doc_sequences (company_id, prefix, year, last_value)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (company_id, prefix, year)
		DO UPDATE SET last_value = doc_sequences.last_value + 1
		RETURNING last_value
	`
	var value int64
	if err := t.tx.QueryRow(ctx, query, companyID, prefix, year).Scan(&value); err != nil {
		return "", fmt.Errorf("next doc number %s-%d: %w", prefix, year, err)
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, value), nil
}
