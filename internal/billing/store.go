package billing

import (
	"context"
	"time"
)

// Store provides read access plus the transactional boundary. Every
// state-mutating transition runs inside WithTx so status check, mutation,
// numbering and persistence commit or roll back as one unit.
type Store interface {
	GetQuote(ctx context.Context, id int64) (*Quote, error)
	ListQuotes(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error)
	ListExpirableQuotes(ctx context.Context, now time.Time) ([]Quote, error)

	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	// FindInvoiceByQuote returns shared.ErrNotFound when the quote has no invoice.
	FindInvoiceByQuote(ctx context.Context, quoteID int64) (*Invoice, error)

	GetAmendment(ctx context.Context, id int64) (*Amendment, error)
	ListAmendmentsByQuote(ctx context.Context, quoteID int64) ([]Amendment, error)

	GetCreditNote(ctx context.Context, id int64) (*CreditNote, error)
	ListCreditNotesByInvoice(ctx context.Context, invoiceID int64) ([]CreditNote, error)

	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// TxStore exposes the mutations available inside a transaction. Update
// methods persist the whole document including its lines; documents are
// never deleted.
type TxStore interface {
	InsertQuote(ctx context.Context, q *Quote) error
	UpdateQuote(ctx context.Context, q *Quote) error

	InsertInvoice(ctx context.Context, inv *Invoice) error
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	// FindInvoiceByQuote re-checks the one-invoice-per-quote rule under the
	// transaction's isolation.
	FindInvoiceByQuote(ctx context.Context, quoteID int64) (*Invoice, error)

	InsertAmendment(ctx context.Context, a *Amendment) error
	UpdateAmendment(ctx context.Context, a *Amendment) error

	InsertCreditNote(ctx context.Context, c *CreditNote) error
	UpdateCreditNote(ctx context.Context, c *CreditNote) error

	// NextDocNumber increments the year-scoped sequence for the prefix under
	// a row lock and returns the formatted number. It must be called inside
	// the same transaction as the transition that assigns it.
	NextDocNumber(ctx context.Context, companyID int64, prefix string, year int) (string, error)
}
