package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestio-app/gestio/internal/billing"
	"github.com/gestio-app/gestio/internal/shared"
)

// InvoiceService is the slice of the billing service payments depends on.
type InvoiceService interface {
	GetInvoice(ctx context.Context, id int64) (*billing.Invoice, error)
	MarkInvoicePaid(ctx context.Context, id int64) (*billing.Invoice, error)
}

// Service records payments against invoices and flips invoices to PAID when
// they are fully covered.
type Service struct {
	store    Store
	invoices InvoiceService
	gateway  Gateway
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a payment service. gateway may be nil; charges are
// then rejected by the stub.
func NewService(store Store, invoices InvoiceService, gateway Gateway, logger *slog.Logger) *Service {
	if gateway == nil {
		gateway = StubGateway{}
	}
	return &Service{store: store, invoices: invoices, gateway: gateway, logger: logger, now: time.Now}
}

// Record stores a payment and marks the invoice PAID once the accumulated
// total reaches the invoice amount. Partial payments accumulate; overpaying
// is rejected.
func (s *Service) Record(ctx context.Context, req RecordPaymentRequest) (*Payment, error) {
	if !req.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", shared.ErrValidation, req.Method)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}

	invoice, err := s.invoices.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if invoice.Status == billing.InvoiceStatusDraft {
		return nil, fmt.Errorf("%w: cannot pay a draft invoice", shared.ErrInvalidStatus)
	}
	if invoice.Status == billing.InvoiceStatusPaid {
		return nil, fmt.Errorf("%w: invoice %d is already paid", shared.ErrConflict, invoice.ID)
	}

	paid, err := s.store.SumByInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if paid.Add(req.Amount).GreaterThan(invoice.MontantTTC) {
		return nil, fmt.Errorf("%w: payment of %s exceeds remaining balance %s",
			shared.ErrValidation, req.Amount.StringFixed(2), invoice.MontantTTC.Sub(paid).StringFixed(2))
	}

	paidAt := s.now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	payment := Payment{
		CompanyID: invoice.CompanyID,
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		PaidAt:    paidAt,
	}
	if err := s.store.Insert(ctx, &payment); err != nil {
		return nil, err
	}

	if paid.Add(req.Amount).Equal(invoice.MontantTTC) {
		if _, err := s.invoices.MarkInvoicePaid(ctx, invoice.ID); err != nil {
			return nil, fmt.Errorf("mark invoice paid: %w", err)
		}
		s.logger.Info("invoice settled",
			slog.Int64("invoice_id", invoice.ID),
			slog.String("total", invoice.MontantTTC.StringFixed(2)))
	}
	return &payment, nil
}

// Charge collects an online payment via the gateway, then records it.
func (s *Service) Charge(ctx context.Context, req ChargeRequest) (*Payment, error) {
	reference, err := s.gateway.Charge(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Record(ctx, RecordPaymentRequest{
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		Method:    MethodCard,
		Reference: &reference,
	})
}

// Get retrieves a payment by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Payment, error) {
	return s.store.Get(ctx, id)
}

// ListByInvoice returns every payment recorded against an invoice.
func (s *Service) ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.store.ListByInvoice(ctx, invoiceID)
}

// Balance reports the amount still due on an invoice.
func (s *Service) Balance(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	invoice, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	paid, err := s.store.SumByInvoice(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	return invoice.MontantTTC.Sub(paid), nil
}
