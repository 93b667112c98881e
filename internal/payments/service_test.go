package payments

import (
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/billing"
	"github.com/gestio-app/gestio/internal/shared"
)

type mockStore struct {
	payments map[int64]*Payment
	nextID   int64
}

func newMockStore() *mockStore {
	return &mockStore{payments: make(map[int64]*Payment), nextID: 1}
}

func (m *mockStore) Get(ctx context.Context, id int64) (*Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockStore) SumByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (m *mockStore) Insert(ctx context.Context, p *Payment) error {
	p.ID = m.nextID
	m.nextID++
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

type mockInvoices struct {
	invoices  map[int64]*billing.Invoice
	paidCalls []int64
}

func (m *mockInvoices) GetInvoice(ctx context.Context, id int64) (*billing.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *mockInvoices) MarkInvoicePaid(ctx context.Context, id int64) (*billing.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	inv.Status = billing.InvoiceStatusPaid
	m.paidCalls = append(m.paidCalls, id)
	cp := *inv
	return &cp, nil
}

func newTestService(t *testing.T, status billing.InvoiceStatus, total string) (*Service, *mockStore, *mockInvoices) {
	t.Helper()
	invoices := &mockInvoices{invoices: map[int64]*billing.Invoice{
		1: {ID: 1, CompanyID: 1, Status: status, MontantTTC: decimal.RequireFromString(total)},
	}}
	store := newMockStore()
	svc := NewService(store, invoices, nil, slog.Default())
	return svc, store, invoices
}

func recordReq(amount string) RecordPaymentRequest {
	return RecordPaymentRequest{
		InvoiceID: 1,
		Amount:    decimal.RequireFromString(amount),
		Method:    MethodTransfer,
	}
}

func TestPartialPaymentKeepsInvoiceOpen(t *testing.T) {
	svc, _, invoices := newTestService(t, billing.InvoiceStatusIssued, "420")
	payment, err := svc.Record(context.Background(), recordReq("200"))
	require.NoError(t, err)
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("200")))
	assert.Empty(t, invoices.paidCalls)
}

func TestCoveringPaymentMarksInvoicePaid(t *testing.T) {
	svc, _, invoices := newTestService(t, billing.InvoiceStatusIssued, "420")
	ctx := context.Background()

	_, err := svc.Record(ctx, recordReq("200"))
	require.NoError(t, err)
	_, err = svc.Record(ctx, recordReq("220"))
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, invoices.paidCalls)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "balance is %s", balance)
}

func TestOverpaymentRejected(t *testing.T) {
	svc, store, _ := newTestService(t, billing.InvoiceStatusIssued, "420")
	_, err := svc.Record(context.Background(), recordReq("500"))
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, store.payments)
}

func TestPaymentOnDraftInvoiceRejected(t *testing.T) {
	svc, _, _ := newTestService(t, billing.InvoiceStatusDraft, "420")
	_, err := svc.Record(context.Background(), recordReq("420"))
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestPaymentOnPaidInvoiceConflicts(t *testing.T) {
	svc, _, _ := newTestService(t, billing.InvoiceStatusPaid, "420")
	_, err := svc.Record(context.Background(), recordReq("420"))
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestUnknownMethodRejected(t *testing.T) {
	svc, _, _ := newTestService(t, billing.InvoiceStatusIssued, "420")
	req := recordReq("420")
	req.Method = "PAYPAL"
	_, err := svc.Record(context.Background(), req)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestChargeNotImplemented(t *testing.T) {
	svc, store, _ := newTestService(t, billing.InvoiceStatusIssued, "420")
	_, err := svc.Charge(context.Background(), ChargeRequest{
		InvoiceID: 1,
		Amount:    decimal.RequireFromString("420"),
		CardToken: "tok_test",
	})
	assert.ErrorIs(t, err, shared.ErrNotImplemented)
	assert.Empty(t, store.payments)
}
