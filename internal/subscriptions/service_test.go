package subscriptions

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/billing"
	"github.com/gestio-app/gestio/internal/shared"
)

type mockStore struct {
	plans  map[int64]*Plan
	nextID int64
}

func newMockStore() *mockStore {
	return &mockStore{plans: make(map[int64]*Plan), nextID: 1}
}

func (m *mockStore) Get(ctx context.Context, id int64) (*Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) ListDue(ctx context.Context, now time.Time) ([]Plan, error) {
	var out []Plan
	for _, p := range m.plans {
		if p.Active && !p.NextRenewal.After(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockStore) ListByCompany(ctx context.Context, companyID int64) ([]Plan, error) {
	var out []Plan
	for _, p := range m.plans {
		if p.CompanyID == companyID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockStore) Insert(ctx context.Context, p *Plan) error {
	p.ID = m.nextID
	m.nextID++
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *mockStore) AdvanceRenewal(ctx context.Context, id int64, from, to time.Time) (bool, error) {
	p, ok := m.plans[id]
	if !ok {
		return false, shared.ErrNotFound
	}
	if !p.NextRenewal.Equal(from) {
		return false, nil
	}
	p.NextRenewal = to
	return true, nil
}

func (m *mockStore) SetActive(ctx context.Context, id int64, active bool) error {
	p, ok := m.plans[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Active = active
	return nil
}

type mockInvoices struct {
	created []billing.CreateInvoiceRequest
	nextID  int64
}

func (m *mockInvoices) CreateDraftInvoice(ctx context.Context, req billing.CreateInvoiceRequest) (*billing.Invoice, error) {
	m.created = append(m.created, req)
	m.nextID++
	return &billing.Invoice{ID: m.nextID, Status: billing.InvoiceStatusDraft}, nil
}

var renewalDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestService(store Store, invoices InvoiceCreator) *Service {
	svc := NewService(store, invoices, slog.Default())
	svc.now = func() time.Time { return renewalDate.Add(12 * time.Hour) }
	return svc
}

func makePlan(t *testing.T, svc *Service) *Plan {
	t.Helper()
	plan, err := svc.CreatePlan(context.Background(), CreatePlanRequest{
		CompanyID:   1,
		ClientID:    10,
		Label:       "Maintenance mensuelle",
		AmountHT:    "120",
		TauxTVA:     "20",
		Interval:    IntervalMonthly,
		NextRenewal: renewalDate,
	})
	require.NoError(t, err)
	return plan
}

func TestRenewPlanCreatesDraftInvoice(t *testing.T) {
	store := newMockStore()
	invoices := &mockInvoices{}
	svc := newTestService(store, invoices)
	plan := makePlan(t, svc)

	invoice, err := svc.RenewPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.NotNil(t, invoice)

	require.Len(t, invoices.created, 1)
	req := invoices.created[0]
	assert.Equal(t, plan.ClientID, req.ClientID)
	require.Len(t, req.Lines, 1)
	assert.Equal(t, "120", req.Lines[0].UnitPrice)
	assert.Contains(t, req.Lines[0].Description, "2026-03")

	got, err := svc.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.True(t, got.NextRenewal.Equal(renewalDate.AddDate(0, 1, 0)))
}

func TestRenewPlanIdempotent(t *testing.T) {
	store := newMockStore()
	invoices := &mockInvoices{}
	svc := newTestService(store, invoices)
	plan := makePlan(t, svc)

	_, err := svc.RenewPlan(context.Background(), plan.ID)
	require.NoError(t, err)

	invoice, err := svc.RenewPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Nil(t, invoice, "renewal already advanced, second run is a no-op")
	assert.Len(t, invoices.created, 1)
}

func TestRenewPausedPlanSkipped(t *testing.T) {
	store := newMockStore()
	invoices := &mockInvoices{}
	svc := newTestService(store, invoices)
	plan := makePlan(t, svc)

	require.NoError(t, svc.Pause(context.Background(), plan.ID))

	invoice, err := svc.RenewPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Nil(t, invoice)
	assert.Empty(t, invoices.created)
}

func TestRenewDuePlans(t *testing.T) {
	store := newMockStore()
	invoices := &mockInvoices{}
	svc := newTestService(store, invoices)

	makePlan(t, svc)
	makePlan(t, svc)

	future, err := svc.CreatePlan(context.Background(), CreatePlanRequest{
		CompanyID: 1, ClientID: 11, Label: "Hebergement annuel",
		AmountHT: "600", TauxTVA: "20",
		Interval: IntervalYearly, NextRenewal: renewalDate.AddDate(0, 2, 0),
	})
	require.NoError(t, err)

	n, err := svc.RenewDuePlans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, invoices.created, 2)

	got, err := svc.GetPlan(context.Background(), future.ID)
	require.NoError(t, err)
	assert.True(t, got.NextRenewal.Equal(future.NextRenewal), "future plan untouched")
}

func TestIntervalAdvance(t *testing.T) {
	from := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), IntervalMonthly.Advance(from))
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), IntervalQuarterly.Advance(from))
	assert.Equal(t, time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC), IntervalYearly.Advance(from))
}
