package subscriptions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestio-app/gestio/internal/billing"
	"github.com/gestio-app/gestio/internal/shared"
)

// InvoiceCreator creates the draft invoice for a renewal period.
type InvoiceCreator interface {
	CreateDraftInvoice(ctx context.Context, req billing.CreateInvoiceRequest) (*billing.Invoice, error)
}

// Service manages recurring billing plans.
type Service struct {
	store    Store
	invoices InvoiceCreator
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a subscriptions service.
func NewService(store Store, invoices InvoiceCreator, logger *slog.Logger) *Service {
	return &Service{store: store, invoices: invoices, logger: logger, now: time.Now}
}

// CreatePlan registers an active recurring plan.
func (s *Service) CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error) {
	amount, err := decimal.NewFromString(req.AmountHT)
	if err != nil {
		return nil, fmt.Errorf("%w: amount_ht %q is not a valid decimal", shared.ErrValidation, req.AmountHT)
	}
	rate, err := decimal.NewFromString(req.TauxTVA)
	if err != nil {
		return nil, fmt.Errorf("%w: taux_tva %q is not a valid decimal", shared.ErrValidation, req.TauxTVA)
	}
	plan := Plan{
		CompanyID:   req.CompanyID,
		ClientID:    req.ClientID,
		Label:       req.Label,
		AmountHT:    amount,
		TauxTVA:     rate,
		Interval:    req.Interval,
		NextRenewal: req.NextRenewal,
		Active:      true,
	}
	if err := s.store.Insert(ctx, &plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return &plan, nil
}

// GetPlan retrieves a plan by ID.
func (s *Service) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	return s.store.Get(ctx, id)
}

// ListPlans returns the company's plans.
func (s *Service) ListPlans(ctx context.Context, companyID int64) ([]Plan, error) {
	return s.store.ListByCompany(ctx, companyID)
}

// Pause deactivates a plan; due renewals stop until resumed.
func (s *Service) Pause(ctx context.Context, id int64) error {
	return s.store.SetActive(ctx, id, false)
}

// Resume reactivates a plan.
func (s *Service) Resume(ctx context.Context, id int64) error {
	return s.store.SetActive(ctx, id, true)
}

// RenewPlan bills one period of the plan: a draft invoice with a single line
// and the renewal date advanced by the plan's interval. The compare-and-set
// on next_renewal makes a redelivered job a no-op.
func (s *Service) RenewPlan(ctx context.Context, id int64) (*billing.Invoice, error) {
	plan, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if !plan.Active {
		return nil, nil
	}
	if plan.NextRenewal.After(s.now()) {
		return nil, nil
	}

	next := plan.Interval.Advance(plan.NextRenewal)
	advanced, err := s.store.AdvanceRenewal(ctx, plan.ID, plan.NextRenewal, next)
	if err != nil {
		return nil, fmt.Errorf("advance renewal: %w", err)
	}
	if !advanced {
		// Another run already billed this period.
		return nil, nil
	}

	due := plan.NextRenewal.AddDate(0, 0, 30)
	invoice, err := s.invoices.CreateDraftInvoice(ctx, billing.CreateInvoiceRequest{
		CompanyID:    plan.CompanyID,
		ClientID:     plan.ClientID,
		TauxTVA:      plan.TauxTVA.String(),
		DateEcheance: &due,
		Lines: []billing.LineRequest{{
			Description: fmt.Sprintf("%s (%s)", plan.Label, plan.NextRenewal.Format("2006-01")),
			Quantity:    1,
			UnitPrice:   plan.AmountHT.String(),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("create renewal invoice: %w", err)
	}
	s.logger.Info("plan renewed",
		slog.Int64("plan_id", plan.ID),
		slog.Int64("invoice_id", invoice.ID),
		slog.Time("next_renewal", next))
	return invoice, nil
}

// RenewDuePlans bills every active plan whose renewal date has passed.
func (s *Service) RenewDuePlans(ctx context.Context) (int, error) {
	plans, err := s.store.ListDue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list due plans: %w", err)
	}
	renewed := 0
	for _, p := range plans {
		invoice, err := s.RenewPlan(ctx, p.ID)
		if err != nil {
			return renewed, err
		}
		if invoice != nil {
			renewed++
		}
	}
	return renewed, nil
}
