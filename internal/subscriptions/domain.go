package subscriptions

import (
	"time"

	"github.com/shopspring/decimal"
)

// Interval is the renewal cadence of a plan.
type Interval string

const (
	IntervalMonthly   Interval = "MONTHLY"
	IntervalQuarterly Interval = "QUARTERLY"
	IntervalYearly    Interval = "YEARLY"
)

// Advance returns the renewal date following from.
func (i Interval) Advance(from time.Time) time.Time {
	switch i {
	case IntervalMonthly:
		return from.AddDate(0, 1, 0)
	case IntervalQuarterly:
		return from.AddDate(0, 3, 0)
	case IntervalYearly:
		return from.AddDate(1, 0, 0)
	}
	return from
}

// Plan is a recurring billing agreement with a client.
type Plan struct {
	ID          int64           `json:"id" db:"id"`
	CompanyID   int64           `json:"company_id" db:"company_id"`
	ClientID    int64           `json:"client_id" db:"client_id"`
	Label       string          `json:"label" db:"label"`
	AmountHT    decimal.Decimal `json:"amount_ht" db:"amount_ht"`
	TauxTVA     decimal.Decimal `json:"taux_tva" db:"taux_tva"`
	Interval    Interval        `json:"interval" db:"interval"`
	NextRenewal time.Time       `json:"next_renewal" db:"next_renewal"`
	Active      bool            `json:"active" db:"active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// CreatePlanRequest captures the fields accepted at creation. Amounts travel
// as decimal strings.
type CreatePlanRequest struct {
	CompanyID   int64     `json:"company_id" validate:"required,gt=0"`
	ClientID    int64     `json:"client_id" validate:"required,gt=0"`
	Label       string    `json:"label" validate:"required,max=200"`
	AmountHT    string    `json:"amount_ht" validate:"required"`
	TauxTVA     string    `json:"taux_tva" validate:"required"`
	Interval    Interval  `json:"interval" validate:"required,oneof=MONTHLY QUARTERLY YEARLY"`
	NextRenewal time.Time `json:"next_renewal" validate:"required"`
}
