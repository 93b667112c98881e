package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestio-app/gestio/internal/shared"
)

// Monetary inputs travel as decimal strings, never floats.

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a valid decimal", shared.ErrValidation, field, s)
	}
	return d, nil
}

func parseOptionalAmount(field string, s *string) (*decimal.Decimal, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := parseAmount(field, *s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type LineRequest struct {
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    int64   `json:"quantity" validate:"gte=0"`
	UnitPrice   string  `json:"unit_price" validate:"required"`
	TVARate     *string `json:"tva_rate,omitempty"`
	LineOrder   int     `json:"line_order" validate:"gte=0"`
}

type CreateQuoteRequest struct {
	CompanyID     int64         `json:"company_id" validate:"required,gt=0"`
	ClientID      int64         `json:"client_id" validate:"required,gt=0"`
	TauxTVA       string        `json:"taux_tva" validate:"required"`
	UsePerLineTVA bool          `json:"use_per_line_tva"`
	DateValidite  *time.Time    `json:"date_validite,omitempty"`
	Lines         []LineRequest `json:"lines" validate:"dive"`
}

type UpdateQuoteRequest struct {
	TauxTVA       *string        `json:"taux_tva,omitempty"`
	UsePerLineTVA *bool          `json:"use_per_line_tva,omitempty"`
	DateValidite  *time.Time     `json:"date_validite,omitempty"`
	Lines         *[]LineRequest `json:"lines,omitempty" validate:"omitempty,dive"`
}

type ListQuotesRequest struct {
	CompanyID int64        `json:"company_id" validate:"required,gt=0"`
	ClientID  *int64       `json:"client_id,omitempty"`
	Status    *QuoteStatus `json:"status,omitempty"`
	Limit     int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset    int          `json:"offset" validate:"gte=0"`
}

type CreateInvoiceRequest struct {
	CompanyID     int64         `json:"company_id" validate:"required,gt=0"`
	ClientID      int64         `json:"client_id" validate:"required,gt=0"`
	TauxTVA       string        `json:"taux_tva" validate:"required"`
	UsePerLineTVA bool          `json:"use_per_line_tva"`
	DateEcheance  *time.Time    `json:"date_echeance,omitempty"`
	Lines         []LineRequest `json:"lines" validate:"dive"`
}

type UpdateInvoiceRequest struct {
	TauxTVA       *string        `json:"taux_tva,omitempty"`
	UsePerLineTVA *bool          `json:"use_per_line_tva,omitempty"`
	DateEcheance  *time.Time     `json:"date_echeance,omitempty"`
	Lines         *[]LineRequest `json:"lines,omitempty" validate:"omitempty,dive"`
}

type ListInvoicesRequest struct {
	CompanyID int64          `json:"company_id" validate:"required,gt=0"`
	ClientID  *int64         `json:"client_id,omitempty"`
	Status    *InvoiceStatus `json:"status,omitempty"`
	Limit     int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset    int            `json:"offset" validate:"gte=0"`
}

// CorrectionLineRequest describes an amendment or credit-note line. A
// SourceLineID ties it to a line on the parent document; when present and
// OldValue is omitted, the source line's current HT total is snapshotted as
// the old value.
type CorrectionLineRequest struct {
	Description  string  `json:"description" validate:"required,max=500"`
	Quantity     int64   `json:"quantity" validate:"gte=0"`
	UnitPrice    string  `json:"unit_price" validate:"required"`
	TVARate      *string `json:"tva_rate,omitempty"`
	OldValue     *string `json:"old_value,omitempty"`
	NewValue     *string `json:"new_value,omitempty"`
	SourceLineID *int64  `json:"source_line_id,omitempty"`
	LineOrder    int     `json:"line_order" validate:"gte=0"`
}

type CreateAmendmentRequest struct {
	QuoteID       int64                   `json:"quote_id" validate:"required,gt=0"`
	TauxTVA       string                  `json:"taux_tva" validate:"required"`
	UsePerLineTVA bool                    `json:"use_per_line_tva"`
	Lines         []CorrectionLineRequest `json:"lines" validate:"dive"`
}

type UpdateAmendmentRequest struct {
	TauxTVA *string                  `json:"taux_tva,omitempty"`
	Lines   *[]CorrectionLineRequest `json:"lines,omitempty" validate:"omitempty,dive"`
}

type CreateCreditNoteRequest struct {
	InvoiceID     int64                   `json:"invoice_id" validate:"required,gt=0"`
	TauxTVA       string                  `json:"taux_tva" validate:"required"`
	UsePerLineTVA bool                    `json:"use_per_line_tva"`
	Lines         []CorrectionLineRequest `json:"lines" validate:"dive"`
}

type SignRequest struct {
	Signature string `json:"signature" validate:"required"`
	Signer    string `json:"signer" validate:"required,max=200"`
}

type SendInvoiceRequest struct {
	Channel string `json:"channel" validate:"required,oneof=email postal manual"`
}
