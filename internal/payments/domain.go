package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method is how the client settled a payment.
type Method string

const (
	MethodTransfer Method = "VIREMENT"
	MethodCard     Method = "CB"
	MethodCheque   Method = "CHEQUE"
	MethodCash     Method = "ESPECES"
)

func (m Method) Valid() bool {
	switch m {
	case MethodTransfer, MethodCard, MethodCheque, MethodCash:
		return true
	}
	return false
}

// Payment is money received against an invoice. Payments are append-only:
// corrections go through credit notes, never by editing a payment row.
type Payment struct {
	ID        int64           `json:"id" db:"id"`
	CompanyID int64           `json:"company_id" db:"company_id"`
	InvoiceID int64           `json:"invoice_id" db:"invoice_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Method    Method          `json:"method" db:"method"`
	Reference *string         `json:"reference,omitempty" db:"reference"`
	PaidAt    time.Time       `json:"paid_at" db:"paid_at"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// RecordPaymentRequest records a payment received out of band.
type RecordPaymentRequest struct {
	InvoiceID int64           `json:"invoice_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Method    Method          `json:"method" validate:"required"`
	Reference *string         `json:"reference,omitempty" validate:"omitempty,max=100"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}

// ChargeRequest asks the card gateway to collect an invoice balance.
type ChargeRequest struct {
	InvoiceID int64           `json:"invoice_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	CardToken string          `json:"card_token" validate:"required"`
}
