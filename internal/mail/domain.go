package mail

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind identifies which billing document an email carries.
type DocumentKind string

const (
	KindQuote      DocumentKind = "QUOTE"
	KindInvoice    DocumentKind = "INVOICE"
	KindAmendment  DocumentKind = "AMENDMENT"
	KindCreditNote DocumentKind = "CREDIT_NOTE"
	KindReminder   DocumentKind = "REMINDER"
)

func (k DocumentKind) Valid() bool {
	switch k {
	case KindQuote, KindInvoice, KindAmendment, KindCreditNote, KindReminder:
		return true
	}
	return false
}

// OutboundDocument is a rendered document email ready to send.
type OutboundDocument struct {
	CompanyID  int64
	Kind       DocumentKind
	DocumentID int64
	Numero     string
	Recipient  string
	Subject    string
	Body       string
	AmountTTC  decimal.Decimal
	PDF        []byte
}

// DeliveryStatus is the outcome of a send attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "SENT"
	DeliveryFailed DeliveryStatus = "FAILED"
)

// DeliveryLog records one send attempt. A failed attempt keeps the document
// transaction intact; the log is the only trace.
type DeliveryLog struct {
	ID           int64          `json:"id" db:"id"`
	CompanyID    int64          `json:"company_id" db:"company_id"`
	DocumentKind DocumentKind   `json:"document_kind" db:"document_kind"`
	DocumentID   int64          `json:"document_id" db:"document_id"`
	Recipient    string         `json:"recipient" db:"recipient"`
	Subject      string         `json:"subject" db:"subject"`
	Status       DeliveryStatus `json:"status" db:"status"`
	Reason       *string        `json:"reason,omitempty" db:"reason"`
	SentAt       time.Time      `json:"sent_at" db:"sent_at"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}
