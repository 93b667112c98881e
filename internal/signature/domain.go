package signature

import (
	"time"
)

// DocumentKind names the signable document types.
type DocumentKind string

const (
	KindQuote     DocumentKind = "QUOTE"
	KindAmendment DocumentKind = "AMENDMENT"
)

// TokenStatus tracks a signature token's lifecycle.
type TokenStatus string

const (
	TokenStatusPending TokenStatus = "PENDING"
	TokenStatusUsed    TokenStatus = "USED"
	TokenStatusExpired TokenStatus = "EXPIRED"
)

// Token is a single-use public link allowing a client to sign one document.
type Token struct {
	ID         int64        `json:"id" db:"id"`
	Token      string       `json:"token" db:"token"`
	Kind       DocumentKind `json:"kind" db:"kind"`
	DocumentID int64        `json:"document_id" db:"document_id"`
	Status     TokenStatus  `json:"status" db:"status"`
	ExpiresAt  time.Time    `json:"expires_at" db:"expires_at"`
	UsedAt     *time.Time   `json:"used_at,omitempty" db:"used_at"`
	SignerName *string      `json:"signer_name,omitempty" db:"signer_name"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

// CaptureRequest carries the drawn signature payload.
type CaptureRequest struct {
	Signature string `json:"signature" validate:"required"`
	Signer    string `json:"signer" validate:"required,max=200"`
}
