package shared

import "context"

// Billing permissions, named {DOCUMENT}_{ACTION}.
const (
	PermQuoteView   = "QUOTE_VIEW"
	PermQuoteCreate = "QUOTE_CREATE"
	PermQuoteEdit   = "QUOTE_EDIT"
	PermQuoteSend   = "QUOTE_SEND"
	PermQuoteAccept = "QUOTE_ACCEPT"
	PermQuoteSign   = "QUOTE_SIGN"
	PermQuoteRefuse = "QUOTE_REFUSE"
	PermQuoteCancel = "QUOTE_CANCEL"

	PermInvoiceView     = "INVOICE_VIEW"
	PermInvoiceCreate   = "INVOICE_CREATE"
	PermInvoiceIssue    = "INVOICE_ISSUE"
	PermInvoiceSend     = "INVOICE_SEND"
	PermInvoiceMarkPaid = "INVOICE_MARK_PAID"

	PermAmendmentCreate = "AMENDMENT_CREATE"
	PermAmendmentEdit   = "AMENDMENT_EDIT"
	PermAmendmentSign   = "AMENDMENT_SIGN"

	PermCreditNoteCreate = "CREDIT_NOTE_CREATE"
	PermCreditNoteIssue  = "CREDIT_NOTE_ISSUE"
	PermCreditNoteApply  = "CREDIT_NOTE_APPLY"
)

// BillingScopes lists every billing permission.
func BillingScopes() []string {
	return []string{
		PermQuoteView, PermQuoteCreate, PermQuoteEdit, PermQuoteSend,
		PermQuoteAccept, PermQuoteSign, PermQuoteRefuse, PermQuoteCancel,
		PermInvoiceView, PermInvoiceCreate, PermInvoiceIssue,
		PermInvoiceSend, PermInvoiceMarkPaid,
		PermAmendmentCreate, PermAmendmentEdit, PermAmendmentSign,
		PermCreditNoteCreate, PermCreditNoteIssue, PermCreditNoteApply,
	}
}

// Authorizer answers permission checks. The session layer providing the
// underlying roles lives outside this module.
type Authorizer interface {
	IsGranted(ctx context.Context, permission string, subject any) bool
}

// AllowAll grants every permission. Used as the default wiring and in tests.
type AllowAll struct{}

// IsGranted always returns true.
func (AllowAll) IsGranted(context.Context, string, any) bool { return true }
