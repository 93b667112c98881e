package billing

import (
	"context"
	"fmt"

	"github.com/gestio-app/gestio/internal/shared"
)

// Guard is the central enforcement point for document transitions. Every
// service transition consults it before acting: first the caller's
// permission, then the status table, then the action's business
// preconditions. Failures surface as shared.ErrAccessDenied with a specific
// reason so clients can retry after satisfying them.
type Guard struct {
	authz shared.Authorizer
}

// NewGuard builds a Guard using the given authorizer.
func NewGuard(authz shared.Authorizer) *Guard {
	if authz == nil {
		authz = shared.AllowAll{}
	}
	return &Guard{authz: authz}
}

func (g *Guard) granted(ctx context.Context, permission string, subject any) error {
	if !g.authz.IsGranted(ctx, permission, subject) {
		return fmt.Errorf("%w: permission %s not granted", shared.ErrAccessDenied, permission)
	}
	return nil
}

func denied(reason string) error {
	return fmt.Errorf("%w: %s", shared.ErrAccessDenied, reason)
}

func invalidStatus(doc, action string, status any) error {
	return fmt.Errorf("%w: cannot %s a %s in status %v", shared.ErrInvalidStatus, action, doc, status)
}

// ============================================================================
// QUOTE
// ============================================================================

// CanEditQuote permits line and monetary edits only pre-signature.
func (g *Guard) CanEditQuote(ctx context.Context, q *Quote) error {
	if err := g.granted(ctx, shared.PermQuoteEdit, q); err != nil {
		return err
	}
	if !q.Editable() {
		return denied(fmt.Sprintf("quote in status %s can no longer be edited", q.Status))
	}
	return nil
}

// CanSendQuote requires at least one line and an attached client.
func (g *Guard) CanSendQuote(ctx context.Context, q *Quote) error {
	if err := g.granted(ctx, shared.PermQuoteSend, q); err != nil {
		return err
	}
	if _, ok := QuoteTransitionTarget(q.Status, QuoteActionSend); !ok {
		return invalidStatus("quote", "send", q.Status)
	}
	if len(q.Lines) == 0 {
		return denied("quote has no lines")
	}
	if q.ClientID == 0 {
		return denied("quote has no client")
	}
	return nil
}

// CanAcceptQuote gates the soft commercial acknowledgment.
func (g *Guard) CanAcceptQuote(ctx context.Context, q *Quote) error {
	if err := g.granted(ctx, shared.PermQuoteAccept, q); err != nil {
		return err
	}
	if _, ok := QuoteTransitionTarget(q.Status, QuoteActionAccept); !ok {
		return invalidStatus("quote", "accept", q.Status)
	}
	return nil
}

// CanSignQuote requires a sent or accepted quote with lines.
func (g *Guard) CanSignQuote(ctx context.Context, q *Quote) error {
	if err := g.granted(ctx, shared.PermQuoteSign, q); err != nil {
		return err
	}
	if _, ok := QuoteTransitionTarget(q.Status, QuoteActionSign); !ok {
		return invalidStatus("quote", "sign", q.Status)
	}
	if len(q.Lines) == 0 {
		return denied("quote has no lines")
	}
	return nil
}

// CanRefuseQuote gates refusal.
func (g *Guard) CanRefuseQuote(ctx context.Context, q *Quote) error {
	if err := g.granted(ctx, shared.PermQuoteRefuse, q); err != nil {
		return err
	}
	if _, ok := QuoteTransitionTarget(q.Status, QuoteActionRefuse); !ok {
		return invalidStatus("quote", "refuse", q.Status)
	}
	return nil
}

// CanCancelQuote gates cancellation. Signed quotes are absent from the
// cancel table, so they fail the status check: a signed baseline is only ever
// corrected through an amendment.
func (g *Guard) CanCancelQuote(ctx context.Context, q *Quote) error {
	if err := g.granted(ctx, shared.PermQuoteCancel, q); err != nil {
		return err
	}
	if _, ok := QuoteTransitionTarget(q.Status, QuoteActionCancel); !ok {
		return invalidStatus("quote", "cancel", q.Status)
	}
	return nil
}

// ============================================================================
// INVOICE
// ============================================================================

// CanCreateInvoiceFromQuote requires a signed source quote without an
// existing invoice. A second invoice for the same quote is a conflict, not a
// denial.
func (g *Guard) CanCreateInvoiceFromQuote(ctx context.Context, q *Quote, existing *Invoice) error {
	if err := g.granted(ctx, shared.PermInvoiceCreate, q); err != nil {
		return err
	}
	if q.Status != QuoteStatusSigned {
		return invalidStatus("quote", "invoice", q.Status)
	}
	if existing != nil {
		return fmt.Errorf("%w: quote %d already has invoice %d", shared.ErrConflict, q.ID, existing.ID)
	}
	return nil
}

// CanIssueInvoice requires lines, non-negative amounts and a due date.
func (g *Guard) CanIssueInvoice(ctx context.Context, inv *Invoice) error {
	if err := g.granted(ctx, shared.PermInvoiceIssue, inv); err != nil {
		return err
	}
	if _, ok := InvoiceTransitionTarget(inv.Status, InvoiceActionIssue); !ok {
		return invalidStatus("invoice", "issue", inv.Status)
	}
	if len(inv.Lines) == 0 {
		return denied("invoice has no lines")
	}
	if inv.MontantHT.IsNegative() || inv.MontantTVA.IsNegative() || inv.MontantTTC.IsNegative() {
		return denied("invoice amounts must not be negative")
	}
	if inv.DateEcheance == nil {
		return denied("invoice has no due date")
	}
	return nil
}

// CanSendInvoice denies sending drafts; issued and paid invoices may be
// re-sent any number of times.
func (g *Guard) CanSendInvoice(ctx context.Context, inv *Invoice) error {
	if err := g.granted(ctx, shared.PermInvoiceSend, inv); err != nil {
		return err
	}
	if _, ok := InvoiceTransitionTarget(inv.Status, InvoiceActionSend); !ok {
		return invalidStatus("invoice", "send", inv.Status)
	}
	return nil
}

// CanMarkInvoicePaid denies paying drafts and double payment.
func (g *Guard) CanMarkInvoicePaid(ctx context.Context, inv *Invoice) error {
	if err := g.granted(ctx, shared.PermInvoiceMarkPaid, inv); err != nil {
		return err
	}
	if inv.Status == InvoiceStatusPaid {
		return fmt.Errorf("%w: invoice %d is already paid", shared.ErrConflict, inv.ID)
	}
	if _, ok := InvoiceTransitionTarget(inv.Status, InvoiceActionMarkPaid); !ok {
		return invalidStatus("invoice", "mark paid", inv.Status)
	}
	return nil
}

// CanDeleteInvoice always denies: ten-year legal retention.
func (g *Guard) CanDeleteInvoice(context.Context, *Invoice) error {
	return denied("invoices are never deleted (legal retention)")
}

// CanDeleteQuote always denies: documents are retained.
func (g *Guard) CanDeleteQuote(context.Context, *Quote) error {
	return denied("quotes are never deleted (legal retention)")
}

// ============================================================================
// AMENDMENT
// ============================================================================

// CanCreateAmendment requires a signed parent quote. Amendments start DRAFT
// so lines can be populated before sign-time validation runs.
func (g *Guard) CanCreateAmendment(ctx context.Context, parent *Quote) error {
	if err := g.granted(ctx, shared.PermAmendmentCreate, parent); err != nil {
		return err
	}
	if parent.Status != QuoteStatusSigned {
		return invalidStatus("quote", "amend", parent.Status)
	}
	return nil
}

// CanEditAmendment permits line edits only while draft.
func (g *Guard) CanEditAmendment(ctx context.Context, a *Amendment) error {
	if err := g.granted(ctx, shared.PermAmendmentEdit, a); err != nil {
		return err
	}
	if a.Status != AmendmentStatusDraft {
		return denied("signed amendments can no longer be edited")
	}
	return nil
}

// CanSignAmendment requires a draft amendment with lines.
func (g *Guard) CanSignAmendment(ctx context.Context, a *Amendment) error {
	if err := g.granted(ctx, shared.PermAmendmentSign, a); err != nil {
		return err
	}
	if _, ok := AmendmentTransitionTarget(a.Status, AmendmentActionSign); !ok {
		return invalidStatus("amendment", "sign", a.Status)
	}
	if len(a.Lines) == 0 {
		return denied("amendment has no lines")
	}
	return nil
}

// ============================================================================
// CREDIT NOTE
// ============================================================================

// CanCreateCreditNote requires an issued or paid parent invoice, never a draft.
func (g *Guard) CanCreateCreditNote(ctx context.Context, parent *Invoice) error {
	if err := g.granted(ctx, shared.PermCreditNoteCreate, parent); err != nil {
		return err
	}
	if parent.Status == InvoiceStatusDraft {
		return invalidStatus("invoice", "credit", parent.Status)
	}
	return nil
}

// CanIssueCreditNote requires a draft credit note with lines.
func (g *Guard) CanIssueCreditNote(ctx context.Context, c *CreditNote) error {
	if err := g.granted(ctx, shared.PermCreditNoteIssue, c); err != nil {
		return err
	}
	if _, ok := CreditNoteTransitionTarget(c.Status, CreditNoteActionIssue); !ok {
		return invalidStatus("credit note", "issue", c.Status)
	}
	if len(c.Lines) == 0 {
		return denied("credit note has no lines")
	}
	return nil
}

// CanApplyCreditNote requires an issued credit note.
func (g *Guard) CanApplyCreditNote(ctx context.Context, c *CreditNote) error {
	if err := g.granted(ctx, shared.PermCreditNoteApply, c); err != nil {
		return err
	}
	if _, ok := CreditNoteTransitionTarget(c.Status, CreditNoteActionApply); !ok {
		return invalidStatus("credit note", "apply", c.Status)
	}
	return nil
}
