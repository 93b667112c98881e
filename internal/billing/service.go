package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestio-app/gestio/internal/shared"
)

// AuditRecorder persists document lifecycle events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Dispatcher hands follow-up work to the background queue.
type Dispatcher interface {
	EnqueuePDFRegenerate(ctx context.Context, kind string, documentID int64) error
	EnqueueSendMail(ctx context.Context, kind string, documentID int64, recipient string) error
}

// Service implements the document lifecycle: transitions are guarded,
// atomic, and recompute totals before persisting.
type Service struct {
	store    Store
	guard    *Guard
	audit    AuditRecorder
	dispatch Dispatcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a billing service.
func NewService(store Store, guard *Guard, logger *slog.Logger) *Service {
	if guard == nil {
		guard = NewGuard(nil)
	}
	return &Service{
		store:  store,
		guard:  guard,
		logger: logger,
		now:    time.Now,
	}
}

// WithAudit attaches an audit trail to document transitions.
func (s *Service) WithAudit(recorder AuditRecorder) *Service {
	s.audit = recorder
	return s
}

// WithDispatcher attaches the background queue. Transitions then enqueue
// PDF regeneration and outbound mail instead of blocking on them.
func (s *Service) WithDispatcher(dispatcher Dispatcher) *Service {
	s.dispatch = dispatcher
	return s
}

// dispatchPDF queues a PDF refresh. Queue trouble is logged, never
// propagated: the transition already committed.
func (s *Service) dispatchPDF(ctx context.Context, kind string, documentID int64) {
	if s.dispatch == nil {
		return
	}
	if err := s.dispatch.EnqueuePDFRegenerate(ctx, kind, documentID); err != nil {
		s.logger.Warn("pdf regenerate enqueue failed",
			slog.String("kind", kind), slog.Int64("document_id", documentID), slog.Any("error", err))
	}
}

// dispatchMail queues document delivery. The worker resolves the client's
// address when recipient is empty.
func (s *Service) dispatchMail(ctx context.Context, kind string, documentID int64, recipient string) {
	if s.dispatch == nil {
		return
	}
	if err := s.dispatch.EnqueueSendMail(ctx, kind, documentID, recipient); err != nil {
		s.logger.Warn("send mail enqueue failed",
			slog.String("kind", kind), slog.Int64("document_id", documentID), slog.Any("error", err))
	}
}

// recordAudit writes the trail entry. Audit trouble is logged, never
// propagated: the transition already committed.
func (s *Service) recordAudit(ctx context.Context, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	}
	if actor := shared.ActorFromContext(ctx); actor != nil {
		entry.ActorID = actor.ID
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed",
			slog.String("action", action), slog.Any("error", err))
	}
}

func buildLines(reqs []LineRequest) ([]QuoteLine, error) {
	lines := make([]QuoteLine, 0, len(reqs))
	for i, lr := range reqs {
		price, err := parseAmount("unit_price", lr.UnitPrice)
		if err != nil {
			return nil, err
		}
		rate, err := parseOptionalAmount("tva_rate", lr.TVARate)
		if err != nil {
			return nil, err
		}
		line := QuoteLine{
			Description: lr.Description,
			Quantity:    lr.Quantity,
			UnitPrice:   price,
			TVARate:     rate,
			LineOrder:   lr.LineOrder,
		}
		if line.LineOrder == 0 {
			line.LineOrder = i + 1
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ============================================================================
// QUOTE
// ============================================================================

// CreateQuote creates a new draft quote with recomputed totals.
func (s *Service) CreateQuote(ctx context.Context, req CreateQuoteRequest) (*Quote, error) {
	if err := s.guard.granted(ctx, shared.PermQuoteCreate, nil); err != nil {
		return nil, err
	}
	rate, err := parseAmount("taux_tva", req.TauxTVA)
	if err != nil {
		return nil, err
	}
	lines, err := buildLines(req.Lines)
	if err != nil {
		return nil, err
	}

	quote := Quote{
		CompanyID:     req.CompanyID,
		ClientID:      req.ClientID,
		Status:        QuoteStatusDraft,
		TauxTVA:       rate,
		UsePerLineTVA: req.UsePerLineTVA,
		DateValidite:  req.DateValidite,
		Lines:         lines,
	}
	quote.RecalculateTotalsFromLines()

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.InsertQuote(ctx, &quote)
	})
	if err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}
	return s.store.GetQuote(ctx, quote.ID)
}

// UpdateQuote replaces the quote's editable fields and lines, denied once
// the quote is signed or otherwise terminal.
func (s *Service) UpdateQuote(ctx context.Context, id int64, req UpdateQuoteRequest) (*Quote, error) {
	quote, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if err := s.guard.CanEditQuote(ctx, quote); err != nil {
		return nil, err
	}

	if req.TauxTVA != nil {
		rate, err := parseAmount("taux_tva", *req.TauxTVA)
		if err != nil {
			return nil, err
		}
		quote.TauxTVA = rate
	}
	if req.UsePerLineTVA != nil {
		quote.UsePerLineTVA = *req.UsePerLineTVA
	}
	if req.DateValidite != nil {
		quote.DateValidite = req.DateValidite
	}
	if req.Lines != nil {
		lines, err := buildLines(*req.Lines)
		if err != nil {
			return nil, err
		}
		quote.Lines = lines
	}
	quote.RecalculateTotalsFromLines()

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.UpdateQuote(ctx, quote)
	})
	if err != nil {
		return nil, fmt.Errorf("update quote: %w", err)
	}
	return s.store.GetQuote(ctx, id)
}

// SendQuote transitions DRAFT to SENT, assigning the DEV number on first send.
func (s *Service) SendQuote(ctx context.Context, id int64) (*Quote, error) {
	quote, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if err := s.guard.CanSendQuote(ctx, quote); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if quote.Numero == nil {
			numero, err := tx.NextDocNumber(ctx, quote.CompanyID, PrefixQuote, s.now().Year())
			if err != nil {
				return fmt.Errorf("generate quote number: %w", err)
			}
			quote.Numero = &numero
		}
		now := s.now()
		quote.Status = QuoteStatusSent
		quote.DateEnvoi = &now
		return tx.UpdateQuote(ctx, quote)
	})
	if err != nil {
		return nil, fmt.Errorf("send quote: %w", err)
	}
	s.recordAudit(ctx, "QUOTE_SEND", "quote", id, map[string]any{"numero": *quote.Numero})
	s.dispatchPDF(ctx, "QUOTE", id)
	s.dispatchMail(ctx, "QUOTE", id, "")
	return s.store.GetQuote(ctx, id)
}

// AcceptQuote records the soft commercial acknowledgment. An accepted quote
// is not contractually binding; only signature is.
func (s *Service) AcceptQuote(ctx context.Context, id int64) (*Quote, error) {
	quote, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if err := s.guard.CanAcceptQuote(ctx, quote); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		now := s.now()
		quote.Status = QuoteStatusAccepted
		quote.DateAcceptation = &now
		return tx.UpdateQuote(ctx, quote)
	})
	if err != nil {
		return nil, fmt.Errorf("accept quote: %w", err)
	}
	return s.store.GetQuote(ctx, id)
}

// SignQuote freezes the quote as the contractual financial baseline.
func (s *Service) SignQuote(ctx context.Context, id int64, req SignRequest) (*Quote, error) {
	quote, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if err := s.guard.CanSignQuote(ctx, quote); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		now := s.now()
		quote.Status = QuoteStatusSigned
		quote.DateSignature = &now
		quote.SignatureClient = &req.Signature
		return tx.UpdateQuote(ctx, quote)
	})
	if err != nil {
		return nil, fmt.Errorf("sign quote: %w", err)
	}
	s.recordAudit(ctx, "QUOTE_SIGN", "quote", id, nil)
	s.dispatchPDF(ctx, "QUOTE", id)
	return s.store.GetQuote(ctx, id)
}

// RefuseQuote records refusal with its reason.
func (s *Service) RefuseQuote(ctx context.Context, id int64, reason string) (*Quote, error) {
	quote, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if err := s.guard.CanRefuseQuote(ctx, quote); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		quote.Status = QuoteStatusRefused
		quote.StatusReason = &reason
		return tx.UpdateQuote(ctx, quote)
	})
	if err != nil {
		return nil, fmt.Errorf("refuse quote: %w", err)
	}
	return s.store.GetQuote(ctx, id)
}

// CancelQuote cancels a pre-signature quote with its reason.
func (s *Service) CancelQuote(ctx context.Context, id int64, reason string) (*Quote, error) {
	quote, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if err := s.guard.CanCancelQuote(ctx, quote); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		quote.Status = QuoteStatusCancelled
		quote.StatusReason = &reason
		return tx.UpdateQuote(ctx, quote)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel quote: %w", err)
	}
	return s.store.GetQuote(ctx, id)
}

// ExpireQuoteIfNeeded moves a quote past its validity date to EXPIRED.
// Idempotent: terminal or still-valid quotes are left untouched.
func (s *Service) ExpireQuoteIfNeeded(ctx context.Context, id int64) (bool, error) {
	quote, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return false, fmt.Errorf("get quote: %w", err)
	}
	if _, ok := QuoteTransitionTarget(quote.Status, QuoteActionExpire); !ok {
		return false, nil
	}
	if quote.DateValidite == nil || !quote.DateValidite.Before(s.now()) {
		return false, nil
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		quote.Status = QuoteStatusExpired
		return tx.UpdateQuote(ctx, quote)
	})
	if err != nil {
		return false, fmt.Errorf("expire quote: %w", err)
	}
	return true, nil
}

// ExpireDueQuotes expires every quote past its validity date. Used by the
// nightly scan; safe to re-run.
func (s *Service) ExpireDueQuotes(ctx context.Context) (int, error) {
	quotes, err := s.store.ListExpirableQuotes(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expirable quotes: %w", err)
	}
	expired := 0
	for _, q := range quotes {
		did, err := s.ExpireQuoteIfNeeded(ctx, q.ID)
		if err != nil {
			return expired, err
		}
		if did {
			expired++
		}
	}
	return expired, nil
}

// DeleteQuote always denies: documents are legally retained.
func (s *Service) DeleteQuote(ctx context.Context, id int64) error {
	quote, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return fmt.Errorf("get quote: %w", err)
	}
	return s.guard.CanDeleteQuote(ctx, quote)
}

// GetQuote retrieves a quote by ID.
func (s *Service) GetQuote(ctx context.Context, id int64) (*Quote, error) {
	return s.store.GetQuote(ctx, id)
}

// ListQuotes returns a paginated, company-scoped listing.
func (s *Service) ListQuotes(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	return s.store.ListQuotes(ctx, req)
}

// CorrectedQuoteTotal is the quote's frozen TTC plus the tax-inclusive
// deltas of its signed amendments.
func (s *Service) CorrectedQuoteTotal(ctx context.Context, quoteID int64) (decimal.Decimal, error) {
	quote, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get quote: %w", err)
	}
	amendments, err := s.store.ListAmendmentsByQuote(ctx, quoteID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list amendments: %w", err)
	}
	total := quote.MontantTTC
	for _, a := range amendments {
		if a.Status != AmendmentStatusSigned {
			continue
		}
		total = total.Add(a.DeltaTTCSum())
	}
	return total, nil
}

// ============================================================================
// INVOICE
// ============================================================================

// CreateDraftInvoice creates a standalone draft invoice.
func (s *Service) CreateDraftInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	if err := s.guard.granted(ctx, shared.PermInvoiceCreate, nil); err != nil {
		return nil, err
	}
	rate, err := parseAmount("taux_tva", req.TauxTVA)
	if err != nil {
		return nil, err
	}
	quoteLines, err := buildLines(req.Lines)
	if err != nil {
		return nil, err
	}
	lines := make([]InvoiceLine, 0, len(quoteLines))
	for _, l := range quoteLines {
		lines = append(lines, InvoiceLine{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TVARate:     l.TVARate,
			LineOrder:   l.LineOrder,
		})
	}

	invoice := Invoice{
		CompanyID:     req.CompanyID,
		ClientID:      req.ClientID,
		Status:        InvoiceStatusDraft,
		TauxTVA:       rate,
		UsePerLineTVA: req.UsePerLineTVA,
		DateEcheance:  req.DateEcheance,
		Lines:         lines,
	}
	invoice.RecalculateTotalsFromLines()

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.InsertInvoice(ctx, &invoice)
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return s.store.GetInvoice(ctx, invoice.ID)
}

// CreateInvoiceFromQuote clones a signed quote's lines verbatim into a new
// draft invoice. A quote has at most one invoice; a second call conflicts.
func (s *Service) CreateInvoiceFromQuote(ctx context.Context, quoteID int64, dueDate *time.Time) (*Invoice, error) {
	quote, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	existing, err := s.store.FindInvoiceByQuote(ctx, quoteID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("check existing invoice: %w", err)
	}
	if err := s.guard.CanCreateInvoiceFromQuote(ctx, quote, existing); err != nil {
		return nil, err
	}

	invoice := Invoice{
		CompanyID:     quote.CompanyID,
		ClientID:      quote.ClientID,
		QuoteID:       &quoteID,
		Status:        InvoiceStatusDraft,
		TauxTVA:       quote.TauxTVA,
		UsePerLineTVA: quote.UsePerLineTVA,
		DateEcheance:  dueDate,
	}
	for _, ql := range quote.Lines {
		invoice.Lines = append(invoice.Lines, InvoiceLine{
			Description: ql.Description,
			Quantity:    ql.Quantity,
			UnitPrice:   ql.UnitPrice,
			TVARate:     ql.TVARate,
			LineOrder:   ql.LineOrder,
		})
	}
	invoice.RecalculateTotalsFromLines()

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		// Re-check under the transaction so two concurrent conversions
		// cannot both pass the outside check.
		dup, err := tx.FindInvoiceByQuote(ctx, quoteID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if dup != nil {
			return fmt.Errorf("%w: quote %d already has invoice %d", shared.ErrConflict, quoteID, dup.ID)
		}
		return tx.InsertInvoice(ctx, &invoice)
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetInvoice(ctx, invoice.ID)
}

// UpdateDraftInvoice replaces a draft invoice's fields and lines. Issued
// invoices are immutable; corrections go through a credit note.
func (s *Service) UpdateDraftInvoice(ctx context.Context, id int64, req UpdateInvoiceRequest) (*Invoice, error) {
	invoice, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if invoice.Locked() {
		return nil, fmt.Errorf("%w: invoice %d is %s and immutable", shared.ErrAccessDenied, id, invoice.Status)
	}

	if req.TauxTVA != nil {
		rate, err := parseAmount("taux_tva", *req.TauxTVA)
		if err != nil {
			return nil, err
		}
		invoice.TauxTVA = rate
	}
	if req.UsePerLineTVA != nil {
		invoice.UsePerLineTVA = *req.UsePerLineTVA
	}
	if req.DateEcheance != nil {
		invoice.DateEcheance = req.DateEcheance
	}
	if req.Lines != nil {
		quoteLines, err := buildLines(*req.Lines)
		if err != nil {
			return nil, err
		}
		invoice.Lines = invoice.Lines[:0]
		for _, l := range quoteLines {
			invoice.Lines = append(invoice.Lines, InvoiceLine{
				Description: l.Description,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
				TVARate:     l.TVARate,
				LineOrder:   l.LineOrder,
			})
		}
	}
	invoice.RecalculateTotalsFromLines()

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.UpdateInvoice(ctx, invoice)
	})
	if err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	return s.store.GetInvoice(ctx, id)
}

// IssueInvoice transitions DRAFT to ISSUED and assigns the sequential FACT
// number inside the same transaction. Re-running on an issued invoice fails
// the status check, which keeps at-least-once job delivery safe.
func (s *Service) IssueInvoice(ctx context.Context, id int64) (*Invoice, error) {
	invoice, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if err := s.guard.CanIssueInvoice(ctx, invoice); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		numero, err := tx.NextDocNumber(ctx, invoice.CompanyID, PrefixInvoice, s.now().Year())
		if err != nil {
			return fmt.Errorf("generate invoice number: %w", err)
		}
		now := s.now()
		invoice.Numero = &numero
		invoice.Status = InvoiceStatusIssued
		invoice.DateEmission = &now
		return tx.UpdateInvoice(ctx, invoice)
	})
	if err != nil {
		return nil, fmt.Errorf("issue invoice: %w", err)
	}
	s.logger.Info("invoice issued", slog.Int64("invoice_id", id), slog.String("numero", *invoice.Numero))
	s.recordAudit(ctx, "INVOICE_ISSUE", "invoice", id, map[string]any{"numero": *invoice.Numero})
	s.dispatchPDF(ctx, "INVOICE", id)
	return s.store.GetInvoice(ctx, id)
}

// SendInvoice records a delivery: increments the send counter, refreshes
// DateEnvoi and the channel. Repeated sends are expected; drafts are denied.
func (s *Service) SendInvoice(ctx context.Context, id int64, req SendInvoiceRequest) (*Invoice, error) {
	invoice, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if err := s.guard.CanSendInvoice(ctx, invoice); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		target, _ := InvoiceTransitionTarget(invoice.Status, InvoiceActionSend)
		now := s.now()
		invoice.Status = target
		invoice.SentCount++
		invoice.DateEnvoi = &now
		invoice.DeliveryChannel = &req.Channel
		return tx.UpdateInvoice(ctx, invoice)
	})
	if err != nil {
		return nil, fmt.Errorf("send invoice: %w", err)
	}
	if req.Channel == "email" {
		s.dispatchMail(ctx, "INVOICE", id, "")
	}
	return s.store.GetInvoice(ctx, id)
}

// MarkInvoicePaid transitions an issued invoice to PAID exactly once.
func (s *Service) MarkInvoicePaid(ctx context.Context, id int64) (*Invoice, error) {
	invoice, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if err := s.guard.CanMarkInvoicePaid(ctx, invoice); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		now := s.now()
		invoice.Status = InvoiceStatusPaid
		invoice.DatePaiement = &now
		return tx.UpdateInvoice(ctx, invoice)
	})
	if err != nil {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}
	s.recordAudit(ctx, "INVOICE_MARK_PAID", "invoice", id, nil)
	return s.store.GetInvoice(ctx, id)
}

// DeleteInvoice always denies: ten-year legal retention.
func (s *Service) DeleteInvoice(ctx context.Context, id int64) error {
	invoice, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return fmt.Errorf("get invoice: %w", err)
	}
	return s.guard.CanDeleteInvoice(ctx, invoice)
}

// GetInvoice retrieves an invoice by ID.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.store.GetInvoice(ctx, id)
}

// ListInvoices returns a paginated, company-scoped listing.
func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	return s.store.ListInvoices(ctx, req)
}

// ============================================================================
// AMENDMENT
// ============================================================================

func (s *Service) buildAmendmentLines(quote *Quote, reqs []CorrectionLineRequest) ([]AmendmentLine, error) {
	policy := quote.ratePolicy()
	lines := make([]AmendmentLine, 0, len(reqs))
	for i, lr := range reqs {
		price, err := parseAmount("unit_price", lr.UnitPrice)
		if err != nil {
			return nil, err
		}
		rate, err := parseOptionalAmount("tva_rate", lr.TVARate)
		if err != nil {
			return nil, err
		}
		oldValue, err := parseOptionalAmount("old_value", lr.OldValue)
		if err != nil {
			return nil, err
		}
		newValue, err := parseOptionalAmount("new_value", lr.NewValue)
		if err != nil {
			return nil, err
		}

		line := AmendmentLine{
			Description:  lr.Description,
			Quantity:     lr.Quantity,
			UnitPrice:    price,
			TVARate:      rate,
			NewValue:     newValue,
			SourceLineID: lr.SourceLineID,
			LineOrder:    lr.LineOrder,
		}
		if line.LineOrder == 0 {
			line.LineOrder = i + 1
		}
		if oldValue != nil {
			line.OldValue = *oldValue
		}
		if lr.SourceLineID != nil {
			src := quote.findLine(*lr.SourceLineID)
			if src == nil {
				return nil, fmt.Errorf("%w: quote line %d", shared.ErrNotFound, *lr.SourceLineID)
			}
			// Snapshot the source line's value and resolved rate so the
			// correction history stands alone.
			if oldValue == nil {
				line.OldValue = src.TotalHT
			}
			srcRate := resolveQuoteLineRate(src, policy)
			line.SourceRate = &srcRate
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// CreateAmendment creates a draft amendment against a signed quote.
func (s *Service) CreateAmendment(ctx context.Context, req CreateAmendmentRequest) (*Amendment, error) {
	quote, err := s.store.GetQuote(ctx, req.QuoteID)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if err := s.guard.CanCreateAmendment(ctx, quote); err != nil {
		return nil, err
	}
	rate, err := parseAmount("taux_tva", req.TauxTVA)
	if err != nil {
		return nil, err
	}
	lines, err := s.buildAmendmentLines(quote, req.Lines)
	if err != nil {
		return nil, err
	}

	amendment := Amendment{
		CompanyID:     quote.CompanyID,
		QuoteID:       quote.ID,
		Status:        AmendmentStatusDraft,
		TauxTVA:       rate,
		UsePerLineTVA: req.UsePerLineTVA,
		Lines:         lines,
	}
	amendment.RecalculateTotals()

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.InsertAmendment(ctx, &amendment)
	})
	if err != nil {
		return nil, fmt.Errorf("create amendment: %w", err)
	}
	return s.store.GetAmendment(ctx, amendment.ID)
}

// UpdateAmendment replaces a draft amendment's rate and lines.
func (s *Service) UpdateAmendment(ctx context.Context, id int64, req UpdateAmendmentRequest) (*Amendment, error) {
	amendment, err := s.store.GetAmendment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get amendment: %w", err)
	}
	if err := s.guard.CanEditAmendment(ctx, amendment); err != nil {
		return nil, err
	}
	quote, err := s.store.GetQuote(ctx, amendment.QuoteID)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}

	if req.TauxTVA != nil {
		rate, err := parseAmount("taux_tva", *req.TauxTVA)
		if err != nil {
			return nil, err
		}
		amendment.TauxTVA = rate
	}
	if req.Lines != nil {
		lines, err := s.buildAmendmentLines(quote, *req.Lines)
		if err != nil {
			return nil, err
		}
		amendment.Lines = lines
	}
	amendment.RecalculateTotals()

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.UpdateAmendment(ctx, amendment)
	})
	if err != nil {
		return nil, fmt.Errorf("update amendment: %w", err)
	}
	return s.store.GetAmendment(ctx, id)
}

// SignAmendment promotes a draft amendment, assigning its AV number.
func (s *Service) SignAmendment(ctx context.Context, id int64, req SignRequest) (*Amendment, error) {
	amendment, err := s.store.GetAmendment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get amendment: %w", err)
	}
	if err := s.guard.CanSignAmendment(ctx, amendment); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		numero, err := tx.NextDocNumber(ctx, amendment.CompanyID, PrefixAmendment, s.now().Year())
		if err != nil {
			return fmt.Errorf("generate amendment number: %w", err)
		}
		now := s.now()
		amendment.Numero = &numero
		amendment.Status = AmendmentStatusSigned
		amendment.DateSignature = &now
		amendment.SignatureClient = &req.Signature
		return tx.UpdateAmendment(ctx, amendment)
	})
	if err != nil {
		return nil, fmt.Errorf("sign amendment: %w", err)
	}
	s.recordAudit(ctx, "AMENDMENT_SIGN", "amendment", id, nil)
	return s.store.GetAmendment(ctx, id)
}

// GetAmendment retrieves an amendment by ID.
func (s *Service) GetAmendment(ctx context.Context, id int64) (*Amendment, error) {
	return s.store.GetAmendment(ctx, id)
}

// ============================================================================
// CREDIT NOTE
// ============================================================================

func (s *Service) buildCreditNoteLines(invoice *Invoice, reqs []CorrectionLineRequest) ([]CreditNoteLine, error) {
	policy := invoice.ratePolicy()
	lines := make([]CreditNoteLine, 0, len(reqs))
	for i, lr := range reqs {
		price, err := parseAmount("unit_price", lr.UnitPrice)
		if err != nil {
			return nil, err
		}
		rate, err := parseOptionalAmount("tva_rate", lr.TVARate)
		if err != nil {
			return nil, err
		}
		oldValue, err := parseOptionalAmount("old_value", lr.OldValue)
		if err != nil {
			return nil, err
		}
		newValue, err := parseOptionalAmount("new_value", lr.NewValue)
		if err != nil {
			return nil, err
		}

		line := CreditNoteLine{
			Description:  lr.Description,
			Quantity:     lr.Quantity,
			UnitPrice:    price,
			TVARate:      rate,
			NewValue:     newValue,
			SourceLineID: lr.SourceLineID,
			LineOrder:    lr.LineOrder,
		}
		if line.LineOrder == 0 {
			line.LineOrder = i + 1
		}
		if oldValue != nil {
			line.OldValue = *oldValue
		}
		if lr.SourceLineID != nil {
			src := invoice.findLine(*lr.SourceLineID)
			if src == nil {
				return nil, fmt.Errorf("%w: invoice line %d", shared.ErrNotFound, *lr.SourceLineID)
			}
			if oldValue == nil {
				line.OldValue = src.TotalHT
			}
			srcRate := resolveInvoiceLineRate(src, policy)
			line.SourceRate = &srcRate
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// CreateCreditNote creates a draft credit note against an issued invoice.
func (s *Service) CreateCreditNote(ctx context.Context, req CreateCreditNoteRequest) (*CreditNote, error) {
	invoice, err := s.store.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if err := s.guard.CanCreateCreditNote(ctx, invoice); err != nil {
		return nil, err
	}
	rate, err := parseAmount("taux_tva", req.TauxTVA)
	if err != nil {
		return nil, err
	}
	lines, err := s.buildCreditNoteLines(invoice, req.Lines)
	if err != nil {
		return nil, err
	}

	note := CreditNote{
		CompanyID:     invoice.CompanyID,
		InvoiceID:     invoice.ID,
		Status:        CreditNoteStatusDraft,
		TauxTVA:       rate,
		UsePerLineTVA: req.UsePerLineTVA,
		Lines:         lines,
	}
	note.RecalculateTotals()

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.InsertCreditNote(ctx, &note)
	})
	if err != nil {
		return nil, fmt.Errorf("create credit note: %w", err)
	}
	return s.store.GetCreditNote(ctx, note.ID)
}

// IssueCreditNote assigns the AV number under the numbering lock and moves
// the note to ISSUED.
func (s *Service) IssueCreditNote(ctx context.Context, id int64) (*CreditNote, error) {
	note, err := s.store.GetCreditNote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get credit note: %w", err)
	}
	if err := s.guard.CanIssueCreditNote(ctx, note); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		numero, err := tx.NextDocNumber(ctx, note.CompanyID, PrefixCreditNote, s.now().Year())
		if err != nil {
			return fmt.Errorf("generate credit note number: %w", err)
		}
		now := s.now()
		note.Numero = &numero
		note.Status = CreditNoteStatusIssued
		note.DateEmission = &now
		return tx.UpdateCreditNote(ctx, note)
	})
	if err != nil {
		return nil, fmt.Errorf("issue credit note: %w", err)
	}
	s.recordAudit(ctx, "CREDIT_NOTE_ISSUE", "credit_note", id, nil)
	return s.store.GetCreditNote(ctx, id)
}

// ApplyCreditNote marks an issued credit note as applied to its invoice.
func (s *Service) ApplyCreditNote(ctx context.Context, id int64) (*CreditNote, error) {
	note, err := s.store.GetCreditNote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get credit note: %w", err)
	}
	if err := s.guard.CanApplyCreditNote(ctx, note); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		now := s.now()
		note.Status = CreditNoteStatusApplied
		note.DateApplied = &now
		return tx.UpdateCreditNote(ctx, note)
	})
	if err != nil {
		return nil, fmt.Errorf("apply credit note: %w", err)
	}
	s.recordAudit(ctx, "CREDIT_NOTE_APPLY", "credit_note", id, nil)
	return s.store.GetCreditNote(ctx, id)
}

// GetCreditNote retrieves a credit note by ID.
func (s *Service) GetCreditNote(ctx context.Context, id int64) (*CreditNote, error) {
	return s.store.GetCreditNote(ctx, id)
}
