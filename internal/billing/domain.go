package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestio-app/gestio/internal/money"
)

// Document number prefixes, year-scoped: {PREFIX}-{YYYY}-{NNNN}.
const (
	PrefixQuote      = "DEV"
	PrefixInvoice    = "FACT"
	PrefixAmendment  = "AV"
	PrefixCreditNote = "AV"
)

// ============================================================================
// STATE TABLES
// ============================================================================

// transition describes one legal move: the statuses an action may start from
// and the status it lands on. The tables below are the single auditable
// source of truth for each document type; anything absent is denied.
type transition[S comparable] struct {
	From []S
	To   S
}

func transitionTarget[S comparable, A comparable](table map[A]transition[S], from S, action A) (S, bool) {
	t, ok := table[action]
	if !ok {
		var zero S
		return zero, false
	}
	for _, s := range t.From {
		if s == from {
			return t.To, true
		}
	}
	var zero S
	return zero, false
}

// ============================================================================
// QUOTE
// ============================================================================

type QuoteStatus string

const (
	QuoteStatusDraft     QuoteStatus = "DRAFT"
	QuoteStatusSent      QuoteStatus = "SENT"
	QuoteStatusAccepted  QuoteStatus = "ACCEPTED"
	QuoteStatusSigned    QuoteStatus = "SIGNED"
	QuoteStatusRefused   QuoteStatus = "REFUSED"
	QuoteStatusExpired   QuoteStatus = "EXPIRED"
	QuoteStatusCancelled QuoteStatus = "CANCELLED"
)

type QuoteAction string

const (
	QuoteActionSend   QuoteAction = "SEND"
	QuoteActionAccept QuoteAction = "ACCEPT"
	QuoteActionSign   QuoteAction = "SIGN"
	QuoteActionRefuse QuoteAction = "REFUSE"
	QuoteActionCancel QuoteAction = "CANCEL"
	QuoteActionExpire QuoteAction = "EXPIRE"
)

var quoteTransitions = map[QuoteAction]transition[QuoteStatus]{
	QuoteActionSend:   {From: []QuoteStatus{QuoteStatusDraft}, To: QuoteStatusSent},
	QuoteActionAccept: {From: []QuoteStatus{QuoteStatusSent}, To: QuoteStatusAccepted},
	QuoteActionSign:   {From: []QuoteStatus{QuoteStatusSent, QuoteStatusAccepted}, To: QuoteStatusSigned},
	QuoteActionRefuse: {From: []QuoteStatus{QuoteStatusSent, QuoteStatusAccepted}, To: QuoteStatusRefused},
	QuoteActionCancel: {From: []QuoteStatus{QuoteStatusDraft, QuoteStatusSent, QuoteStatusAccepted}, To: QuoteStatusCancelled},
	QuoteActionExpire: {From: []QuoteStatus{QuoteStatusDraft, QuoteStatusSent, QuoteStatusAccepted}, To: QuoteStatusExpired},
}

// QuoteTransitionTarget reports whether action is legal from the given status.
func QuoteTransitionTarget(from QuoteStatus, action QuoteAction) (QuoteStatus, bool) {
	return transitionTarget(quoteTransitions, from, action)
}

type QuoteLine struct {
	ID          int64            `json:"id" db:"id"`
	QuoteID     int64            `json:"quote_id" db:"quote_id"`
	Description string           `json:"description" db:"description"`
	Quantity    int64            `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price" db:"unit_price"`
	TVARate     *decimal.Decimal `json:"tva_rate,omitempty" db:"tva_rate"`
	TotalHT     decimal.Decimal  `json:"total_ht" db:"total_ht"`
	LineOrder   int              `json:"line_order" db:"line_order"`
}

// RecalculateTotalHT recomputes the stored HT total; the owning quote's
// aggregates must be recomputed afterwards.
func (l *QuoteLine) RecalculateTotalHT() {
	ml := money.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	ml.RecalculateTotalHT()
	l.TotalHT = ml.TotalHT
}

type Quote struct {
	ID              int64            `json:"id" db:"id"`
	Numero          *string          `json:"numero,omitempty" db:"numero"`
	CompanyID       int64            `json:"company_id" db:"company_id"`
	ClientID        int64            `json:"client_id" db:"client_id"`
	Status          QuoteStatus      `json:"statut" db:"statut"`
	TauxTVA         decimal.Decimal  `json:"taux_tva" db:"taux_tva"`
	UsePerLineTVA   bool             `json:"use_per_line_tva" db:"use_per_line_tva"`
	MontantHT       decimal.Decimal  `json:"montant_ht" db:"montant_ht"`
	MontantTVA      decimal.Decimal  `json:"montant_tva" db:"montant_tva"`
	MontantTTC      decimal.Decimal  `json:"montant_ttc" db:"montant_ttc"`
	DateValidite    *time.Time       `json:"date_validite,omitempty" db:"date_validite"`
	DateEnvoi       *time.Time       `json:"date_envoi,omitempty" db:"date_envoi"`
	DateAcceptation *time.Time       `json:"date_acceptation,omitempty" db:"date_acceptation"`
	DateSignature   *time.Time       `json:"date_signature,omitempty" db:"date_signature"`
	SignatureClient *string          `json:"signature_client,omitempty" db:"signature_client"`
	StatusReason    *string          `json:"status_reason,omitempty" db:"status_reason"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
	Lines           []QuoteLine      `json:"lines,omitempty" db:"-"`
}

func (q *Quote) ratePolicy() money.RatePolicy {
	return money.RatePolicy{DocumentRate: q.TauxTVA, PerLine: q.UsePerLineTVA}
}

func (q *Quote) ratedLines() []money.RatedLine {
	policy := q.ratePolicy()
	lines := make([]money.RatedLine, 0, len(q.Lines))
	for _, l := range q.Lines {
		lines = append(lines, money.RatedLine{
			TotalHT: l.TotalHT,
			Rate:    money.ResolveRate(l.TVARate, policy),
		})
	}
	return lines
}

// RecalculateTotalsFromLines recomputes every line HT and the cached
// document aggregates. Totals are derived state and must never be edited
// directly; this is the only path that sets them.
func (q *Quote) RecalculateTotalsFromLines() {
	for i := range q.Lines {
		q.Lines[i].RecalculateTotalHT()
	}
	totals := money.ComputeTotals(q.ratedLines(), q.ratePolicy())
	q.MontantHT = totals.HT
	q.MontantTVA = totals.TVA
	q.MontantTTC = totals.TTC
}

// TvaRatesDetail groups the quote's lines by resolved rate for the legal
// multi-rate breakdown.
func (q *Quote) TvaRatesDetail() map[string]money.RateDetail {
	return money.RatesDetail(q.ratedLines())
}

func (q *Quote) findLine(id int64) *QuoteLine {
	for i := range q.Lines {
		if q.Lines[i].ID == id {
			return &q.Lines[i]
		}
	}
	return nil
}

func resolveQuoteLineRate(l *QuoteLine, policy money.RatePolicy) decimal.Decimal {
	return money.ResolveRate(l.TVARate, policy)
}

// Editable reports whether the quote's lines and monetary fields may still
// change. Once signed the quote is a frozen financial baseline; further
// changes go through an amendment.
func (q *Quote) Editable() bool {
	return q.Status == QuoteStatusDraft || q.Status == QuoteStatusSent
}

// ============================================================================
// INVOICE
// ============================================================================

type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "DRAFT"
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
	InvoiceStatusSent   InvoiceStatus = "SENT"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
)

type InvoiceAction string

const (
	InvoiceActionIssue    InvoiceAction = "ISSUE"
	InvoiceActionSend     InvoiceAction = "SEND"
	InvoiceActionMarkPaid InvoiceAction = "MARK_PAID"
)

var invoiceTransitions = map[InvoiceAction]transition[InvoiceStatus]{
	InvoiceActionIssue:    {From: []InvoiceStatus{InvoiceStatusDraft}, To: InvoiceStatusIssued},
	InvoiceActionSend:     {From: []InvoiceStatus{InvoiceStatusIssued, InvoiceStatusSent, InvoiceStatusPaid}, To: InvoiceStatusSent},
	InvoiceActionMarkPaid: {From: []InvoiceStatus{InvoiceStatusIssued, InvoiceStatusSent}, To: InvoiceStatusPaid},
}

// InvoiceTransitionTarget reports whether action is legal from the given
// status. Sending a PAID invoice keeps it PAID; the target applies only when
// moving forward from ISSUED.
func InvoiceTransitionTarget(from InvoiceStatus, action InvoiceAction) (InvoiceStatus, bool) {
	to, ok := transitionTarget(invoiceTransitions, from, action)
	if ok && action == InvoiceActionSend && from == InvoiceStatusPaid {
		return InvoiceStatusPaid, true
	}
	return to, ok
}

// Locked reports whether the invoice's lines and monetary fields are frozen.
// Corrections to a locked invoice go through a credit note.
func (i *Invoice) Locked() bool {
	return i.Status != InvoiceStatusDraft
}

type InvoiceLine struct {
	ID          int64            `json:"id" db:"id"`
	InvoiceID   int64            `json:"invoice_id" db:"invoice_id"`
	Description string           `json:"description" db:"description"`
	Quantity    int64            `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price" db:"unit_price"`
	TVARate     *decimal.Decimal `json:"tva_rate,omitempty" db:"tva_rate"`
	TotalHT     decimal.Decimal  `json:"total_ht" db:"total_ht"`
	LineOrder   int              `json:"line_order" db:"line_order"`
}

func (l *InvoiceLine) RecalculateTotalHT() {
	ml := money.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	ml.RecalculateTotalHT()
	l.TotalHT = ml.TotalHT
}

type Invoice struct {
	ID              int64            `json:"id" db:"id"`
	Numero          *string          `json:"numero,omitempty" db:"numero"`
	CompanyID       int64            `json:"company_id" db:"company_id"`
	ClientID        int64            `json:"client_id" db:"client_id"`
	QuoteID         *int64           `json:"quote_id,omitempty" db:"quote_id"`
	Status          InvoiceStatus    `json:"statut" db:"statut"`
	TauxTVA         decimal.Decimal  `json:"taux_tva" db:"taux_tva"`
	UsePerLineTVA   bool             `json:"use_per_line_tva" db:"use_per_line_tva"`
	MontantHT       decimal.Decimal  `json:"montant_ht" db:"montant_ht"`
	MontantTVA      decimal.Decimal  `json:"montant_tva" db:"montant_tva"`
	MontantTTC      decimal.Decimal  `json:"montant_ttc" db:"montant_ttc"`
	DateEcheance    *time.Time       `json:"date_echeance,omitempty" db:"date_echeance"`
	DateEmission    *time.Time       `json:"date_emission,omitempty" db:"date_emission"`
	DateEnvoi       *time.Time       `json:"date_envoi,omitempty" db:"date_envoi"`
	DatePaiement    *time.Time       `json:"date_paiement,omitempty" db:"date_paiement"`
	SentCount       int              `json:"sent_count" db:"sent_count"`
	DeliveryChannel *string          `json:"delivery_channel,omitempty" db:"delivery_channel"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
	Lines           []InvoiceLine    `json:"lines,omitempty" db:"-"`
}

func (i *Invoice) ratePolicy() money.RatePolicy {
	return money.RatePolicy{DocumentRate: i.TauxTVA, PerLine: i.UsePerLineTVA}
}

func (i *Invoice) ratedLines() []money.RatedLine {
	policy := i.ratePolicy()
	lines := make([]money.RatedLine, 0, len(i.Lines))
	for _, l := range i.Lines {
		lines = append(lines, money.RatedLine{
			TotalHT: l.TotalHT,
			Rate:    money.ResolveRate(l.TVARate, policy),
		})
	}
	return lines
}

// RecalculateTotalsFromLines recomputes line totals and cached aggregates.
func (i *Invoice) RecalculateTotalsFromLines() {
	for idx := range i.Lines {
		i.Lines[idx].RecalculateTotalHT()
	}
	totals := money.ComputeTotals(i.ratedLines(), i.ratePolicy())
	i.MontantHT = totals.HT
	i.MontantTVA = totals.TVA
	i.MontantTTC = totals.TTC
}

// TvaRatesDetail groups the invoice's lines by resolved rate.
func (i *Invoice) TvaRatesDetail() map[string]money.RateDetail {
	return money.RatesDetail(i.ratedLines())
}

func (i *Invoice) findLine(id int64) *InvoiceLine {
	for idx := range i.Lines {
		if i.Lines[idx].ID == id {
			return &i.Lines[idx]
		}
	}
	return nil
}

func resolveInvoiceLineRate(l *InvoiceLine, policy money.RatePolicy) decimal.Decimal {
	return money.ResolveRate(l.TVARate, policy)
}

// ============================================================================
// AMENDMENT
// ============================================================================

type AmendmentStatus string

const (
	AmendmentStatusDraft  AmendmentStatus = "DRAFT"
	AmendmentStatusSigned AmendmentStatus = "SIGNED"
)

type AmendmentAction string

const (
	AmendmentActionSign AmendmentAction = "SIGN"
)

var amendmentTransitions = map[AmendmentAction]transition[AmendmentStatus]{
	AmendmentActionSign: {From: []AmendmentStatus{AmendmentStatusDraft}, To: AmendmentStatusSigned},
}

// AmendmentTransitionTarget reports whether action is legal from the given status.
func AmendmentTransitionTarget(from AmendmentStatus, action AmendmentAction) (AmendmentStatus, bool) {
	return transitionTarget(amendmentTransitions, from, action)
}

// AmendmentLine corrects a quote line. SourceLineID is a weak reference for
// traceability only; Description and OldValue are snapshots so the correction
// history survives the source. Brand-new additions carry OldValue zero and no
// source reference.
type AmendmentLine struct {
	ID           int64            `json:"id" db:"id"`
	AmendmentID  int64            `json:"amendment_id" db:"amendment_id"`
	Description  string           `json:"description" db:"description"`
	Quantity     int64            `json:"quantity" db:"quantity"`
	UnitPrice    decimal.Decimal  `json:"unit_price" db:"unit_price"`
	TVARate      *decimal.Decimal `json:"tva_rate,omitempty" db:"tva_rate"`
	TotalHT      decimal.Decimal  `json:"total_ht" db:"total_ht"`
	OldValue     decimal.Decimal  `json:"old_value" db:"old_value"`
	NewValue     *decimal.Decimal `json:"new_value,omitempty" db:"new_value"`
	Delta        decimal.Decimal  `json:"delta" db:"delta"`
	DeltaTTC     decimal.Decimal  `json:"delta_ttc" db:"delta_ttc"`
	SourceLineID *int64           `json:"source_line_id,omitempty" db:"source_line_id"`
	SourceRate   *decimal.Decimal `json:"source_rate,omitempty" db:"source_rate"`
	LineOrder    int              `json:"line_order" db:"line_order"`
}

func (l *AmendmentLine) RecalculateTotalHT() {
	ml := money.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	ml.RecalculateTotalHT()
	l.TotalHT = ml.TotalHT
}

// effectiveRate resolves the line rate with the correction precedence: the
// document's own non-zero rate beats the source; a zero document rate defers
// to the snapshot of the source line's resolved rate.
func (l *AmendmentLine) effectiveRate(documentRate decimal.Decimal) decimal.Decimal {
	return money.ResolveCorrectionRate(l.TVARate, documentRate, l.SourceRate)
}

// RecalculateDelta recomputes Delta (always HT) and DeltaTTC together.
func (l *AmendmentLine) RecalculateDelta(documentRate decimal.Decimal) {
	dl := money.DeltaLine{
		Line:     money.Line{TotalHT: l.TotalHT},
		OldValue: l.OldValue,
		NewValue: l.NewValue,
	}
	dl.RecalculateDelta(l.effectiveRate(documentRate))
	l.Delta = dl.Delta
	l.DeltaTTC = dl.DeltaTTC
}

type Amendment struct {
	ID              int64            `json:"id" db:"id"`
	Numero          *string          `json:"numero,omitempty" db:"numero"`
	CompanyID       int64            `json:"company_id" db:"company_id"`
	QuoteID         int64            `json:"quote_id" db:"quote_id"`
	Status          AmendmentStatus  `json:"statut" db:"statut"`
	TauxTVA         decimal.Decimal  `json:"taux_tva" db:"taux_tva"`
	UsePerLineTVA   bool             `json:"use_per_line_tva" db:"use_per_line_tva"`
	MontantHT       decimal.Decimal  `json:"montant_ht" db:"montant_ht"`
	MontantTVA      decimal.Decimal  `json:"montant_tva" db:"montant_tva"`
	MontantTTC      decimal.Decimal  `json:"montant_ttc" db:"montant_ttc"`
	DateSignature   *time.Time       `json:"date_signature,omitempty" db:"date_signature"`
	SignatureClient *string          `json:"signature_client,omitempty" db:"signature_client"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
	Lines           []AmendmentLine  `json:"lines,omitempty" db:"-"`
}

func (a *Amendment) ratedLines() []money.RatedLine {
	lines := make([]money.RatedLine, 0, len(a.Lines))
	for _, l := range a.Lines {
		lines = append(lines, money.RatedLine{
			TotalHT: l.TotalHT,
			Rate:    l.effectiveRate(a.TauxTVA),
		})
	}
	return lines
}

// RecalculateTotals recomputes line totals, deltas and cached aggregates.
// The aggregates always use per-line resolution because each line may carry
// its own or an inherited source rate.
func (a *Amendment) RecalculateTotals() {
	for i := range a.Lines {
		a.Lines[i].RecalculateTotalHT()
		a.Lines[i].RecalculateDelta(a.TauxTVA)
	}
	totals := money.ComputeTotals(a.ratedLines(), money.RatePolicy{PerLine: true})
	a.MontantHT = totals.HT
	a.MontantTVA = totals.TVA
	a.MontantTTC = totals.TTC
}

// DeltaTTCSum is the amendment's total tax-inclusive correction, the term
// added to the parent quote's frozen TTC.
func (a *Amendment) DeltaTTCSum() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range a.Lines {
		sum = sum.Add(l.DeltaTTC)
	}
	return sum
}

// ============================================================================
// CREDIT NOTE
// ============================================================================

type CreditNoteStatus string

const (
	CreditNoteStatusDraft   CreditNoteStatus = "DRAFT"
	CreditNoteStatusIssued  CreditNoteStatus = "ISSUED"
	CreditNoteStatusApplied CreditNoteStatus = "APPLIED"
)

type CreditNoteAction string

const (
	CreditNoteActionIssue CreditNoteAction = "ISSUE"
	CreditNoteActionApply CreditNoteAction = "APPLY"
)

var creditNoteTransitions = map[CreditNoteAction]transition[CreditNoteStatus]{
	CreditNoteActionIssue: {From: []CreditNoteStatus{CreditNoteStatusDraft}, To: CreditNoteStatusIssued},
	CreditNoteActionApply: {From: []CreditNoteStatus{CreditNoteStatusIssued}, To: CreditNoteStatusApplied},
}

// CreditNoteTransitionTarget reports whether action is legal from the given status.
func CreditNoteTransitionTarget(from CreditNoteStatus, action CreditNoteAction) (CreditNoteStatus, bool) {
	return transitionTarget(creditNoteTransitions, from, action)
}

// CreditNoteLine mirrors AmendmentLine against an invoice line. Amounts are
// conventionally negative; positive corrections are not blocked.
type CreditNoteLine struct {
	ID           int64            `json:"id" db:"id"`
	CreditNoteID int64            `json:"credit_note_id" db:"credit_note_id"`
	Description  string           `json:"description" db:"description"`
	Quantity     int64            `json:"quantity" db:"quantity"`
	UnitPrice    decimal.Decimal  `json:"unit_price" db:"unit_price"`
	TVARate      *decimal.Decimal `json:"tva_rate,omitempty" db:"tva_rate"`
	TotalHT      decimal.Decimal  `json:"total_ht" db:"total_ht"`
	OldValue     decimal.Decimal  `json:"old_value" db:"old_value"`
	NewValue     *decimal.Decimal `json:"new_value,omitempty" db:"new_value"`
	Delta        decimal.Decimal  `json:"delta" db:"delta"`
	DeltaTTC     decimal.Decimal  `json:"delta_ttc" db:"delta_ttc"`
	SourceLineID *int64           `json:"source_line_id,omitempty" db:"source_line_id"`
	SourceRate   *decimal.Decimal `json:"source_rate,omitempty" db:"source_rate"`
	LineOrder    int              `json:"line_order" db:"line_order"`
}

func (l *CreditNoteLine) RecalculateTotalHT() {
	ml := money.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	ml.RecalculateTotalHT()
	l.TotalHT = ml.TotalHT
}

func (l *CreditNoteLine) effectiveRate(documentRate decimal.Decimal) decimal.Decimal {
	return money.ResolveCorrectionRate(l.TVARate, documentRate, l.SourceRate)
}

// RecalculateDelta recomputes Delta and DeltaTTC together.
func (l *CreditNoteLine) RecalculateDelta(documentRate decimal.Decimal) {
	dl := money.DeltaLine{
		Line:     money.Line{TotalHT: l.TotalHT},
		OldValue: l.OldValue,
		NewValue: l.NewValue,
	}
	dl.RecalculateDelta(l.effectiveRate(documentRate))
	l.Delta = dl.Delta
	l.DeltaTTC = dl.DeltaTTC
}

type CreditNote struct {
	ID            int64            `json:"id" db:"id"`
	Numero        *string          `json:"numero,omitempty" db:"numero"`
	CompanyID     int64            `json:"company_id" db:"company_id"`
	InvoiceID     int64            `json:"invoice_id" db:"invoice_id"`
	Status        CreditNoteStatus `json:"statut" db:"statut"`
	TauxTVA       decimal.Decimal  `json:"taux_tva" db:"taux_tva"`
	UsePerLineTVA bool             `json:"use_per_line_tva" db:"use_per_line_tva"`
	MontantHT     decimal.Decimal  `json:"montant_ht" db:"montant_ht"`
	MontantTVA    decimal.Decimal  `json:"montant_tva" db:"montant_tva"`
	MontantTTC    decimal.Decimal  `json:"montant_ttc" db:"montant_ttc"`
	DateEmission  *time.Time       `json:"date_emission,omitempty" db:"date_emission"`
	DateApplied   *time.Time       `json:"date_applied,omitempty" db:"date_applied"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
	Lines         []CreditNoteLine `json:"lines,omitempty" db:"-"`
}

func (c *CreditNote) ratedLines() []money.RatedLine {
	lines := make([]money.RatedLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, money.RatedLine{
			TotalHT: l.TotalHT,
			Rate:    l.effectiveRate(c.TauxTVA),
		})
	}
	return lines
}

// RecalculateTotals recomputes line totals, deltas and cached aggregates.
func (c *CreditNote) RecalculateTotals() {
	for i := range c.Lines {
		c.Lines[i].RecalculateTotalHT()
		c.Lines[i].RecalculateDelta(c.TauxTVA)
	}
	totals := money.ComputeTotals(c.ratedLines(), money.RatePolicy{PerLine: true})
	c.MontantHT = totals.HT
	c.MontantTVA = totals.TVA
	c.MontantTTC = totals.TTC
}
