package billing

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/shared"
)

// ============================================================================
// MOCK STORE
// ============================================================================

type mockStore struct {
	quotes      map[int64]*Quote
	invoices    map[int64]*Invoice
	amendments  map[int64]*Amendment
	creditNotes map[int64]*CreditNote
	sequences   map[string]int64
	nextID      int64

	txError error
}

func newMockStore() *mockStore {
	return &mockStore{
		quotes:      make(map[int64]*Quote),
		invoices:    make(map[int64]*Invoice),
		amendments:  make(map[int64]*Amendment),
		creditNotes: make(map[int64]*CreditNote),
		sequences:   make(map[string]int64),
		nextID:      1,
	}
}

func (m *mockStore) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *mockStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockStore) GetQuote(ctx context.Context, id int64) (*Quote, error) {
	q, ok := m.quotes[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *q
	cp.Lines = append([]QuoteLine(nil), q.Lines...)
	return &cp, nil
}

func (m *mockStore) ListQuotes(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	var out []Quote
	for _, q := range m.quotes {
		if q.CompanyID == req.CompanyID {
			out = append(out, *q)
		}
	}
	return out, len(out), nil
}

func (m *mockStore) ListExpirableQuotes(ctx context.Context, now time.Time) ([]Quote, error) {
	var out []Quote
	for _, q := range m.quotes {
		if _, ok := QuoteTransitionTarget(q.Status, QuoteActionExpire); !ok {
			continue
		}
		if q.DateValidite != nil && q.DateValidite.Before(now) {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (m *mockStore) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *inv
	cp.Lines = append([]InvoiceLine(nil), inv.Lines...)
	return &cp, nil
}

func (m *mockStore) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.CompanyID == req.CompanyID {
			out = append(out, *inv)
		}
	}
	return out, len(out), nil
}

func (m *mockStore) FindInvoiceByQuote(ctx context.Context, quoteID int64) (*Invoice, error) {
	for _, inv := range m.invoices {
		if inv.QuoteID != nil && *inv.QuoteID == quoteID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockStore) GetAmendment(ctx context.Context, id int64) (*Amendment, error) {
	a, ok := m.amendments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *a
	cp.Lines = append([]AmendmentLine(nil), a.Lines...)
	return &cp, nil
}

func (m *mockStore) ListAmendmentsByQuote(ctx context.Context, quoteID int64) ([]Amendment, error) {
	var out []Amendment
	for _, a := range m.amendments {
		if a.QuoteID == quoteID {
			cp := *a
			cp.Lines = append([]AmendmentLine(nil), a.Lines...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *mockStore) GetCreditNote(ctx context.Context, id int64) (*CreditNote, error) {
	c, ok := m.creditNotes[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *c
	cp.Lines = append([]CreditNoteLine(nil), c.Lines...)
	return &cp, nil
}

func (m *mockStore) ListCreditNotesByInvoice(ctx context.Context, invoiceID int64) ([]CreditNote, error) {
	var out []CreditNote
	for _, c := range m.creditNotes {
		if c.InvoiceID == invoiceID {
			out = append(out, *c)
		}
	}
	return out, nil
}

// TxStore

func (m *mockStore) InsertQuote(ctx context.Context, q *Quote) error {
	q.ID = m.id()
	for i := range q.Lines {
		q.Lines[i].ID = m.id()
		q.Lines[i].QuoteID = q.ID
	}
	cp := *q
	cp.Lines = append([]QuoteLine(nil), q.Lines...)
	m.quotes[q.ID] = &cp
	return nil
}

func (m *mockStore) UpdateQuote(ctx context.Context, q *Quote) error {
	if _, ok := m.quotes[q.ID]; !ok {
		return shared.ErrNotFound
	}
	for i := range q.Lines {
		if q.Lines[i].ID == 0 {
			q.Lines[i].ID = m.id()
		}
		q.Lines[i].QuoteID = q.ID
	}
	cp := *q
	cp.Lines = append([]QuoteLine(nil), q.Lines...)
	m.quotes[q.ID] = &cp
	return nil
}

func (m *mockStore) InsertInvoice(ctx context.Context, inv *Invoice) error {
	inv.ID = m.id()
	for i := range inv.Lines {
		inv.Lines[i].ID = m.id()
		inv.Lines[i].InvoiceID = inv.ID
	}
	cp := *inv
	cp.Lines = append([]InvoiceLine(nil), inv.Lines...)
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *mockStore) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	if _, ok := m.invoices[inv.ID]; !ok {
		return shared.ErrNotFound
	}
	for i := range inv.Lines {
		if inv.Lines[i].ID == 0 {
			inv.Lines[i].ID = m.id()
		}
		inv.Lines[i].InvoiceID = inv.ID
	}
	cp := *inv
	cp.Lines = append([]InvoiceLine(nil), inv.Lines...)
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *mockStore) InsertAmendment(ctx context.Context, a *Amendment) error {
	a.ID = m.id()
	for i := range a.Lines {
		a.Lines[i].ID = m.id()
		a.Lines[i].AmendmentID = a.ID
	}
	cp := *a
	cp.Lines = append([]AmendmentLine(nil), a.Lines...)
	m.amendments[a.ID] = &cp
	return nil
}

func (m *mockStore) UpdateAmendment(ctx context.Context, a *Amendment) error {
	if _, ok := m.amendments[a.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *a
	cp.Lines = append([]AmendmentLine(nil), a.Lines...)
	m.amendments[a.ID] = &cp
	return nil
}

func (m *mockStore) InsertCreditNote(ctx context.Context, c *CreditNote) error {
	c.ID = m.id()
	for i := range c.Lines {
		c.Lines[i].ID = m.id()
		c.Lines[i].CreditNoteID = c.ID
	}
	cp := *c
	cp.Lines = append([]CreditNoteLine(nil), c.Lines...)
	m.creditNotes[c.ID] = &cp
	return nil
}

func (m *mockStore) UpdateCreditNote(ctx context.Context, c *CreditNote) error {
	if _, ok := m.creditNotes[c.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *c
	cp.Lines = append([]CreditNoteLine(nil), c.Lines...)
	m.creditNotes[c.ID] = &cp
	return nil
}

func (m *mockStore) NextDocNumber(ctx context.Context, companyID int64, prefix string, year int) (string, error) {
	key := fmt.Sprintf("%d/%s/%d", companyID, prefix, year)
	m.sequences[key]++
	return fmt.Sprintf("%s-%d-%04d", prefix, year, m.sequences[key]), nil
}

// ============================================================================
// HELPERS
// ============================================================================

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	svc := NewService(store, nil, slog.Default())
	svc.now = func() time.Time { return testNow }
	return svc
}

func makeQuoteRequest() CreateQuoteRequest {
	return CreateQuoteRequest{
		CompanyID: 1,
		ClientID:  10,
		TauxTVA:   "20",
		Lines: []LineRequest{
			{Description: "Site vitrine", Quantity: 1, UnitPrice: "300"},
			{Description: "Maintenance", Quantity: 1, UnitPrice: "50"},
		},
	}
}

func signedQuote(t *testing.T, svc *Service) *Quote {
	t.Helper()
	ctx := context.Background()
	quote, err := svc.CreateQuote(ctx, makeQuoteRequest())
	require.NoError(t, err)
	quote, err = svc.SendQuote(ctx, quote.ID)
	require.NoError(t, err)
	quote, err = svc.SignQuote(ctx, quote.ID, SignRequest{Signature: "data:image/png;base64,abc", Signer: "Jean Martin"})
	require.NoError(t, err)
	return quote
}

// ============================================================================
// QUOTE LIFECYCLE
// ============================================================================

func TestCreateQuoteComputesTotals(t *testing.T) {
	svc := newTestService(newMockStore())
	quote, err := svc.CreateQuote(context.Background(), makeQuoteRequest())
	require.NoError(t, err)

	assert.Equal(t, QuoteStatusDraft, quote.Status)
	assert.Nil(t, quote.Numero)
	assert.True(t, quote.MontantHT.Equal(decimal.RequireFromString("350")), "HT = %s", quote.MontantHT)
	assert.True(t, quote.MontantTVA.Equal(decimal.RequireFromString("70")), "TVA = %s", quote.MontantTVA)
	assert.True(t, quote.MontantTTC.Equal(decimal.RequireFromString("420")), "TTC = %s", quote.MontantTTC)
}

func TestSendQuoteAssignsNumber(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()

	quote, err := svc.CreateQuote(ctx, makeQuoteRequest())
	require.NoError(t, err)

	quote, err = svc.SendQuote(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, QuoteStatusSent, quote.Status)
	require.NotNil(t, quote.Numero)
	assert.Equal(t, "DEV-2026-0001", *quote.Numero)
	assert.NotNil(t, quote.DateEnvoi)
}

func TestQuoteNumberingSequence(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		quote, err := svc.CreateQuote(ctx, makeQuoteRequest())
		require.NoError(t, err)
		quote, err = svc.SendQuote(ctx, quote.ID)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("DEV-2026-%04d", i), *quote.Numero)
	}
}

func TestSendQuoteRequiresLines(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()

	req := makeQuoteRequest()
	req.Lines = nil
	quote, err := svc.CreateQuote(ctx, req)
	require.NoError(t, err)

	_, err = svc.SendQuote(ctx, quote.ID)
	assert.ErrorIs(t, err, shared.ErrAccessDenied)
}

func TestSignQuoteFreezesIt(t *testing.T) {
	svc := newTestService(newMockStore())
	quote := signedQuote(t, svc)

	assert.Equal(t, QuoteStatusSigned, quote.Status)
	assert.NotNil(t, quote.DateSignature)
	require.NotNil(t, quote.SignatureClient)

	_, err := svc.UpdateQuote(context.Background(), quote.ID, UpdateQuoteRequest{})
	assert.ErrorIs(t, err, shared.ErrAccessDenied)
}

func TestQuoteTransitionDenialMatrix(t *testing.T) {
	tests := []struct {
		name   string
		status QuoteStatus
		action func(svc *Service, id int64) error
	}{
		{"sign from draft", QuoteStatusDraft, func(svc *Service, id int64) error {
			_, err := svc.SignQuote(context.Background(), id, SignRequest{Signature: "x", Signer: "y"})
			return err
		}},
		{"accept from draft", QuoteStatusDraft, func(svc *Service, id int64) error {
			_, err := svc.AcceptQuote(context.Background(), id)
			return err
		}},
		{"send from signed", QuoteStatusSigned, func(svc *Service, id int64) error {
			_, err := svc.SendQuote(context.Background(), id)
			return err
		}},
		{"refuse from signed", QuoteStatusSigned, func(svc *Service, id int64) error {
			_, err := svc.RefuseQuote(context.Background(), id, "changed mind")
			return err
		}},
		{"cancel from signed", QuoteStatusSigned, func(svc *Service, id int64) error {
			_, err := svc.CancelQuote(context.Background(), id, "no")
			return err
		}},
		{"accept from refused", QuoteStatusRefused, func(svc *Service, id int64) error {
			_, err := svc.AcceptQuote(context.Background(), id)
			return err
		}},
		{"sign from cancelled", QuoteStatusCancelled, func(svc *Service, id int64) error {
			_, err := svc.SignQuote(context.Background(), id, SignRequest{Signature: "x", Signer: "y"})
			return err
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMockStore()
			svc := newTestService(store)
			quote, err := svc.CreateQuote(context.Background(), makeQuoteRequest())
			require.NoError(t, err)
			store.quotes[quote.ID].Status = tc.status

			err = tc.action(svc, quote.ID)
			assert.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrInvalidStatus)

			got, gerr := svc.GetQuote(context.Background(), quote.ID)
			require.NoError(t, gerr)
			assert.Equal(t, tc.status, got.Status, "denied transition must not mutate state")
		})
	}
}

func TestExpireQuoteIdempotent(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	ctx := context.Background()

	past := testNow.Add(-24 * time.Hour)
	req := makeQuoteRequest()
	req.DateValidite = &past
	quote, err := svc.CreateQuote(ctx, req)
	require.NoError(t, err)

	did, err := svc.ExpireQuoteIfNeeded(ctx, quote.ID)
	require.NoError(t, err)
	assert.True(t, did)

	did, err = svc.ExpireQuoteIfNeeded(ctx, quote.ID)
	require.NoError(t, err)
	assert.False(t, did, "second run is a no-op")

	got, err := svc.GetQuote(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, QuoteStatusExpired, got.Status)
}

func TestExpireSkipsSignedQuotes(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	ctx := context.Background()

	quote := signedQuote(t, svc)
	past := testNow.Add(-time.Hour)
	store.quotes[quote.ID].DateValidite = &past

	did, err := svc.ExpireQuoteIfNeeded(ctx, quote.ID)
	require.NoError(t, err)
	assert.False(t, did)

	n, err := svc.ExpireDueQuotes(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteQuoteAlwaysDenied(t *testing.T) {
	svc := newTestService(newMockStore())
	quote, err := svc.CreateQuote(context.Background(), makeQuoteRequest())
	require.NoError(t, err)

	err = svc.DeleteQuote(context.Background(), quote.ID)
	assert.ErrorIs(t, err, shared.ErrAccessDenied)
}

// ============================================================================
// INVOICE LIFECYCLE
// ============================================================================

func TestCreateInvoiceFromQuoteClonesLines(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	quote := signedQuote(t, svc)

	invoice, err := svc.CreateInvoiceFromQuote(ctx, quote.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, InvoiceStatusDraft, invoice.Status)
	assert.Nil(t, invoice.Numero)
	require.NotNil(t, invoice.QuoteID)
	assert.Equal(t, quote.ID, *invoice.QuoteID)
	require.Len(t, invoice.Lines, len(quote.Lines))
	for i, l := range invoice.Lines {
		assert.Equal(t, quote.Lines[i].Description, l.Description)
		assert.True(t, l.UnitPrice.Equal(quote.Lines[i].UnitPrice))
	}
	assert.True(t, invoice.MontantTTC.Equal(quote.MontantTTC))
}

func TestCreateInvoiceFromQuoteConflictsOnSecondCall(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	quote := signedQuote(t, svc)

	_, err := svc.CreateInvoiceFromQuote(ctx, quote.ID, nil)
	require.NoError(t, err)

	_, err = svc.CreateInvoiceFromQuote(ctx, quote.ID, nil)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateInvoiceFromUnsignedQuoteDenied(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	quote, err := svc.CreateQuote(ctx, makeQuoteRequest())
	require.NoError(t, err)

	_, err = svc.CreateInvoiceFromQuote(ctx, quote.ID, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func issuedInvoice(t *testing.T, svc *Service) *Invoice {
	t.Helper()
	ctx := context.Background()
	due := testNow.Add(30 * 24 * time.Hour)
	quote := signedQuote(t, svc)
	invoice, err := svc.CreateInvoiceFromQuote(ctx, quote.ID, &due)
	require.NoError(t, err)
	invoice, err = svc.IssueInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	return invoice
}

func TestIssueInvoiceAssignsNumberAndLocks(t *testing.T) {
	svc := newTestService(newMockStore())
	invoice := issuedInvoice(t, svc)

	assert.Equal(t, InvoiceStatusIssued, invoice.Status)
	require.NotNil(t, invoice.Numero)
	assert.Equal(t, "FACT-2026-0001", *invoice.Numero)
	assert.NotNil(t, invoice.DateEmission)

	_, err := svc.UpdateDraftInvoice(context.Background(), invoice.ID, UpdateInvoiceRequest{})
	assert.ErrorIs(t, err, shared.ErrAccessDenied)

	_, err = svc.IssueInvoice(context.Background(), invoice.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestIssueInvoiceRequiresDueDate(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	quote := signedQuote(t, svc)
	invoice, err := svc.CreateInvoiceFromQuote(ctx, quote.ID, nil)
	require.NoError(t, err)

	_, err = svc.IssueInvoice(ctx, invoice.ID)
	assert.ErrorIs(t, err, shared.ErrAccessDenied)
}

func TestSendInvoiceIncrementsCounter(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	invoice := issuedInvoice(t, svc)

	invoice, err := svc.SendInvoice(ctx, invoice.ID, SendInvoiceRequest{Channel: "email"})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusSent, invoice.Status)
	assert.Equal(t, 1, invoice.SentCount)

	invoice, err = svc.SendInvoice(ctx, invoice.ID, SendInvoiceRequest{Channel: "postal"})
	require.NoError(t, err)
	assert.Equal(t, 2, invoice.SentCount)
	require.NotNil(t, invoice.DeliveryChannel)
	assert.Equal(t, "postal", *invoice.DeliveryChannel)
}

func TestSendPaidInvoiceKeepsPaidStatus(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	invoice := issuedInvoice(t, svc)

	invoice, err := svc.MarkInvoicePaid(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusPaid, invoice.Status)

	invoice, err = svc.SendInvoice(ctx, invoice.ID, SendInvoiceRequest{Channel: "email"})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPaid, invoice.Status, "resend must not regress PAID")
	assert.Equal(t, 1, invoice.SentCount)
}

func TestMarkPaidTwiceConflicts(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	invoice := issuedInvoice(t, svc)

	invoice, err := svc.MarkInvoicePaid(ctx, invoice.ID)
	require.NoError(t, err)
	assert.NotNil(t, invoice.DatePaiement)

	_, err = svc.MarkInvoicePaid(ctx, invoice.ID)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestMarkDraftInvoicePaidDenied(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	quote := signedQuote(t, svc)
	invoice, err := svc.CreateInvoiceFromQuote(ctx, quote.ID, nil)
	require.NoError(t, err)

	_, err = svc.MarkInvoicePaid(ctx, invoice.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestDeleteInvoiceAlwaysDenied(t *testing.T) {
	svc := newTestService(newMockStore())
	invoice := issuedInvoice(t, svc)

	err := svc.DeleteInvoice(context.Background(), invoice.ID)
	assert.ErrorIs(t, err, shared.ErrAccessDenied)
}

// ============================================================================
// AMENDMENT
// ============================================================================

func TestAmendmentDeltaAndCorrectedTotal(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	quote := signedQuote(t, svc)

	newValue := "400"
	amendment, err := svc.CreateAmendment(ctx, CreateAmendmentRequest{
		QuoteID: quote.ID,
		TauxTVA: "20",
		Lines: []CorrectionLineRequest{{
			Description:  "Site vitrine, perimetre etendu",
			Quantity:     1,
			UnitPrice:    "400",
			NewValue:     &newValue,
			SourceLineID: &quote.Lines[0].ID,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, AmendmentStatusDraft, amendment.Status)
	assert.Nil(t, amendment.Numero)
	require.Len(t, amendment.Lines, 1)
	// Old 300, new 400: delta 100 HT, 120 TTC at 20%.
	assert.True(t, amendment.Lines[0].OldValue.Equal(decimal.RequireFromString("300")))
	assert.True(t, amendment.Lines[0].Delta.Equal(decimal.RequireFromString("100")), "delta = %s", amendment.Lines[0].Delta)
	assert.True(t, amendment.Lines[0].DeltaTTC.Equal(decimal.RequireFromString("120")), "deltaTTC = %s", amendment.Lines[0].DeltaTTC)

	// Draft amendments do not count.
	total, err := svc.CorrectedQuoteTotal(ctx, quote.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(quote.MontantTTC))

	amendment, err = svc.SignAmendment(ctx, amendment.ID, SignRequest{Signature: "sig", Signer: "Jean Martin"})
	require.NoError(t, err)
	assert.Equal(t, AmendmentStatusSigned, amendment.Status)
	require.NotNil(t, amendment.Numero)
	assert.Equal(t, "AV-2026-0001", *amendment.Numero)

	total, err = svc.CorrectedQuoteTotal(ctx, quote.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(quote.MontantTTC.Add(decimal.RequireFromString("120"))), "corrected = %s", total)
}

func TestAmendmentOnUnsignedQuoteDenied(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	quote, err := svc.CreateQuote(ctx, makeQuoteRequest())
	require.NoError(t, err)

	_, err = svc.CreateAmendment(ctx, CreateAmendmentRequest{QuoteID: quote.ID, TauxTVA: "20"})
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestSignedAmendmentIsImmutable(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	quote := signedQuote(t, svc)

	amendment, err := svc.CreateAmendment(ctx, CreateAmendmentRequest{
		QuoteID: quote.ID,
		TauxTVA: "20",
		Lines: []CorrectionLineRequest{{
			Description: "Option supplementaire", Quantity: 1, UnitPrice: "80",
		}},
	})
	require.NoError(t, err)
	amendment, err = svc.SignAmendment(ctx, amendment.ID, SignRequest{Signature: "sig", Signer: "Jean Martin"})
	require.NoError(t, err)

	_, err = svc.UpdateAmendment(ctx, amendment.ID, UpdateAmendmentRequest{})
	assert.ErrorIs(t, err, shared.ErrAccessDenied)

	_, err = svc.SignAmendment(ctx, amendment.ID, SignRequest{Signature: "sig2", Signer: "Jean Martin"})
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestAmendmentSourceRateSnapshot(t *testing.T) {
	// Per-line quote at 20%/10%; a zero-rate amendment correcting the 10%
	// line inherits that line's snapshot rate.
	svc := newTestService(newMockStore())
	ctx := context.Background()

	ten := "10"
	twenty := "20"
	req := CreateQuoteRequest{
		CompanyID:     1,
		ClientID:      10,
		TauxTVA:       "0",
		UsePerLineTVA: true,
		Lines: []LineRequest{
			{Description: "Developpement", Quantity: 1, UnitPrice: "300", TVARate: &twenty},
			{Description: "Formation", Quantity: 1, UnitPrice: "50", TVARate: &ten},
		},
	}
	quote, err := svc.CreateQuote(ctx, req)
	require.NoError(t, err)
	quote, err = svc.SendQuote(ctx, quote.ID)
	require.NoError(t, err)
	quote, err = svc.SignQuote(ctx, quote.ID, SignRequest{Signature: "sig", Signer: "Jean"})
	require.NoError(t, err)

	newValue := "100"
	amendment, err := svc.CreateAmendment(ctx, CreateAmendmentRequest{
		QuoteID: quote.ID,
		TauxTVA: "0",
		Lines: []CorrectionLineRequest{{
			Description:  "Formation, volume double",
			Quantity:     1,
			UnitPrice:    "100",
			NewValue:     &newValue,
			SourceLineID: &quote.Lines[1].ID,
		}},
	})
	require.NoError(t, err)

	require.Len(t, amendment.Lines, 1)
	require.NotNil(t, amendment.Lines[0].SourceRate)
	assert.True(t, amendment.Lines[0].SourceRate.Equal(decimal.RequireFromString("10")))
	// Delta 50 HT at the inherited 10%: 55 TTC.
	assert.True(t, amendment.Lines[0].Delta.Equal(decimal.RequireFromString("50")))
	assert.True(t, amendment.Lines[0].DeltaTTC.Equal(decimal.RequireFromString("55")), "deltaTTC = %s", amendment.Lines[0].DeltaTTC)
}

// ============================================================================
// CREDIT NOTE
// ============================================================================

func TestCreditNoteLifecycle(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	invoice := issuedInvoice(t, svc)

	newValue := "-50"
	note, err := svc.CreateCreditNote(ctx, CreateCreditNoteRequest{
		InvoiceID: invoice.ID,
		TauxTVA:   "20",
		Lines: []CorrectionLineRequest{{
			Description: "Remise commerciale",
			Quantity:    1,
			UnitPrice:   "-50",
			NewValue:    &newValue,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, CreditNoteStatusDraft, note.Status)
	require.Len(t, note.Lines, 1)
	assert.True(t, note.Lines[0].Delta.Equal(decimal.RequireFromString("-50")))
	assert.True(t, note.Lines[0].DeltaTTC.Equal(decimal.RequireFromString("-60")), "deltaTTC = %s", note.Lines[0].DeltaTTC)

	note, err = svc.IssueCreditNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, CreditNoteStatusIssued, note.Status)
	require.NotNil(t, note.Numero)
	assert.Equal(t, "AV-2026-0001", *note.Numero)

	note, err = svc.ApplyCreditNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, CreditNoteStatusApplied, note.Status)
	assert.NotNil(t, note.DateApplied)

	_, err = svc.ApplyCreditNote(ctx, note.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestCreditNoteOnDraftInvoiceDenied(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	quote := signedQuote(t, svc)
	invoice, err := svc.CreateInvoiceFromQuote(ctx, quote.ID, nil)
	require.NoError(t, err)

	_, err = svc.CreateCreditNote(ctx, CreateCreditNoteRequest{InvoiceID: invoice.ID, TauxTVA: "20"})
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

// Amendments and credit notes share the AV sequence.
func TestAmendmentAndCreditNoteShareSequence(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()
	quote := signedQuote(t, svc)

	amendment, err := svc.CreateAmendment(ctx, CreateAmendmentRequest{
		QuoteID: quote.ID,
		TauxTVA: "20",
		Lines:   []CorrectionLineRequest{{Description: "Option", Quantity: 1, UnitPrice: "10"}},
	})
	require.NoError(t, err)
	amendment, err = svc.SignAmendment(ctx, amendment.ID, SignRequest{Signature: "sig", Signer: "Jean"})
	require.NoError(t, err)
	assert.Equal(t, "AV-2026-0001", *amendment.Numero)

	invoice := issuedInvoice(t, svc)
	note, err := svc.CreateCreditNote(ctx, CreateCreditNoteRequest{
		InvoiceID: invoice.ID,
		TauxTVA:   "20",
		Lines:     []CorrectionLineRequest{{Description: "Geste", Quantity: 1, UnitPrice: "-5"}},
	})
	require.NoError(t, err)
	note, err = svc.IssueCreditNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "AV-2026-0002", *note.Numero)
}

// ============================================================================
// AUDIT TRAIL
// ============================================================================

type recordingAudit struct {
	entries []shared.AuditLog
	err     error
}

func (r *recordingAudit) Record(_ context.Context, entry shared.AuditLog) error {
	r.entries = append(r.entries, entry)
	return r.err
}

func TestTransitionsRecordAuditTrail(t *testing.T) {
	trail := &recordingAudit{}
	svc := newTestService(newMockStore()).WithAudit(trail)
	ctx := shared.ContextWithActor(context.Background(), &shared.Actor{ID: 42, CompanyID: 1, Name: "Claire"})

	quote, err := svc.CreateQuote(ctx, makeQuoteRequest())
	require.NoError(t, err)
	quote, err = svc.SendQuote(ctx, quote.ID)
	require.NoError(t, err)
	_, err = svc.SignQuote(ctx, quote.ID, SignRequest{Signature: "sig", Signer: "Jean Martin"})
	require.NoError(t, err)

	require.Len(t, trail.entries, 2)
	sent := trail.entries[0]
	assert.Equal(t, "QUOTE_SEND", sent.Action)
	assert.Equal(t, "quote", sent.Entity)
	assert.Equal(t, int64(42), sent.ActorID)
	assert.Equal(t, *quote.Numero, sent.Meta["numero"])
	assert.Equal(t, "QUOTE_SIGN", trail.entries[1].Action)
}

func TestAuditFailureDoesNotAbortTransition(t *testing.T) {
	trail := &recordingAudit{err: fmt.Errorf("audit_logs unreachable")}
	svc := newTestService(newMockStore()).WithAudit(trail)
	ctx := context.Background()

	quote, err := svc.CreateQuote(ctx, makeQuoteRequest())
	require.NoError(t, err)
	quote, err = svc.SendQuote(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, QuoteStatusSent, quote.Status)
}

type recordingDispatcher struct {
	pdf  []string
	mail []string
}

func (d *recordingDispatcher) EnqueuePDFRegenerate(_ context.Context, kind string, documentID int64) error {
	d.pdf = append(d.pdf, fmt.Sprintf("%s/%d", kind, documentID))
	return nil
}

func (d *recordingDispatcher) EnqueueSendMail(_ context.Context, kind string, documentID int64, recipient string) error {
	d.mail = append(d.mail, fmt.Sprintf("%s/%d/%s", kind, documentID, recipient))
	return nil
}

func TestSendQuoteQueuesFollowUpWork(t *testing.T) {
	queue := &recordingDispatcher{}
	svc := newTestService(newMockStore()).WithDispatcher(queue)
	ctx := context.Background()

	quote, err := svc.CreateQuote(ctx, makeQuoteRequest())
	require.NoError(t, err)
	quote, err = svc.SendQuote(ctx, quote.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{fmt.Sprintf("QUOTE/%d", quote.ID)}, queue.pdf)
	assert.Equal(t, []string{fmt.Sprintf("QUOTE/%d/", quote.ID)}, queue.mail)
}
