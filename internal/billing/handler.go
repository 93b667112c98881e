package billing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gestio-app/gestio/internal/money"
	"github.com/gestio-app/gestio/internal/platform/httpx"
	"github.com/gestio-app/gestio/internal/shared"
)

// Handler wires the billing JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers billing routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.listQuotes)
		r.Post("/", h.createQuote)
		r.Get("/{id}", h.getQuote)
		r.Put("/{id}", h.updateQuote)
		r.Delete("/{id}", h.deleteQuote)
		r.Post("/{id}/send", h.sendQuote)
		r.Post("/{id}/accept", h.acceptQuote)
		r.Post("/{id}/sign", h.signQuote)
		r.Post("/{id}/refuse", h.refuseQuote)
		r.Post("/{id}/cancel", h.cancelQuote)
		r.Post("/{id}/invoice", h.createInvoiceFromQuote)
		r.Get("/{id}/corrected-total", h.correctedQuoteTotal)
		r.Get("/{id}/rates", h.quoteRates)
		r.Get("/{id}/amendments", h.listAmendments)
	})

	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.listInvoices)
		r.Post("/", h.createInvoice)
		r.Get("/{id}", h.getInvoice)
		r.Put("/{id}", h.updateInvoice)
		r.Delete("/{id}", h.deleteInvoice)
		r.Post("/{id}/issue", h.issueInvoice)
		r.Post("/{id}/send", h.sendInvoice)
		r.Post("/{id}/mark-paid", h.markInvoicePaid)
		r.Get("/{id}/rates", h.invoiceRates)
		r.Get("/{id}/credit-notes", h.listCreditNotes)
	})

	r.Route("/amendments", func(r chi.Router) {
		r.Post("/", h.createAmendment)
		r.Get("/{id}", h.getAmendment)
		r.Put("/{id}", h.updateAmendment)
		r.Post("/{id}/sign", h.signAmendment)
	})

	r.Route("/credit-notes", func(r chi.Router) {
		r.Post("/", h.createCreditNote)
		r.Get("/{id}", h.getCreditNote)
		r.Post("/{id}/issue", h.issueCreditNote)
		r.Post("/{id}/apply", h.applyCreditNote)
	})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", shared.ErrValidation)
	}
	return id, nil
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: malformed JSON body", shared.ErrValidation)
	}
	if err := h.validator.Struct(target); err != nil {
		return fmt.Errorf("%w: %s", shared.ErrValidation, err.Error())
	}
	return nil
}

// ============================================================================
// QUOTE HANDLERS
// ============================================================================

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	var req CreateQuoteRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := h.service.CreateQuote(r.Context(), req)
	if err != nil {
		h.logger.Warn("create quote", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

type listResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
}

func (h *Handler) listQuotes(w http.ResponseWriter, r *http.Request) {
	req := ListQuotesRequest{Limit: 50}
	q := r.URL.Query()
	req.CompanyID, _ = strconv.ParseInt(q.Get("company_id"), 10, 64)
	if v := q.Get("client_id"); v != "" {
		id, _ := strconv.ParseInt(v, 10, 64)
		req.ClientID = &id
	}
	if v := q.Get("status"); v != "" {
		st := QuoteStatus(v)
		req.Status = &st
	}
	if v := q.Get("limit"); v != "" {
		req.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		req.Offset, _ = strconv.Atoi(v)
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error()))
		return
	}
	quotes, total, err := h.service.ListQuotes(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: quotes, Total: total})
}

func (h *Handler) updateQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateQuoteRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := h.service.UpdateQuote(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) deleteQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondError(w, h.service.DeleteQuote(r.Context(), id))
}

func (h *Handler) sendQuote(w http.ResponseWriter, r *http.Request) {
	h.quoteTransition(w, r, h.service.SendQuote)
}

func (h *Handler) acceptQuote(w http.ResponseWriter, r *http.Request) {
	h.quoteTransition(w, r, h.service.AcceptQuote)
}

func (h *Handler) quoteTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (*Quote, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := fn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) signQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req SignRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := h.service.SignQuote(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) refuseQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reasonRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := h.service.RefuseQuote(r.Context(), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) cancelQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reasonRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := h.service.CancelQuote(r.Context(), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

type createFromQuoteRequest struct {
	DateEcheance *time.Time `json:"date_echeance,omitempty"`
}

func (h *Handler) createInvoiceFromQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createFromQuoteRequest
	if r.ContentLength > 0 {
		if err := h.decode(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	invoice, err := h.service.CreateInvoiceFromQuote(r.Context(), id, req.DateEcheance)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) correctedQuoteTotal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	total, err := h.service.CorrectedQuoteTotal(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"corrected_total_ttc": total.StringFixed(2)})
}

// ratesPayload renders the per-rate breakdown with fixed two-decimal strings,
// the legal presentation on French invoices.
func ratesPayload(detail map[string]money.RateDetail) map[string]map[string]string {
	out := make(map[string]map[string]string, len(detail))
	for rate, d := range detail {
		out[rate] = map[string]string{
			"ht":  d.HT.StringFixed(2),
			"tva": d.TVA.StringFixed(2),
		}
	}
	return out
}

func (h *Handler) quoteRates(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ratesPayload(quote.TvaRatesDetail()))
}

func (h *Handler) invoiceRates(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ratesPayload(invoice.TvaRatesDetail()))
}

func (h *Handler) listAmendments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	amendments, err := h.service.store.ListAmendmentsByQuote(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, amendments)
}

// ============================================================================
// INVOICE HANDLERS
// ============================================================================

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.CreateDraftInvoice(r.Context(), req)
	if err != nil {
		h.logger.Warn("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	req := ListInvoicesRequest{Limit: 50}
	q := r.URL.Query()
	req.CompanyID, _ = strconv.ParseInt(q.Get("company_id"), 10, 64)
	if v := q.Get("client_id"); v != "" {
		id, _ := strconv.ParseInt(v, 10, 64)
		req.ClientID = &id
	}
	if v := q.Get("status"); v != "" {
		st := InvoiceStatus(v)
		req.Status = &st
	}
	if v := q.Get("limit"); v != "" {
		req.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		req.Offset, _ = strconv.Atoi(v)
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error()))
		return
	}
	invoices, total, err := h.service.ListInvoices(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: invoices, Total: total})
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateInvoiceRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.UpdateDraftInvoice(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondError(w, h.service.DeleteInvoice(r.Context(), id))
}

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.IssueInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req SendInvoiceRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.SendInvoice(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) markInvoicePaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoice, err := h.service.MarkInvoicePaid(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) listCreditNotes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	notes, err := h.service.store.ListCreditNotesByInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, notes)
}

// ============================================================================
// AMENDMENT HANDLERS
// ============================================================================

func (h *Handler) createAmendment(w http.ResponseWriter, r *http.Request) {
	var req CreateAmendmentRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amendment, err := h.service.CreateAmendment(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, amendment)
}

func (h *Handler) getAmendment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	amendment, err := h.service.GetAmendment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, amendment)
}

func (h *Handler) updateAmendment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateAmendmentRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amendment, err := h.service.UpdateAmendment(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, amendment)
}

func (h *Handler) signAmendment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req SignRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	amendment, err := h.service.SignAmendment(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, amendment)
}

// ============================================================================
// CREDIT NOTE HANDLERS
// ============================================================================

func (h *Handler) createCreditNote(w http.ResponseWriter, r *http.Request) {
	var req CreateCreditNoteRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	note, err := h.service.CreateCreditNote(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, note)
}

func (h *Handler) getCreditNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	note, err := h.service.GetCreditNote(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

func (h *Handler) issueCreditNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	note, err := h.service.IssueCreditNote(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

func (h *Handler) applyCreditNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	note, err := h.service.ApplyCreditNote(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}
