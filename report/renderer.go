package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestio-app/gestio/internal/billing"
	"github.com/gestio-app/gestio/internal/mail"
	"github.com/gestio-app/gestio/internal/shared"
)

// QuoteSource loads quotes for rendering.
type QuoteSource interface {
	GetQuote(ctx context.Context, id int64) (*billing.Quote, error)
}

// InvoiceSource loads invoices for rendering.
type InvoiceSource interface {
	GetInvoice(ctx context.Context, id int64) (*billing.Invoice, error)
}

// Archive stores rendered PDFs.
type Archive interface {
	Save(ctx context.Context, name string, pdf []byte) error
}

// DirArchive stores PDFs as files under a directory.
type DirArchive struct {
	dir string
}

// NewDirArchive constructs a DirArchive, creating the directory if needed.
func NewDirArchive(dir string) (*DirArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &DirArchive{dir: dir}, nil
}

func (a *DirArchive) Save(ctx context.Context, name string, pdf []byte) error {
	return os.WriteFile(filepath.Join(a.dir, name), pdf, 0o644)
}

type documentLine struct {
	Description string
	Quantity    int64
	UnitPrice   string
	TotalHT     string
}

type documentView struct {
	Title    string
	Numero   string
	Date     string
	Lines    []documentLine
	TotalHT  string
	TotalTVA string
	TotalTTC string
}

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="utf-8"><title>{{.Title}} {{.Numero}}</title></head>
<body>
<h1>{{.Title}} {{.Numero}}</h1>
<p>{{.Date}}</p>
<table border="1" cellspacing="0" cellpadding="6" width="100%">
<tr><th>Désignation</th><th>Qté</th><th>PU HT</th><th>Total HT</th></tr>
{{range .Lines}}<tr><td>{{.Description}}</td><td>{{.Quantity}}</td><td>{{.UnitPrice}}</td><td>{{.TotalHT}}</td></tr>
{{end}}</table>
<p>Total HT : {{.TotalHT}}<br>TVA : {{.TotalTVA}}<br><strong>Total TTC : {{.TotalTTC}}</strong></p>
</body>
</html>`))

// Renderer turns billing documents into archived PDFs through Gotenberg.
type Renderer struct {
	client   *Client
	quotes   QuoteSource
	invoices InvoiceSource
	archive  Archive
	logger   *slog.Logger
}

// NewRenderer constructs a Renderer.
func NewRenderer(client *Client, quotes QuoteSource, invoices InvoiceSource, archive Archive, logger *slog.Logger) *Renderer {
	return &Renderer{client: client, quotes: quotes, invoices: invoices, archive: archive, logger: logger}
}

// RegeneratePDF renders the document and stores the result. Re-running for
// the same document overwrites the previous file.
func (r *Renderer) RegeneratePDF(ctx context.Context, kind string, documentID int64) error {
	html, name, err := r.renderHTML(ctx, kind, documentID)
	if err != nil {
		return err
	}
	pdf, err := r.client.RenderHTML(ctx, html)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	if err := r.archive.Save(ctx, name, pdf); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	r.logger.Info("document pdf regenerated",
		slog.String("kind", kind), slog.Int64("document_id", documentID),
		slog.String("file", name))
	return nil
}

// RenderDocument renders the document and returns the PDF bytes without
// archiving, for direct HTTP download.
func (r *Renderer) RenderDocument(ctx context.Context, kind string, documentID int64) ([]byte, string, error) {
	html, name, err := r.renderHTML(ctx, kind, documentID)
	if err != nil {
		return nil, "", err
	}
	pdf, err := r.client.RenderHTML(ctx, html)
	if err != nil {
		return nil, "", fmt.Errorf("render %s: %w", name, err)
	}
	return pdf, name, nil
}

func (r *Renderer) renderHTML(ctx context.Context, kind string, documentID int64) (html, name string, err error) {
	var view documentView
	switch strings.ToUpper(kind) {
	case "QUOTE":
		quote, err := r.quotes.GetQuote(ctx, documentID)
		if err != nil {
			return "", "", fmt.Errorf("get quote: %w", err)
		}
		view = quoteView(quote)
	case "INVOICE":
		invoice, err := r.invoices.GetInvoice(ctx, documentID)
		if err != nil {
			return "", "", fmt.Errorf("get invoice: %w", err)
		}
		view = invoiceView(invoice)
	default:
		return "", "", fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, kind)
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), pdfName(view.Numero, kind, documentID), nil
}

func pdfName(numero, kind string, id int64) string {
	if numero != "" {
		return numero + ".pdf"
	}
	return fmt.Sprintf("%s-draft-%d.pdf", strings.ToLower(kind), id)
}

func quoteView(q *billing.Quote) documentView {
	view := documentView{
		Title:    "Devis",
		Numero:   derefNumero(q.Numero),
		Date:     documentDate(q.DateEnvoi, q.CreatedAt),
		TotalHT:  mail.FormatAmount(q.MontantHT),
		TotalTVA: mail.FormatAmount(q.MontantTVA),
		TotalTTC: mail.FormatAmount(q.MontantTTC),
	}
	for _, l := range q.Lines {
		view.Lines = append(view.Lines, viewLine(l.Description, l.Quantity, l.UnitPrice, l.TotalHT))
	}
	return view
}

func invoiceView(i *billing.Invoice) documentView {
	view := documentView{
		Title:    "Facture",
		Numero:   derefNumero(i.Numero),
		Date:     documentDate(i.DateEmission, i.CreatedAt),
		TotalHT:  mail.FormatAmount(i.MontantHT),
		TotalTVA: mail.FormatAmount(i.MontantTVA),
		TotalTTC: mail.FormatAmount(i.MontantTTC),
	}
	for _, l := range i.Lines {
		view.Lines = append(view.Lines, viewLine(l.Description, l.Quantity, l.UnitPrice, l.TotalHT))
	}
	return view
}

func viewLine(description string, quantity int64, unitPrice, totalHT decimal.Decimal) documentLine {
	return documentLine{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   mail.FormatAmount(unitPrice),
		TotalHT:     mail.FormatAmount(totalHT),
	}
}

func derefNumero(numero *string) string {
	if numero == nil {
		return "brouillon"
	}
	return *numero
}

func documentDate(primary *time.Time, fallback time.Time) string {
	if primary != nil {
		return mail.FormatDate(*primary)
	}
	return mail.FormatDate(fallback)
}
