package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gestio-app/gestio/internal/shared"
)

var kindLabels = map[DocumentKind]string{
	KindQuote:      "devis",
	KindInvoice:    "facture",
	KindAmendment:  "avenant",
	KindCreditNote: "avoir",
	KindReminder:   "relance",
}

// Service sends document emails and records every attempt. A transport
// failure produces a FAILED log and a nil error so callers' transactions
// never roll back on mail trouble.
type Service struct {
	store  Store
	sender Sender
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a mail service. sender may be nil; the logging
// sender is then used.
func NewService(store Store, sender Sender, logger *slog.Logger) *Service {
	if sender == nil {
		sender = NewLoggingSender(logger)
	}
	return &Service{store: store, sender: sender, logger: logger, now: time.Now}
}

// Send delivers the document and persists the delivery log. The returned
// log carries the outcome; err is non-nil only for invalid input or a
// failed log write.
func (s *Service) Send(ctx context.Context, doc OutboundDocument) (*DeliveryLog, error) {
	if !doc.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, doc.Kind)
	}
	if doc.Recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", shared.ErrValidation)
	}
	if doc.Subject == "" {
		doc.Subject = fmt.Sprintf("Votre %s %s (%s)",
			kindLabels[doc.Kind], doc.Numero, FormatAmount(doc.AmountTTC))
	}

	log := DeliveryLog{
		CompanyID:    doc.CompanyID,
		DocumentKind: doc.Kind,
		DocumentID:   doc.DocumentID,
		Recipient:    doc.Recipient,
		Subject:      doc.Subject,
		Status:       DeliverySent,
		SentAt:       s.now(),
	}
	if err := s.sender.Send(ctx, doc); err != nil {
		reason := err.Error()
		log.Status = DeliveryFailed
		log.Reason = &reason
		s.logger.Warn("mail delivery failed",
			slog.String("kind", string(doc.Kind)),
			slog.Int64("document_id", doc.DocumentID),
			slog.Any("error", err))
	}
	if err := s.store.Insert(ctx, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// History lists the send attempts for one document, newest first.
func (s *Service) History(ctx context.Context, kind DocumentKind, documentID int64) ([]DeliveryLog, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, kind)
	}
	return s.store.ListByDocument(ctx, kind, documentID)
}
