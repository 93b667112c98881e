package mail

import (
	"context"
	"log/slog"
)

// Sender delivers an outbound document email. Implementations report
// transport failures through the returned error; the service converts them
// into FAILED delivery logs instead of propagating.
type Sender interface {
	Send(ctx context.Context, doc OutboundDocument) error
}

// LoggingSender is the SMTP-less in-tree Sender: it writes the send intent
// to the log and reports success. Used in development and tests.
type LoggingSender struct {
	logger *slog.Logger
}

// NewLoggingSender constructs a LoggingSender.
func NewLoggingSender(logger *slog.Logger) *LoggingSender {
	return &LoggingSender{logger: logger}
}

func (s *LoggingSender) Send(ctx context.Context, doc OutboundDocument) error {
	s.logger.Info("outbound mail",
		slog.String("kind", string(doc.Kind)),
		slog.Int64("document_id", doc.DocumentID),
		slog.String("recipient", doc.Recipient),
		slog.String("subject", doc.Subject),
		slog.Int("pdf_bytes", len(doc.PDF)))
	return nil
}
