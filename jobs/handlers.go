package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gestio-app/gestio/internal/jobs"
	"github.com/gestio-app/gestio/internal/shared"
)

// The worker depends on narrow interfaces instead of the domain services so
// the queue layer stays decoupled from billing internals. The app wiring
// provides thin adapters over the real services.

// QuoteExpirer expires every quote past its validity date.
type QuoteExpirer interface {
	ExpireDueQuotes(ctx context.Context) (int, error)
}

// PlanRenewer drafts renewal invoices for subscription plans.
type PlanRenewer interface {
	RenewPlan(ctx context.Context, planID int64) error
	RenewDuePlans(ctx context.Context) (int, error)
}

// InvoiceReminder re-sends an unpaid invoice to its client.
type InvoiceReminder interface {
	Remind(ctx context.Context, invoiceID int64) error
}

// CalendarPusher projects an appointment to the external calendar.
type CalendarPusher interface {
	PushToCalendar(ctx context.Context, appointmentID int64) error
}

// PDFRegenerator re-renders the stored PDF for a document.
type PDFRegenerator interface {
	RegeneratePDF(ctx context.Context, kind string, documentID int64) error
}

// DocumentMailer composes and delivers a document email.
type DocumentMailer interface {
	SendDocument(ctx context.Context, kind string, documentID int64, recipient string) error
}

// Deps collects the consumers the task handlers need. Nil fields disable
// the corresponding handlers.
type Deps struct {
	Quotes        QuoteExpirer
	Subscriptions PlanRenewer
	Reminders     InvoiceReminder
	Calendar      CalendarPusher
	PDF           PDFRegenerator
	Mailer        DocumentMailer
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
}

// Handlers builds the task-handler registrations for the worker. Every
// handler is idempotent: a re-delivered task re-checks state and no-ops,
// and a deleted domain object skips retries instead of poisoning the queue.
func Handlers(deps Deps) []TaskHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var out []TaskHandler

	if deps.Quotes != nil {
		out = append(out, TaskHandler{Type: TaskTypeQuoteExpireScan, Handler: func(ctx context.Context, t *asynq.Task) error {
			var payload ScanPayload
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return fmt.Errorf("quote expire scan payload: %w", asynq.SkipRetry)
			}
			expired, err := deps.Quotes.ExpireDueQuotes(ctx)
			if err != nil {
				return err
			}
			logger.Info("quote expire scan", slog.Int("expired", expired))
			return nil
		}})
	}

	if deps.Subscriptions != nil {
		out = append(out, TaskHandler{Type: TaskTypeSubscriptionRenew, Handler: func(ctx context.Context, t *asynq.Task) error {
			var payload SubscriptionRenewPayload
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return fmt.Errorf("subscription renew payload: %w", asynq.SkipRetry)
			}
			if err := deps.Subscriptions.RenewPlan(ctx, payload.PlanID); err != nil {
				return terminalOnNotFound(logger, "subscription renew", payload.PlanID, err)
			}
			return nil
		}})
		out = append(out, TaskHandler{Type: TaskTypeRenewalScan, Handler: func(ctx context.Context, t *asynq.Task) error {
			renewed, err := deps.Subscriptions.RenewDuePlans(ctx)
			if err != nil {
				return err
			}
			logger.Info("subscription renewal scan", slog.Int("renewed", renewed))
			return nil
		}})
	}

	if deps.Reminders != nil {
		out = append(out, TaskHandler{Type: TaskTypeInvoiceReminder, Handler: func(ctx context.Context, t *asynq.Task) error {
			var payload InvoiceReminderPayload
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return fmt.Errorf("invoice reminder payload: %w", asynq.SkipRetry)
			}
			if err := deps.Reminders.Remind(ctx, payload.InvoiceID); err != nil {
				return terminalOnNotFound(logger, "invoice reminder", payload.InvoiceID, err)
			}
			return nil
		}})
	}

	if deps.Calendar != nil {
		out = append(out, TaskHandler{Type: TaskTypeCalendarPush, Handler: func(ctx context.Context, t *asynq.Task) error {
			var payload CalendarPushPayload
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return fmt.Errorf("calendar push payload: %w", asynq.SkipRetry)
			}
			if err := deps.Calendar.PushToCalendar(ctx, payload.AppointmentID); err != nil {
				return terminalOnNotFound(logger, "calendar push", payload.AppointmentID, err)
			}
			return nil
		}})
	}

	if deps.PDF != nil {
		out = append(out, TaskHandler{Type: TaskTypePDFRegenerate, Handler: func(ctx context.Context, t *asynq.Task) error {
			var payload DocumentPayload
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return fmt.Errorf("pdf regenerate payload: %w", asynq.SkipRetry)
			}
			if err := deps.PDF.RegeneratePDF(ctx, payload.Kind, payload.DocumentID); err != nil {
				return terminalOnNotFound(logger, "pdf regenerate", payload.DocumentID, err)
			}
			return nil
		}})
	}

	if deps.Mailer != nil {
		out = append(out, TaskHandler{Type: TaskTypeSendMail, Handler: func(ctx context.Context, t *asynq.Task) error {
			var payload SendMailPayload
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return fmt.Errorf("send mail payload: %w", asynq.SkipRetry)
			}
			if err := deps.Mailer.SendDocument(ctx, payload.Kind, payload.DocumentID, payload.Recipient); err != nil {
				return terminalOnNotFound(logger, "send mail", payload.DocumentID, err)
			}
			return nil
		}})
	}

	for i := range out {
		out[i].Handler = instrument(deps.Metrics, out[i].Type, out[i].Handler)
	}
	return out
}

func instrument(m *jobmetrics.Metrics, job string, h asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := m.Track(job)
		return tracker.End(h(ctx, t))
	}
}

// terminalOnNotFound converts a missing domain object into SkipRetry: the
// document was deleted between enqueue and processing, retrying cannot help.
func terminalOnNotFound(logger *slog.Logger, task string, id int64, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		logger.Warn(task+" target gone", slog.Int64("id", id), slog.Any("error", err))
		return fmt.Errorf("%s: %v: %w", task, err, asynq.SkipRetry)
	}
	return fmt.Errorf("%s: %w", task, err)
}
