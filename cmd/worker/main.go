package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gestio-app/gestio/internal/app"
	"github.com/gestio-app/gestio/internal/billing"
	"github.com/gestio-app/gestio/internal/clients"
	jobmetrics "github.com/gestio-app/gestio/internal/jobs"
	"github.com/gestio-app/gestio/internal/mail"
	"github.com/gestio-app/gestio/internal/platform/cache"
	"github.com/gestio-app/gestio/internal/platform/db"
	"github.com/gestio-app/gestio/internal/scheduling"
	"github.com/gestio-app/gestio/internal/shared"
	"github.com/gestio-app/gestio/internal/subscriptions"
	"github.com/gestio-app/gestio/jobs"
	"github.com/gestio-app/gestio/report"
)

// planRenewer adapts the subscription service to the queue's interface.
type planRenewer struct {
	svc *subscriptions.Service
}

func (r planRenewer) RenewPlan(ctx context.Context, planID int64) error {
	_, err := r.svc.RenewPlan(ctx, planID)
	return err
}

func (r planRenewer) RenewDuePlans(ctx context.Context) (int, error) {
	return r.svc.RenewDuePlans(ctx)
}

// documentMailer resolves a billing document into an outbound email. An
// empty recipient falls back to the client's address on file.
type documentMailer struct {
	billing  *billing.Service
	clients  *clients.Service
	renderer *report.Renderer
	mailer   *mail.Service
	logger   *slog.Logger
}

func (m documentMailer) SendDocument(ctx context.Context, kind string, documentID int64, recipient string) error {
	doc := mail.OutboundDocument{
		Kind:       mail.DocumentKind(kind),
		DocumentID: documentID,
		Recipient:  recipient,
	}
	var clientID int64
	switch doc.Kind {
	case mail.KindQuote:
		quote, err := m.billing.GetQuote(ctx, documentID)
		if err != nil {
			return err
		}
		clientID = quote.ClientID
		doc.CompanyID = quote.CompanyID
		doc.AmountTTC = quote.MontantTTC
		if quote.Numero != nil {
			doc.Numero = *quote.Numero
		}
	case mail.KindInvoice, mail.KindReminder:
		invoice, err := m.billing.GetInvoice(ctx, documentID)
		if err != nil {
			return err
		}
		clientID = invoice.ClientID
		doc.CompanyID = invoice.CompanyID
		doc.AmountTTC = invoice.MontantTTC
		if invoice.Numero != nil {
			doc.Numero = *invoice.Numero
		}
	default:
		return fmt.Errorf("%w: unsupported mail kind %q", shared.ErrValidation, kind)
	}
	if doc.Recipient == "" {
		client, err := m.clients.Get(ctx, clientID)
		if err != nil {
			return err
		}
		if client.Email == nil {
			m.logger.Warn("document has no recipient",
				slog.String("kind", kind), slog.Int64("client_id", clientID))
			return nil
		}
		doc.Recipient = *client.Email
	}

	if m.renderer != nil {
		renderKind := kind
		if doc.Kind == mail.KindReminder {
			renderKind = string(mail.KindInvoice)
		}
		// Best effort: the email still goes out when Gotenberg is down.
		if pdf, _, err := m.renderer.RenderDocument(ctx, renderKind, documentID); err != nil {
			m.logger.Warn("pdf render for mail failed",
				slog.String("kind", renderKind), slog.Int64("document_id", documentID), slog.Any("error", err))
		} else {
			doc.PDF = pdf
		}
	}

	_, err := m.mailer.Send(ctx, doc)
	return err
}

// invoiceReminder re-sends unpaid invoices. Paid or draft invoices are a
// no-op so re-delivered reminders cannot mis-fire.
type invoiceReminder struct {
	billing *billing.Service
	mailer  documentMailer
	logger  *slog.Logger
}

func (r invoiceReminder) Remind(ctx context.Context, invoiceID int64) error {
	invoice, err := r.billing.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice.Status != billing.InvoiceStatusIssued && invoice.Status != billing.InvoiceStatusSent {
		r.logger.Info("reminder skipped",
			slog.Int64("invoice_id", invoiceID), slog.String("status", string(invoice.Status)))
		return nil
	}
	if _, err := r.billing.SendInvoice(ctx, invoiceID, billing.SendInvoiceRequest{Channel: "email"}); err != nil {
		return err
	}
	return r.mailer.SendDocument(ctx, string(mail.KindReminder), invoiceID, "")
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, billing.NewGuard(nil), logger)

	clientRepo := clients.NewRepository(pool)
	clientService := clients.NewService(clientRepo)

	subscriptionRepo := subscriptions.NewRepository(pool)
	subscriptionService := subscriptions.NewService(subscriptionRepo, billingService, logger)

	schedulingRepo := scheduling.NewRepository(pool)
	schedulingService := scheduling.NewService(schedulingRepo, nil, redisClient, logger)

	archive, err := report.NewDirArchive(cfg.PDFArchiveDir)
	if err != nil {
		logger.Error("init pdf archive", slog.Any("error", err))
		os.Exit(1)
	}
	renderer := report.NewRenderer(report.NewClient(cfg.GotenbergURL), billingService, billingService, archive, logger)

	mailRepo := mail.NewRepository(pool)
	mailService := mail.NewService(mailRepo, mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom), logger)
	mailer := documentMailer{
		billing:  billingService,
		clients:  clientService,
		renderer: renderer,
		mailer:   mailService,
		logger:   logger,
	}

	now := time.Now().UTC()
	expireScanTask, err := jobs.NewQuoteExpireScanTask(now)
	if err != nil {
		logger.Error("build expire scan task", slog.Any("error", err))
		os.Exit(1)
	}
	renewalScanTask, err := jobs.NewRenewalScanTask(now)
	if err != nil {
		logger.Error("build renewal scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: jobs.Handlers(jobs.Deps{
			Quotes:        billingService,
			Subscriptions: planRenewer{svc: subscriptionService},
			Reminders: invoiceReminder{
				billing: billingService,
				mailer:  mailer,
				logger:  logger,
			},
			Calendar: schedulingService,
			PDF:      renderer,
			Mailer:   mailer,
			Logger:   logger,
			Metrics:  jobmetrics.NewMetrics(nil),
		}),
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: expireScanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: renewalScanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
