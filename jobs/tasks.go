package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskTypePDFRegenerate re-renders a document PDF after a transition.
	TaskTypePDFRegenerate = "pdf:regenerate"
	// TaskTypeInvoiceReminder re-sends an unpaid invoice to its client.
	TaskTypeInvoiceReminder = "invoice:reminder"
	// TaskTypeSubscriptionRenew drafts the next invoice for one plan.
	TaskTypeSubscriptionRenew = "subscription:renew"
	// TaskTypeQuoteExpireScan expires quotes past their validity date.
	TaskTypeQuoteExpireScan = "quote:expire_scan"
	// TaskTypeRenewalScan renews every due subscription plan.
	TaskTypeRenewalScan = "subscription:renew_scan"
	// TaskTypeCalendarPush projects an appointment to the external calendar.
	TaskTypeCalendarPush = "calendar:push"
	// TaskTypeSendMail delivers a document email.
	TaskTypeSendMail = "mail:send"
)

// DocumentPayload points a task at one billing document.
type DocumentPayload struct {
	Kind       string `json:"kind"`
	DocumentID int64  `json:"document_id"`
}

// NewPDFRegenerateTask constructs a pdf:regenerate task.
func NewPDFRegenerateTask(kind string, documentID int64) (*asynq.Task, error) {
	data, err := json.Marshal(DocumentPayload{Kind: kind, DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePDFRegenerate, data, asynq.Queue(QueueDefault)), nil
}

// InvoiceReminderPayload identifies the invoice to chase.
type InvoiceReminderPayload struct {
	InvoiceID int64 `json:"invoice_id"`
}

// NewInvoiceReminderTask constructs an invoice:reminder task.
func NewInvoiceReminderTask(invoiceID int64) (*asynq.Task, error) {
	data, err := json.Marshal(InvoiceReminderPayload{InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeInvoiceReminder, data, asynq.Queue(QueueDefault)), nil
}

// SubscriptionRenewPayload identifies the plan to renew.
type SubscriptionRenewPayload struct {
	PlanID int64 `json:"plan_id"`
}

// NewSubscriptionRenewTask constructs a subscription:renew task.
func NewSubscriptionRenewTask(planID int64) (*asynq.Task, error) {
	data, err := json.Marshal(SubscriptionRenewPayload{PlanID: planID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSubscriptionRenew, data, asynq.Queue(QueueDefault)), nil
}

// ScanPayload carries scheduling metadata for periodic scans.
type ScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewQuoteExpireScanTask constructs a quote:expire_scan task.
func NewQuoteExpireScanTask(at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeQuoteExpireScan, data, asynq.Queue(QueueDefault)), nil
}

// NewRenewalScanTask constructs a subscription:renew_scan task.
func NewRenewalScanTask(at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRenewalScan, data, asynq.Queue(QueueDefault)), nil
}

// CalendarPushPayload identifies the appointment to project.
type CalendarPushPayload struct {
	AppointmentID int64 `json:"appointment_id"`
}

// NewCalendarPushTask constructs a calendar:push task.
func NewCalendarPushTask(appointmentID int64) (*asynq.Task, error) {
	data, err := json.Marshal(CalendarPushPayload{AppointmentID: appointmentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCalendarPush, data, asynq.Queue(QueueDefault)), nil
}

// SendMailPayload identifies the document email to deliver.
type SendMailPayload struct {
	Kind       string `json:"kind"`
	DocumentID int64  `json:"document_id"`
	Recipient  string `json:"recipient"`
}

// NewSendMailTask constructs a mail:send task.
func NewSendMailTask(payload SendMailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendMail, data, asynq.Queue(QueueDefault)), nil
}
