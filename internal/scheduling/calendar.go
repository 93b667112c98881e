package scheduling

import (
	"context"
	"log/slog"
)

// CalendarEvent is the external calendar's view of an appointment.
type CalendarEvent struct {
	ID       string
	Title    string
	StartsAt string
	EndsAt   string
}

// CalendarClient pushes appointment changes to an external calendar.
// Implementations must be safe to call from job handlers; errors are
// retried by the queue.
type CalendarClient interface {
	Push(ctx context.Context, event CalendarEvent) (string, error)
	Remove(ctx context.Context, eventID string) error
}

// LoggingCalendar is the in-tree CalendarClient: it records intents in the
// log and reports success. Used wherever no external calendar is configured.
type LoggingCalendar struct {
	logger *slog.Logger
}

// NewLoggingCalendar constructs a LoggingCalendar.
func NewLoggingCalendar(logger *slog.Logger) *LoggingCalendar {
	return &LoggingCalendar{logger: logger}
}

func (c *LoggingCalendar) Push(ctx context.Context, event CalendarEvent) (string, error) {
	c.logger.Info("calendar push",
		slog.String("event_id", event.ID),
		slog.String("title", event.Title),
		slog.String("starts_at", event.StartsAt))
	if event.ID != "" {
		return event.ID, nil
	}
	return "local-" + event.StartsAt, nil
}

func (c *LoggingCalendar) Remove(ctx context.Context, eventID string) error {
	c.logger.Info("calendar remove", slog.String("event_id", eventID))
	return nil
}
