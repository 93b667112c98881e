package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/gestio-app/gestio/internal/shared"
)

const dayCacheTTL = 5 * time.Minute

// Service manages appointments and their calendar projection. The day view
// is cached in redis because the booking page polls it.
// Dispatcher queues calendar projection instead of pushing inline.
type Dispatcher interface {
	EnqueueCalendarPush(ctx context.Context, appointmentID int64) error
}

type Service struct {
	store    Store
	calendar CalendarClient
	cache    *redis.Client
	dispatch Dispatcher
	flight   singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a scheduling service. cache may be nil; the day view
// then always hits the store.
func NewService(store Store, calendar CalendarClient, cache *redis.Client, logger *slog.Logger) *Service {
	if calendar == nil {
		calendar = NewLoggingCalendar(logger)
	}
	return &Service{store: store, calendar: calendar, cache: cache, logger: logger, now: time.Now}
}

// WithDispatcher attaches the background queue; Book then schedules the
// calendar projection asynchronously.
func (s *Service) WithDispatcher(dispatcher Dispatcher) *Service {
	s.dispatch = dispatcher
	return s
}

// Book creates a SCHEDULED appointment after checking the slot is free.
func (s *Service) Book(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	if !req.EndsAt.After(req.StartsAt) {
		return nil, fmt.Errorf("%w: ends_at must be after starts_at", shared.ErrValidation)
	}

	overlap, err := s.store.FindOverlap(ctx, req.CompanyID, req.StartsAt, req.EndsAt)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("check slot: %w", err)
	}
	if overlap != nil {
		return nil, fmt.Errorf("%w: slot overlaps appointment %d", shared.ErrConflict, overlap.ID)
	}

	appointment := Appointment{
		CompanyID: req.CompanyID,
		ClientID:  req.ClientID,
		Title:     req.Title,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Status:    StatusScheduled,
		Notes:     req.Notes,
	}
	if err := s.store.Insert(ctx, &appointment); err != nil {
		return nil, fmt.Errorf("book appointment: %w", err)
	}
	s.invalidateDay(ctx, appointment.CompanyID, appointment.StartsAt)
	if s.dispatch != nil {
		if err := s.dispatch.EnqueueCalendarPush(ctx, appointment.ID); err != nil {
			s.logger.Warn("calendar push enqueue failed",
				slog.Int64("appointment_id", appointment.ID), slog.Any("error", err))
		}
	}
	return &appointment, nil
}

// Cancel cancels a scheduled appointment and removes its calendar event.
func (s *Service) Cancel(ctx context.Context, id int64) (*Appointment, error) {
	appointment, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appointment.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: cannot cancel an appointment in status %s", shared.ErrInvalidStatus, appointment.Status)
	}
	if err := s.store.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	if appointment.CalendarEventID != nil {
		if err := s.calendar.Remove(ctx, *appointment.CalendarEventID); err != nil {
			s.logger.Warn("calendar remove failed",
				slog.Int64("appointment_id", id), slog.Any("error", err))
		}
	}
	s.invalidateDay(ctx, appointment.CompanyID, appointment.StartsAt)
	return s.store.Get(ctx, id)
}

// Complete marks a scheduled appointment DONE.
func (s *Service) Complete(ctx context.Context, id int64) (*Appointment, error) {
	appointment, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appointment.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: cannot complete an appointment in status %s", shared.ErrInvalidStatus, appointment.Status)
	}
	if err := s.store.UpdateStatus(ctx, id, StatusDone); err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}
	return s.store.Get(ctx, id)
}

// Get retrieves an appointment by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	return s.store.Get(ctx, id)
}

// PushToCalendar projects the appointment to the external calendar and
// stores the resulting event ID. Safe to re-run: pushing again with the
// stored ID updates the same event.
func (s *Service) PushToCalendar(ctx context.Context, id int64) error {
	appointment, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get appointment: %w", err)
	}
	if appointment.Status != StatusScheduled {
		return nil
	}
	event := CalendarEvent{
		Title:    appointment.Title,
		StartsAt: appointment.StartsAt.Format(time.RFC3339),
		EndsAt:   appointment.EndsAt.Format(time.RFC3339),
	}
	if appointment.CalendarEventID != nil {
		event.ID = *appointment.CalendarEventID
	}
	eventID, err := s.calendar.Push(ctx, event)
	if err != nil {
		return fmt.Errorf("calendar push: %w", err)
	}
	if appointment.CalendarEventID == nil || *appointment.CalendarEventID != eventID {
		if err := s.store.SetCalendarEventID(ctx, id, eventID); err != nil {
			return fmt.Errorf("store calendar event id: %w", err)
		}
	}
	return nil
}

func dayKey(companyID int64, day time.Time) string {
	return fmt.Sprintf("sched:day:%d:%s", companyID, day.UTC().Format("2006-01-02"))
}

// Day returns the company's appointments for one calendar day, cached.
// Concurrent misses for the same day share a single store read.
func (s *Service) Day(ctx context.Context, companyID int64, day time.Time) ([]Appointment, error) {
	key := dayKey(companyID, day)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var out []Appointment
			if jerr := json.Unmarshal(cached, &out); jerr == nil {
				return out, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("day cache read", slog.Any("error", err))
		}
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.loadDay(ctx, companyID, day, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Appointment), nil
}

func (s *Service) loadDay(ctx context.Context, companyID int64, day time.Time, key string) ([]Appointment, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	appointments, err := s.store.ListBetween(ctx, companyID, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(appointments); err == nil {
			if err := s.cache.Set(ctx, key, data, dayCacheTTL).Err(); err != nil {
				s.logger.Warn("day cache write", slog.Any("error", err))
			}
		}
	}
	return appointments, nil
}

func (s *Service) invalidateDay(ctx context.Context, companyID int64, day time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dayKey(companyID, day)).Err(); err != nil {
		s.logger.Warn("day cache invalidate", slog.Any("error", err))
	}
}
