package scheduling

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/shared"
)

type mockStore struct {
	appointments map[int64]*Appointment
	nextID       int64
	listCalls    int
}

func newMockStore() *mockStore {
	return &mockStore{appointments: make(map[int64]*Appointment), nextID: 1}
}

func (m *mockStore) Get(ctx context.Context, id int64) (*Appointment, error) {
	a, ok := m.appointments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockStore) ListBetween(ctx context.Context, companyID int64, from, to time.Time) ([]Appointment, error) {
	m.listCalls++
	var out []Appointment
	for _, a := range m.appointments {
		if a.CompanyID == companyID && !a.StartsAt.Before(from) && a.StartsAt.Before(to) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockStore) FindOverlap(ctx context.Context, companyID int64, startsAt, endsAt time.Time) (*Appointment, error) {
	for _, a := range m.appointments {
		if a.CompanyID != companyID || a.Status != StatusScheduled {
			continue
		}
		if a.StartsAt.Before(endsAt) && a.EndsAt.After(startsAt) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockStore) Insert(ctx context.Context, a *Appointment) error {
	a.ID = m.nextID
	m.nextID++
	cp := *a
	m.appointments[a.ID] = &cp
	return nil
}

func (m *mockStore) UpdateStatus(ctx context.Context, id int64, status AppointmentStatus) error {
	a, ok := m.appointments[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *mockStore) SetCalendarEventID(ctx context.Context, id int64, eventID string) error {
	a, ok := m.appointments[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.CalendarEventID = &eventID
	return nil
}

type recordingCalendar struct {
	pushed  []CalendarEvent
	removed []string
}

func (c *recordingCalendar) Push(ctx context.Context, event CalendarEvent) (string, error) {
	c.pushed = append(c.pushed, event)
	if event.ID != "" {
		return event.ID, nil
	}
	return "evt-1", nil
}

func (c *recordingCalendar) Remove(ctx context.Context, eventID string) error {
	c.removed = append(c.removed, eventID)
	return nil
}

var slotStart = time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC)

func makeRequest() CreateAppointmentRequest {
	return CreateAppointmentRequest{
		CompanyID: 1,
		ClientID:  10,
		Title:     "Rendez-vous devis cuisine",
		StartsAt:  slotStart,
		EndsAt:    slotStart.Add(time.Hour),
	}
}

func TestBookRejectsOverlap(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, &recordingCalendar{}, nil, slog.Default())
	ctx := context.Background()

	_, err := svc.Book(ctx, makeRequest())
	require.NoError(t, err)

	req := makeRequest()
	req.StartsAt = slotStart.Add(30 * time.Minute)
	req.EndsAt = slotStart.Add(90 * time.Minute)
	_, err = svc.Book(ctx, req)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestBookRejectsInvertedSlot(t *testing.T) {
	svc := NewService(newMockStore(), &recordingCalendar{}, nil, slog.Default())
	req := makeRequest()
	req.EndsAt = req.StartsAt
	_, err := svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCancelRemovesCalendarEvent(t *testing.T) {
	store := newMockStore()
	calendar := &recordingCalendar{}
	svc := NewService(store, calendar, nil, slog.Default())
	ctx := context.Background()

	appointment, err := svc.Book(ctx, makeRequest())
	require.NoError(t, err)
	require.NoError(t, svc.PushToCalendar(ctx, appointment.ID))

	cancelled, err := svc.Cancel(ctx, appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, []string{"evt-1"}, calendar.removed)

	_, err = svc.Cancel(ctx, appointment.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestPushToCalendarIdempotent(t *testing.T) {
	store := newMockStore()
	calendar := &recordingCalendar{}
	svc := NewService(store, calendar, nil, slog.Default())
	ctx := context.Background()

	appointment, err := svc.Book(ctx, makeRequest())
	require.NoError(t, err)

	require.NoError(t, svc.PushToCalendar(ctx, appointment.ID))
	require.NoError(t, svc.PushToCalendar(ctx, appointment.ID))

	require.Len(t, calendar.pushed, 2)
	assert.Empty(t, calendar.pushed[0].ID)
	assert.Equal(t, "evt-1", calendar.pushed[1].ID, "second push reuses the stored event")

	got, err := svc.Get(ctx, appointment.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CalendarEventID)
	assert.Equal(t, "evt-1", *got.CalendarEventID)
}

func TestDayViewCached(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMockStore()
	svc := NewService(store, &recordingCalendar{}, client, slog.Default())
	ctx := context.Background()

	_, err := svc.Book(ctx, makeRequest())
	require.NoError(t, err)
	store.listCalls = 0

	day := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	first, err := svc.Day(ctx, 1, day)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, store.listCalls)

	second, err := svc.Day(ctx, 1, day)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, store.listCalls, "second read served from cache")

	// A new booking on the same day invalidates the cache.
	req := makeRequest()
	req.StartsAt = slotStart.Add(2 * time.Hour)
	req.EndsAt = slotStart.Add(3 * time.Hour)
	_, err = svc.Book(ctx, req)
	require.NoError(t, err)

	third, err := svc.Day(ctx, 1, day)
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 2, store.listCalls)
}
