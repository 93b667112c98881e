package scheduling

import "time"

// AppointmentStatus tracks an appointment's lifecycle.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusDone      AppointmentStatus = "DONE"
)

// Appointment is a booked time slot with a client.
type Appointment struct {
	ID              int64             `json:"id" db:"id"`
	CompanyID       int64             `json:"company_id" db:"company_id"`
	ClientID        int64             `json:"client_id" db:"client_id"`
	Title           string            `json:"title" db:"title"`
	StartsAt        time.Time         `json:"starts_at" db:"starts_at"`
	EndsAt          time.Time         `json:"ends_at" db:"ends_at"`
	Status          AppointmentStatus `json:"status" db:"status"`
	CalendarEventID *string           `json:"calendar_event_id,omitempty" db:"calendar_event_id"`
	Notes           *string           `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// CreateAppointmentRequest books a new slot.
type CreateAppointmentRequest struct {
	CompanyID int64     `json:"company_id" validate:"required,gt=0"`
	ClientID  int64     `json:"client_id" validate:"required,gt=0"`
	Title     string    `json:"title" validate:"required,max=200"`
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	EndsAt    time.Time `json:"ends_at" validate:"required"`
	Notes     *string   `json:"notes,omitempty"`
}
