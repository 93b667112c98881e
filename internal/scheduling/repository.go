package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestio-app/gestio/internal/shared"
)

// Store abstracts appointment persistence.
type Store interface {
	Get(ctx context.Context, id int64) (*Appointment, error)
	ListBetween(ctx context.Context, companyID int64, from, to time.Time) ([]Appointment, error)
	FindOverlap(ctx context.Context, companyID int64, startsAt, endsAt time.Time) (*Appointment, error)
	Insert(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id int64, status AppointmentStatus) error
	SetCalendarEventID(ctx context.Context, id int64, eventID string) error
}

// Repository implements Store over PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const appointmentColumns = `id, company_id, client_id, title, starts_at, ends_at,
       status, calendar_event_id, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.CompanyID, &a.ClientID, &a.Title, &a.StartsAt, &a.EndsAt,
		&a.Status, &a.CalendarEventID, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	return scanAppointment(r.pool.QueryRow(ctx, query, id))
}

func (r *Repository) ListBetween(ctx context.Context, companyID int64, from, to time.Time) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE company_id = $1 AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at`
	rows, err := r.pool.Query(ctx, query, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *Repository) FindOverlap(ctx context.Context, companyID int64, startsAt, endsAt time.Time) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE company_id = $1 AND status = 'SCHEDULED'
		  AND starts_at < $3 AND ends_at > $2
		LIMIT 1`
	return scanAppointment(r.pool.QueryRow(ctx, query, companyID, startsAt, endsAt))
}

func (r *Repository) Insert(ctx context.Context, a *Appointment) error {
	query := `
		INSERT INTO appointments (company_id, client_id, title, starts_at, ends_at, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	return r.pool.QueryRow(ctx, query,
		a.CompanyID, a.ClientID, a.Title, a.StartsAt, a.EndsAt, a.Status, a.Notes,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status AppointmentStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) SetCalendarEventID(ctx context.Context, id int64, eventID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE appointments SET calendar_event_id = $2, updated_at = NOW() WHERE id = $1`, id, eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
