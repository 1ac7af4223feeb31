package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists appointments.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error

	// FindOverlapping returns appointments of the doctor in scheduled or
	// completed state whose half-open interval overlaps [start, end).
	// exclude, when non-nil, omits that appointment (used on reschedule).
	FindOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) ([]*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit, offset int) ([]*Appointment, int, error)
}
