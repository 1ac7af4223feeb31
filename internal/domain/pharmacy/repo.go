package pharmacy

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists prescriptions and their items.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkDispensed(ctx context.Context, id, dispensedBy uuid.UUID, at time.Time) error

	// Queue returns prescriptions in the given status, highest priority
	// first, oldest first within a priority.
	Queue(ctx context.Context, status string, limit, offset int) ([]*Prescription, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
}
