package doctor

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists doctors and their weekly availability.
type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, department string, approvedOnly bool, limit, offset int) ([]*Doctor, int, error)
	Update(ctx context.Context, d *Doctor) error
	Approve(ctx context.Context, id uuid.UUID) error

	// SetSlots replaces the doctor's weekly availability wholesale.
	SetSlots(ctx context.Context, doctorID uuid.UUID, slots []WeeklySlot) error

	// AddSlot appends a single availability window.
	AddSlot(ctx context.Context, slot *WeeklySlot) error

	// RemoveSlot deletes one of the doctor's windows.
	RemoveSlot(ctx context.Context, doctorID, slotID uuid.UUID) error

	// LockForBooking takes the doctor's row lock for the duration of the
	// surrounding transaction and stamps last_booking_attempt. Concurrent
	// bookings for the same doctor serialize on this call.
	LockForBooking(ctx context.Context, id uuid.UUID) (*Doctor, error)
}
