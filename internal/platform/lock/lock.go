// Package lock serializes booking attempts per doctor. The database row lock
// is the correctness backstop; this lock exists to keep concurrent attempts
// for the same doctor from piling up on the payment gateway.
package lock

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when the lock is held by another booking attempt
// and could not be obtained within the configured wait.
var ErrNotAcquired = errors.New("doctor lock not acquired")

// DoctorLocker runs fn while holding an exclusive lock for the doctor.
type DoctorLocker interface {
	WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error
}
