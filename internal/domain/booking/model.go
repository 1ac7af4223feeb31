package booking

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. Cancelled and completed are terminal.
const (
	StatusPending   = "pending"
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

// DefaultDurationMinutes is the consultation length used for slot containment
// and overlap checks.
const DefaultDurationMinutes = 30

// Appointment is a booked consultation. Appointments are never deleted;
// cancellation is a status transition and the payment trail stays on the row.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Mode            string    `json:"mode"`
	Symptoms        string    `json:"symptoms,omitempty"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"payment_status"`
	OrderID         string    `json:"order_id,omitempty"`
	PaymentID       string    `json:"payment_id,omitempty"`
	RefundID        string    `json:"refund_id,omitempty"`
	AmountPaise     int64     `json:"amount_paise"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EndTime is the exclusive end of the appointment's interval.
func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}
