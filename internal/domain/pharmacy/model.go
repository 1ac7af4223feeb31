package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

// Prescription statuses.
const (
	StatusPending   = "PENDING"   // written, not yet sent to pharmacy
	StatusReceived  = "RECEIVED"  // in the pharmacy queue
	StatusDispensed = "DISPENSED" // stock allocated and handed over
	StatusCancelled = "CANCELLED"
)

// Prescription priorities.
const (
	PriorityRoutine   = "ROUTINE"
	PriorityUrgent    = "URGENT"
	PriorityEmergency = "EMERGENCY"
)

// PriorityRank orders the pharmacy queue. Higher dispenses first.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityEmergency:
		return 3
	case PriorityUrgent:
		return 2
	default:
		return 1
	}
}

type Prescription struct {
	ID            uuid.UUID          `json:"id"`
	PatientID     uuid.UUID          `json:"patient_id"`
	DoctorID      uuid.UUID          `json:"doctor_id"`
	AppointmentID *uuid.UUID         `json:"appointment_id,omitempty"`
	Status        string             `json:"status"`
	Priority      string             `json:"priority"`
	Notes         string             `json:"notes,omitempty"`
	Items         []PrescriptionItem `json:"items"`
	DispensedBy   *uuid.UUID         `json:"dispensed_by,omitempty"`
	DispensedAt   *time.Time         `json:"dispensed_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// PrescriptionItem is one medicine line. ProductID links the line to an
// inventory product; lines without a link (externally sourced medicines)
// are skipped by the dispensing allocator.
type PrescriptionItem struct {
	ID             uuid.UUID  `json:"id"`
	PrescriptionID uuid.UUID  `json:"prescription_id"`
	ProductID      *uuid.UUID `json:"product_id,omitempty"`
	MedicineName   string     `json:"medicine_name"`
	Dosage         string     `json:"dosage,omitempty"`
	Frequency      string     `json:"frequency,omitempty"`
	DurationDays   int        `json:"duration_days,omitempty"`
	Quantity       int        `json:"quantity"`
	Instructions   string     `json:"instructions,omitempty"`
}
