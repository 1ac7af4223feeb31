package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/doctor"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/lock"
	"github.com/hms/hms/internal/platform/payment"
)

// Coordinator drives the booking workflow: slot validation, conflict
// detection, payment capture and cancellation with refund. All persistent
// writes of one operation share a transaction; the payment gateway call is
// made inside that boundary but its side effects are not transactional with
// the database.
type Coordinator struct {
	appointments Repository
	doctors      doctor.Repository
	gateway      payment.Gateway
	locker       lock.DoctorLocker
	runner       db.TxRunner
	currency     string
	logger       zerolog.Logger
}

func NewCoordinator(appointments Repository, doctors doctor.Repository, gateway payment.Gateway,
	locker lock.DoctorLocker, runner db.TxRunner, currency string, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		appointments: appointments,
		doctors:      doctors,
		gateway:      gateway,
		locker:       locker,
		runner:       runner,
		currency:     currency,
		logger:       logger.With().Str("component", "booking").Logger(),
	}
}

// BookRequest is the validated input for Book. AmountPaise of zero means
// charge the doctor's configured consultation fee.
type BookRequest struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	StartTime   time.Time `json:"start_time"`
	Mode        string    `json:"mode"`
	Symptoms    string    `json:"symptoms"`
	AmountPaise int64     `json:"amount_paise"`
}

// BookResult pairs the stored appointment with the gateway order that paid
// for it.
type BookResult struct {
	Appointment *Appointment   `json:"appointment"`
	Order       *payment.Order `json:"order"`
}

// Book places an appointment. Concurrent attempts for the same doctor
// serialize twice over: on the doctor locker outside the transaction, and on
// the doctor row lock inside it, so the overlap check and the insert cannot
// interleave with another booking.
func (c *Coordinator) Book(ctx context.Context, patientID uuid.UUID, req BookRequest) (*BookResult, error) {
	if req.DoctorID == uuid.Nil {
		return nil, apperr.Invalid("doctor_id is required")
	}
	if req.StartTime.IsZero() {
		return nil, apperr.Invalid("start_time is required")
	}
	if req.Mode == "" {
		return nil, apperr.Invalid("mode is required")
	}
	if !req.StartTime.After(time.Now()) {
		return nil, apperr.Invalid("start_time must be in the future")
	}

	var result *BookResult
	err := c.locker.WithDoctorLock(ctx, req.DoctorID, func(ctx context.Context) error {
		return c.runner.RunInTx(ctx, func(ctx context.Context) error {
			doc, err := c.doctors.LockForBooking(ctx, req.DoctorID)
			if err != nil {
				return err
			}
			if !doc.IsApproved {
				return apperr.Invalid("doctor is not accepting appointments")
			}

			amount := req.AmountPaise
			if amount == 0 {
				amount = doc.FeePaise
			}
			if amount <= 0 {
				return apperr.Invalid("amount must be positive")
			}

			if err := validateWithinSlot(doc.Slots, req.StartTime, DefaultDurationMinutes); err != nil {
				return err
			}

			end := req.StartTime.Add(DefaultDurationMinutes * time.Minute)
			overlapping, err := c.appointments.FindOverlapping(ctx, req.DoctorID, req.StartTime, end, nil)
			if err != nil {
				return err
			}
			if len(overlapping) > 0 {
				return apperr.Conflict("slot already booked")
			}

			receipt := "appt_" + uuid.NewString()
			order, err := c.gateway.CreateOrder(ctx, amount, c.currency, receipt)
			if err != nil {
				return err
			}

			appt := &Appointment{
				PatientID:       patientID,
				DoctorID:        req.DoctorID,
				StartTime:       req.StartTime,
				DurationMinutes: DefaultDurationMinutes,
				Mode:            req.Mode,
				Symptoms:        req.Symptoms,
				Status:          StatusScheduled,
				PaymentStatus:   PaymentPaid,
				OrderID:         order.ID,
				PaymentID:       fmt.Sprintf("pay_%d", time.Now().UnixNano()),
				AmountPaise:     amount,
			}
			if err := c.appointments.Create(ctx, appt); err != nil {
				return err
			}

			result = &BookResult{Appointment: appt, Order: order}
			return nil
		})
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, apperr.Conflict("another booking for this doctor is in progress")
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("appointment_id", result.Appointment.ID.String()).
		Str("doctor_id", req.DoctorID.String()).
		Time("start_time", req.StartTime).
		Int64("amount_paise", result.Appointment.AmountPaise).
		Msg("appointment booked")
	return result, nil
}

// validateWithinSlot checks that [start, start+duration) fits inside one of
// the doctor's availability windows on the matching weekday.
func validateWithinSlot(slots []doctor.WeeklySlot, start time.Time, durationMinutes int) error {
	day := start.Weekday()
	startMin := start.Hour()*60 + start.Minute()
	endMin := startMin + durationMinutes

	dayHasSlot := false
	for _, slot := range slots {
		if slot.Day != day {
			continue
		}
		dayHasSlot = true

		slotStart, err := slot.StartMinutes()
		if err != nil {
			return apperr.Internal(err)
		}
		slotEnd, err := slot.EndMinutes()
		if err != nil {
			return apperr.Internal(err)
		}
		if startMin >= slotStart && endMin <= slotEnd {
			return nil
		}
	}

	if !dayHasSlot {
		return apperr.Invalid("doctor has no availability on %s", day)
	}
	return apperr.Invalid("requested time is outside the doctor's availability or exceeds the slot")
}

// UpdateRequest patches an appointment. Nil fields are left unchanged.
type UpdateRequest struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	Mode      *string    `json:"mode,omitempty"`
	Symptoms  *string    `json:"symptoms,omitempty"`
}

// Update reschedules or edits an appointment. Only the original booker may
// update, terminal appointments are immutable, and a new start time is
// validated against availability and conflicts the same way Book does,
// excluding the appointment itself from the overlap check.
func (c *Coordinator) Update(ctx context.Context, actorID, appointmentID uuid.UUID, req UpdateRequest) (*Appointment, error) {
	var updated *Appointment

	err := c.runner.RunInTx(ctx, func(ctx context.Context) error {
		a, err := c.appointments.GetByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if a.PatientID != actorID {
			return apperr.Forbidden("only the booking patient may modify this appointment")
		}
		if a.Status == StatusCancelled || a.Status == StatusCompleted {
			return apperr.Invalid("%s appointments cannot be modified", a.Status)
		}

		if req.StartTime != nil && !req.StartTime.Equal(a.StartTime) {
			if !req.StartTime.After(time.Now()) {
				return apperr.Invalid("start_time must be in the future")
			}

			doc, err := c.doctors.LockForBooking(ctx, a.DoctorID)
			if err != nil {
				return err
			}
			if err := validateWithinSlot(doc.Slots, *req.StartTime, a.DurationMinutes); err != nil {
				return err
			}

			end := req.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
			overlapping, err := c.appointments.FindOverlapping(ctx, a.DoctorID, *req.StartTime, end, &a.ID)
			if err != nil {
				return err
			}
			if len(overlapping) > 0 {
				return apperr.Conflict("slot already booked")
			}
			a.StartTime = *req.StartTime
		}
		if req.Mode != nil {
			a.Mode = *req.Mode
		}
		if req.Symptoms != nil {
			a.Symptoms = *req.Symptoms
		}

		if err := c.appointments.Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelResult pairs the cancelled appointment with the gateway refund.
type CancelResult struct {
	Appointment *Appointment    `json:"appointment"`
	Refund      *payment.Refund `json:"refund"`
}

// Cancel refunds and cancels an appointment. A refund failure aborts the
// transaction and leaves the appointment in its prior state; no retry is
// attempted here.
func (c *Coordinator) Cancel(ctx context.Context, actorID, appointmentID uuid.UUID) (*CancelResult, error) {
	var result *CancelResult

	err := c.runner.RunInTx(ctx, func(ctx context.Context) error {
		a, err := c.appointments.GetByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if a.PatientID != actorID {
			return apperr.Forbidden("only the booking patient may cancel this appointment")
		}
		if a.Status == StatusCancelled {
			return apperr.Invalid("appointment is already cancelled")
		}
		if a.PaymentStatus != PaymentPaid {
			return apperr.Invalid("refund requires a paid appointment")
		}

		refund, err := c.gateway.Refund(ctx, a.PaymentID, a.AmountPaise)
		if err != nil {
			return err
		}

		a.Status = StatusCancelled
		a.PaymentStatus = PaymentRefunded
		a.RefundID = refund.ID
		if err := c.appointments.Update(ctx, a); err != nil {
			return err
		}

		result = &CancelResult{Appointment: a, Refund: refund}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("appointment_id", appointmentID.String()).
		Str("refund_id", result.Refund.ID).
		Msg("appointment cancelled and refunded")
	return result, nil
}

func (c *Coordinator) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return c.appointments.GetByID(ctx, id)
}

func (c *Coordinator) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return c.appointments.ListByPatient(ctx, patientID, limit, offset)
}

func (c *Coordinator) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit, offset int) ([]*Appointment, int, error) {
	return c.appointments.ListByDoctor(ctx, doctorID, from, to, limit, offset)
}
