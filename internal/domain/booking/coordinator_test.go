package booking

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/doctor"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/lock"
	"github.com/hms/hms/internal/platform/payment"
)

type mockDoctorRepo struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*doctor.Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*doctor.Doctor)}
}

func (m *mockDoctorRepo) Create(ctx context.Context, d *doctor.Doctor) error {
	d.ID = uuid.New()
	m.doctors[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor not found")
	}
	return d, nil
}

func (m *mockDoctorRepo) List(ctx context.Context, department string, approvedOnly bool, limit, offset int) ([]*doctor.Doctor, int, error) {
	return nil, 0, nil
}

func (m *mockDoctorRepo) Update(ctx context.Context, d *doctor.Doctor) error { return nil }

func (m *mockDoctorRepo) Approve(ctx context.Context, id uuid.UUID) error { return nil }

func (m *mockDoctorRepo) SetSlots(ctx context.Context, doctorID uuid.UUID, slots []doctor.WeeklySlot) error {
	return nil
}

func (m *mockDoctorRepo) AddSlot(ctx context.Context, slot *doctor.WeeklySlot) error { return nil }

func (m *mockDoctorRepo) RemoveSlot(ctx context.Context, doctorID, slotID uuid.UUID) error {
	return nil
}

func (m *mockDoctorRepo) LockForBooking(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor not found")
	}
	now := time.Now()
	d.LastBookingAttempt = &now
	return d, nil
}

type mockApptRepo struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{appointments: make(map[uuid.UUID]*Appointment)}
}

func (m *mockApptRepo) Create(ctx context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	cp := *a
	m.appointments[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) Update(ctx context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[a.ID]; !ok {
		return apperr.NotFound("appointment not found")
	}
	cp := *a
	m.appointments[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) FindOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*Appointment
	for _, a := range m.appointments {
		if a.DoctorID != doctorID {
			continue
		}
		if a.Status != StatusScheduled && a.Status != StatusCompleted {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if a.StartTime.Before(end) && a.EndTime().After(start) {
			items = append(items, a)
		}
	}
	return items, nil
}

func (m *mockApptRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return nil, 0, nil
}

func (m *mockApptRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit, offset int) ([]*Appointment, int, error) {
	return nil, 0, nil
}

type fakeGateway struct {
	mu          sync.Mutex
	orders      int
	refunds     int
	failOrders  bool
	failRefunds bool
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOrders {
		return nil, apperr.Gateway(nil, "gateway unavailable")
	}
	g.orders++
	return &payment.Order{
		ID:        fmt.Sprintf("order_%d", g.orders),
		Amount:    amount,
		Currency:  currency,
		Receipt:   receipt,
		Status:    "created",
		CreatedAt: time.Now(),
	}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentID string, amount int64) (*payment.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRefunds {
		return nil, apperr.Gateway(nil, "refund rejected")
	}
	g.refunds++
	return &payment.Refund{
		ID:        fmt.Sprintf("rfnd_%d", g.refunds),
		PaymentID: paymentID,
		Amount:    amount,
		Status:    "processed",
		CreatedAt: time.Now(),
	}, nil
}

func newTestCoordinator() (*Coordinator, *mockDoctorRepo, *mockApptRepo, *fakeGateway) {
	doctors := newMockDoctorRepo()
	appointments := newMockApptRepo()
	gateway := &fakeGateway{}
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	coord := NewCoordinator(appointments, doctors, gateway,
		lock.NewLocalDoctorLocker(), db.PassthroughTxRunner{}, "INR", logger)
	return coord, doctors, appointments, gateway
}

// mondayDoctor creates an approved doctor available Monday 09:00-10:00.
func mondayDoctor(t *testing.T, doctors *mockDoctorRepo) *doctor.Doctor {
	t.Helper()
	d := &doctor.Doctor{
		Name:       "Dr. Rao",
		Email:      "rao@hospital.test",
		FeePaise:   50000,
		IsApproved: true,
		Slots: []doctor.WeeklySlot{
			{Day: time.Monday, StartTime: "09:00", EndTime: "10:00"},
		},
	}
	if err := doctors.Create(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	return d
}

// nextMonday returns the next future Monday at the given local clock time.
func nextMonday(hour, min int) time.Time {
	t := time.Now().AddDate(0, 0, 1)
	for t.Weekday() != time.Monday {
		t = t.AddDate(0, 0, 1)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), hour, min, 0, 0, time.Local)
}

func TestBook_Success(t *testing.T) {
	coord, doctors, appointments, gateway := newTestCoordinator()
	ctx := context.Background()
	doc := mondayDoctor(t, doctors)
	patient := uuid.New()

	result, err := coord.Book(ctx, patient, BookRequest{
		DoctorID:  doc.ID,
		StartTime: nextMonday(9, 15),
		Mode:      "in-person",
		Symptoms:  "persistent cough",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	a := result.Appointment
	if a.Status != StatusScheduled {
		t.Errorf("status = %s, want scheduled", a.Status)
	}
	if a.PaymentStatus != PaymentPaid {
		t.Errorf("payment status = %s, want paid", a.PaymentStatus)
	}
	if a.AmountPaise != 50000 {
		t.Errorf("amount = %d, want doctor fee 50000", a.AmountPaise)
	}
	if a.OrderID != result.Order.ID {
		t.Errorf("order id mismatch: %s vs %s", a.OrderID, result.Order.ID)
	}
	if !strings.HasPrefix(a.PaymentID, "pay_") {
		t.Errorf("payment id = %s, want pay_ prefix", a.PaymentID)
	}
	if a.DurationMinutes != DefaultDurationMinutes {
		t.Errorf("duration = %d, want %d", a.DurationMinutes, DefaultDurationMinutes)
	}
	if gateway.orders != 1 {
		t.Errorf("gateway orders = %d, want 1", gateway.orders)
	}
	if len(appointments.appointments) != 1 {
		t.Errorf("stored appointments = %d, want 1", len(appointments.appointments))
	}
	if doctors.doctors[doc.ID].LastBookingAttempt == nil {
		t.Error("expected last booking attempt stamped")
	}
}

func TestBook_SlotContainment(t *testing.T) {
	coord, doctors, _, _ := newTestCoordinator()
	ctx := context.Background()

	tests := []struct {
		name     string
		start    time.Time
		wantKind apperr.Kind
	}{
		{"inside slot", nextMonday(9, 15), apperr.KindUnknown},
		{"at slot start", nextMonday(9, 0), apperr.KindUnknown},
		{"ends exactly at slot end", nextMonday(9, 30), apperr.KindUnknown},
		{"would exceed slot end", nextMonday(9, 45), apperr.KindInvalid},
		{"before slot opens", nextMonday(8, 30), apperr.KindInvalid},
		{"day without availability", nextMonday(9, 15).AddDate(0, 0, 1), apperr.KindInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mondayDoctor(t, doctors)
			_, err := coord.Book(ctx, uuid.New(), BookRequest{
				DoctorID:  doc.ID,
				StartTime: tt.start,
				Mode:      "in-person",
			})
			if tt.wantKind == apperr.KindUnknown {
				if err != nil {
					t.Errorf("Book: %v", err)
				}
				return
			}
			if !apperr.IsKind(err, tt.wantKind) {
				t.Errorf("expected %v error, got %v", tt.wantKind, err)
			}
		})
	}
}

func TestBook_Conflict(t *testing.T) {
	coord, doctors, _, _ := newTestCoordinator()
	ctx := context.Background()
	doc := mondayDoctor(t, doctors)

	first := BookRequest{DoctorID: doc.ID, StartTime: nextMonday(9, 0), Mode: "in-person"}
	if _, err := coord.Book(ctx, uuid.New(), first); err != nil {
		t.Fatalf("first Book: %v", err)
	}

	// Same window conflicts.
	if _, err := coord.Book(ctx, uuid.New(), first); !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	// Partially overlapping window conflicts.
	overlap := BookRequest{DoctorID: doc.ID, StartTime: nextMonday(9, 15), Mode: "in-person"}
	if _, err := coord.Book(ctx, uuid.New(), overlap); !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict for overlap, got %v", err)
	}

	// Back-to-back does not conflict: intervals are half-open.
	adjacent := BookRequest{DoctorID: doc.ID, StartTime: nextMonday(9, 30), Mode: "in-person"}
	if _, err := coord.Book(ctx, uuid.New(), adjacent); err != nil {
		t.Errorf("adjacent booking should succeed, got %v", err)
	}
}

func TestBook_GatewayFailureLeavesNoAppointment(t *testing.T) {
	coord, doctors, appointments, gateway := newTestCoordinator()
	ctx := context.Background()
	doc := mondayDoctor(t, doctors)
	gateway.failOrders = true

	_, err := coord.Book(ctx, uuid.New(), BookRequest{
		DoctorID:  doc.ID,
		StartTime: nextMonday(9, 15),
		Mode:      "in-person",
	})
	if !apperr.IsKind(err, apperr.KindGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if len(appointments.appointments) != 0 {
		t.Errorf("no appointment may be stored after gateway failure, got %d", len(appointments.appointments))
	}
}

func TestBook_UnapprovedDoctor(t *testing.T) {
	coord, doctors, _, _ := newTestCoordinator()
	ctx := context.Background()

	doc := mondayDoctor(t, doctors)
	doctors.doctors[doc.ID].IsApproved = false

	_, err := coord.Book(ctx, uuid.New(), BookRequest{
		DoctorID:  doc.ID,
		StartTime: nextMonday(9, 15),
		Mode:      "in-person",
	})
	if !apperr.IsKind(err, apperr.KindInvalid) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestBook_Validation(t *testing.T) {
	coord, doctors, _, _ := newTestCoordinator()
	ctx := context.Background()
	doc := mondayDoctor(t, doctors)

	tests := []struct {
		name string
		req  BookRequest
	}{
		{"missing doctor", BookRequest{StartTime: nextMonday(9, 15), Mode: "in-person"}},
		{"missing start", BookRequest{DoctorID: doc.ID, Mode: "in-person"}},
		{"missing mode", BookRequest{DoctorID: doc.ID, StartTime: nextMonday(9, 15)}},
		{"past start", BookRequest{DoctorID: doc.ID, StartTime: time.Now().Add(-time.Hour), Mode: "in-person"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := coord.Book(ctx, uuid.New(), tt.req); !apperr.IsKind(err, apperr.KindInvalid) {
				t.Errorf("expected invalid error, got %v", err)
			}
		})
	}
}

// TestBook_ConcurrentSameWindow exercises the no-double-booking property:
// many goroutines race for the same doctor window, exactly one wins.
func TestBook_ConcurrentSameWindow(t *testing.T) {
	coord, doctors, appointments, gateway := newTestCoordinator()
	ctx := context.Background()
	doc := mondayDoctor(t, doctors)
	start := nextMonday(9, 15)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Book(ctx, uuid.New(), BookRequest{
				DoctorID:  doc.ID,
				StartTime: start,
				Mode:      "in-person",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.IsKind(err, apperr.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if conflicts != n-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, n-1)
	}
	if len(appointments.appointments) != 1 {
		t.Errorf("stored appointments = %d, want 1", len(appointments.appointments))
	}
	if gateway.orders != 1 {
		t.Errorf("gateway orders = %d, want 1 (losers must not be charged)", gateway.orders)
	}
}

func TestUpdate_RevalidatesSlotAndOverlap(t *testing.T) {
	coord, doctors, _, _ := newTestCoordinator()
	ctx := context.Background()
	doc := mondayDoctor(t, doctors)
	patient := uuid.New()

	booked, err := coord.Book(ctx, patient, BookRequest{
		DoctorID: doc.ID, StartTime: nextMonday(9, 0), Mode: "in-person",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	other, err := coord.Book(ctx, uuid.New(), BookRequest{
		DoctorID: doc.ID, StartTime: nextMonday(9, 30), Mode: "in-person",
	})
	if err != nil {
		t.Fatalf("Book other: %v", err)
	}

	// Rescheduling onto the other booking's window is rejected.
	conflicting := nextMonday(9, 30)
	_, err = coord.Update(ctx, patient, booked.Appointment.ID, UpdateRequest{StartTime: &conflicting})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict on reschedule, got %v", err)
	}

	// Rescheduling outside availability is rejected.
	outside := nextMonday(9, 45)
	_, err = coord.Update(ctx, patient, booked.Appointment.ID, UpdateRequest{StartTime: &outside})
	if !apperr.IsKind(err, apperr.KindInvalid) {
		t.Errorf("expected invalid on out-of-slot reschedule, got %v", err)
	}

	// The other patient frees their window; reschedule now succeeds, and the
	// appointment's own row does not count as a conflict with itself.
	if _, err := coord.Cancel(ctx, other.Appointment.PatientID, other.Appointment.ID); err != nil {
		t.Fatalf("Cancel other: %v", err)
	}
	updated, err := coord.Update(ctx, patient, booked.Appointment.ID, UpdateRequest{StartTime: &conflicting})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.StartTime.Equal(conflicting) {
		t.Errorf("start = %v, want %v", updated.StartTime, conflicting)
	}
}

func TestUpdate_Permissions(t *testing.T) {
	coord, doctors, _, _ := newTestCoordinator()
	ctx := context.Background()
	doc := mondayDoctor(t, doctors)
	patient := uuid.New()

	booked, err := coord.Book(ctx, patient, BookRequest{
		DoctorID: doc.ID, StartTime: nextMonday(9, 0), Mode: "in-person",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	mode := "video"
	if _, err := coord.Update(ctx, uuid.New(), booked.Appointment.ID, UpdateRequest{Mode: &mode}); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden for non-booker, got %v", err)
	}

	if _, err := coord.Cancel(ctx, patient, booked.Appointment.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := coord.Update(ctx, patient, booked.Appointment.ID, UpdateRequest{Mode: &mode}); !apperr.IsKind(err, apperr.KindInvalid) {
		t.Errorf("expected invalid for cancelled appointment, got %v", err)
	}
}

func TestCancel_RefundFlow(t *testing.T) {
	coord, doctors, appointments, gateway := newTestCoordinator()
	ctx := context.Background()
	doc := mondayDoctor(t, doctors)
	patient := uuid.New()

	booked, err := coord.Book(ctx, patient, BookRequest{
		DoctorID: doc.ID, StartTime: nextMonday(9, 0), Mode: "in-person",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	result, err := coord.Cancel(ctx, patient, booked.Appointment.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if result.Appointment.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", result.Appointment.Status)
	}
	if result.Appointment.PaymentStatus != PaymentRefunded {
		t.Errorf("payment status = %s, want refunded", result.Appointment.PaymentStatus)
	}
	if result.Appointment.RefundID != result.Refund.ID {
		t.Errorf("refund id not recorded on appointment")
	}
	if result.Refund.Amount != booked.Appointment.AmountPaise {
		t.Errorf("refund amount = %d, want %d", result.Refund.Amount, booked.Appointment.AmountPaise)
	}

	// Cancelling again is rejected.
	if _, err := coord.Cancel(ctx, patient, booked.Appointment.ID); !apperr.IsKind(err, apperr.KindInvalid) {
		t.Errorf("expected invalid on double cancel, got %v", err)
	}

	// Non-booker may not cancel.
	another, _ := coord.Book(ctx, patient, BookRequest{
		DoctorID: doc.ID, StartTime: nextMonday(9, 30), Mode: "in-person",
	})
	if _, err := coord.Cancel(ctx, uuid.New(), another.Appointment.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}

	_ = appointments
	_ = gateway
}

func TestCancel_RefundFailureLeavesStateUnchanged(t *testing.T) {
	coord, doctors, appointments, gateway := newTestCoordinator()
	ctx := context.Background()
	doc := mondayDoctor(t, doctors)
	patient := uuid.New()

	booked, err := coord.Book(ctx, patient, BookRequest{
		DoctorID: doc.ID, StartTime: nextMonday(9, 0), Mode: "in-person",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	gateway.failRefunds = true
	_, err = coord.Cancel(ctx, patient, booked.Appointment.ID)
	if !apperr.IsKind(err, apperr.KindGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	stored := appointments.appointments[booked.Appointment.ID]
	if stored.Status != StatusScheduled || stored.PaymentStatus != PaymentPaid {
		t.Errorf("appointment state changed after refund failure: %s/%s", stored.Status, stored.PaymentStatus)
	}
	if stored.RefundID != "" {
		t.Errorf("refund id must not be set, got %s", stored.RefundID)
	}
}
