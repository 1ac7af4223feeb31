package pharmacy

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/inventory"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
)

// Service owns the prescription lifecycle and the dispensing allocator.
type Service struct {
	prescriptions Repository
	products      inventory.ProductRepository
	batches       inventory.BatchRepository
	txns          inventory.TransactionRepository
	runner        db.TxRunner
	logger        zerolog.Logger
}

func NewService(prescriptions Repository, products inventory.ProductRepository,
	batches inventory.BatchRepository, txns inventory.TransactionRepository,
	runner db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		prescriptions: prescriptions,
		products:      products,
		batches:       batches,
		txns:          txns,
		runner:        runner,
		logger:        logger.With().Str("component", "pharmacy").Logger(),
	}
}

var validPriorities = map[string]bool{
	PriorityRoutine: true, PriorityUrgent: true, PriorityEmergency: true,
}

var validStatuses = map[string]bool{
	StatusPending: true, StatusReceived: true, StatusDispensed: true, StatusCancelled: true,
}

func (s *Service) Create(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return apperr.Invalid("patient_id is required")
	}
	if p.DoctorID == uuid.Nil {
		return apperr.Invalid("doctor_id is required")
	}
	if len(p.Items) == 0 {
		return apperr.Invalid("prescription must have at least one item")
	}
	if p.Priority == "" {
		p.Priority = PriorityRoutine
	}
	if !validPriorities[p.Priority] {
		return apperr.Invalid("invalid priority: %s", p.Priority)
	}
	for _, it := range p.Items {
		if strings.TrimSpace(it.MedicineName) == "" {
			return apperr.Invalid("medicine_name is required on every item")
		}
		if it.Quantity <= 0 {
			return apperr.Invalid("item %s: quantity must be positive", it.MedicineName)
		}
	}
	p.Status = StatusPending
	return s.prescriptions.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

// SendToPharmacy moves a written prescription into the pharmacy queue.
func (s *Service) SendToPharmacy(ctx context.Context, id uuid.UUID) error {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != StatusPending {
		return apperr.Invalid("prescription is %s, only PENDING prescriptions can be sent to pharmacy", p.Status)
	}
	return s.prescriptions.UpdateStatus(ctx, id, StatusReceived)
}

// Queue lists the pharmacy work queue, emergencies first. An empty status
// defaults to RECEIVED, the prescriptions waiting to be dispensed.
func (s *Service) Queue(ctx context.Context, status string, limit, offset int) ([]*Prescription, int, error) {
	if status == "" {
		status = StatusReceived
	}
	if !validStatuses[status] {
		return nil, 0, apperr.Invalid("invalid status: %s", status)
	}
	return s.prescriptions.Queue(ctx, status, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == StatusDispensed {
		return apperr.Invalid("dispensed prescriptions cannot be cancelled")
	}
	if p.Status == StatusCancelled {
		return apperr.Invalid("prescription is already cancelled")
	}
	return s.prescriptions.UpdateStatus(ctx, id, StatusCancelled)
}

// Dispense allocates stock for every product-linked item of the prescription
// and marks it dispensed. Allocation drains batches closest to expiry first.
// The whole prescription is all-or-nothing: if any item cannot be covered by
// unexpired stock, no batch is touched and the prescription stays in the
// queue. Items without a product link are dispensed from external stock and
// skipped here.
func (s *Service) Dispense(ctx context.Context, pharmacistID, prescriptionID uuid.UUID) (*Prescription, error) {
	var dispensed *Prescription

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.prescriptions.GetByID(ctx, prescriptionID)
		if err != nil {
			return err
		}
		if p.Status == StatusDispensed {
			return apperr.Invalid("prescription is already dispensed")
		}
		if p.Status == StatusCancelled {
			return apperr.Invalid("cancelled prescriptions cannot be dispensed")
		}

		now := time.Now()
		for _, item := range p.Items {
			if item.ProductID == nil {
				continue
			}
			if err := s.allocateItem(ctx, pharmacistID, p.ID, item, now); err != nil {
				return err
			}
		}

		if err := s.prescriptions.MarkDispensed(ctx, p.ID, pharmacistID, now); err != nil {
			return err
		}

		p.Status = StatusDispensed
		p.DispensedBy = &pharmacistID
		p.DispensedAt = &now
		dispensed = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("prescription_id", prescriptionID.String()).
		Str("pharmacist_id", pharmacistID.String()).
		Msg("prescription dispensed")
	return dispensed, nil
}

// allocateItem covers one item from the product's batches in
// first-expiry-first-out order. The availability check runs against row-locked
// batches, so a concurrent dispense cannot oversell the same stock.
func (s *Service) allocateItem(ctx context.Context, pharmacistID, prescriptionID uuid.UUID, item PrescriptionItem, now time.Time) error {
	batches, err := s.batches.ListActiveForUpdate(ctx, *item.ProductID, now)
	if err != nil {
		return err
	}

	available := 0
	for _, b := range batches {
		available += b.Quantity
	}
	if available < item.Quantity {
		return apperr.InsufficientStock(item.MedicineName)
	}

	remaining := item.Quantity
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}

		if err := s.batches.Decrement(ctx, b.ID, take); err != nil {
			return err
		}

		batchID := b.ID
		refID := prescriptionID
		if err := s.txns.Append(ctx, &inventory.Transaction{
			ProductID:     *item.ProductID,
			BatchID:       &batchID,
			Type:          inventory.TxnIssue,
			Quantity:      take,
			ReferenceType: "prescription",
			ReferenceID:   &refID,
			PerformedBy:   pharmacistID,
		}); err != nil {
			return err
		}

		remaining -= take
	}

	return s.products.AdjustTotal(ctx, *item.ProductID, -item.Quantity)
}
