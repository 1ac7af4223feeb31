package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
)

type Service struct {
	products ProductRepository
	batches  BatchRepository
	txns     TransactionRepository
	runner   db.TxRunner
	logger   zerolog.Logger
}

func NewService(products ProductRepository, batches BatchRepository, txns TransactionRepository, runner db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		products: products,
		batches:  batches,
		txns:     txns,
		runner:   runner,
		logger:   logger.With().Str("component", "inventory").Logger(),
	}
}

func (s *Service) CreateProduct(ctx context.Context, p *Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return apperr.Invalid("sku is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Invalid("name is required")
	}
	if p.UnitPricePaise < 0 {
		return apperr.Invalid("unit price must not be negative")
	}
	if p.ReorderLevel < 0 {
		return apperr.Invalid("reorder level must not be negative")
	}
	p.TotalQuantity = 0
	return s.products.Create(ctx, p)
}

func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, category string, limit, offset int) ([]*Product, int, error) {
	return s.products.List(ctx, category, limit, offset)
}

// DeactivateProduct retires a product from the catalog. Existing ledger
// entries and batches are untouched.
func (s *Service) DeactivateProduct(ctx context.Context, id uuid.UUID) error {
	return s.products.Deactivate(ctx, id)
}

// ReceiveRequest describes a delivery of one batch of a product.
type ReceiveRequest struct {
	ProductID      uuid.UUID `json:"product_id"`
	BatchNumber    string    `json:"batch_number"`
	Supplier       string    `json:"supplier,omitempty"`
	Quantity       int       `json:"quantity"`
	ExpiryDate     time.Time `json:"expiry_date"`
	UnitPricePaise *int64    `json:"unit_price_paise,omitempty"`
	Note           string    `json:"note,omitempty"`
}

// ReceiveStock books incoming stock against a batch. Receiving the same
// batch number again tops up the existing batch instead of creating a
// duplicate. The batch write, ledger entry and product total move in one
// transaction.
func (s *Service) ReceiveStock(ctx context.Context, actorID uuid.UUID, req ReceiveRequest) (*Batch, error) {
	if req.Quantity <= 0 {
		return nil, apperr.Invalid("quantity must be positive")
	}
	if strings.TrimSpace(req.BatchNumber) == "" {
		return nil, apperr.Invalid("batch_number is required")
	}
	if !req.ExpiryDate.After(time.Now()) {
		return nil, apperr.Invalid("expiry_date must be in the future")
	}

	var received *Batch
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.products.GetByID(ctx, req.ProductID); err != nil {
			return err
		}

		batch, err := s.batches.GetForProductAndNumber(ctx, req.ProductID, req.BatchNumber)
		switch {
		case err == nil:
			if err := s.batches.IncrementQuantity(ctx, batch.ID, req.Quantity); err != nil {
				return err
			}
			batch.Quantity += req.Quantity
			batch.IsActive = true
		case apperr.IsKind(err, apperr.KindNotFound):
			batch = &Batch{
				ProductID:   req.ProductID,
				BatchNumber: req.BatchNumber,
				Supplier:    req.Supplier,
				Quantity:    req.Quantity,
				ExpiryDate:  req.ExpiryDate,
			}
			if err := s.batches.Create(ctx, batch); err != nil {
				return err
			}
		default:
			return err
		}

		if err := s.txns.Append(ctx, &Transaction{
			ProductID:   req.ProductID,
			BatchID:     &batch.ID,
			Type:        TxnReceive,
			Quantity:    req.Quantity,
			PerformedBy: actorID,
			Note:        req.Note,
		}); err != nil {
			return err
		}

		if err := s.products.AdjustTotal(ctx, req.ProductID, req.Quantity); err != nil {
			return err
		}

		if req.UnitPricePaise != nil {
			if err := s.products.UpdatePrice(ctx, req.ProductID, *req.UnitPricePaise); err != nil {
				return err
			}
		}

		received = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("product_id", req.ProductID.String()).
		Str("batch", req.BatchNumber).
		Int("quantity", req.Quantity).
		Msg("stock received")
	return received, nil
}

// AdjustStock applies a manual correction to a product total, e.g. after a
// physical count. Negative deltas that would take the total below zero are
// rejected.
func (s *Service) AdjustStock(ctx context.Context, actorID, productID uuid.UUID, delta int, note string) error {
	if delta == 0 {
		return apperr.Invalid("delta must be non-zero")
	}

	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.products.GetByID(ctx, productID); err != nil {
			return err
		}
		if err := s.products.AdjustTotal(ctx, productID, delta); err != nil {
			return err
		}
		qty := delta
		if qty < 0 {
			qty = -qty
		}
		return s.txns.Append(ctx, &Transaction{
			ProductID:   productID,
			Type:        TxnAdjustment,
			Quantity:    qty,
			PerformedBy: actorID,
			Note:        note,
		})
	})
}

// ReturnStock puts dispensed units back into a batch, e.g. a returned
// prescription.
func (s *Service) ReturnStock(ctx context.Context, actorID, productID uuid.UUID, batchNumber string, qty int, note string) error {
	if qty <= 0 {
		return apperr.Invalid("quantity must be positive")
	}

	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		batch, err := s.batches.GetForProductAndNumber(ctx, productID, batchNumber)
		if err != nil {
			return err
		}
		if err := s.batches.IncrementQuantity(ctx, batch.ID, qty); err != nil {
			return err
		}
		if err := s.txns.Append(ctx, &Transaction{
			ProductID:   productID,
			BatchID:     &batch.ID,
			Type:        TxnReturn,
			Quantity:    qty,
			PerformedBy: actorID,
			Note:        note,
		}); err != nil {
			return err
		}
		return s.products.AdjustTotal(ctx, productID, qty)
	})
}

// ReorderReport lists products at or below their reorder level.
func (s *Service) ReorderReport(ctx context.Context) ([]*Product, error) {
	return s.products.ListBelowReorder(ctx)
}

// ExpiringBatches lists active batches expiring within the window.
func (s *Service) ExpiringBatches(ctx context.Context, within time.Duration) ([]*Batch, error) {
	return s.batches.ListExpiring(ctx, within)
}

// Ledger returns the stock movement history of a product.
func (s *Service) Ledger(ctx context.Context, productID uuid.UUID, limit, offset int) ([]*Transaction, int, error) {
	return s.txns.ListByProduct(ctx, productID, limit, offset)
}
