package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProductRepository persists products and the denormalized stock totals.
type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	List(ctx context.Context, category string, limit, offset int) ([]*Product, int, error)

	// AdjustTotal adds delta (possibly negative) to the product's total
	// quantity. Implementations reject adjustments that would go negative.
	AdjustTotal(ctx context.Context, id uuid.UUID, delta int) error
	UpdatePrice(ctx context.Context, id uuid.UUID, unitPricePaise int64) error

	// Deactivate soft-deletes the product so it no longer appears in
	// listings or reorder reports. Ledger history stays intact.
	Deactivate(ctx context.Context, id uuid.UUID) error
	ListBelowReorder(ctx context.Context) ([]*Product, error)
}

// BatchRepository persists batches. ListActiveForUpdate is the allocator's
// entry point: it must lock the returned rows for the surrounding
// transaction.
type BatchRepository interface {
	Create(ctx context.Context, b *Batch) error
	GetForProductAndNumber(ctx context.Context, productID uuid.UUID, batchNumber string) (*Batch, error)
	IncrementQuantity(ctx context.Context, id uuid.UUID, delta int) error

	// ListActiveForUpdate returns the product's active, unexpired batches
	// ordered by expiry date ascending, row-locked for the transaction.
	ListActiveForUpdate(ctx context.Context, productID uuid.UUID, now time.Time) ([]*Batch, error)

	// Decrement takes qty out of the batch, deactivating it at zero.
	Decrement(ctx context.Context, id uuid.UUID, qty int) error

	ListExpiring(ctx context.Context, within time.Duration) ([]*Batch, error)
}

// TransactionRepository is the append-only stock ledger.
type TransactionRepository interface {
	Append(ctx context.Context, t *Transaction) error
	ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int) ([]*Transaction, int, error)
	ListByReference(ctx context.Context, referenceType string, referenceID uuid.UUID) ([]*Transaction, error)
}
