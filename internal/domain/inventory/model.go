package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Product is a stock-keeping unit in the pharmacy inventory. TotalQuantity
// is denormalized across batches and kept in sync by the service layer.
type Product struct {
	ID             uuid.UUID `json:"id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	GenericName    string    `json:"generic_name,omitempty"`
	Category       string    `json:"category,omitempty"`
	Manufacturer   string    `json:"manufacturer,omitempty"`
	UnitPricePaise int64     `json:"unit_price_paise"`
	TotalQuantity  int       `json:"total_quantity"`
	ReorderLevel   int       `json:"reorder_level"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Batch is a lot of a product received together, sharing an expiry date.
// Dispensing drains batches in first-expiry-first-out order; a batch that
// reaches zero quantity is deactivated rather than deleted.
type Batch struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	BatchNumber string    `json:"batch_number"`
	Supplier    string    `json:"supplier,omitempty"`
	Quantity    int       `json:"quantity"`
	ExpiryDate  time.Time `json:"expiry_date"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Expired reports whether the batch's expiry date is on or before now.
func (b Batch) Expired(now time.Time) bool {
	return !b.ExpiryDate.After(now)
}

// Transaction types in the stock ledger.
const (
	TxnReceive    = "RECEIVE"
	TxnIssue      = "ISSUE"
	TxnAdjustment = "ADJUSTMENT"
	TxnReturn     = "RETURN"
)

// Transaction is an append-only stock movement record. Quantity is always
// positive; the type says which direction stock moved.
type Transaction struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     uuid.UUID  `json:"product_id"`
	BatchID       *uuid.UUID `json:"batch_id,omitempty"`
	Type          string     `json:"type"`
	Quantity      int        `json:"quantity"`
	ReferenceType string     `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	PerformedBy   uuid.UUID  `json:"performed_by"`
	Note          string     `json:"note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
