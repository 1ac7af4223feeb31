package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
)

// =========== Product Repository ===========

type productRepoPG struct{ pool *pgxpool.Pool }

func NewProductRepoPG(pool *pgxpool.Pool) ProductRepository { return &productRepoPG{pool: pool} }

func (r *productRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const productCols = `id, sku, name, generic_name, category, manufacturer,
	unit_price_paise, total_quantity, reorder_level, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.GenericName, &p.Category, &p.Manufacturer,
		&p.UnitPricePaise, &p.TotalQuantity, &p.ReorderLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("product not found")
	}
	return &p, err
}

func (r *productRepoPG) Create(ctx context.Context, p *Product) error {
	p.ID = uuid.New()
	p.IsActive = true
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO product (id, sku, name, generic_name, category, manufacturer,
			unit_price_paise, total_quantity, reorder_level, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.SKU, p.Name, p.GenericName, p.Category, p.Manufacturer,
		p.UnitPricePaise, p.TotalQuantity, p.ReorderLevel, p.IsActive)
	return err
}

func (r *productRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	return scanProduct(r.conn(ctx).QueryRow(ctx, `SELECT `+productCols+` FROM product WHERE id = $1`, id))
}

func (r *productRepoPG) GetBySKU(ctx context.Context, sku string) (*Product, error) {
	return scanProduct(r.conn(ctx).QueryRow(ctx, `SELECT `+productCols+` FROM product WHERE sku = $1`, sku))
}

func (r *productRepoPG) List(ctx context.Context, category string, limit, offset int) ([]*Product, int, error) {
	query := `SELECT ` + productCols + ` FROM product WHERE is_active`
	countQuery := `SELECT COUNT(*) FROM product WHERE is_active`
	var args []interface{}
	idx := 1

	if category != "" {
		clause := fmt.Sprintf(` AND category = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, category)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *productRepoPG) AdjustTotal(ctx context.Context, id uuid.UUID, delta int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE product SET total_quantity = total_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND total_quantity + $2 >= 0`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("stock adjustment would make product total negative")
	}
	return nil
}

func (r *productRepoPG) UpdatePrice(ctx context.Context, id uuid.UUID, unitPricePaise int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE product SET unit_price_paise = $2, updated_at = NOW() WHERE id = $1`, id, unitPricePaise)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("product not found")
	}
	return nil
}

func (r *productRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE product SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("product not found")
	}
	return nil
}

func (r *productRepoPG) ListBelowReorder(ctx context.Context) ([]*Product, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+productCols+` FROM product
		WHERE is_active AND total_quantity <= reorder_level ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Batch Repository ===========

type batchRepoPG struct{ pool *pgxpool.Pool }

func NewBatchRepoPG(pool *pgxpool.Pool) BatchRepository { return &batchRepoPG{pool: pool} }

func (r *batchRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const batchCols = `id, product_id, batch_number, supplier, quantity, expiry_date, is_active, created_at, updated_at`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.ProductID, &b.BatchNumber, &b.Supplier, &b.Quantity, &b.ExpiryDate,
		&b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("batch not found")
	}
	return &b, err
}

func (r *batchRepoPG) Create(ctx context.Context, b *Batch) error {
	b.ID = uuid.New()
	b.IsActive = true
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO batch (id, product_id, batch_number, supplier, quantity, expiry_date, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.ProductID, b.BatchNumber, b.Supplier, b.Quantity, b.ExpiryDate, b.IsActive)
	return err
}

func (r *batchRepoPG) GetForProductAndNumber(ctx context.Context, productID uuid.UUID, batchNumber string) (*Batch, error) {
	return scanBatch(r.conn(ctx).QueryRow(ctx, `
		SELECT `+batchCols+` FROM batch
		WHERE product_id = $1 AND batch_number = $2`, productID, batchNumber))
}

func (r *batchRepoPG) IncrementQuantity(ctx context.Context, id uuid.UUID, delta int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE batch SET quantity = quantity + $2, is_active = TRUE, updated_at = NOW()
		WHERE id = $1`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("batch not found")
	}
	return nil
}

func (r *batchRepoPG) ListActiveForUpdate(ctx context.Context, productID uuid.UUID, now time.Time) ([]*Batch, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+batchCols+` FROM batch
		WHERE product_id = $1 AND is_active AND quantity > 0 AND expiry_date > $2
		ORDER BY expiry_date ASC
		FOR UPDATE`, productID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *batchRepoPG) Decrement(ctx context.Context, id uuid.UUID, qty int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE batch
		SET quantity = quantity - $2,
			is_active = (quantity - $2 > 0),
			updated_at = NOW()
		WHERE id = $1 AND quantity >= $2`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("batch has insufficient quantity")
	}
	return nil
}

func (r *batchRepoPG) ListExpiring(ctx context.Context, within time.Duration) ([]*Batch, error) {
	cutoff := time.Now().Add(within)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+batchCols+` FROM batch
		WHERE is_active AND quantity > 0 AND expiry_date <= $1
		ORDER BY expiry_date ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

// =========== Transaction Repository ===========

type txnRepoPG struct{ pool *pgxpool.Pool }

func NewTransactionRepoPG(pool *pgxpool.Pool) TransactionRepository { return &txnRepoPG{pool: pool} }

func (r *txnRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const txnCols = `id, product_id, batch_id, type, quantity, reference_type, reference_id, performed_by, note, created_at`

func scanTxn(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.ProductID, &t.BatchID, &t.Type, &t.Quantity,
		&t.ReferenceType, &t.ReferenceID, &t.PerformedBy, &t.Note, &t.CreatedAt)
	return &t, err
}

func (r *txnRepoPG) Append(ctx context.Context, t *Transaction) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inventory_transaction (id, product_id, batch_id, type, quantity,
			reference_type, reference_id, performed_by, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.ProductID, t.BatchID, t.Type, t.Quantity,
		t.ReferenceType, t.ReferenceID, t.PerformedBy, t.Note)
	return err
}

func (r *txnRepoPG) ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int) ([]*Transaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM inventory_transaction WHERE product_id = $1`, productID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+txnCols+` FROM inventory_transaction
		WHERE product_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, productID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *txnRepoPG) ListByReference(ctx context.Context, referenceType string, referenceID uuid.UUID) ([]*Transaction, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+txnCols+` FROM inventory_transaction
		WHERE reference_type = $1 AND reference_id = $2 ORDER BY created_at`, referenceType, referenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}
