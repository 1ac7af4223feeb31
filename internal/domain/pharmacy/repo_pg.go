package pharmacy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const prescriptionCols = `id, patient_id, doctor_id, appointment_id, status, priority,
	notes, dispensed_by, dispensed_at, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.DoctorID, &p.AppointmentID, &p.Status, &p.Priority,
		&p.Notes, &p.DispensedBy, &p.DispensedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescription not found")
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription (id, patient_id, doctor_id, appointment_id, status, priority, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.PatientID, p.DoctorID, p.AppointmentID, p.Status, p.Priority, p.Notes)
	if err != nil {
		return err
	}

	for i := range p.Items {
		p.Items[i].ID = uuid.New()
		p.Items[i].PrescriptionID = p.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO prescription_item (id, prescription_id, product_id, medicine_name,
				dosage, frequency, duration_days, quantity, instructions)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			p.Items[i].ID, p.ID, p.Items[i].ProductID, p.Items[i].MedicineName,
			p.Items[i].Dosage, p.Items[i].Frequency, p.Items[i].DurationDays,
			p.Items[i].Quantity, p.Items[i].Instructions)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescription WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) loadItems(ctx context.Context, p *Prescription) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, product_id, medicine_name, dosage, frequency,
			duration_days, quantity, instructions
		FROM prescription_item WHERE prescription_id = $1 ORDER BY medicine_name`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it PrescriptionItem
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.ProductID, &it.MedicineName,
			&it.Dosage, &it.Frequency, &it.DurationDays, &it.Quantity, &it.Instructions); err != nil {
			return err
		}
		p.Items = append(p.Items, it)
	}
	return rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("prescription not found")
	}
	return nil
}

func (r *repoPG) MarkDispensed(ctx context.Context, id, dispensedBy uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription
		SET status = $2, dispensed_by = $3, dispensed_at = $4, updated_at = NOW()
		WHERE id = $1`, id, StatusDispensed, dispensedBy, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("prescription not found")
	}
	return nil
}

func (r *repoPG) Queue(ctx context.Context, status string, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescription WHERE status = $1`, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+prescriptionCols+` FROM prescription
		WHERE status = $1
		ORDER BY
			CASE priority WHEN 'EMERGENCY' THEN 3 WHEN 'URGENT' THEN 2 ELSE 1 END DESC,
			created_at ASC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, p := range items {
		if err := r.loadItems(ctx, p); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescription WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+prescriptionCols+` FROM prescription
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, p := range items {
		if err := r.loadItems(ctx, p); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}
