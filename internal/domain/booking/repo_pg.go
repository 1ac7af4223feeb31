package booking

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

const apptCols = `id, patient_id, doctor_id, start_time, duration_minutes, mode, symptoms,
	status, payment_status, order_id, payment_id, refund_id, amount_paise, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.StartTime, &a.DurationMinutes,
		&a.Mode, &a.Symptoms, &a.Status, &a.PaymentStatus,
		&a.OrderID, &a.PaymentID, &a.RefundID, &a.AmountPaise, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment not found")
	}
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, start_time, duration_minutes,
			mode, symptoms, status, payment_status, order_id, payment_id, refund_id, amount_paise)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.PatientID, a.DoctorID, a.StartTime, a.DurationMinutes,
		a.Mode, a.Symptoms, a.Status, a.PaymentStatus, a.OrderID, a.PaymentID, a.RefundID, a.AmountPaise)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET start_time=$2, duration_minutes=$3, mode=$4, symptoms=$5,
			status=$6, payment_status=$7, order_id=$8, payment_id=$9, refund_id=$10,
			amount_paise=$11, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.StartTime, a.DurationMinutes, a.Mode, a.Symptoms,
		a.Status, a.PaymentStatus, a.OrderID, a.PaymentID, a.RefundID, a.AmountPaise)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

// FindOverlapping uses half-open interval semantics: an appointment ending
// exactly when another starts does not conflict.
func (r *repoPG) FindOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) ([]*Appointment, error) {
	query := `
		SELECT ` + apptCols + ` FROM appointment
		WHERE doctor_id = $1
		  AND status IN ('scheduled', 'completed')
		  AND start_time < $3
		  AND start_time + make_interval(mins => duration_minutes) > $2`
	args := []interface{}{doctorID, start, end}
	if exclude != nil {
		query += ` AND id <> $4`
		args = append(args, *exclude)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE patient_id = $1 ORDER BY start_time DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE doctor_id = $1 AND start_time >= $2 AND start_time < $3`,
		doctorID, from, to).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE doctor_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time LIMIT $4 OFFSET $5`, doctorID, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
