package doctor

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const doctorCols = `id, name, email, phone, department, experience_years,
	fee_paise, is_approved, last_booking_attempt, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Phone, &d.Department, &d.ExperienceYears,
		&d.FeePaise, &d.IsApproved, &d.LastBookingAttempt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("doctor not found")
	}
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor (id, name, email, phone, department, experience_years, fee_paise, is_approved)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.Name, d.Email, d.Phone, d.Department, d.ExperienceYears, d.FeePaise, d.IsApproved)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadSlots(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repoPG) loadSlots(ctx context.Context, d *Doctor) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, doctor_id, day, start_time, end_time
		FROM doctor_slot WHERE doctor_id = $1 ORDER BY day, start_time`, d.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s WeeklySlot
		var day int
		if err := rows.Scan(&s.ID, &s.DoctorID, &day, &s.StartTime, &s.EndTime); err != nil {
			return err
		}
		s.Day = time.Weekday(day)
		d.Slots = append(d.Slots, s)
	}
	return rows.Err()
}

func (r *repoPG) List(ctx context.Context, department string, approvedOnly bool, limit, offset int) ([]*Doctor, int, error) {
	query := `SELECT ` + doctorCols + ` FROM doctor WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM doctor WHERE 1=1`
	var args []interface{}
	idx := 1

	if department != "" {
		clause := fmt.Sprintf(` AND department = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, department)
		idx++
	}
	if approvedOnly {
		query += ` AND is_approved`
		countQuery += ` AND is_approved`
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

	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, d *Doctor) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor SET name=$2, email=$3, phone=$4, department=$5,
			experience_years=$6, fee_paise=$7, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.Email, d.Phone, d.Department, d.ExperienceYears, d.FeePaise)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (r *repoPG) Approve(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE doctor SET is_approved = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (r *repoPG) SetSlots(ctx context.Context, doctorID uuid.UUID, slots []WeeklySlot) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_slot WHERE doctor_id = $1`, doctorID); err != nil {
		return err
	}
	for i := range slots {
		slots[i].ID = uuid.New()
		slots[i].DoctorID = doctorID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO doctor_slot (id, doctor_id, day, start_time, end_time)
			VALUES ($1,$2,$3,$4,$5)`,
			slots[i].ID, doctorID, int(slots[i].Day), slots[i].StartTime, slots[i].EndTime)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) AddSlot(ctx context.Context, s *WeeklySlot) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_slot (id, doctor_id, day, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.DoctorID, int(s.Day), s.StartTime, s.EndTime)
	return err
}

func (r *repoPG) RemoveSlot(ctx context.Context, doctorID, slotID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM doctor_slot WHERE id = $1 AND doctor_id = $2`, slotID, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("slot not found")
	}
	return nil
}

// LockForBooking serializes concurrent bookings on the doctor row. The UPDATE
// both takes the row lock for the rest of the transaction and records the
// attempt timestamp.
func (r *repoPG) LockForBooking(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET last_booking_attempt = NOW()
		WHERE id = $1
		RETURNING `+doctorCols, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadSlots(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
