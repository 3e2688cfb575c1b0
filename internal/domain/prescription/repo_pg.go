package prescription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meditrack/meditrack/internal/platform/db"
	"github.com/meditrack/meditrack/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Medicine Repository ===========

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository {
	return &medicineRepoPG{pool: pool}
}

func (r *medicineRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *medicineRepoPG) Upsert(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	// DO UPDATE instead of DO NOTHING so RETURNING yields the existing row's
	// id on conflict.
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicines (medicine_id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING medicine_id`,
		uuid.New(), name).Scan(&id)
	return id, err
}

// =========== Prescription Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// sqlDate renders a timestamp as its calendar day in the app's zone. Date
// parameters go over the wire as text so the ::date cast does not depend on
// the DB session TimeZone.
func sqlDate(t time.Time) string {
	return t.Format(dateLayout)
}

const prescriptionCols = `p.prescription_id, p.user_id, p.medicine_id, m.name,
	p.dosage, p.start_date, p.end_date, p.pills_per_dose, p.doses_per_day,
	p.duration_days, p.initial_quantity, p.current_quantity, p.instructions,
	p.is_active, p.created_at`

func (r *repoPG) scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.UserID, &p.MedicineID, &p.MedicineName,
		&p.Dosage, &p.StartDate, &p.EndDate, &p.PillsPerDose, &p.DosesPerDay,
		&p.DurationDays, &p.InitialQuantity, &p.CurrentQuantity, &p.Instructions,
		&p.IsActive, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO user_prescriptions (prescription_id, user_id, medicine_id,
			dosage, start_date, end_date, pills_per_dose, doses_per_day,
			duration_days, initial_quantity, current_quantity, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING is_active, created_at`,
		p.ID, p.UserID, p.MedicineID,
		p.Dosage, p.StartDate, p.EndDate, p.PillsPerDose, p.DosesPerDay,
		p.DurationDays, p.InitialQuantity, p.CurrentQuantity, p.Instructions).
		Scan(&p.IsActive, &p.CreatedAt)
}

func (r *repoPG) AddSchedule(ctx context.Context, s *Schedule) error {
	s.ID = uuid.New()
	if s.FrequencyType == "" {
		s.FrequencyType = "daily"
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO recurring_schedules (schedule_id, prescription_id,
			time_of_day, frequency_type, frequency_detail)
		VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.PrescriptionID, s.TimeOfDay, s.FrequencyType, s.FrequencyDetail)
	return err
}

func (r *repoPG) GetOwned(ctx context.Context, id, userID uuid.UUID) (*Prescription, error) {
	return r.scanPrescription(r.conn(ctx).QueryRow(ctx, `
		SELECT `+prescriptionCols+`
		FROM user_prescriptions p
		JOIN medicines m ON m.medicine_id = p.medicine_id
		WHERE p.prescription_id = $1 AND p.user_id = $2`, id, userID))
}

const listCols = prescriptionCols + `,
	(SELECT COUNT(*) FROM dose_history d
	 WHERE d.prescription_id = p.prescription_id AND d.is_taken) AS total_taken,
	COALESCE((SELECT array_agg(to_char(s.time_of_day, 'HH24:MI') ORDER BY s.time_of_day)
	 FROM recurring_schedules s
	 WHERE s.prescription_id = p.prescription_id), '{}') AS schedule_times`

func (r *repoPG) scanListRows(rows pgx.Rows) ([]*Prescription, error) {
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.UserID, &p.MedicineID, &p.MedicineName,
			&p.Dosage, &p.StartDate, &p.EndDate, &p.PillsPerDose, &p.DosesPerDay,
			&p.DurationDays, &p.InitialQuantity, &p.CurrentQuantity, &p.Instructions,
			&p.IsActive, &p.CreatedAt, &p.TotalTaken, &p.ScheduleTimes); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

func (r *repoPG) ListActive(ctx context.Context, userID uuid.UUID) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+listCols+`
		FROM user_prescriptions p
		JOIN medicines m ON m.medicine_id = p.medicine_id
		WHERE p.user_id = $1 AND p.is_active
		ORDER BY p.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return r.scanListRows(rows)
}

func (r *repoPG) ListHistory(ctx context.Context, userID uuid.UUID, pg pagination.Params) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+listCols+`
		FROM user_prescriptions p
		JOIN medicines m ON m.medicine_id = p.medicine_id
		WHERE p.user_id = $1 AND NOT p.is_active
		ORDER BY p.end_date DESC NULLS LAST, p.created_at DESC
		LIMIT NULLIF($2, 0) OFFSET $3`, userID, pg.Limit, pg.Offset)
	if err != nil {
		return nil, err
	}
	return r.scanListRows(rows)
}

func (r *repoPG) DeactivateExpired(ctx context.Context, userID uuid.UUID, today time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE user_prescriptions
		SET is_active = FALSE
		WHERE user_id = $1 AND is_active
		  AND end_date IS NOT NULL AND end_date < $2::date`, userID, sqlDate(today))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Deactivate(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE user_prescriptions
		SET is_active = FALSE
		WHERE prescription_id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Stats(ctx context.Context, userID uuid.UUID) (*DashboardStats, error) {
	var st DashboardStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM user_prescriptions
			 WHERE user_id = $1 AND is_active),
			(SELECT COUNT(*) FROM recurring_schedules s
			 JOIN user_prescriptions p ON p.prescription_id = s.prescription_id
			 WHERE p.user_id = $1 AND p.is_active)`, userID).
		Scan(&st.ActivePrescriptions, &st.DailyDoses)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *repoPG) TodaySchedules(ctx context.Context, userID uuid.UUID, day time.Time) ([]*TodayDose, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.prescription_id, m.name, p.dosage, p.pills_per_dose,
			p.instructions, to_char(s.time_of_day, 'HH24:MI') AS time_of_day,
			(d.dose_id IS NOT NULL AND d.is_taken) AS is_taken
		FROM user_prescriptions p
		JOIN medicines m ON m.medicine_id = p.medicine_id
		JOIN recurring_schedules s ON s.prescription_id = p.prescription_id
		LEFT JOIN dose_history d ON d.prescription_id = p.prescription_id
			AND d.scheduled_time = $2::date + s.time_of_day
		WHERE p.user_id = $1 AND p.is_active
			AND p.start_date <= $2::date
			AND (p.end_date IS NULL OR p.end_date >= $2::date)
		ORDER BY s.time_of_day ASC`, userID, sqlDate(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TodayDose
	for rows.Next() {
		var td TodayDose
		if err := rows.Scan(&td.PrescriptionID, &td.MedicineName, &td.Dosage,
			&td.PillsPerDose, &td.Instructions, &td.TimeOfDay, &td.IsTaken); err != nil {
			return nil, err
		}
		items = append(items, &td)
	}
	return items, rows.Err()
}

func (r *repoPG) DoseExists(ctx context.Context, prescriptionID uuid.UUID, scheduledAt time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM dose_history
			WHERE prescription_id = $1 AND scheduled_time = $2)`,
		prescriptionID, scheduledAt).Scan(&exists)
	return exists, err
}

func (r *repoPG) InsertDose(ctx context.Context, d *DoseRecord) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO dose_history (dose_id, prescription_id, scheduled_time, is_taken, taken_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		RETURNING is_taken, taken_at`,
		d.ID, d.PrescriptionID, d.ScheduledTime).Scan(&d.IsTaken, &d.TakenAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDoseAlreadyTaken
		}
		return err
	}
	return nil
}

func (r *repoPG) DecrementQuantity(ctx context.Context, prescriptionID uuid.UUID, pills int) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE user_prescriptions
		SET current_quantity = GREATEST(0, current_quantity - $2)
		WHERE prescription_id = $1 AND current_quantity IS NOT NULL`,
		prescriptionID, pills)
	return err
}
