package reminder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type sourcePG struct{ pool *pgxpool.Pool }

func NewSourcePG(pool *pgxpool.Pool) Source {
	return &sourcePG{pool: pool}
}

func (s *sourcePG) DueSchedules(ctx context.Context, day time.Time) ([]Schedule, error) {
	// The day travels as text so the ::date casts below stay independent of
	// the DB session TimeZone.
	rows, err := s.pool.Query(ctx, `
		SELECT p.prescription_id, p.user_id, m.name, p.dosage,
			to_char(sch.time_of_day, 'HH24:MI') AS time_of_day,
			(d.dose_id IS NOT NULL AND d.is_taken) AS is_taken
		FROM user_prescriptions p
		JOIN medicines m ON m.medicine_id = p.medicine_id
		JOIN recurring_schedules sch ON sch.prescription_id = p.prescription_id
		LEFT JOIN dose_history d ON d.prescription_id = p.prescription_id
			AND d.scheduled_time = $1::date + sch.time_of_day
		WHERE p.is_active
			AND p.start_date <= $1::date
			AND (p.end_date IS NULL OR p.end_date >= $1::date)
		ORDER BY sch.time_of_day ASC`, day.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Schedule
	for rows.Next() {
		var sch Schedule
		if err := rows.Scan(&sch.PrescriptionID, &sch.UserID, &sch.MedicineName,
			&sch.Dosage, &sch.TimeOfDay, &sch.Taken); err != nil {
			return nil, err
		}
		items = append(items, sch)
	}
	return items, rows.Err()
}
