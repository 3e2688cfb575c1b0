package prescription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack/internal/platform/db"
	"github.com/meditrack/meditrack/pkg/pagination"
)

const dateLayout = "2006-01-02"

type Service struct {
	prescriptions Repository
	medicines     MedicineRepository
	tx            db.TxRunner
	lowStockAt    int

	now func() time.Time
}

func NewService(prescriptions Repository, medicines MedicineRepository, tx db.TxRunner, lowStockAt int) *Service {
	return &Service{
		prescriptions: prescriptions,
		medicines:     medicines,
		tx:            tx,
		lowStockAt:    lowStockAt,
		now:           time.Now,
	}
}

type AddInput struct {
	MedicineName  string
	Dosage        string
	StartDate     string
	EndDate       string
	PillsPerDose  int
	DosesPerDay   int
	DurationDays  int
	Quantity      *int
	Instructions  string
	ScheduleTimes []string
}

// Add creates a prescription and its dosing schedule. The medicine upsert is
// idempotent and runs outside the transaction; the prescription row and its
// schedule rows commit together.
func (s *Service) Add(ctx context.Context, userID uuid.UUID, in AddInput) (uuid.UUID, error) {
	if in.MedicineName == "" {
		return uuid.Nil, fmt.Errorf("medicineName is required")
	}
	if in.Dosage == "" {
		return uuid.Nil, fmt.Errorf("dosage is required")
	}
	if in.StartDate == "" {
		return uuid.Nil, fmt.Errorf("startDate is required")
	}
	if len(in.ScheduleTimes) == 0 {
		return uuid.Nil, fmt.Errorf("at least one schedule time is required")
	}

	startDate, err := time.Parse(dateLayout, in.StartDate)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid startDate: %s", in.StartDate)
	}

	var endDate *time.Time
	switch {
	case in.EndDate != "":
		d, err := time.Parse(dateLayout, in.EndDate)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid endDate: %s", in.EndDate)
		}
		endDate = &d
	case in.DurationDays > 0:
		d := startDate.AddDate(0, 0, in.DurationDays)
		endDate = &d
	}

	times := make([]string, 0, len(in.ScheduleTimes))
	for _, raw := range in.ScheduleTimes {
		t, err := normalizeTimeOfDay(raw)
		if err != nil {
			return uuid.Nil, err
		}
		times = append(times, t)
	}

	pillsPerDose := in.PillsPerDose
	if pillsPerDose <= 0 {
		pillsPerDose = 1
	}
	dosesPerDay := in.DosesPerDay
	if dosesPerDay < len(times) {
		dosesPerDay = len(times)
	}
	durationDays := in.DurationDays
	if durationDays < 0 {
		durationDays = 0
	}

	medicineID, err := s.medicines.Upsert(ctx, in.MedicineName)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting medicine: %w", err)
	}

	p := &Prescription{
		UserID:          userID,
		MedicineID:      medicineID,
		Dosage:          in.Dosage,
		StartDate:       startDate,
		EndDate:         endDate,
		PillsPerDose:    pillsPerDose,
		DosesPerDay:     dosesPerDay,
		DurationDays:    durationDays,
		InitialQuantity: in.Quantity,
		CurrentQuantity: in.Quantity,
		Instructions:    in.Instructions,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.prescriptions.Create(ctx, p); err != nil {
			return err
		}
		for _, t := range times {
			sched := &Schedule{PrescriptionID: p.ID, TimeOfDay: t}
			if err := s.prescriptions.AddSchedule(ctx, sched); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

// Active sweeps expired prescriptions off the active set, then lists the
// remainder with the low-stock flag applied.
func (s *Service) Active(ctx context.Context, userID uuid.UUID) ([]*Prescription, error) {
	if _, err := s.prescriptions.DeactivateExpired(ctx, userID, s.today()); err != nil {
		return nil, fmt.Errorf("expiring prescriptions: %w", err)
	}
	items, err := s.prescriptions.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range items {
		p.LowStock = p.CurrentQuantity != nil && *p.CurrentQuantity <= s.lowStockAt
	}
	return items, nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.prescriptions.Deactivate(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*DashboardStats, error) {
	return s.prescriptions.Stats(ctx, userID)
}

func (s *Service) History(ctx context.Context, userID uuid.UUID, pg pagination.Params) ([]*Prescription, error) {
	return s.prescriptions.ListHistory(ctx, userID, pg)
}

func (s *Service) Today(ctx context.Context, userID uuid.UUID) ([]*TodayDose, error) {
	return s.prescriptions.TodaySchedules(ctx, userID, s.today())
}

// MarkDoseTaken records a dose for today's occurrence of scheduleTime and
// decrements the tracked quantity. The caller must own the prescription. The
// returned bool reports the idempotent case: the dose was already recorded
// and nothing changed.
func (s *Service) MarkDoseTaken(ctx context.Context, userID, prescriptionID uuid.UUID, scheduleTime string) (bool, error) {
	tod, err := normalizeTimeOfDay(scheduleTime)
	if err != nil {
		return false, err
	}
	scheduledAt, err := s.occurrenceToday(tod)
	if err != nil {
		return false, err
	}

	var already bool
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.prescriptions.GetOwned(ctx, prescriptionID, userID)
		if err != nil {
			return err
		}

		exists, err := s.prescriptions.DoseExists(ctx, prescriptionID, scheduledAt)
		if err != nil {
			return err
		}
		if exists {
			already = true
			return nil
		}

		dose := &DoseRecord{PrescriptionID: prescriptionID, ScheduledTime: scheduledAt}
		if err := s.prescriptions.InsertDose(ctx, dose); err != nil {
			// A concurrent take slipped in between the check and the
			// insert; the unique constraint makes this the same
			// idempotent outcome.
			if err == ErrDoseAlreadyTaken {
				already = true
				return nil
			}
			return err
		}

		return s.prescriptions.DecrementQuantity(ctx, prescriptionID, p.PillsPerDose)
	})
	if err != nil {
		return false, err
	}
	return already, nil
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (s *Service) occurrenceToday(timeOfDay string) (time.Time, error) {
	t, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule time: %s", timeOfDay)
	}
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), 0, 0, now.Location()), nil
}

// normalizeTimeOfDay accepts "HH:MM" or "HH:MM:SS" and returns "HH:MM".
func normalizeTimeOfDay(raw string) (string, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", fmt.Errorf("invalid schedule time: %s", raw)
}
