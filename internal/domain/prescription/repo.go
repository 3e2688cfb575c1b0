package prescription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack/pkg/pagination"
)

var (
	ErrNotFound         = errors.New("prescription not found")
	ErrDoseAlreadyTaken = errors.New("dose already taken")
)

type MedicineRepository interface {
	// Upsert returns the id of the medicine with the given name, creating
	// it when absent. Concurrent callers for the same name converge on one
	// row.
	Upsert(ctx context.Context, name string) (uuid.UUID, error)
}

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	AddSchedule(ctx context.Context, s *Schedule) error

	// GetOwned fetches a prescription only when it belongs to userID,
	// returning ErrNotFound otherwise.
	GetOwned(ctx context.Context, id, userID uuid.UUID) (*Prescription, error)

	ListActive(ctx context.Context, userID uuid.UUID) ([]*Prescription, error)
	ListHistory(ctx context.Context, userID uuid.UUID, pg pagination.Params) ([]*Prescription, error)

	// DeactivateExpired flips is_active off for the user's prescriptions
	// whose end date has passed, returning how many rows changed.
	DeactivateExpired(ctx context.Context, userID uuid.UUID, today time.Time) (int64, error)

	// Deactivate soft-deletes an owned prescription. The bool reports
	// whether a row matched.
	Deactivate(ctx context.Context, id, userID uuid.UUID) (bool, error)

	Stats(ctx context.Context, userID uuid.UUID) (*DashboardStats, error)
	TodaySchedules(ctx context.Context, userID uuid.UUID, day time.Time) ([]*TodayDose, error)

	DoseExists(ctx context.Context, prescriptionID uuid.UUID, scheduledAt time.Time) (bool, error)
	InsertDose(ctx context.Context, d *DoseRecord) error
	DecrementQuantity(ctx context.Context, prescriptionID uuid.UUID, pills int) error
}
