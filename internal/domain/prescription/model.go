package prescription

import (
	"time"

	"github.com/google/uuid"
)

type Medicine struct {
	ID   uuid.UUID `json:"medicine_id"`
	Name string    `json:"name"`
}

type Prescription struct {
	ID              uuid.UUID  `json:"prescription_id"`
	UserID          uuid.UUID  `json:"user_id"`
	MedicineID      uuid.UUID  `json:"medicine_id"`
	MedicineName    string     `json:"medicine_name"`
	Dosage          string     `json:"dosage"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	PillsPerDose    int        `json:"pills_per_dose"`
	DosesPerDay     int        `json:"doses_per_day"`
	DurationDays    int        `json:"duration_days"`
	InitialQuantity *int       `json:"initial_quantity"`
	CurrentQuantity *int       `json:"current_quantity"`
	Instructions    string     `json:"instructions"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`

	// Populated on list reads.
	ScheduleTimes []string `json:"schedule_times,omitempty"`
	TotalTaken    int      `json:"total_taken"`
	LowStock      bool     `json:"low_stock"`
}

type Schedule struct {
	ID              uuid.UUID `json:"schedule_id"`
	PrescriptionID  uuid.UUID `json:"prescription_id"`
	TimeOfDay       string    `json:"time_of_day"`
	FrequencyType   string    `json:"frequency_type"`
	FrequencyDetail *string   `json:"frequency_detail"`
}

type DoseRecord struct {
	ID             uuid.UUID `json:"dose_id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	ScheduledTime  time.Time `json:"scheduled_time"`
	IsTaken        bool      `json:"is_taken"`
	TakenAt        time.Time `json:"taken_at"`
}

// TodayDose is one row of the day's dosing schedule.
type TodayDose struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	MedicineName   string    `json:"medicine_name"`
	Dosage         string    `json:"dosage"`
	PillsPerDose   int       `json:"pills_per_dose"`
	Instructions   string    `json:"instructions"`
	TimeOfDay      string    `json:"time_of_day"`
	IsTaken        bool      `json:"is_taken"`
}

type DashboardStats struct {
	ActivePrescriptions int `json:"activePrescriptions"`
	DailyDoses          int `json:"dailyDoses"`
}
