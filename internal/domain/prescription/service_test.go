package prescription

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack/pkg/pagination"
)

type fakeTx struct{}

func (fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockMedicineRepo struct {
	byName map[string]uuid.UUID
}

func newMockMedicineRepo() *mockMedicineRepo {
	return &mockMedicineRepo{byName: make(map[string]uuid.UUID)}
}

func (m *mockMedicineRepo) Upsert(ctx context.Context, name string) (uuid.UUID, error) {
	if id, ok := m.byName[name]; ok {
		return id, nil
	}
	id := uuid.New()
	m.byName[name] = id
	return id, nil
}

type mockRepo struct {
	prescriptions map[uuid.UUID]*Prescription
	order         []uuid.UUID
	schedules     []*Schedule
	doses         map[uuid.UUID]map[time.Time]*DoseRecord
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		prescriptions: make(map[uuid.UUID]*Prescription),
		doses:         make(map[uuid.UUID]map[time.Time]*DoseRecord),
	}
}

func (m *mockRepo) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	p.IsActive = true
	p.CreatedAt = time.Now()
	m.prescriptions[p.ID] = p
	m.order = append(m.order, p.ID)
	return nil
}

func (m *mockRepo) AddSchedule(ctx context.Context, s *Schedule) error {
	s.ID = uuid.New()
	if s.FrequencyType == "" {
		s.FrequencyType = "daily"
	}
	m.schedules = append(m.schedules, s)
	return nil
}

func (m *mockRepo) GetOwned(ctx context.Context, id, userID uuid.UUID) (*Prescription, error) {
	p, ok := m.prescriptions[id]
	if !ok || p.UserID != userID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) timesFor(id uuid.UUID) []string {
	var times []string
	for _, s := range m.schedules {
		if s.PrescriptionID == id {
			times = append(times, s.TimeOfDay)
		}
	}
	sort.Strings(times)
	return times
}

func (m *mockRepo) takenCount(id uuid.UUID) int {
	n := 0
	for _, d := range m.doses[id] {
		if d.IsTaken {
			n++
		}
	}
	return n
}

func (m *mockRepo) list(userID uuid.UUID, active bool) []*Prescription {
	var items []*Prescription
	for i := len(m.order) - 1; i >= 0; i-- {
		p := m.prescriptions[m.order[i]]
		if p.UserID != userID || p.IsActive != active {
			continue
		}
		p.ScheduleTimes = m.timesFor(p.ID)
		p.TotalTaken = m.takenCount(p.ID)
		items = append(items, p)
	}
	return items
}

func (m *mockRepo) ListActive(ctx context.Context, userID uuid.UUID) ([]*Prescription, error) {
	return m.list(userID, true), nil
}

func (m *mockRepo) ListHistory(ctx context.Context, userID uuid.UUID, pg pagination.Params) ([]*Prescription, error) {
	items := m.list(userID, false)
	if pg.Offset > 0 {
		if pg.Offset >= len(items) {
			return nil, nil
		}
		items = items[pg.Offset:]
	}
	if pg.Limit > 0 && pg.Limit < len(items) {
		items = items[:pg.Limit]
	}
	return items, nil
}

func (m *mockRepo) DeactivateExpired(ctx context.Context, userID uuid.UUID, today time.Time) (int64, error) {
	var n int64
	for _, p := range m.prescriptions {
		if p.UserID == userID && p.IsActive && p.EndDate != nil &&
			p.EndDate.Format(dateLayout) < today.Format(dateLayout) {
			p.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) Deactivate(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	p, ok := m.prescriptions[id]
	if !ok || p.UserID != userID {
		return false, nil
	}
	p.IsActive = false
	return true, nil
}

func (m *mockRepo) Stats(ctx context.Context, userID uuid.UUID) (*DashboardStats, error) {
	st := &DashboardStats{}
	for _, p := range m.prescriptions {
		if p.UserID == userID && p.IsActive {
			st.ActivePrescriptions++
			st.DailyDoses += len(m.timesFor(p.ID))
		}
	}
	return st, nil
}

func (m *mockRepo) TodaySchedules(ctx context.Context, userID uuid.UUID, day time.Time) ([]*TodayDose, error) {
	var items []*TodayDose
	for _, s := range m.schedules {
		p := m.prescriptions[s.PrescriptionID]
		if p == nil || p.UserID != userID || !p.IsActive {
			continue
		}
		dayStr := day.Format(dateLayout)
		if p.StartDate.Format(dateLayout) > dayStr {
			continue
		}
		if p.EndDate != nil && p.EndDate.Format(dateLayout) < dayStr {
			continue
		}
		tod, _ := time.Parse("15:04", s.TimeOfDay)
		at := time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, day.Location())
		_, taken := m.doses[p.ID][at]
		items = append(items, &TodayDose{
			PrescriptionID: p.ID,
			MedicineName:   p.MedicineName,
			Dosage:         p.Dosage,
			PillsPerDose:   p.PillsPerDose,
			Instructions:   p.Instructions,
			TimeOfDay:      s.TimeOfDay,
			IsTaken:        taken,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].TimeOfDay < items[j].TimeOfDay })
	return items, nil
}

func (m *mockRepo) DoseExists(ctx context.Context, prescriptionID uuid.UUID, scheduledAt time.Time) (bool, error) {
	_, ok := m.doses[prescriptionID][scheduledAt]
	return ok, nil
}

func (m *mockRepo) InsertDose(ctx context.Context, d *DoseRecord) error {
	if m.doses[d.PrescriptionID] == nil {
		m.doses[d.PrescriptionID] = make(map[time.Time]*DoseRecord)
	}
	if _, ok := m.doses[d.PrescriptionID][d.ScheduledTime]; ok {
		return ErrDoseAlreadyTaken
	}
	d.ID = uuid.New()
	d.IsTaken = true
	d.TakenAt = time.Now()
	m.doses[d.PrescriptionID][d.ScheduledTime] = d
	return nil
}

func (m *mockRepo) DecrementQuantity(ctx context.Context, prescriptionID uuid.UUID, pills int) error {
	p, ok := m.prescriptions[prescriptionID]
	if !ok || p.CurrentQuantity == nil {
		return nil
	}
	q := *p.CurrentQuantity - pills
	if q < 0 {
		q = 0
	}
	p.CurrentQuantity = &q
	return nil
}

func newTestService(repo *mockRepo) *Service {
	svc := NewService(repo, newMockMedicineRepo(), fakeTx{}, 5)
	// Fixed clock: 2025-06-15 09:30 local.
	svc.now = func() time.Time {
		return time.Date(2025, 6, 15, 9, 30, 0, 0, time.Local)
	}
	return svc
}

func intPtr(n int) *int { return &n }

func TestAdd_Defaults(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	userID := uuid.New()

	id, err := svc.Add(context.Background(), userID, AddInput{
		MedicineName:  "Aspirin",
		Dosage:        "100mg",
		StartDate:     "2025-06-15",
		ScheduleTimes: []string{"08:00", "20:00"},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	p := repo.prescriptions[id]
	if p.PillsPerDose != 1 {
		t.Errorf("expected default pills_per_dose 1, got %d", p.PillsPerDose)
	}
	if p.DosesPerDay != 2 {
		t.Errorf("expected doses_per_day 2 from schedule count, got %d", p.DosesPerDay)
	}
	if p.CurrentQuantity != nil {
		t.Errorf("expected untracked quantity, got %v", *p.CurrentQuantity)
	}
	if p.EndDate != nil {
		t.Errorf("expected open-ended prescription, got end date %v", p.EndDate)
	}
	if got := len(repo.timesFor(id)); got != 2 {
		t.Errorf("expected 2 schedule rows, got %d", got)
	}
}

func TestAdd_EndDateFromDuration(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	id, err := svc.Add(context.Background(), uuid.New(), AddInput{
		MedicineName:  "Amoxicillin",
		Dosage:        "500mg",
		StartDate:     "2025-06-15",
		DurationDays:  7,
		ScheduleTimes: []string{"09:00"},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	p := repo.prescriptions[id]
	if p.EndDate == nil {
		t.Fatal("expected derived end date")
	}
	want := time.Date(2025, 6, 22, 0, 0, 0, 0, time.UTC)
	if !p.EndDate.Equal(want) {
		t.Errorf("expected end date %v, got %v", want, p.EndDate)
	}
}

func TestAdd_Validation(t *testing.T) {
	svc := newTestService(newMockRepo())

	tests := []struct {
		name string
		in   AddInput
	}{
		{"missing medicine", AddInput{Dosage: "1mg", StartDate: "2025-06-15", ScheduleTimes: []string{"08:00"}}},
		{"missing dosage", AddInput{MedicineName: "X", StartDate: "2025-06-15", ScheduleTimes: []string{"08:00"}}},
		{"missing start date", AddInput{MedicineName: "X", Dosage: "1mg", ScheduleTimes: []string{"08:00"}}},
		{"no schedule times", AddInput{MedicineName: "X", Dosage: "1mg", StartDate: "2025-06-15"}},
		{"bad start date", AddInput{MedicineName: "X", Dosage: "1mg", StartDate: "15/06/2025", ScheduleTimes: []string{"08:00"}}},
		{"bad schedule time", AddInput{MedicineName: "X", Dosage: "1mg", StartDate: "2025-06-15", ScheduleTimes: []string{"25:99"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Add(context.Background(), uuid.New(), tt.in); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMarkDoseTaken_DecrementsQuantity(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	userID := uuid.New()

	id, err := svc.Add(context.Background(), userID, AddInput{
		MedicineName:  "Aspirin",
		Dosage:        "100mg",
		StartDate:     "2025-06-15",
		PillsPerDose:  2,
		Quantity:      intPtr(30),
		ScheduleTimes: []string{"08:00", "20:00"},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	already, err := svc.MarkDoseTaken(context.Background(), userID, id, "08:00")
	if err != nil {
		t.Fatalf("MarkDoseTaken() error: %v", err)
	}
	if already {
		t.Error("first take must not report already taken")
	}
	if got := *repo.prescriptions[id].CurrentQuantity; got != 28 {
		t.Errorf("expected quantity 28, got %d", got)
	}
}

func TestMarkDoseTaken_Idempotent(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	userID := uuid.New()

	id, err := svc.Add(context.Background(), userID, AddInput{
		MedicineName:  "Aspirin",
		Dosage:        "100mg",
		StartDate:     "2025-06-15",
		Quantity:      intPtr(30),
		ScheduleTimes: []string{"08:00"},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	if _, err := svc.MarkDoseTaken(context.Background(), userID, id, "08:00"); err != nil {
		t.Fatalf("first take error: %v", err)
	}
	already, err := svc.MarkDoseTaken(context.Background(), userID, id, "08:00")
	if err != nil {
		t.Fatalf("second take error: %v", err)
	}
	if !already {
		t.Error("second take must report already taken")
	}
	if got := *repo.prescriptions[id].CurrentQuantity; got != 29 {
		t.Errorf("quantity must decrement once, got %d", got)
	}
	if got := repo.takenCount(id); got != 1 {
		t.Errorf("expected one dose record, got %d", got)
	}
}

func TestMarkDoseTaken_FloorsAtZero(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	userID := uuid.New()

	id, err := svc.Add(context.Background(), userID, AddInput{
		MedicineName:  "Warfarin",
		Dosage:        "5mg",
		StartDate:     "2025-06-15",
		PillsPerDose:  5,
		Quantity:      intPtr(2),
		ScheduleTimes: []string{"08:00"},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	if _, err := svc.MarkDoseTaken(context.Background(), userID, id, "08:00"); err != nil {
		t.Fatalf("MarkDoseTaken() error: %v", err)
	}
	if got := *repo.prescriptions[id].CurrentQuantity; got != 0 {
		t.Errorf("quantity must floor at zero, got %d", got)
	}
}

func TestMarkDoseTaken_OwnershipEnforced(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	owner := uuid.New()
	stranger := uuid.New()

	id, err := svc.Add(context.Background(), owner, AddInput{
		MedicineName:  "Aspirin",
		Dosage:        "100mg",
		StartDate:     "2025-06-15",
		Quantity:      intPtr(30),
		ScheduleTimes: []string{"08:00"},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	if _, err := svc.MarkDoseTaken(context.Background(), stranger, id, "08:00"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for non-owner, got %v", err)
	}
	if got := *repo.prescriptions[id].CurrentQuantity; got != 30 {
		t.Errorf("quantity must be untouched, got %d", got)
	}
}

func TestDelete_OwnershipEnforced(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	owner := uuid.New()
	stranger := uuid.New()

	id, err := svc.Add(context.Background(), owner, AddInput{
		MedicineName:  "Aspirin",
		Dosage:        "100mg",
		StartDate:     "2025-06-15",
		ScheduleTimes: []string{"08:00"},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	if err := svc.Delete(context.Background(), stranger, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for non-owner, got %v", err)
	}
	if !repo.prescriptions[id].IsActive {
		t.Error("prescription must remain active after foreign delete attempt")
	}

	if err := svc.Delete(context.Background(), owner, id); err != nil {
		t.Fatalf("owner delete error: %v", err)
	}
	if repo.prescriptions[id].IsActive {
		t.Error("prescription must be inactive after owner delete")
	}
}

func TestActive_SweepsExpired(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	userID := uuid.New()

	// Ended before the fixed clock's day.
	expired, err := svc.Add(context.Background(), userID, AddInput{
		MedicineName:  "Amoxicillin",
		Dosage:        "500mg",
		StartDate:     "2025-06-01",
		EndDate:       "2025-06-10",
		ScheduleTimes: []string{"09:00"},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	current, err := svc.Add(context.Background(), userID, AddInput{
		MedicineName:  "Aspirin",
		Dosage:        "100mg",
		StartDate:     "2025-06-01",
		ScheduleTimes: []string{"08:00"},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	items, err := svc.Active(context.Background(), userID)
	if err != nil {
		t.Fatalf("Active() error: %v", err)
	}
	if len(items) != 1 || items[0].ID != current {
		t.Fatalf("expected only the current prescription, got %d items", len(items))
	}
	if repo.prescriptions[expired].IsActive {
		t.Error("expired prescription must be swept inactive")
	}

	history, err := svc.History(context.Background(), userID, pagination.Params{})
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(history) != 1 || history[0].ID != expired {
		t.Errorf("expected expired prescription in history, got %d items", len(history))
	}
}

func TestActive_LowStockFlag(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	userID := uuid.New()

	if _, err := svc.Add(context.Background(), userID, AddInput{
		MedicineName:  "Aspirin",
		Dosage:        "100mg",
		StartDate:     "2025-06-15",
		Quantity:      intPtr(3),
		ScheduleTimes: []string{"08:00"},
	}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if _, err := svc.Add(context.Background(), userID, AddInput{
		MedicineName:  "Metformin",
		Dosage:        "850mg",
		StartDate:     "2025-06-15",
		Quantity:      intPtr(60),
		ScheduleTimes: []string{"08:00"},
	}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if _, err := svc.Add(context.Background(), userID, AddInput{
		MedicineName:  "Vitamin D",
		Dosage:        "1000IU",
		StartDate:     "2025-06-15",
		ScheduleTimes: []string{"08:00"},
	}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	items, err := svc.Active(context.Background(), userID)
	if err != nil {
		t.Fatalf("Active() error: %v", err)
	}

	flags := make(map[string]bool)
	for _, p := range items {
		flags[p.MedicineName] = p.LowStock
	}
	if !flags["Aspirin"] {
		t.Error("3 remaining pills must flag low stock")
	}
	if flags["Metformin"] {
		t.Error("60 remaining pills must not flag low stock")
	}
	if flags["Vitamin D"] {
		t.Error("untracked quantity must not flag low stock")
	}
}

func TestStatsAndToday(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	userID := uuid.New()

	id, err := svc.Add(context.Background(), userID, AddInput{
		MedicineName:  "Aspirin",
		Dosage:        "100mg",
		StartDate:     "2025-06-15",
		Quantity:      intPtr(30),
		ScheduleTimes: []string{"20:00", "08:00"},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	st, err := svc.Stats(context.Background(), userID)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if st.ActivePrescriptions != 1 || st.DailyDoses != 2 {
		t.Errorf("unexpected stats: %+v", st)
	}

	if _, err := svc.MarkDoseTaken(context.Background(), userID, id, "08:00"); err != nil {
		t.Fatalf("MarkDoseTaken() error: %v", err)
	}

	today, err := svc.Today(context.Background(), userID)
	if err != nil {
		t.Fatalf("Today() error: %v", err)
	}
	if len(today) != 2 {
		t.Fatalf("expected 2 schedule rows, got %d", len(today))
	}
	if today[0].TimeOfDay != "08:00" || today[1].TimeOfDay != "20:00" {
		t.Errorf("schedule must be ordered by time of day: %s, %s", today[0].TimeOfDay, today[1].TimeOfDay)
	}
	if !today[0].IsTaken {
		t.Error("08:00 dose must show taken")
	}
	if today[1].IsTaken {
		t.Error("20:00 dose must show untaken")
	}
}
