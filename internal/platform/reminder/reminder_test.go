package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeSource struct {
	mu        sync.Mutex
	schedules []Schedule
	err       error
}

func (f *fakeSource) DueSchedules(ctx context.Context, day time.Time) ([]Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules, f.err
}

type recorder struct {
	mu    sync.Mutex
	fired []Schedule
}

func (r *recorder) notify(s Schedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func TestSweep_FiresForDueUntakenDose(t *testing.T) {
	due := Schedule{PrescriptionID: uuid.New(), UserID: uuid.New(), MedicineName: "Aspirin", TimeOfDay: "08:00"}
	src := &fakeSource{schedules: []Schedule{
		due,
		{PrescriptionID: uuid.New(), MedicineName: "Metformin", TimeOfDay: "12:00"},
		{PrescriptionID: uuid.New(), MedicineName: "Warfarin", TimeOfDay: "08:00", Taken: true},
	}}
	rec := &recorder{}

	w := NewWatcher(src, rec.notify, time.Minute, zerolog.Nop())
	w.now = func() time.Time {
		return time.Date(2025, 6, 15, 8, 0, 30, 0, time.UTC)
	}

	w.sweep(context.Background())

	if rec.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", rec.count())
	}
	if rec.fired[0].PrescriptionID != due.PrescriptionID {
		t.Errorf("wrong dose fired: %+v", rec.fired[0])
	}
}

func TestSweep_FiresOncePerDoseAndDay(t *testing.T) {
	src := &fakeSource{schedules: []Schedule{
		{PrescriptionID: uuid.New(), MedicineName: "Aspirin", TimeOfDay: "08:00"},
	}}
	rec := &recorder{}

	w := NewWatcher(src, rec.notify, time.Minute, zerolog.Nop())
	now := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.sweep(context.Background())
	w.sweep(context.Background())
	if rec.count() != 1 {
		t.Fatalf("repeated sweeps within the minute must fire once, got %d", rec.count())
	}

	// Next day, same time: fires again.
	now = now.AddDate(0, 0, 1)
	w.sweep(context.Background())
	if rec.count() != 2 {
		t.Fatalf("expected a second notification the next day, got %d", rec.count())
	}
}

func TestSweep_SkipsOffScheduleMinutes(t *testing.T) {
	src := &fakeSource{schedules: []Schedule{
		{PrescriptionID: uuid.New(), MedicineName: "Aspirin", TimeOfDay: "08:00"},
	}}
	rec := &recorder{}

	w := NewWatcher(src, rec.notify, time.Minute, zerolog.Nop())
	w.now = func() time.Time {
		return time.Date(2025, 6, 15, 8, 1, 0, 0, time.UTC)
	}

	w.sweep(context.Background())
	if rec.count() != 0 {
		t.Errorf("expected no notification at 08:01, got %d", rec.count())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	w := NewWatcher(src, func(Schedule) {}, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() must return nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after context cancel")
	}
}
