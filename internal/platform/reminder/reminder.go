package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Schedule is one dose slot of an active prescription for the current day.
type Schedule struct {
	PrescriptionID uuid.UUID
	UserID         uuid.UUID
	MedicineName   string
	Dosage         string
	TimeOfDay      string // "HH:MM"
	Taken          bool
}

// Source supplies the day's dose schedules across all users.
type Source interface {
	DueSchedules(ctx context.Context, day time.Time) ([]Schedule, error)
}

// NotifyFunc is invoked once per due, untaken dose.
type NotifyFunc func(s Schedule)

// Watcher periodically compares the wall clock against dose schedules and
// fires the notifier for doses due right now. Each (prescription, time, day)
// fires at most once; the dedupe set resets at midnight.
type Watcher struct {
	source   Source
	notify   NotifyFunc
	interval time.Duration
	log      zerolog.Logger

	now     func() time.Time
	seen    map[string]struct{}
	lastDay string
}

func NewWatcher(source Source, notify NotifyFunc, interval time.Duration, log zerolog.Logger) *Watcher {
	return &Watcher{
		source:   source,
		notify:   notify,
		interval: interval,
		log:      log,
		now:      time.Now,
		seen:     make(map[string]struct{}),
	}
}

// Run sweeps immediately, then on every tick until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("reminder watcher started")
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("reminder watcher stopped")
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	now := w.now()
	day := now.Format("2006-01-02")
	hhmm := now.Format("15:04")

	if day != w.lastDay {
		w.seen = make(map[string]struct{})
		w.lastDay = day
	}

	schedules, err := w.source.DueSchedules(ctx, now)
	if err != nil {
		w.log.Error().Err(err).Msg("fetching due schedules")
		return
	}

	for _, s := range schedules {
		if s.Taken || s.TimeOfDay != hhmm {
			continue
		}
		key := day + "|" + s.PrescriptionID.String() + "|" + s.TimeOfDay
		if _, ok := w.seen[key]; ok {
			continue
		}
		w.seen[key] = struct{}{}
		w.notify(s)
	}
}

// LogNotifier returns a notifier that records due doses in the server log.
func LogNotifier(log zerolog.Logger) NotifyFunc {
	return func(s Schedule) {
		log.Info().
			Str("prescription_id", s.PrescriptionID.String()).
			Str("user_id", s.UserID.String()).
			Str("medicine", s.MedicineName).
			Str("time", s.TimeOfDay).
			Msg("dose due")
	}
}
