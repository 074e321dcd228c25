// Package reminder sends push reminders shortly before appointments and
// therapy sessions start.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/ayurveda/clinic/internal/domain/scheduling"
	"github.com/ayurveda/clinic/internal/platform/notification"
)

// Source lists upcoming work. *scheduling.Service satisfies it.
type Source interface {
	UpcomingAppointments(ctx context.Context, from, to time.Time) ([]*scheduling.Appointment, error)
	UpcomingSessions(ctx context.Context, from, to time.Time) ([]*scheduling.TherapySession, error)
	Location() *time.Location
}

// Notifier delivers a rendered template. *notification.Manager satisfies it.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, userID string) (*notification.Notification, error)
}

type Config struct {
	Interval  time.Duration
	Lead      time.Duration
	Tolerance time.Duration
}

// Window returns the inclusive range of start times that are due at now.
func Window(now time.Time, lead, tolerance time.Duration) (from, to time.Time) {
	return now.Add(lead - tolerance), now.Add(lead + tolerance)
}

// Due reports whether start falls inside the reminder window at now.
func Due(start, now time.Time, lead, tolerance time.Duration) bool {
	from, to := Window(now, lead, tolerance)
	return !start.Before(from) && !start.After(to)
}

type Result struct {
	Appointments int `json:"appointments"`
	Sessions     int `json:"sessions"`
	Failed       int `json:"failed"`
}

type Worker struct {
	src      Source
	notifier Notifier
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time // record key -> start time

	scheduler *gocron.Scheduler
}

func NewWorker(src Source, notifier Notifier, cfg Config, logger zerolog.Logger) *Worker {
	return &Worker{
		src:      src,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "reminders").Logger(),
		now:      time.Now,
		sent:     make(map[string]time.Time),
	}
}

// claim marks key as reminded unless it already was.
func (w *Worker) claim(key string, start time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sent[key]; ok {
		return false
	}
	w.sent[key] = start
	return true
}

func (w *Worker) release(key string) {
	w.mu.Lock()
	delete(w.sent, key)
	w.mu.Unlock()
}

// prune forgets records whose start time has passed.
func (w *Worker) prune(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, start := range w.sent {
		if start.Before(now) {
			delete(w.sent, key)
		}
	}
}

// deliver sends one reminder. It reports false with a nil error when the
// record was already reminded.
func (w *Worker) deliver(ctx context.Context, key string, start time.Time, templateID, userID string, data map[string]string) (bool, error) {
	if !w.claim(key, start) {
		return false, nil
	}
	if _, err := w.notifier.SendFromTemplate(ctx, templateID, data, userID); err != nil {
		// Unclaim so the next run retries while still in the window.
		w.release(key)
		w.logger.Error().Err(err).Str("record", key).Str("user_id", userID).Msg("reminder delivery failed")
		return false, err
	}
	return true, nil
}

// RunOnce sends reminders for everything currently due.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := w.now()
	w.prune(now)
	from, to := Window(now, w.cfg.Lead, w.cfg.Tolerance)
	loc := w.src.Location()

	appts, err := w.src.UpcomingAppointments(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("list upcoming appointments: %w", err)
	}
	for _, a := range appts {
		start, err := a.StartsAt(loc)
		if err != nil {
			continue
		}
		data := map[string]string{
			"patient_name": a.PatientName,
			"doctor_name":  a.DoctorName,
			"date":         a.Date,
			"time":         a.Time,
		}
		sent, err := w.deliver(ctx, "appointment:"+a.ID.String(), start, notification.TemplateAppointmentReminder, a.PatientID.String(), data)
		switch {
		case err != nil:
			res.Failed++
		case sent:
			res.Appointments++
		}
	}

	sessions, err := w.src.UpcomingSessions(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("list upcoming sessions: %w", err)
	}
	for _, s := range sessions {
		local := s.StartsAt.In(loc)
		data := map[string]string{
			"patient_name":   s.PatientName,
			"therapy_type":   s.TherapyType,
			"therapist_name": s.TherapistName,
			"session_number": strconv.Itoa(s.SessionNumber),
			"total_sessions": strconv.Itoa(s.TotalSessions),
			"date":           local.Format(scheduling.DateLayout),
			"time":           local.Format(scheduling.TimeLayout),
		}
		sent, err := w.deliver(ctx, "session:"+s.ID.String(), s.StartsAt, notification.TemplateTherapyReminder, s.PatientID.String(), data)
		switch {
		case err != nil:
			res.Failed++
		case sent:
			res.Sessions++
		}
	}

	if res.Appointments+res.Sessions+res.Failed > 0 {
		w.logger.Info().
			Int("appointments", res.Appointments).
			Int("sessions", res.Sessions).
			Int("failed", res.Failed).
			Msg("reminders sent")
	}
	return res, nil
}

// Start runs RunOnce every Interval until Stop. Runs never overlap.
func (w *Worker) Start(ctx context.Context) error {
	s := gocron.NewScheduler(w.src.Location())
	_, err := s.Every(w.cfg.Interval).SingletonMode().Do(func() {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error().Err(err).Msg("reminder check failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminder job: %w", err)
	}
	s.StartAsync()
	w.scheduler = s
	w.logger.Info().Dur("interval", w.cfg.Interval).Dur("lead", w.cfg.Lead).Msg("reminder worker started")
	return nil
}

func (w *Worker) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
