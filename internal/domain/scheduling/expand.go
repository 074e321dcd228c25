package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/platform/apperr"
)

func parseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// canonicalTimeOfDay normalises a time of day to zero-padded HH:MM so stored
// values sort in clock order ("9:30" becomes "09:30").
func canonicalTimeOfDay(s string) (string, error) {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return t.Format(TimeLayout), nil
}

// combine builds the wall-clock instant for a YYYY-MM-DD date and an HH:MM
// time of day, shifted forward by addDays calendar days.
func combine(date, tod string, loc *time.Location, addDays ...int) (time.Time, error) {
	d, err := parseDate(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	h, m, err := parseTimeOfDay(tod)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", tod, err)
	}
	days := 0
	for _, n := range addDays {
		days += n
	}
	return time.Date(d.Year(), d.Month(), d.Day()+days, h, m, 0, 0, loc), nil
}

// PrescriptionDraft collects therapy prescriptions while a doctor fills in
// the form. Entries are checked as they are added so an incomplete entry
// never reaches expansion.
type PrescriptionDraft struct {
	Notes string
	items []TherapyPrescription
}

// Add validates p and appends it. A rejected entry leaves the draft unchanged.
func (d *PrescriptionDraft) Add(p TherapyPrescription) error {
	field := func(name string) string {
		return fmt.Sprintf("therapies[%d].%s", len(d.items), name)
	}
	p.TherapyType = strings.TrimSpace(p.TherapyType)
	p.TherapistName = strings.TrimSpace(p.TherapistName)
	switch {
	case p.TherapyType == "":
		return apperr.Invalid(field("therapy_type"), "%s is required", field("therapy_type"))
	case p.Duration <= 0:
		return apperr.Invalid(field("duration"), "%s must be a positive number of minutes", field("duration"))
	case p.TherapistID == uuid.Nil:
		return apperr.Invalid(field("therapist_id"), "%s is required", field("therapist_id"))
	case p.Sessions < 1:
		return apperr.Invalid(field("sessions"), "%s must be at least 1", field("sessions"))
	}
	d.items = append(d.items, p)
	return nil
}

// Items returns the accepted prescriptions in the order they were added.
func (d *PrescriptionDraft) Items() []TherapyPrescription {
	out := make([]TherapyPrescription, len(d.items))
	copy(out, d.items)
	return out
}

func (d *PrescriptionDraft) Len() int { return len(d.items) }

// Expand turns an appointment's therapy prescriptions into one session per
// requested occurrence. Session i of a course starts i-1 calendar days after
// the appointment date, at the appointment's time of day in loc. Output is
// in prescription order, then session order.
func Expand(a *Appointment, prescriptions []TherapyPrescription, loc *time.Location, now time.Time) ([]*TherapySession, error) {
	if _, err := combine(a.Date, a.Time, loc); err != nil {
		return nil, err
	}

	var total int
	for _, p := range prescriptions {
		total += p.Sessions
	}
	sessions := make([]*TherapySession, 0, total)
	for _, p := range prescriptions {
		for i := 1; i <= p.Sessions; i++ {
			start, _ := combine(a.Date, a.Time, loc, i-1)
			sessions = append(sessions, &TherapySession{
				AppointmentID: a.ID,
				PatientID:     a.PatientID,
				PatientName:   a.PatientName,
				DoctorID:      a.DoctorID,
				TherapistID:   p.TherapistID,
				TherapistName: p.TherapistName,
				TherapyType:   p.TherapyType,
				Duration:      p.Duration,
				Status:        SessionScheduled,
				SessionNumber: i,
				TotalSessions: p.Sessions,
				StartsAt:      start,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
	}
	return sessions, nil
}
