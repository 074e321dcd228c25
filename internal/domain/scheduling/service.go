package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/platform/apperr"
)

// UserLookup resolves users by id and role. *identity.Service satisfies it.
type UserLookup interface {
	GetWithRole(ctx context.Context, id uuid.UUID, role identity.Role) (*identity.User, error)
}

type Service struct {
	appointments AppointmentRepository
	sessions     SessionRepository
	users        UserLookup
	tx           Transactor
	loc          *time.Location
	now          func() time.Time
}

// NewService builds the scheduling service. tx may be nil; prescription
// writes are then issued one by one with no rollback.
func NewService(appts AppointmentRepository, sessions SessionRepository, users UserLookup, tx Transactor, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{appointments: appts, sessions: sessions, users: users, tx: tx, loc: loc, now: time.Now}
}

// Location is the clinic time zone used for dates and times of day.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) withinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithinTx(ctx, fn)
}

// -- Appointments --

type BookInput struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Time     string    `json:"time"`
	Reason   string    `json:"reason"`
}

// Book creates a confirmed appointment for the signed-in patient.
func (s *Service) Book(ctx context.Context, patient *identity.User, in BookInput) (*Appointment, error) {
	if patient.Role != identity.RolePatient {
		return nil, apperr.Forbidden("only patients can book appointments")
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperr.Invalid("doctor_id", "doctor_id is required")
	}
	if _, err := parseDate(in.Date); err != nil {
		return nil, apperr.Invalid("date", "date must be YYYY-MM-DD")
	}
	tod, err := canonicalTimeOfDay(in.Time)
	if err != nil {
		return nil, apperr.Invalid("time", "time must be HH:MM")
	}
	today := s.now().In(s.loc).Format(DateLayout)
	if in.Date < today {
		return nil, apperr.Invalid("date", "date must not be in the past")
	}

	doctor, err := s.users.GetWithRole(ctx, in.DoctorID, identity.RoleDoctor)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Invalid("doctor_id", "doctor not found")
		}
		return nil, err
	}

	a := &Appointment{
		PatientID:   patient.ID,
		PatientName: patient.Name,
		DoctorID:    doctor.ID,
		DoctorName:  doctor.Name,
		Date:        in.Date,
		Time:        tod,
		Reason:      strings.TrimSpace(in.Reason),
		Status:      AppointmentConfirmed,
		Therapies:   []TherapyPrescription{},
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// scopeAppointments restricts f to what actor may see.
func scopeAppointments(actor *identity.User, f AppointmentFilter) (AppointmentFilter, error) {
	switch actor.Role {
	case identity.RoleAdmin:
	case identity.RolePatient:
		f.PatientID = &actor.ID
	case identity.RoleDoctor:
		f.DoctorID = &actor.ID
	default:
		return f, apperr.Forbidden("appointments are not available to this role")
	}
	return f, nil
}

func (s *Service) ListAppointments(ctx context.Context, actor *identity.User, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	f, err := scopeAppointments(actor, f)
	if err != nil {
		return nil, 0, err
	}
	return s.appointments.List(ctx, f, limit, offset)
}

func (s *Service) GetAppointment(ctx context.Context, actor *identity.User, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != identity.RoleAdmin && !a.HasParticipant(actor.ID) {
		return nil, apperr.NotFound("appointment")
	}
	return a, nil
}

func (s *Service) doctorAppointment(ctx context.Context, actor *identity.User, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != identity.RoleAdmin && actor.ID != a.DoctorID {
		return nil, apperr.Forbidden("only the appointment's doctor can do this")
	}
	return a, nil
}

type SavePrescriptionInput struct {
	Prescription string                `json:"prescription"`
	Therapies    []TherapyPrescription `json:"therapies"`
}

type PrescriptionResult struct {
	Appointment *Appointment      `json:"appointment"`
	Sessions    []*TherapySession `json:"sessions"`
}

// SavePrescription validates the therapies, expands them into sessions and
// persists the sessions followed by the updated appointment. Saving again
// creates a fresh set of sessions.
func (s *Service) SavePrescription(ctx context.Context, actor *identity.User, id uuid.UUID, in SavePrescriptionInput) (*PrescriptionResult, error) {
	a, err := s.doctorAppointment(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status == AppointmentCancelled {
		return nil, apperr.Conflict("cannot prescribe for a cancelled appointment")
	}

	draft := PrescriptionDraft{Notes: strings.TrimSpace(in.Prescription)}
	for _, p := range in.Therapies {
		if err := draft.Add(p); err != nil {
			return nil, err
		}
	}
	items := draft.Items()
	for i := range items {
		t, err := s.users.GetWithRole(ctx, items[i].TherapistID, identity.RoleTherapist)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				field := fmt.Sprintf("therapies[%d].therapist_id", i)
				return nil, apperr.Invalid(field, "%s does not refer to a therapist", field)
			}
			return nil, err
		}
		if items[i].TherapistName == "" {
			items[i].TherapistName = t.Name
		}
	}

	now := s.now().UTC()
	sessions, err := Expand(a, items, s.loc, now)
	if err != nil {
		return nil, apperr.Invalid("appointment", "appointment has no valid date and time: %v", err)
	}
	// One write per session plus the appointment update.
	if l, ok := s.tx.(WriteLimiter); ok && len(sessions)+1 > l.MaxWrites() {
		return nil, apperr.Invalid("therapies",
			"prescription expands to %d sessions; at most %d can be saved at once", len(sessions), l.MaxWrites()-1)
	}

	err = s.withinTx(ctx, func(ctx context.Context) error {
		for _, ts := range sessions {
			if err := s.sessions.Create(ctx, ts); err != nil {
				return err
			}
		}
		a.Prescription = &draft.Notes
		a.Therapies = items
		a.PrescribedAt = &now
		return s.appointments.Update(ctx, a)
	})
	if err != nil {
		return nil, fmt.Errorf("save prescription for appointment %s: %w", a.ID, err)
	}
	return &PrescriptionResult{Appointment: a, Sessions: sessions}, nil
}

// MarkCompleted closes a confirmed appointment once a prescription exists.
func (s *Service) MarkCompleted(ctx context.Context, actor *identity.User, id uuid.UUID) (*Appointment, error) {
	a, err := s.doctorAppointment(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !a.Prescribed() {
		return nil, apperr.Conflict("save a prescription before completing the appointment")
	}
	if a.Status != AppointmentConfirmed {
		return nil, apperr.Conflict(fmt.Sprintf("appointment is %s", a.Status))
	}
	a.Status = AppointmentCompleted
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, actor *identity.User, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != identity.RoleAdmin && !a.HasParticipant(actor.ID) {
		return nil, apperr.Forbidden("only the patient or doctor can cancel this appointment")
	}
	if a.Status != AppointmentConfirmed {
		return nil, apperr.Conflict(fmt.Sprintf("appointment is %s", a.Status))
	}
	a.Status = AppointmentCancelled
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UpcomingAppointments returns confirmed appointments starting within
// [from, to].
func (s *Service) UpcomingAppointments(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	f := AppointmentFilter{
		Status:   AppointmentConfirmed,
		DateFrom: from.In(s.loc).Format(DateLayout),
		DateTo:   to.In(s.loc).Format(DateLayout),
	}
	list, _, err := s.appointments.List(ctx, f, 0, 0)
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, a := range list {
		start, err := a.StartsAt(s.loc)
		if err != nil || start.Before(from) || start.After(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// -- Therapy sessions --

func scopeSessions(actor *identity.User, f SessionFilter) SessionFilter {
	switch actor.Role {
	case identity.RoleTherapist:
		f.TherapistID = &actor.ID
	case identity.RolePatient:
		f.PatientID = &actor.ID
	case identity.RoleDoctor:
		f.DoctorID = &actor.ID
	}
	return f
}

func canSeeSession(actor *identity.User, ts *TherapySession) bool {
	switch actor.Role {
	case identity.RoleAdmin:
		return true
	case identity.RoleTherapist:
		return ts.TherapistID == actor.ID
	case identity.RolePatient:
		return ts.PatientID == actor.ID
	case identity.RoleDoctor:
		return ts.DoctorID == actor.ID
	}
	return false
}

func (s *Service) ListSessions(ctx context.Context, actor *identity.User, f SessionFilter, limit, offset int) ([]*TherapySession, int, error) {
	return s.sessions.List(ctx, scopeSessions(actor, f), limit, offset)
}

func (s *Service) GetSession(ctx context.Context, actor *identity.User, id uuid.UUID) (*TherapySession, error) {
	ts, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSeeSession(actor, ts) {
		return nil, apperr.NotFound("therapy session")
	}
	return ts, nil
}

type UpdateSessionInput struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

// UpdateSession lets the assigned therapist move a session forward and keep
// notes. Completed and cancelled sessions are final.
func (s *Service) UpdateSession(ctx context.Context, actor *identity.User, id uuid.UUID, in UpdateSessionInput) (*TherapySession, error) {
	ts, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != identity.RoleAdmin && ts.TherapistID != actor.ID {
		return nil, apperr.Forbidden("only the assigned therapist can update this session")
	}
	if in.Status == nil && in.Notes == nil {
		return nil, apperr.Invalid("status", "status or notes is required")
	}
	if ts.Status.Terminal() {
		return nil, apperr.Conflict(fmt.Sprintf("session is already %s", ts.Status))
	}

	if in.Status != nil {
		next, err := ParseSessionStatus(*in.Status)
		if err != nil {
			return nil, apperr.Invalid("status", "%v", err)
		}
		if next != ts.Status {
			if !ts.Status.CanTransition(next) {
				return nil, apperr.Conflict(fmt.Sprintf("cannot move session from %s to %s", ts.Status, next))
			}
			ts.Status = next
		}
	}
	if in.Notes != nil {
		notes := strings.TrimSpace(*in.Notes)
		ts.Notes = &notes
	}
	ts.UpdatedAt = s.now().UTC()
	if err := s.sessions.Update(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// UpcomingSessions returns scheduled sessions starting within [from, to].
func (s *Service) UpcomingSessions(ctx context.Context, from, to time.Time) ([]*TherapySession, error) {
	list, _, err := s.sessions.List(ctx, SessionFilter{Status: SessionScheduled, From: &from, To: &to}, 0, 0)
	return list, err
}
