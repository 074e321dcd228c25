package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type AppointmentStatus string

const (
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(s); st {
	case AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in-progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

func ParseSessionStatus(s string) (SessionStatus, error) {
	switch st := SessionStatus(s); st {
	case SessionScheduled, SessionInProgress, SessionCompleted, SessionCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionScheduled:  {SessionInProgress, SessionCompleted, SessionCancelled},
	SessionInProgress: {SessionCompleted, SessionCancelled},
}

// CanTransition reports whether a session may move from s to next.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TherapyPrescription is one prescribed therapy course. It has no identity
// of its own and lives inside its appointment.
type TherapyPrescription struct {
	TherapyType   string    `json:"therapy_type"`
	Duration      int       `json:"duration"`
	TherapistID   uuid.UUID `json:"therapist_id"`
	TherapistName string    `json:"therapist_name"`
	Sessions      int       `json:"sessions"`
}

type Appointment struct {
	ID           uuid.UUID             `json:"id"`
	PatientID    uuid.UUID             `json:"patient_id"`
	PatientName  string                `json:"patient_name"`
	DoctorID     uuid.UUID             `json:"doctor_id"`
	DoctorName   string                `json:"doctor_name"`
	Date         string                `json:"date"`
	Time         string                `json:"time"`
	Reason       string                `json:"reason"`
	Status       AppointmentStatus     `json:"status"`
	Prescription *string               `json:"prescription,omitempty"`
	Therapies    []TherapyPrescription `json:"therapies"`
	PrescribedAt *time.Time            `json:"prescribed_at,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// StartsAt combines the appointment's date and time of day in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return combine(a.Date, a.Time, loc)
}

// Prescribed reports whether a prescription has been saved.
func (a *Appointment) Prescribed() bool {
	return a.PrescribedAt != nil
}

func (a *Appointment) HasParticipant(userID uuid.UUID) bool {
	return a.PatientID == userID || a.DoctorID == userID
}

type TherapySession struct {
	ID            uuid.UUID     `json:"id"`
	AppointmentID uuid.UUID     `json:"appointment_id"`
	PatientID     uuid.UUID     `json:"patient_id"`
	PatientName   string        `json:"patient_name"`
	DoctorID      uuid.UUID     `json:"doctor_id"`
	TherapistID   uuid.UUID     `json:"therapist_id"`
	TherapistName string        `json:"therapist_name"`
	TherapyType   string        `json:"therapy_type"`
	Duration      int           `json:"duration"`
	Status        SessionStatus `json:"status"`
	SessionNumber int           `json:"session_number"`
	TotalSessions int           `json:"total_sessions"`
	StartsAt      time.Time     `json:"starts_at"`
	Notes         *string       `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// AppointmentFilter narrows appointment listings. Zero fields match
// everything; DateFrom and DateTo are inclusive YYYY-MM-DD bounds.
type AppointmentFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    AppointmentStatus
	DateFrom  string
	DateTo    string
}

// SessionFilter narrows session listings. From and To bound StartsAt
// inclusively.
type SessionFilter struct {
	PatientID     *uuid.UUID
	DoctorID      *uuid.UUID
	TherapistID   *uuid.UUID
	AppointmentID *uuid.UUID
	Status        SessionStatus
	From          *time.Time
	To            *time.Time
}

// Match applies the filter in memory. The document store backend uses it
// for conditions it does not push into the query.
func (f SessionFilter) Match(s *TherapySession) bool {
	switch {
	case f.PatientID != nil && s.PatientID != *f.PatientID,
		f.DoctorID != nil && s.DoctorID != *f.DoctorID,
		f.TherapistID != nil && s.TherapistID != *f.TherapistID,
		f.AppointmentID != nil && s.AppointmentID != *f.AppointmentID,
		f.Status != "" && s.Status != f.Status,
		f.From != nil && s.StartsAt.Before(*f.From),
		f.To != nil && s.StartsAt.After(*f.To):
		return false
	}
	return true
}

func (f AppointmentFilter) Match(a *Appointment) bool {
	switch {
	case f.PatientID != nil && a.PatientID != *f.PatientID,
		f.DoctorID != nil && a.DoctorID != *f.DoctorID,
		f.Status != "" && a.Status != f.Status,
		f.DateFrom != "" && a.Date < f.DateFrom,
		f.DateTo != "" && a.Date > f.DateTo:
		return false
	}
	return true
}
