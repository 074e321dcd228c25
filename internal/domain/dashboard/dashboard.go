// Package dashboard builds the landing view for each role. Every role has
// its own Dashboard; the Registry picks one from the caller's stored role.
package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/domain/feedback"
	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/domain/scheduling"
	"github.com/ayurveda/clinic/internal/platform/apperr"
)

const (
	upcomingLimit = 10
	therapistDays = 7
)

// View is the dashboard payload. Only the sections relevant to Role are set.
type View struct {
	Role        identity.Role `json:"role"`
	GeneratedAt time.Time     `json:"generated_at"`

	UserCounts map[identity.Role]int       `json:"user_counts,omitempty"`
	Sentiment  []*feedback.DoctorSentiment `json:"sentiment,omitempty"`

	TodayAppointments    []*scheduling.Appointment            `json:"today_appointments,omitempty"`
	AwaitingPrescription []*scheduling.Appointment            `json:"awaiting_prescription,omitempty"`
	AppointmentCounts    map[scheduling.AppointmentStatus]int `json:"appointment_counts,omitempty"`
	UpcomingAppointments []*scheduling.Appointment            `json:"upcoming_appointments,omitempty"`
	UpcomingSessions     []*scheduling.TherapySession         `json:"upcoming_sessions,omitempty"`
	SessionCounts        map[scheduling.SessionStatus]int     `json:"session_counts,omitempty"`
	FeedbackCount        *int                                 `json:"feedback_count,omitempty"`
}

// Dashboard builds the view for one role.
type Dashboard interface {
	Role() identity.Role
	Build(ctx context.Context, user *identity.User) (*View, error)
}

type UserStats interface {
	CountByRole(ctx context.Context) (map[identity.Role]int, error)
}

type FeedbackSource interface {
	SentimentByDoctor(ctx context.Context) ([]*feedback.DoctorSentiment, error)
	ListMine(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*feedback.Feedback, int, error)
}

// Schedule is the scheduling surface the dashboards read. *scheduling.Service
// satisfies it.
type Schedule interface {
	ListAppointments(ctx context.Context, actor *identity.User, f scheduling.AppointmentFilter, limit, offset int) ([]*scheduling.Appointment, int, error)
	ListSessions(ctx context.Context, actor *identity.User, f scheduling.SessionFilter, limit, offset int) ([]*scheduling.TherapySession, int, error)
	Location() *time.Location
}

// Registry dispatches to the Dashboard registered for the caller's role.
type Registry struct {
	byRole map[identity.Role]Dashboard
}

func NewRegistry() *Registry {
	return &Registry{byRole: make(map[identity.Role]Dashboard)}
}

func (r *Registry) Register(d Dashboard) {
	r.byRole[d.Role()] = d
}

func (r *Registry) Build(ctx context.Context, user *identity.User) (*View, error) {
	d, ok := r.byRole[user.Role]
	if !ok {
		return nil, apperr.Forbidden("no dashboard for role " + user.Role.String())
	}
	return d.Build(ctx, user)
}

// Deps collects the services the role dashboards read from.
type Deps struct {
	Users    UserStats
	Feedback FeedbackSource
	Schedule Schedule
	Now      func() time.Time
}

// NewDefaultRegistry registers the admin, doctor, therapist and patient
// dashboards.
func NewDefaultRegistry(d Deps) *Registry {
	if d.Now == nil {
		d.Now = time.Now
	}
	r := NewRegistry()
	r.Register(&adminDashboard{users: d.Users, feedback: d.Feedback, now: d.Now})
	r.Register(&doctorDashboard{schedule: d.Schedule, now: d.Now})
	r.Register(&therapistDashboard{schedule: d.Schedule, now: d.Now})
	r.Register(&patientDashboard{schedule: d.Schedule, feedback: d.Feedback, now: d.Now})
	return r
}

func appointmentCounts(ctx context.Context, s Schedule, user *identity.User) (map[scheduling.AppointmentStatus]int, error) {
	counts := make(map[scheduling.AppointmentStatus]int, 3)
	for _, st := range []scheduling.AppointmentStatus{
		scheduling.AppointmentConfirmed, scheduling.AppointmentCompleted, scheduling.AppointmentCancelled,
	} {
		_, total, err := s.ListAppointments(ctx, user, scheduling.AppointmentFilter{Status: st}, 1, 0)
		if err != nil {
			return nil, err
		}
		counts[st] = total
	}
	return counts, nil
}

func sessionCounts(ctx context.Context, s Schedule, user *identity.User) (map[scheduling.SessionStatus]int, error) {
	counts := make(map[scheduling.SessionStatus]int, 4)
	for _, st := range []scheduling.SessionStatus{
		scheduling.SessionScheduled, scheduling.SessionInProgress, scheduling.SessionCompleted, scheduling.SessionCancelled,
	} {
		_, total, err := s.ListSessions(ctx, user, scheduling.SessionFilter{Status: st}, 1, 0)
		if err != nil {
			return nil, err
		}
		counts[st] = total
	}
	return counts, nil
}
