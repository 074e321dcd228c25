package dashboard

import (
	"context"
	"time"

	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/domain/scheduling"
)

type adminDashboard struct {
	users    UserStats
	feedback FeedbackSource
	now      func() time.Time
}

func (adminDashboard) Role() identity.Role { return identity.RoleAdmin }

func (d *adminDashboard) Build(ctx context.Context, _ *identity.User) (*View, error) {
	counts, err := d.users.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	sentiment, err := d.feedback.SentimentByDoctor(ctx)
	if err != nil {
		return nil, err
	}
	return &View{Role: identity.RoleAdmin, GeneratedAt: d.now().UTC(), UserCounts: counts, Sentiment: sentiment}, nil
}

type doctorDashboard struct {
	schedule Schedule
	now      func() time.Time
}

func (doctorDashboard) Role() identity.Role { return identity.RoleDoctor }

func (d *doctorDashboard) Build(ctx context.Context, user *identity.User) (*View, error) {
	now := d.now()
	today := now.In(d.schedule.Location()).Format(scheduling.DateLayout)

	todays, _, err := d.schedule.ListAppointments(ctx, user,
		scheduling.AppointmentFilter{DateFrom: today, DateTo: today}, 0, 0)
	if err != nil {
		return nil, err
	}
	confirmed, _, err := d.schedule.ListAppointments(ctx, user,
		scheduling.AppointmentFilter{Status: scheduling.AppointmentConfirmed}, 0, 0)
	if err != nil {
		return nil, err
	}
	awaiting := make([]*scheduling.Appointment, 0)
	for _, a := range confirmed {
		if !a.Prescribed() && a.Date <= today {
			awaiting = append(awaiting, a)
		}
	}
	counts, err := appointmentCounts(ctx, d.schedule, user)
	if err != nil {
		return nil, err
	}
	return &View{
		Role:                 identity.RoleDoctor,
		GeneratedAt:          now.UTC(),
		TodayAppointments:    todays,
		AwaitingPrescription: awaiting,
		AppointmentCounts:    counts,
	}, nil
}

type therapistDashboard struct {
	schedule Schedule
	now      func() time.Time
}

func (therapistDashboard) Role() identity.Role { return identity.RoleTherapist }

func (d *therapistDashboard) Build(ctx context.Context, user *identity.User) (*View, error) {
	now := d.now()
	to := now.AddDate(0, 0, therapistDays)
	upcoming, _, err := d.schedule.ListSessions(ctx, user, scheduling.SessionFilter{
		Status: scheduling.SessionScheduled,
		From:   &now,
		To:     &to,
	}, 0, 0)
	if err != nil {
		return nil, err
	}
	counts, err := sessionCounts(ctx, d.schedule, user)
	if err != nil {
		return nil, err
	}
	return &View{
		Role:             identity.RoleTherapist,
		GeneratedAt:      now.UTC(),
		UpcomingSessions: upcoming,
		SessionCounts:    counts,
	}, nil
}

type patientDashboard struct {
	schedule Schedule
	feedback FeedbackSource
	now      func() time.Time
}

func (patientDashboard) Role() identity.Role { return identity.RolePatient }

func (d *patientDashboard) Build(ctx context.Context, user *identity.User) (*View, error) {
	now := d.now()
	today := now.In(d.schedule.Location()).Format(scheduling.DateLayout)

	appts, _, err := d.schedule.ListAppointments(ctx, user, scheduling.AppointmentFilter{
		Status:   scheduling.AppointmentConfirmed,
		DateFrom: today,
	}, upcomingLimit, 0)
	if err != nil {
		return nil, err
	}
	sessions, _, err := d.schedule.ListSessions(ctx, user, scheduling.SessionFilter{
		Status: scheduling.SessionScheduled,
		From:   &now,
	}, upcomingLimit, 0)
	if err != nil {
		return nil, err
	}
	_, given, err := d.feedback.ListMine(ctx, user.ID, 1, 0)
	if err != nil {
		return nil, err
	}
	return &View{
		Role:                 identity.RolePatient,
		GeneratedAt:          now.UTC(),
		UpcomingAppointments: appts,
		UpcomingSessions:     sessions,
		FeedbackCount:        &given,
	}, nil
}
