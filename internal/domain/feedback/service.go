package feedback

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/domain/scheduling"
	"github.com/ayurveda/clinic/internal/platform/apperr"
)

const analyzeTimeout = 10 * time.Second

// UserLookup resolves users by id and role. *identity.Service satisfies it.
type UserLookup interface {
	GetWithRole(ctx context.Context, id uuid.UUID, role identity.Role) (*identity.User, error)
}

// AppointmentLookup loads an appointment as seen by actor. Appointments the
// actor does not take part in are reported as not found.
// *scheduling.Service satisfies it.
type AppointmentLookup interface {
	GetAppointment(ctx context.Context, actor *identity.User, id uuid.UUID) (*scheduling.Appointment, error)
}

type Service struct {
	repo         Repository
	users        UserLookup
	appointments AppointmentLookup
	analyzer     Analyzer
	logger       zerolog.Logger
}

// NewService builds the feedback service. A nil analyzer tags everything
// with the lexicon analyzer.
func NewService(repo Repository, users UserLookup, appointments AppointmentLookup, analyzer Analyzer, logger zerolog.Logger) *Service {
	if analyzer == nil {
		analyzer = LexiconAnalyzer{}
	}
	return &Service{repo: repo, users: users, appointments: appointments, analyzer: analyzer, logger: logger}
}

type SubmitInput struct {
	DoctorID      uuid.UUID  `json:"doctor_id"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
	Message       string     `json:"message"`
	Rating        *int       `json:"rating"`
}

// Submit stores a patient's feedback about a doctor. Sentiment tagging never
// fails the submission; an analyzer error is logged and the feedback is
// tagged neutral.
func (s *Service) Submit(ctx context.Context, patient *identity.User, in SubmitInput) (*Feedback, error) {
	if patient.Role != identity.RolePatient {
		return nil, apperr.Forbidden("only patients can leave feedback")
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, apperr.Invalid("message", "message is required")
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return nil, apperr.Invalid("rating", "rating must be between 1 and 5")
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperr.Invalid("doctor_id", "doctor_id is required")
	}
	if _, err := s.users.GetWithRole(ctx, in.DoctorID, identity.RoleDoctor); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Invalid("doctor_id", "doctor not found")
		}
		return nil, err
	}
	if in.AppointmentID != nil {
		if err := s.checkAppointment(ctx, patient, in.DoctorID, *in.AppointmentID); err != nil {
			return nil, err
		}
	}

	f := &Feedback{
		PatientID:     patient.ID,
		PatientName:   patient.Name,
		DoctorID:      in.DoctorID,
		AppointmentID: in.AppointmentID,
		Message:       msg,
		Rating:        in.Rating,
		Sentiment:     s.tag(ctx, msg),
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// checkAppointment requires the referenced appointment to be the patient's own
// visit with the doctor being reviewed.
func (s *Service) checkAppointment(ctx context.Context, patient *identity.User, doctorID, id uuid.UUID) error {
	a, err := s.appointments.GetAppointment(ctx, patient, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Invalid("appointment_id", "appointment not found")
	}
	if err != nil {
		return err
	}
	if a.PatientID != patient.ID || a.DoctorID != doctorID {
		return apperr.Invalid("appointment_id", "appointment is not with this doctor")
	}
	return nil
}

func (s *Service) tag(ctx context.Context, msg string) Sentiment {
	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()
	sentiment, err := s.analyzer.Analyze(ctx, msg)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sentiment analysis failed, tagging feedback neutral")
		return Neutral
	}
	return sentiment
}

// SentimentByDoctor counts feedback sentiment per doctor. Feedback whose
// doctor no longer resolves to a doctor account is left out.
func (s *Service) SentimentByDoctor(ctx context.Context) ([]*DoctorSentiment, error) {
	all, _, err := s.repo.List(ctx, Filter{}, 0, 0)
	if err != nil {
		return nil, err
	}

	byDoctor := make(map[uuid.UUID]*DoctorSentiment)
	skipped := make(map[uuid.UUID]bool)
	for _, f := range all {
		if skipped[f.DoctorID] {
			continue
		}
		row, ok := byDoctor[f.DoctorID]
		if !ok {
			doc, err := s.users.GetWithRole(ctx, f.DoctorID, identity.RoleDoctor)
			if errors.Is(err, apperr.ErrNotFound) {
				skipped[f.DoctorID] = true
				continue
			}
			if err != nil {
				return nil, err
			}
			row = &DoctorSentiment{DoctorID: doc.ID, Name: doc.Name, Email: doc.Email}
			byDoctor[f.DoctorID] = row
		}
		row.add(f.Sentiment)
	}

	out := make([]*DoctorSentiment, 0, len(byDoctor))
	for _, row := range byDoctor {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].DoctorID.String() < out[j].DoctorID.String()
	})
	return out, nil
}

// List returns the feedback visible to actor: a doctor's received feedback,
// a patient's own, or everything for an admin.
func (s *Service) List(ctx context.Context, actor *identity.User, limit, offset int) ([]*Feedback, int, error) {
	switch actor.Role {
	case identity.RoleDoctor:
		return s.ListForDoctor(ctx, actor.ID, limit, offset)
	case identity.RolePatient:
		return s.ListMine(ctx, actor.ID, limit, offset)
	case identity.RoleAdmin:
		return s.repo.List(ctx, Filter{}, limit, offset)
	}
	return nil, 0, apperr.Forbidden("feedback is not available to this role")
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Feedback, int, error) {
	return s.repo.List(ctx, Filter{DoctorID: &doctorID}, limit, offset)
}

func (s *Service) ListMine(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Feedback, int, error) {
	return s.repo.List(ctx, Filter{PatientID: &patientID}, limit, offset)
}
