package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/platform/apperr"
	"github.com/ayurveda/clinic/internal/platform/docstore"
	"github.com/ayurveda/clinic/internal/platform/hipaa"
)

type therapyDoc struct {
	TherapyType   string `firestore:"therapyType"`
	Duration      int    `firestore:"duration"`
	TherapistID   string `firestore:"therapistId"`
	TherapistName string `firestore:"therapistName"`
	Sessions      int    `firestore:"sessions"`
}

// appointmentDoc mirrors a document in the appointments collection.
type appointmentDoc struct {
	PatientID    string       `firestore:"patientId"`
	PatientName  string       `firestore:"patientName"`
	DoctorID     string       `firestore:"doctorId"`
	DoctorName   string       `firestore:"doctorName"`
	Date         string       `firestore:"date"`
	Time         string       `firestore:"time"`
	Reason       string       `firestore:"reason"`
	Status       string       `firestore:"status"`
	Prescription *string      `firestore:"prescription"`
	Therapies    []therapyDoc `firestore:"therapies"`
	PrescribedAt *time.Time   `firestore:"prescribedAt"`
	CreatedAt    time.Time    `firestore:"createdAt"`
	UpdatedAt    time.Time    `firestore:"updatedAt"`
}

func toAppointmentDoc(a *Appointment) appointmentDoc {
	d := appointmentDoc{
		PatientID:    a.PatientID.String(),
		PatientName:  a.PatientName,
		DoctorID:     a.DoctorID.String(),
		DoctorName:   a.DoctorName,
		Date:         a.Date,
		Time:         a.Time,
		Reason:       a.Reason,
		Status:       string(a.Status),
		Prescription: a.Prescription,
		Therapies:    make([]therapyDoc, 0, len(a.Therapies)),
		PrescribedAt: a.PrescribedAt,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	for _, t := range a.Therapies {
		d.Therapies = append(d.Therapies, therapyDoc{
			TherapyType:   t.TherapyType,
			Duration:      t.Duration,
			TherapistID:   t.TherapistID.String(),
			TherapistName: t.TherapistName,
			Sessions:      t.Sessions,
		})
	}
	return d
}

func parseIDs(ids ...string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(ids))
	for i, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", s, err)
		}
		out[i] = id
	}
	return out, nil
}

func (d appointmentDoc) toAppointment(id string) (*Appointment, error) {
	ids, err := parseIDs(id, d.PatientID, d.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("appointment document: %w", err)
	}
	a := &Appointment{
		ID:           ids[0],
		PatientID:    ids[1],
		PatientName:  d.PatientName,
		DoctorID:     ids[2],
		DoctorName:   d.DoctorName,
		Date:         d.Date,
		Time:         d.Time,
		Reason:       d.Reason,
		Status:       AppointmentStatus(d.Status),
		Prescription: d.Prescription,
		Therapies:    make([]TherapyPrescription, 0, len(d.Therapies)),
		PrescribedAt: d.PrescribedAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, t := range d.Therapies {
		tid, err := uuid.Parse(t.TherapistID)
		if err != nil {
			return nil, fmt.Errorf("appointment %s therapist: %w", id, err)
		}
		a.Therapies = append(a.Therapies, TherapyPrescription{
			TherapyType:   t.TherapyType,
			Duration:      t.Duration,
			TherapistID:   tid,
			TherapistName: t.TherapistName,
			Sessions:      t.Sessions,
		})
	}
	return a, nil
}

type appointmentRepoFirestore struct {
	client *firestore.Client
	enc    hipaa.FieldEncryptor
}

// NewAppointmentRepoFirestore returns the Firestore appointment repository.
// With a non-nil enc, reasons and prescriptions are stored encrypted.
func NewAppointmentRepoFirestore(client *firestore.Client, enc hipaa.FieldEncryptor) AppointmentRepository {
	return &appointmentRepoFirestore{client: client, enc: enc}
}

func (r *appointmentRepoFirestore) col() *firestore.CollectionRef {
	return r.client.Collection(docstore.Appointments)
}

func (r *appointmentRepoFirestore) seal(a *Appointment) (appointmentDoc, error) {
	d := toAppointmentDoc(a)
	var err error
	if d.Reason, err = hipaa.Seal(r.enc, d.Reason); err != nil {
		return d, err
	}
	d.Prescription, err = hipaa.SealPtr(r.enc, d.Prescription)
	return d, err
}

func (r *appointmentRepoFirestore) open(d appointmentDoc, id string) (*Appointment, error) {
	a, err := d.toAppointment(id)
	if err != nil {
		return nil, err
	}
	if a.Reason, err = hipaa.Open(r.enc, a.Reason); err != nil {
		return nil, err
	}
	if a.Prescription, err = hipaa.OpenPtr(r.enc, a.Prescription); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *appointmentRepoFirestore) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	d, err := r.seal(a)
	if err != nil {
		return err
	}
	if err := docstore.Create(ctx, r.col().Doc(a.ID.String()), d); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoFirestore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var d appointmentDoc
	if err := docstore.Get(ctx, r.col().Doc(id.String()), &d); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperr.NotFound("appointment")
		}
		return nil, err
	}
	return r.open(d, id.String())
}

func (r *appointmentRepoFirestore) Update(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	d, err := r.seal(a)
	if err != nil {
		return err
	}
	if err := docstore.Set(ctx, r.col().Doc(a.ID.String()), d); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

// appointmentClauses translates f into query filters. Dates are stored as
// YYYY-MM-DD strings, so range bounds compare lexically.
func appointmentClauses(f AppointmentFilter) []docstore.Clause {
	var cs []docstore.Clause
	if f.PatientID != nil {
		cs = append(cs, docstore.Clause{Path: "patientId", Op: "==", Value: f.PatientID.String()})
	}
	if f.DoctorID != nil {
		cs = append(cs, docstore.Clause{Path: "doctorId", Op: "==", Value: f.DoctorID.String()})
	}
	if f.Status != "" {
		cs = append(cs, docstore.Clause{Path: "status", Op: "==", Value: string(f.Status)})
	}
	if f.DateFrom != "" {
		cs = append(cs, docstore.Clause{Path: "date", Op: ">=", Value: f.DateFrom})
	}
	if f.DateTo != "" {
		cs = append(cs, docstore.Clause{Path: "date", Op: "<=", Value: f.DateTo})
	}
	return cs
}

// List filters in the query. The composite indexes it relies on are declared
// in firestore.indexes.json. Ordering and paging happen in memory.
func (r *appointmentRepoFirestore) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	snaps, err := docstore.All(ctx, docstore.Where(r.col().Query, appointmentClauses(f)))
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	var out []*Appointment
	for _, s := range snaps {
		var d appointmentDoc
		if err := s.DataTo(&d); err != nil {
			return nil, 0, err
		}
		a, err := r.open(d, s.Ref.ID)
		if err != nil {
			return nil, 0, err
		}
		if f.Match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return docstore.Page(out, limit, offset), len(out), nil
}

// sessionDoc mirrors a document in the therapySessions collection.
type sessionDoc struct {
	AppointmentID string    `firestore:"appointmentId"`
	PatientID     string    `firestore:"patientId"`
	PatientName   string    `firestore:"patientName"`
	DoctorID      string    `firestore:"doctorId"`
	TherapistID   string    `firestore:"therapistId"`
	TherapistName string    `firestore:"therapistName"`
	TherapyType   string    `firestore:"therapyType"`
	Duration      int       `firestore:"duration"`
	Status        string    `firestore:"status"`
	SessionNumber int       `firestore:"sessionNumber"`
	TotalSessions int       `firestore:"totalSessions"`
	Date          time.Time `firestore:"date"`
	Notes         *string   `firestore:"notes"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func toSessionDoc(s *TherapySession) sessionDoc {
	return sessionDoc{
		AppointmentID: s.AppointmentID.String(),
		PatientID:     s.PatientID.String(),
		PatientName:   s.PatientName,
		DoctorID:      s.DoctorID.String(),
		TherapistID:   s.TherapistID.String(),
		TherapistName: s.TherapistName,
		TherapyType:   s.TherapyType,
		Duration:      s.Duration,
		Status:        string(s.Status),
		SessionNumber: s.SessionNumber,
		TotalSessions: s.TotalSessions,
		Date:          s.StartsAt,
		Notes:         s.Notes,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (d sessionDoc) toSession(id string) (*TherapySession, error) {
	ids, err := parseIDs(id, d.AppointmentID, d.PatientID, d.DoctorID, d.TherapistID)
	if err != nil {
		return nil, fmt.Errorf("therapy session document: %w", err)
	}
	return &TherapySession{
		ID:            ids[0],
		AppointmentID: ids[1],
		PatientID:     ids[2],
		PatientName:   d.PatientName,
		DoctorID:      ids[3],
		TherapistID:   ids[4],
		TherapistName: d.TherapistName,
		TherapyType:   d.TherapyType,
		Duration:      d.Duration,
		Status:        SessionStatus(d.Status),
		SessionNumber: d.SessionNumber,
		TotalSessions: d.TotalSessions,
		StartsAt:      d.Date,
		Notes:         d.Notes,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

type sessionRepoFirestore struct {
	client *firestore.Client
	enc    hipaa.FieldEncryptor
}

// NewSessionRepoFirestore returns the Firestore session repository. With a
// non-nil enc, session notes are stored encrypted.
func NewSessionRepoFirestore(client *firestore.Client, enc hipaa.FieldEncryptor) SessionRepository {
	return &sessionRepoFirestore{client: client, enc: enc}
}

func (r *sessionRepoFirestore) col() *firestore.CollectionRef {
	return r.client.Collection(docstore.TherapySessions)
}

func (r *sessionRepoFirestore) seal(s *TherapySession) (sessionDoc, error) {
	d := toSessionDoc(s)
	var err error
	d.Notes, err = hipaa.SealPtr(r.enc, d.Notes)
	return d, err
}

func (r *sessionRepoFirestore) open(d sessionDoc, id string) (*TherapySession, error) {
	s, err := d.toSession(id)
	if err != nil {
		return nil, err
	}
	if s.Notes, err = hipaa.OpenPtr(r.enc, s.Notes); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sessionRepoFirestore) Create(ctx context.Context, s *TherapySession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	d, err := r.seal(s)
	if err != nil {
		return err
	}
	if err := docstore.Create(ctx, r.col().Doc(s.ID.String()), d); err != nil {
		return fmt.Errorf("create therapy session: %w", err)
	}
	return nil
}

func (r *sessionRepoFirestore) GetByID(ctx context.Context, id uuid.UUID) (*TherapySession, error) {
	var d sessionDoc
	if err := docstore.Get(ctx, r.col().Doc(id.String()), &d); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperr.NotFound("therapy session")
		}
		return nil, err
	}
	return r.open(d, id.String())
}

func (r *sessionRepoFirestore) Update(ctx context.Context, s *TherapySession) error {
	d, err := r.seal(s)
	if err != nil {
		return err
	}
	if err := docstore.Set(ctx, r.col().Doc(s.ID.String()), d); err != nil {
		return fmt.Errorf("update therapy session: %w", err)
	}
	return nil
}

// sessionClauses translates f into query filters: equality on every id and
// the status, plus an inclusive range on the session date.
func sessionClauses(f SessionFilter) []docstore.Clause {
	var cs []docstore.Clause
	eq := func(path string, id *uuid.UUID) {
		if id != nil {
			cs = append(cs, docstore.Clause{Path: path, Op: "==", Value: id.String()})
		}
	}
	eq("therapistId", f.TherapistID)
	eq("patientId", f.PatientID)
	eq("doctorId", f.DoctorID)
	eq("appointmentId", f.AppointmentID)
	if f.Status != "" {
		cs = append(cs, docstore.Clause{Path: "status", Op: "==", Value: string(f.Status)})
	}
	if f.From != nil {
		cs = append(cs, docstore.Clause{Path: "date", Op: ">=", Value: *f.From})
	}
	if f.To != nil {
		cs = append(cs, docstore.Clause{Path: "date", Op: "<=", Value: *f.To})
	}
	return cs
}

func (r *sessionRepoFirestore) List(ctx context.Context, f SessionFilter, limit, offset int) ([]*TherapySession, int, error) {
	snaps, err := docstore.All(ctx, docstore.Where(r.col().Query, sessionClauses(f)))
	if err != nil {
		return nil, 0, fmt.Errorf("list therapy sessions: %w", err)
	}

	var out []*TherapySession
	for _, snap := range snaps {
		var d sessionDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, 0, err
		}
		s, err := r.open(d, snap.Ref.ID)
		if err != nil {
			return nil, 0, err
		}
		if f.Match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		if out[i].SessionNumber != out[j].SessionNumber {
			return out[i].SessionNumber < out[j].SessionNumber
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return docstore.Page(out, limit, offset), len(out), nil
}
