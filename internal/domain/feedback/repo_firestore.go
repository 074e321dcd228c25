package feedback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/platform/docstore"
)

// feedbackDoc mirrors a document in the feedback collection.
type feedbackDoc struct {
	PatientID     string    `firestore:"patientId"`
	PatientName   string    `firestore:"patientName"`
	DoctorID      string    `firestore:"doctorId"`
	AppointmentID string    `firestore:"appointmentId,omitempty"`
	Message       string    `firestore:"message"`
	Rating        *int      `firestore:"rating"`
	Sentiment     string    `firestore:"sentiment"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

func (d feedbackDoc) toFeedback(id string) (*Feedback, error) {
	fid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("feedback document %q: %w", id, err)
	}
	pid, err := uuid.Parse(d.PatientID)
	if err != nil {
		return nil, fmt.Errorf("feedback %s patient: %w", id, err)
	}
	f := &Feedback{
		ID:          fid,
		PatientID:   pid,
		PatientName: d.PatientName,
		Message:     d.Message,
		Rating:      d.Rating,
		Sentiment:   Sentiment(d.Sentiment),
		CreatedAt:   d.CreatedAt,
	}
	// Feedback may name a doctor that no longer parses; it is then dropped
	// from aggregation rather than failing the listing.
	f.DoctorID, _ = uuid.Parse(d.DoctorID)
	if d.AppointmentID != "" {
		if aid, err := uuid.Parse(d.AppointmentID); err == nil {
			f.AppointmentID = &aid
		}
	}
	return f, nil
}

type repoFirestore struct{ client *firestore.Client }

func NewRepoFirestore(client *firestore.Client) Repository {
	return &repoFirestore{client: client}
}

func (r *repoFirestore) col() *firestore.CollectionRef {
	return r.client.Collection(docstore.Feedback)
}

func (r *repoFirestore) Create(ctx context.Context, f *Feedback) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.CreatedAt = time.Now().UTC()
	d := feedbackDoc{
		PatientID:   f.PatientID.String(),
		PatientName: f.PatientName,
		DoctorID:    f.DoctorID.String(),
		Message:     f.Message,
		Rating:      f.Rating,
		Sentiment:   string(f.Sentiment),
		CreatedAt:   f.CreatedAt,
	}
	if f.AppointmentID != nil {
		d.AppointmentID = f.AppointmentID.String()
	}
	if err := docstore.Create(ctx, r.col().Doc(f.ID.String()), d); err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

func (r *repoFirestore) List(ctx context.Context, f Filter, limit, offset int) ([]*Feedback, int, error) {
	q := r.col().Query
	if f.PatientID != nil {
		q = q.Where("patientId", "==", f.PatientID.String())
	}
	if f.DoctorID != nil {
		q = q.Where("doctorId", "==", f.DoctorID.String())
	}
	snaps, err := docstore.All(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list feedback: %w", err)
	}
	out := make([]*Feedback, 0, len(snaps))
	for _, s := range snaps {
		var d feedbackDoc
		if err := s.DataTo(&d); err != nil {
			return nil, 0, err
		}
		fb, err := d.toFeedback(s.Ref.ID)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, fb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return docstore.Page(out, limit, offset), len(out), nil
}
