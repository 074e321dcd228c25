package feedback

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Sentiment string

const (
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
	Neutral  Sentiment = "neutral"
)

func ParseSentiment(s string) (Sentiment, error) {
	switch v := Sentiment(s); v {
	case Positive, Negative, Neutral:
		return v, nil
	}
	return "", fmt.Errorf("unknown sentiment %q", s)
}

type Feedback struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	PatientName   string     `json:"patient_name"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Message       string     `json:"message"`
	Rating        *int       `json:"rating,omitempty"`
	Sentiment     Sentiment  `json:"sentiment"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DoctorSentiment is one row of the per-doctor sentiment breakdown.
type DoctorSentiment struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Positive int       `json:"positive"`
	Negative int       `json:"negative"`
	Neutral  int       `json:"neutral"`
	Total    int       `json:"total"`
}

func (d *DoctorSentiment) add(s Sentiment) {
	switch s {
	case Positive:
		d.Positive++
	case Negative:
		d.Negative++
	default:
		d.Neutral++
	}
	d.Total++
}

type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
}
